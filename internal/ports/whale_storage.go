package ports

import (
	"context"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

// WalletStorage persists the whale wallet registry.
type WalletStorage interface {
	UpsertWallet(ctx context.Context, w domain.WhaleWallet) error
	LoadWallets(ctx context.Context) ([]domain.WhaleWallet, error)
}

// WhaleTradeStorage keeps the log of detected whale trades.
type WhaleTradeStorage interface {
	SaveWhaleTrade(ctx context.Context, t domain.WhaleTrade) error
	MarkWhaleTrade(ctx context.Context, id string, aiValidated, copied bool) error
}

// SignalStorage keeps the append-only log of copy signals.
type SignalStorage interface {
	SaveCopySignal(ctx context.Context, s domain.CopySignal) error
}
