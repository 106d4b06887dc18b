package ports

import (
	"context"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

// WalletStatsProvider looks up historical quality for a trader.
// A nil result with nil error means the source has no data for that wallet.
type WalletStatsProvider interface {
	TraderStats(ctx context.Context, wallet string) (*domain.WalletStats, error)
}
