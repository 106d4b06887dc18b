package ports

import (
	"context"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

// LedgerStorage persists the paper account: trades, open positions and balance history.
type LedgerStorage interface {
	// LoadLedger returns everything needed to rebuild the ledger after a restart.
	LoadLedger(ctx context.Context) (domain.LedgerState, error)

	// CommitFill applies one fill atomically: either every row changes or none does.
	CommitFill(ctx context.Context, m domain.LedgerMutation) error

	// AppendSnapshot adds a row to the append-only balance history.
	AppendSnapshot(ctx context.Context, snap domain.BalanceSnapshot) error

	// SavePositions overwrites the marks of the given open positions.
	SavePositions(ctx context.Context, positions []domain.Position) error
}
