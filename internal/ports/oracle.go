package ports

import (
	"context"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

// ConsensusOracle asks several models whether betting side on a market is a good trade.
// Approved is true only when at least one model answered and the YES share reaches threshold.
type ConsensusOracle interface {
	Validate(ctx context.Context, marketSlug, side string, threshold float64) (domain.Verdict, error)
}
