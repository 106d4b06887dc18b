package ports

import (
	"context"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

// TradeFeed streams matched trades in arrival order. Run blocks until ctx is done,
// reconnecting on its own after transient failures.
type TradeFeed interface {
	Run(ctx context.Context, out chan<- domain.TradeEvent) error
	Connected() bool
}
