package ports

import (
	"context"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

// OrderExecutor places real orders on the Polymarket CLOB.
type OrderExecutor interface {
	// PlaceOrder signs and submits an immediate (FOK) order to the CLOB.
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error)

	// GetBalance returns the available USDC.e balance of the trading wallet.
	GetBalance(ctx context.Context) (float64, error)

	// IsNegRisk returns true if the token's market uses the NegRisk adapter.
	IsNegRisk(ctx context.Context, tokenID string) (bool, error)
}

// ExecutionBackend is where copy trades are sent: the paper ledger or the live CLOB.
// The decision engine only sees this interface.
type ExecutionBackend interface {
	Mode() string
	Balance(ctx context.Context) (float64, error)
	Buy(ctx context.Context, req domain.ExecutionRequest) (domain.Execution, error)
}
