package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/whalebot/internal/domain"
	"github.com/alejandrodnm/whalebot/internal/observability"
	"github.com/alejandrodnm/whalebot/internal/ports"
)

// Live sends copy trades to the Polymarket CLOB as FOK market BUYs.
type Live struct {
	exec    ports.OrderExecutor
	books   ports.BookProvider
	metrics *observability.Metrics
	now     func() time.Time
}

// NewLive builds a live backend.
func NewLive(exec ports.OrderExecutor, books ports.BookProvider, m *observability.Metrics) *Live {
	return &Live{exec: exec, books: books, metrics: m, now: func() time.Time { return time.Now().UTC() }}
}

func (l *Live) Mode() string { return "live" }

// Balance returns the wallet's USDC.e balance on Polygon.
func (l *Live) Balance(ctx context.Context) (float64, error) {
	bal, err := l.exec.GetBalance(ctx)
	if err != nil {
		return 0, fmt.Errorf("execution.Live.Balance: %w", err)
	}
	return bal, nil
}

// Buy takes the best ask and submits a fill-or-kill order for req.USD.
func (l *Live) Buy(ctx context.Context, req domain.ExecutionRequest) (domain.Execution, error) {
	book, err := l.books.FetchOrderBook(ctx, req.TokenID)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("execution.Live.Buy: book %s: %w", req.TokenID, err)
	}
	ask := book.BestAsk()
	if ask <= 0 || ask >= 1 {
		return domain.Execution{}, fmt.Errorf("execution.Live.Buy: no asks for %s", req.TokenID)
	}

	shares := Shares(req.USD, ask)
	if shares <= 0 {
		return domain.Execution{}, fmt.Errorf("execution.Live.Buy: %v USD at %v buys no shares", req.USD, ask)
	}

	negRisk, err := l.exec.IsNegRisk(ctx, req.TokenID)
	if err != nil {
		// sin dato se asume mercado estándar
		slog.Warn("live: neg-risk lookup failed", "token", req.TokenID, "err", err)
	}

	placed, err := l.exec.PlaceOrder(ctx, domain.PlaceOrderRequest{
		TokenID: req.TokenID,
		Side:    domain.SideBuy,
		Price:   ask,
		Size:    shares,
		NegRisk: negRisk,
	})
	if err != nil {
		l.metrics.Order(string(domain.SideBuy), "error")
		return domain.Execution{}, fmt.Errorf("execution.Live.Buy: %w", err)
	}
	l.metrics.Order(string(domain.SideBuy), "ok")

	slog.Info("live: order placed",
		"order_id", placed.CLOBOrderID,
		"status", placed.Status,
		"market", req.MarketSlug,
		"price", ask,
		"shares", shares,
	)
	return domain.Execution{
		OrderID:    placed.CLOBOrderID,
		Mode:       l.Mode(),
		Price:      ask,
		Shares:     shares,
		USD:        ask * shares,
		ExecutedAt: l.now(),
	}, nil
}
