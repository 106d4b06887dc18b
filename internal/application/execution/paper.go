// Package execution holds the backends copy trades are sent to: the simulated
// paper ledger and the live CLOB.
package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/whalebot/internal/application/ledger"
	"github.com/alejandrodnm/whalebot/internal/domain"
	"github.com/alejandrodnm/whalebot/internal/observability"
	"github.com/alejandrodnm/whalebot/internal/ports"
)

const fallbackPrice = 0.50

// Paper fills copy trades inside the simulated ledger.
type Paper struct {
	ledger  *ledger.Ledger
	books   ports.BookProvider // optional
	metrics *observability.Metrics
}

// NewPaper wraps l. books may be nil, in which case fills use the reference price.
func NewPaper(l *ledger.Ledger, books ports.BookProvider, m *observability.Metrics) *Paper {
	return &Paper{ledger: l, books: books, metrics: m}
}

func (p *Paper) Mode() string { return "paper" }

// Balance returns the ledger's cash balance.
func (p *Paper) Balance(context.Context) (float64, error) {
	return p.ledger.Balance(), nil
}

// Buy spends req.USD on req.TokenID at the simulated fill price.
// Order book lookups happen before the ledger lock is taken.
func (p *Paper) Buy(ctx context.Context, req domain.ExecutionRequest) (domain.Execution, error) {
	price := p.fillPrice(ctx, req)
	shares := Shares(req.USD, price)
	if shares <= 0 {
		return domain.Execution{}, fmt.Errorf("execution.Paper.Buy: %v USD at %v buys no shares", req.USD, price)
	}

	id, err := p.ledger.PlaceOrder(ctx, ledger.OrderRequest{
		MarketSlug:  req.MarketSlug,
		MarketTitle: req.MarketTitle,
		TokenID:     req.TokenID,
		Side:        domain.SideBuy,
		Price:       price,
		Size:        shares,
		OrderType:   domain.OrderMarket,
		Notes:       req.Notes,
	})
	if err != nil {
		p.metrics.Order(string(domain.SideBuy), "error")
		return domain.Execution{}, fmt.Errorf("execution.Paper.Buy: %w", err)
	}
	p.metrics.Order(string(domain.SideBuy), "ok")

	if _, err := p.ledger.RecalculateBalance(ctx); err != nil {
		slog.Warn("paper: recalculate balance failed", "err", err)
	}
	p.metrics.SetLedger(p.ledger.Balance(), len(p.ledger.Positions()))

	trade, _ := p.ledger.Trade(id)
	return domain.Execution{
		OrderID:    id,
		Mode:       p.Mode(),
		Price:      price,
		Shares:     shares,
		USD:        trade.USDValue,
		ExecutedAt: trade.Timestamp,
	}, nil
}

// fillPrice is the best ask, else the whale's price, else 0.50.
func (p *Paper) fillPrice(ctx context.Context, req domain.ExecutionRequest) float64 {
	if p.books != nil {
		book, err := p.books.FetchOrderBook(ctx, req.TokenID)
		if err != nil {
			slog.Debug("paper: order book unavailable", "token", req.TokenID, "err", err)
		} else if ask := book.BestAsk(); ask > 0 && ask <= 1 {
			return ask
		}
	}
	if req.ReferencePrice > 0 && req.ReferencePrice <= 1 {
		return req.ReferencePrice
	}
	return fallbackPrice
}

// Shares returns usd/price rounded down to 2 decimals.
func Shares(usd, price float64) float64 {
	if price <= 0 || usd <= 0 {
		return 0
	}
	s, _ := decimal.NewFromFloat(usd).Div(decimal.NewFromFloat(price)).RoundDown(2).Float64()
	return s
}
