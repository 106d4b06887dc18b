package execution_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alejandrodnm/whalebot/internal/application/execution"
	"github.com/alejandrodnm/whalebot/internal/application/ledger"
	"github.com/alejandrodnm/whalebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBooks struct {
	books map[string]domain.OrderBook
}

func (f fakeBooks) FetchOrderBook(_ context.Context, tokenID string) (domain.OrderBook, error) {
	b, ok := f.books[tokenID]
	if !ok {
		return domain.OrderBook{}, errors.New("not found")
	}
	return b, nil
}

func book(token string, ask float64) domain.OrderBook {
	return domain.OrderBook{
		TokenID: token,
		Bids:    []domain.BookEntry{{Price: ask - 0.02, Size: 500}},
		Asks:    []domain.BookEntry{{Price: ask, Size: 500}},
	}
}

func newLedger(t *testing.T, balance float64) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(context.Background(), nil, ledger.Config{StartingBalance: balance})
	require.NoError(t, err)
	return l
}

func request(token string, usd, ref float64) domain.ExecutionRequest {
	return domain.ExecutionRequest{MarketSlug: "m", MarketTitle: "M?", TokenID: token, USD: usd, ReferencePrice: ref, Notes: "n"}
}

func TestPaper_FillsAtBestAsk(t *testing.T) {
	l := newLedger(t, 1000)
	p := execution.NewPaper(l, fakeBooks{books: map[string]domain.OrderBook{"tok": book("tok", 0.40)}}, nil)

	exec, err := p.Buy(context.Background(), request("tok", 100, 0.55))
	require.NoError(t, err)
	assert.InDelta(t, 0.40, exec.Price, 1e-9)
	assert.InDelta(t, 250, exec.Shares, 1e-9)
	assert.Equal(t, "paper", exec.Mode)
	assert.InDelta(t, 900, l.Balance(), 1e-9)

	pos, ok := l.Position("m", "tok")
	require.True(t, ok)
	assert.InDelta(t, 250, pos.Shares, 1e-9)
	assert.Len(t, l.Snapshots(), 1)
}

func TestPaper_FallsBackToReferencePrice(t *testing.T) {
	l := newLedger(t, 1000)
	p := execution.NewPaper(l, fakeBooks{}, nil)

	exec, err := p.Buy(context.Background(), request("tok", 100, 0.25))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, exec.Price, 1e-9)
	assert.InDelta(t, 400, exec.Shares, 1e-9)
}

func TestPaper_DefaultPrice(t *testing.T) {
	l := newLedger(t, 1000)
	p := execution.NewPaper(l, nil, nil)

	exec, err := p.Buy(context.Background(), request("tok", 100, 0))
	require.NoError(t, err)
	assert.InDelta(t, 0.50, exec.Price, 1e-9)
	assert.InDelta(t, 200, exec.Shares, 1e-9)
}

func TestPaper_InsufficientBalance(t *testing.T) {
	l := newLedger(t, 50)
	p := execution.NewPaper(l, nil, nil)

	_, err := p.Buy(context.Background(), request("tok", 100, 0.5))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.InDelta(t, 50, l.Balance(), 1e-9)
}

func TestShares_RoundsDown(t *testing.T) {
	assert.InDelta(t, 333.33, execution.Shares(100, 0.3), 1e-9)
	assert.InDelta(t, 142.85, execution.Shares(100, 0.7), 1e-9)
	assert.Zero(t, execution.Shares(100, 0))
	assert.Zero(t, execution.Shares(0.001, 0.9))
}

type fakeExecutor struct {
	balance float64
	negRisk bool
	placed  []domain.PlaceOrderRequest
	err     error
}

func (f *fakeExecutor) PlaceOrder(_ context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	f.placed = append(f.placed, req)
	if f.err != nil {
		return domain.PlacedOrder{}, f.err
	}
	return domain.PlacedOrder{CLOBOrderID: "0xorder", Status: "matched"}, nil
}

func (f *fakeExecutor) GetBalance(context.Context) (float64, error) { return f.balance, nil }

func (f *fakeExecutor) IsNegRisk(context.Context, string) (bool, error) { return f.negRisk, nil }

func TestLive_PlacesOrderAtBestAsk(t *testing.T) {
	ex := &fakeExecutor{balance: 500, negRisk: true}
	l := execution.NewLive(ex, fakeBooks{books: map[string]domain.OrderBook{"tok": book("tok", 0.62)}}, nil)

	bal, err := l.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 500, bal, 1e-9)

	exec, err := l.Buy(context.Background(), request("tok", 100, 0.5))
	require.NoError(t, err)
	assert.Equal(t, "0xorder", exec.OrderID)
	assert.Equal(t, "live", exec.Mode)

	require.Len(t, ex.placed, 1)
	assert.Equal(t, domain.SideBuy, ex.placed[0].Side)
	assert.InDelta(t, 0.62, ex.placed[0].Price, 1e-9)
	assert.InDelta(t, 161.29, ex.placed[0].Size, 1e-9)
	assert.True(t, ex.placed[0].NegRisk)
}

func TestLive_NoBookIsAnError(t *testing.T) {
	ex := &fakeExecutor{}
	l := execution.NewLive(ex, fakeBooks{}, nil)

	_, err := l.Buy(context.Background(), request("tok", 100, 0.5))
	assert.Error(t, err)
	assert.Empty(t, ex.placed)
}

func TestLive_RejectedOrder(t *testing.T) {
	ex := &fakeExecutor{err: errors.New("not enough liquidity")}
	l := execution.NewLive(ex, fakeBooks{books: map[string]domain.OrderBook{"tok": book("tok", 0.5)}}, nil)

	_, err := l.Buy(context.Background(), request("tok", 100, 0.5))
	assert.ErrorContains(t, err, "not enough liquidity")
}
