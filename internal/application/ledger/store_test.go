package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/whalebot/internal/adapters/storage"
	"github.com/alejandrodnm/whalebot/internal/application/ledger"
	"github.com/alejandrodnm/whalebot/internal/domain"
)

func newLedger(t *testing.T, starting float64) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(context.Background(), nil, ledger.Config{StartingBalance: starting})
	require.NoError(t, err)
	return l
}

func buy(market, token string, price, size float64) ledger.OrderRequest {
	return ledger.OrderRequest{
		MarketSlug:  market,
		MarketTitle: "Will " + market + " happen?",
		TokenID:     token,
		Side:        domain.SideBuy,
		Price:       price,
		Size:        size,
		OrderType:   domain.OrderMarket,
	}
}

func sell(market, token string, price, size float64) ledger.OrderRequest {
	r := buy(market, token, price, size)
	r.Side = domain.SideSell
	return r
}

func TestLedger_RoundTrip(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 10_000)

	buyID, err := l.PlaceOrder(ctx, buy("btc-100k", "tok-yes", 0.40, 100))
	require.NoError(t, err)
	assert.InDelta(t, 9_960, l.Balance(), 1e-9)

	pos, ok := l.Position("btc-100k", "tok-yes")
	require.True(t, ok)
	assert.InDelta(t, 100, pos.Shares, 1e-9)
	assert.InDelta(t, 40, pos.EntryValue, 1e-9)

	_, err = l.PlaceOrder(ctx, sell("btc-100k", "tok-yes", 0.55, 100))
	require.NoError(t, err)

	assert.InDelta(t, 10_000-0.40*100+0.55*100, l.Balance(), 1e-9)
	_, ok = l.Position("btc-100k", "tok-yes")
	assert.False(t, ok, "position must be removed once fully closed")

	closed, ok := l.Trade(buyID)
	require.True(t, ok)
	assert.Equal(t, domain.TradeClosed, closed.Status)
	assert.InDelta(t, (0.55-0.40)*100, closed.PnL, 1e-9)
}

func TestLedger_BuyInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 100)

	_, err := l.PlaceOrder(ctx, buy("m", "t", 0.5, 201))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientBalance))

	assert.InDelta(t, 100, l.Balance(), 1e-9)
	assert.Empty(t, l.Trades())
	assert.Empty(t, l.Positions())
}

func TestLedger_BuyExactBalanceReachesZero(t *testing.T) {
	l := newLedger(t, 50)

	_, err := l.PlaceOrder(context.Background(), buy("m", "t", 0.5, 100))
	require.NoError(t, err)
	assert.InDelta(t, 0, l.Balance(), 1e-9)
	assert.GreaterOrEqual(t, l.Balance(), 0.0)
}

func TestLedger_SellWithoutPosition(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 1_000)
	_, err := l.PlaceOrder(ctx, buy("other", "t", 0.3, 10))
	require.NoError(t, err)
	before := l.Balance()
	tradesBefore := len(l.Trades())

	_, err = l.PlaceOrder(ctx, sell("m", "t", 0.5, 10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPositionNotFound))
	assert.InDelta(t, before, l.Balance(), 1e-9)
	assert.Len(t, l.Trades(), tradesBefore)

	_, err = l.ClosePosition(ctx, "m", "t", 0.5, "")
	assert.True(t, errors.Is(err, domain.ErrPositionNotFound))
}

func TestLedger_PartialSellRejected(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 1_000)
	_, err := l.PlaceOrder(ctx, buy("m", "t", 0.5, 100))
	require.NoError(t, err)

	_, err = l.PlaceOrder(ctx, sell("m", "t", 0.6, 40))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPartialClose))

	pos, ok := l.Position("m", "t")
	require.True(t, ok)
	assert.InDelta(t, 100, pos.Shares, 1e-9)
}

func TestLedger_InvalidOrders(t *testing.T) {
	l := newLedger(t, 1_000)
	ctx := context.Background()

	cases := map[string]ledger.OrderRequest{
		"zero price":    buy("m", "t", 0, 10),
		"price above 1": buy("m", "t", 1.2, 10),
		"negative size": buy("m", "t", 0.5, -1),
		"missing token": buy("m", "", 0.5, 10),
		"bad side":      {MarketSlug: "m", TokenID: "t", Side: "HOLD", Price: 0.5, Size: 1},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := l.PlaceOrder(ctx, req)
			assert.True(t, errors.Is(err, domain.ErrInvalidOrder))
		})
	}
	assert.InDelta(t, 1_000, l.Balance(), 1e-9)
}

func TestLedger_MultipleBuysMergeIntoOnePosition(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 1_000)

	_, err := l.PlaceOrder(ctx, buy("m", "t", 0.40, 100))
	require.NoError(t, err)
	_, err = l.PlaceOrder(ctx, buy("m", "t", 0.60, 300))
	require.NoError(t, err)

	positions := l.Positions()
	require.Len(t, positions, 1)
	p := positions[0]
	assert.InDelta(t, 400, p.Shares, 1e-9)
	assert.InDelta(t, 220, p.EntryValue, 1e-9)
	assert.InDelta(t, 0.55, p.EntryPrice, 1e-9)
	assert.InDelta(t, 780, l.Balance(), 1e-9)

	_, err = l.ClosePosition(ctx, "m", "t", 0.50, "exit")
	require.NoError(t, err)

	// pnl = 400×0.50 − 220 = −20, split across both BUYs.
	summary := l.PerformanceSummary()
	assert.Equal(t, 2, summary.TotalTrades)
	assert.InDelta(t, -20, summary.TotalPnL, 1e-9)
	assert.InDelta(t, 980, l.Balance(), 1e-9)
}

func TestLedger_DifferentTokensAreSeparatePositions(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 1_000)

	_, err := l.PlaceOrder(ctx, buy("m", "yes", 0.40, 10))
	require.NoError(t, err)
	_, err = l.PlaceOrder(ctx, buy("m", "no", 0.60, 10))
	require.NoError(t, err)

	assert.Len(t, l.Positions(), 2)
}

func TestLedger_UpdatePositionMark(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 1_000)
	_, err := l.PlaceOrder(ctx, buy("m", "t", 0.40, 100))
	require.NoError(t, err)
	_, err = l.PlaceOrder(ctx, buy("other", "t", 0.40, 100))
	require.NoError(t, err)
	balance := l.Balance()

	n, err := l.UpdatePositionMark(ctx, "m", 0.70)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, _ := l.Position("m", "t")
	assert.InDelta(t, 0.70, p.CurrentPrice, 1e-9)
	assert.InDelta(t, 70, p.CurrentValue, 1e-9)
	assert.InDelta(t, 30, p.UnrealizedPnL, 1e-9)

	untouched, _ := l.Position("other", "t")
	assert.InDelta(t, 0, untouched.UnrealizedPnL, 1e-9)
	assert.InDelta(t, balance, l.Balance(), 1e-9, "marks never move the balance")

	n, err = l.UpdateTokenMark(ctx, "other", "t", 0.30)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLedger_RecalculateBalanceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 1_000)

	_, err := l.PlaceOrder(ctx, buy("a", "t", 0.20, 100))
	require.NoError(t, err)
	_, err = l.PlaceOrder(ctx, sell("a", "t", 0.50, 100))
	require.NoError(t, err)
	_, err = l.PlaceOrder(ctx, buy("b", "t", 0.50, 100))
	require.NoError(t, err)
	_, err = l.UpdatePositionMark(ctx, "b", 0.60)
	require.NoError(t, err)

	first, err := l.RecalculateBalance(ctx)
	require.NoError(t, err)
	second, err := l.RecalculateBalance(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Balance, second.Balance)
	assert.Equal(t, first.TotalPnL, second.TotalPnL)
	assert.InDelta(t, 1_000+30-50, first.Balance, 1e-9)
	assert.InDelta(t, 30+10, first.TotalPnL, 1e-9)
	assert.Len(t, l.Snapshots(), 2)
}

func TestLedger_RecalculateMatchesIncrementalBalance(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 500)

	_, err := l.PlaceOrder(ctx, buy("a", "t", 0.33, 30))
	require.NoError(t, err)
	_, err = l.PlaceOrder(ctx, buy("a", "t", 0.41, 70))
	require.NoError(t, err)
	_, err = l.ClosePosition(ctx, "a", "t", 0.12, "")
	require.NoError(t, err)
	incremental := l.Balance()

	snap, err := l.RecalculateBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, incremental, snap.Balance, 1e-9)
}

// Comprar todo el saldo a precios arbitrarios y cerrar con pérdidas no debe
// dejar un saldo recalculado por debajo de cero.
func TestLedger_RecalculateNeverNegativeAfterSpendingAll(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	l := newLedger(t, 1_000)

	open := map[string]bool{}
	for i := 0; i < 500; i++ {
		market := fmt.Sprintf("m%d", rng.Intn(8))
		price := 0.01 + rng.Float64()*0.98

		switch {
		case open[market] && rng.Intn(2) == 0:
			_, err := l.ClosePosition(ctx, market, "t", 0.01+rng.Float64()*0.98, "")
			require.NoError(t, err)
			delete(open, market)
		case l.Balance() >= 0.01:
			size := l.Balance() / price
			if rng.Intn(3) == 0 {
				size = size * rng.Float64()
			}
			_, err := l.PlaceOrder(ctx, buy(market, "t", price, size))
			if err != nil {
				require.True(t, errors.Is(err, domain.ErrInsufficientBalance) || errors.Is(err, domain.ErrInvalidOrder), err)
				continue
			}
			open[market] = true
		}

		incremental := l.Balance()
		snap, err := l.RecalculateBalance(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, snap.Balance, 0.0, "step %d", i)
		require.GreaterOrEqual(t, l.Balance(), 0.0, "step %d", i)
		require.InDelta(t, incremental, snap.Balance, 1e-9, "step %d", i)
	}
}

func TestLedger_PerformanceSummary(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 1_000)

	empty := l.PerformanceSummary()
	assert.Zero(t, empty.TotalTrades)
	assert.Zero(t, empty.WinRate)
	assert.Zero(t, empty.AvgWin)
	assert.Zero(t, empty.AvgLoss)

	for _, rt := range []struct {
		market      string
		entry, exit float64
	}{
		{"w1", 0.40, 0.60},
		{"w2", 0.50, 0.80},
		{"l1", 0.50, 0.40},
	} {
		_, err := l.PlaceOrder(ctx, buy(rt.market, "t", rt.entry, 100))
		require.NoError(t, err)
		_, err = l.PlaceOrder(ctx, sell(rt.market, "t", rt.exit, 100))
		require.NoError(t, err)
	}

	s := l.PerformanceSummary()
	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 2, s.WinningTrades)
	assert.Equal(t, 1, s.LosingTrades)
	assert.InDelta(t, 200.0/3.0, s.WinRate, 1e-9)
	assert.InDelta(t, 40, s.TotalPnL, 1e-9)
	assert.InDelta(t, 25, s.AvgWin, 1e-9)
	assert.InDelta(t, -10, s.AvgLoss, 1e-9)
	assert.InDelta(t, 1_040, s.CurrentBalance, 1e-9)
	assert.InDelta(t, 4, s.TotalReturn, 1e-9)
}

func TestLedger_ConcurrentBuysNeverOverspend(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 10_000)

	var wg sync.WaitGroup
	var ok, insufficient atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// each costs 6000; together they exceed 10000
			_, err := l.PlaceOrder(ctx, buy(fmt.Sprintf("m%d", i), "t", 0.5, 12_000))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrInsufficientBalance):
				insufficient.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, 1, insufficient.Load())
	assert.InDelta(t, 4_000, l.Balance(), 1e-9)
}

func TestLedger_BalanceNeverNegativeUnderLoad(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, 1_000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = l.PlaceOrder(ctx, buy(fmt.Sprintf("m%d", i%5), "t", 0.5, 90))
		}(i)
	}
	wg.Wait()

	assert.GreaterOrEqual(t, l.Balance(), 0.0)
	var spent float64
	for _, p := range l.Positions() {
		spent += p.EntryValue
	}
	assert.InDelta(t, 1_000, l.Balance()+spent, 1e-6)
}

func TestLedger_DuplicateTradeID(t *testing.T) {
	l, err := ledger.Open(context.Background(), nil, ledger.Config{StartingBalance: 100},
		ledger.WithIDGenerator(func() string { return "PAPER_FIXED" }))
	require.NoError(t, err)

	_, err = l.PlaceOrder(context.Background(), buy("m", "t", 0.1, 10))
	require.NoError(t, err)
	_, err = l.PlaceOrder(context.Background(), buy("m", "t", 0.1, 10))
	assert.True(t, errors.Is(err, domain.ErrDuplicateTradeID))
	assert.InDelta(t, 99, l.Balance(), 1e-9)
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) LoadLedger(context.Context) (domain.LedgerState, error) {
	return domain.LedgerState{}, nil
}
func (failingStore) CommitFill(context.Context, domain.LedgerMutation) error {
	return errors.New("disk full")
}
func (failingStore) AppendSnapshot(context.Context, domain.BalanceSnapshot) error {
	return errors.New("disk full")
}
func (failingStore) SavePositions(context.Context, []domain.Position) error {
	return errors.New("disk full")
}

func TestLedger_PersistenceFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	l, err := ledger.Open(ctx, failingStore{}, ledger.Config{StartingBalance: 100})
	require.NoError(t, err)

	_, err = l.PlaceOrder(ctx, buy("m", "t", 0.5, 10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.InDelta(t, 100, l.Balance(), 1e-9)
	assert.Empty(t, l.Trades())
	assert.Empty(t, l.Positions())

	_, err = l.RecalculateBalance(ctx)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}

func TestLedger_RestoresFromStorage(t *testing.T) {
	ctx := context.Background()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { clock = clock.Add(time.Second); return clock }

	l, err := ledger.Open(ctx, db, ledger.Config{StartingBalance: 1_000}, ledger.WithClock(now))
	require.NoError(t, err)
	_, err = l.PlaceOrder(ctx, buy("a", "t", 0.25, 100))
	require.NoError(t, err)
	_, err = l.ClosePosition(ctx, "a", "t", 0.45, "")
	require.NoError(t, err)
	_, err = l.PlaceOrder(ctx, buy("b", "t", 0.50, 100))
	require.NoError(t, err)
	_, err = l.RecalculateBalance(ctx)
	require.NoError(t, err)

	reopened, err := ledger.Open(ctx, db, ledger.Config{StartingBalance: 1_000})
	require.NoError(t, err)

	assert.InDelta(t, l.Balance(), reopened.Balance(), 1e-9)
	assert.Len(t, reopened.Trades(), 3)
	assert.Len(t, reopened.Positions(), 1)
	assert.Len(t, reopened.Snapshots(), 1)
	assert.Equal(t, l.PerformanceSummary().TotalPnL, reopened.PerformanceSummary().TotalPnL)
}
