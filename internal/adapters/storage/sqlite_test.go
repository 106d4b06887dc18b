package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/whalebot/internal/adapters/storage"
	"github.com/alejandrodnm/whalebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makeTrade(id string, side domain.Side, price, size float64) domain.TradeRecord {
	return domain.TradeRecord{
		ID:          id,
		Timestamp:   time.Now().UTC(),
		MarketSlug:  "will-x-happen",
		MarketTitle: "Will X happen?",
		Side:        side,
		TokenID:     "tok-yes",
		Price:       price,
		Size:        size,
		USDValue:    price * size,
		OrderType:   domain.OrderMarket,
		Status:      domain.TradeOpen,
	}
}

func TestSQLiteStorage_CommitFillAndLoad(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	buy := makeTrade("PAPER_1", domain.SideBuy, 0.40, 100)
	pos := domain.Position{
		MarketSlug: buy.MarketSlug, MarketTitle: buy.MarketTitle, TokenID: buy.TokenID,
		Side: domain.SideBuy, EntryPrice: 0.40, CurrentPrice: 0.40, Shares: 100,
		EntryValue: 40, CurrentValue: 40, OpenedAt: buy.Timestamp,
	}
	require.NoError(t, db.CommitFill(ctx, domain.LedgerMutation{Trade: buy, UpsertPosition: &pos}))

	state, err := db.LoadLedger(ctx)
	require.NoError(t, err)
	require.Len(t, state.Trades, 1)
	require.Len(t, state.Positions, 1)
	assert.Equal(t, "PAPER_1", state.Trades[0].ID)
	assert.Equal(t, domain.TradeOpen, state.Trades[0].Status)
	assert.InDelta(t, 40, state.Positions[0].EntryValue, 1e-9)
	assert.Equal(t, "Will X happen?", state.Positions[0].MarketTitle)

	sell := makeTrade("PAPER_2", domain.SideSell, 0.60, 100)
	sell.Status = domain.TradeClosed
	closed := buy
	closed.Status = domain.TradeClosed
	closed.PnL = 20
	require.NoError(t, db.CommitFill(ctx, domain.LedgerMutation{
		Trade:          sell,
		ClosedTrades:   []domain.TradeRecord{closed},
		DeletePosition: pos.Key(),
	}))

	state, err = db.LoadLedger(ctx)
	require.NoError(t, err)
	require.Len(t, state.Trades, 2)
	assert.Empty(t, state.Positions)
	assert.Equal(t, "PAPER_1", state.Trades[0].ID, "trades keep insertion order")
	assert.Equal(t, domain.TradeClosed, state.Trades[0].Status)
	assert.InDelta(t, 20, state.Trades[0].PnL, 1e-9)
}

func TestSQLiteStorage_CommitFillIsAtomic(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	// closing a trade that does not exist must roll back the inserted SELL
	sell := makeTrade("PAPER_9", domain.SideSell, 0.5, 10)
	ghost := makeTrade("PAPER_missing", domain.SideBuy, 0.5, 10)
	err := db.CommitFill(ctx, domain.LedgerMutation{Trade: sell, ClosedTrades: []domain.TradeRecord{ghost}})
	require.Error(t, err)

	state, err := db.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Trades)
}

func TestSQLiteStorage_DuplicateTradeIDRejected(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	tr := makeTrade("PAPER_1", domain.SideBuy, 0.5, 10)
	require.NoError(t, db.CommitFill(ctx, domain.LedgerMutation{Trade: tr}))
	err := db.CommitFill(ctx, domain.LedgerMutation{Trade: tr})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicateTradeID)

	// un error cualquiera no se confunde con un id duplicado
	err = db.CommitFill(ctx, domain.LedgerMutation{
		Trade:        makeTrade("PAPER_2", domain.SideSell, 0.6, 10),
		ClosedTrades: []domain.TradeRecord{{ID: "missing", Status: domain.TradeClosed}},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrDuplicateTradeID)
}

func TestSQLiteStorage_SnapshotsAndMarks(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, db.AppendSnapshot(ctx, domain.BalanceSnapshot{
			Timestamp: time.Now().UTC(), Balance: 1000 + float64(i), TotalPnL: float64(i),
		}))
	}
	all, err := db.BalanceHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.InDelta(t, 1000, all[0].Balance, 1e-9)

	last, err := db.BalanceHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.InDelta(t, 1001, last[0].Balance, 1e-9)
	assert.InDelta(t, 1002, last[1].Balance, 1e-9)

	tr := makeTrade("PAPER_1", domain.SideBuy, 0.5, 10)
	pos := domain.Position{MarketSlug: tr.MarketSlug, TokenID: tr.TokenID, Side: domain.SideBuy,
		EntryPrice: 0.5, CurrentPrice: 0.5, Shares: 10, EntryValue: 5, CurrentValue: 5, OpenedAt: tr.Timestamp}
	require.NoError(t, db.CommitFill(ctx, domain.LedgerMutation{Trade: tr, UpsertPosition: &pos}))

	pos.CurrentPrice, pos.CurrentValue, pos.UnrealizedPnL = 0.8, 8, 3
	require.NoError(t, db.SavePositions(ctx, []domain.Position{pos}))

	positions, err := db.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 3, positions[0].UnrealizedPnL, 1e-9)
	assert.InDelta(t, 5, positions[0].EntryValue, 1e-9)
}

func TestSQLiteStorage_Wallets(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := domain.WhaleWallet{Address: "0xabc", WinRate: 65, TotalVolume: 1e6, ProfitLoss: 5e4,
		FirstSeen: first, LastSeen: first, TradeCount: 1}
	require.NoError(t, db.UpsertWallet(ctx, w))

	w.TradeCount = 2
	w.LastSeen = first.Add(time.Hour)
	w.FirstSeen = first.Add(time.Hour) // ignored on conflict
	w.WinRate = 70
	require.NoError(t, db.UpsertWallet(ctx, w))

	wallets, err := db.LoadWallets(ctx)
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, 2, wallets[0].TradeCount)
	assert.InDelta(t, 70, wallets[0].WinRate, 1e-9)
	assert.True(t, wallets[0].FirstSeen.Equal(first))
	assert.True(t, wallets[0].LastSeen.Equal(first.Add(time.Hour)))
}

func TestSQLiteStorage_WhaleTradesAndSignals(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	wt := domain.WhaleTrade{
		ID: "wt-1", DetectedAt: time.Now().UTC(), MarketSlug: "m", MarketTitle: "M?",
		Wallet: "0xabc", Side: domain.SideBuy, Outcome: "Yes", TokenID: "tok",
		Price: 0.02, Size: 600_000, USDValue: 12_000, TraderWinRate: 72,
	}
	require.NoError(t, db.SaveWhaleTrade(ctx, wt))
	require.NoError(t, db.MarkWhaleTrade(ctx, "wt-1", true, true))

	recent, err := db.RecentWhaleTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.True(t, recent[0].AIValidated)
	assert.True(t, recent[0].Copied)
	assert.InDelta(t, 12_000, recent[0].USDValue, 1e-9)

	sig := domain.CopySignal{
		ID: "sig-1", Timestamp: time.Now().UTC(), MarketSlug: "m", WhaleWallet: "0xabc",
		WhaleSide: domain.SideBuy, WhaleSize: 12_000, OurSide: domain.SideBuy, OurSize: 100,
		Consensus: 0.8, Executed: true, OrderID: "PAPER_1", Outcome: domain.OutcomePending,
	}
	require.NoError(t, db.SaveCopySignal(ctx, sig))

	signals, err := db.CopySignals(ctx, 5)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, domain.OutcomePending, signals[0].Outcome)
	assert.True(t, signals[0].Executed)
	assert.InDelta(t, 0.8, signals[0].Consensus, 1e-9)
}
