package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/whalebot/internal/domain"
	"github.com/alejandrodnm/whalebot/internal/ports"
)

const (
	defaultStartingBalance = 10_000.0
	shareTolerance         = 1e-9
)

// Config holds the paper account settings.
type Config struct {
	StartingBalance float64
}

// OrderRequest is a paper order submitted to the ledger.
type OrderRequest struct {
	MarketSlug  string
	MarketTitle string
	TokenID     string
	Side        domain.Side
	Price       float64
	Size        float64 // shares
	OrderType   domain.OrderType
	Notes       string
}

func (r OrderRequest) validate() error {
	switch {
	case r.MarketSlug == "" || r.TokenID == "":
		return fmt.Errorf("market and token are required: %w", domain.ErrInvalidOrder)
	case !r.Side.Valid():
		return fmt.Errorf("side %q: %w", r.Side, domain.ErrInvalidOrder)
	case !finitePositive(r.Price) || r.Price > 1:
		return fmt.Errorf("price %v outside (0, 1]: %w", r.Price, domain.ErrInvalidOrder)
	case !finitePositive(r.Size):
		return fmt.Errorf("size %v must be positive: %w", r.Size, domain.ErrInvalidOrder)
	}
	return nil
}

func finitePositive(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator replaces the trade id generator.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

// Ledger is the paper trading account. It is the only writer of trades,
// positions and balance history; every mutation holds mu for its whole
// read-modify-write cycle. Callers must do network I/O before calling in.
type Ledger struct {
	cfg   Config
	store ports.LedgerStorage // nil keeps the ledger in memory only
	now   func() time.Time
	newID func() string

	mu        sync.RWMutex
	balance   float64
	trades    map[string]domain.TradeRecord
	order     []string // trade ids in insertion order
	positions map[string]domain.Position
	snapshots []domain.BalanceSnapshot
}

// Open builds the ledger and restores any state already in store.
func Open(ctx context.Context, store ports.LedgerStorage, cfg Config, opts ...Option) (*Ledger, error) {
	if cfg.StartingBalance <= 0 {
		cfg.StartingBalance = defaultStartingBalance
	}
	l := &Ledger{
		cfg:       cfg,
		store:     store,
		now:       time.Now,
		newID:     func() string { return "PAPER_" + uuid.NewString() },
		trades:    make(map[string]domain.TradeRecord),
		positions: make(map[string]domain.Position),
	}
	for _, opt := range opts {
		opt(l)
	}

	if store != nil {
		state, err := store.LoadLedger(ctx)
		if err != nil {
			return nil, fmt.Errorf("ledger.Open: load: %w", err)
		}
		for _, t := range state.Trades {
			l.trades[t.ID] = t
			l.order = append(l.order, t.ID)
		}
		for _, p := range state.Positions {
			l.positions[p.Key()] = p
		}
		l.snapshots = state.Snapshots
	}
	l.balance = CashBalance(cfg.StartingBalance, l.tradesLocked(), l.positionsLocked())

	slog.Info("ledger: opened",
		"starting_balance", cfg.StartingBalance,
		"balance", l.balance,
		"trades", len(l.order),
		"open_positions", len(l.positions),
	)
	return l, nil
}

// PlaceOrder records a paper fill.
//
// BUY debits price×size and merges into the pair's position; it fails with
// ErrInsufficientBalance when the cost exceeds the balance. SELL must close the
// whole position of the pair: it credits the exit value, closes the open BUY
// trades with their pnl and removes the position. The durable write happens
// before the in-memory state changes, so a failed write leaves nothing behind.
func (l *Ledger) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", fmt.Errorf("ledger.PlaceOrder: %w", err)
	}
	if req.OrderType == "" {
		req.OrderType = domain.OrderMarket
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.newID()
	if _, dup := l.trades[id]; dup {
		return "", fmt.Errorf("ledger.PlaceOrder: %s: %w", id, domain.ErrDuplicateTradeID)
	}

	trade := domain.TradeRecord{
		ID:          id,
		Timestamp:   l.now().UTC(),
		MarketSlug:  req.MarketSlug,
		MarketTitle: req.MarketTitle,
		Side:        req.Side,
		TokenID:     req.TokenID,
		Price:       req.Price,
		Size:        req.Size,
		USDValue:    Notional(req.Price, req.Size),
		OrderType:   req.OrderType,
		Status:      domain.TradeOpen,
		Notes:       req.Notes,
	}

	var (
		m       domain.LedgerMutation
		balance float64
		err     error
	)
	if req.Side == domain.SideBuy {
		m, balance, err = l.planBuy(trade)
	} else {
		m, balance, err = l.planSell(trade)
	}
	if err != nil {
		return "", fmt.Errorf("ledger.PlaceOrder: %w", err)
	}

	if l.store != nil {
		if err := l.store.CommitFill(ctx, m); err != nil {
			slog.Error("ledger: commit fill failed", "trade_id", id, "err", err)
			return "", fmt.Errorf("ledger.PlaceOrder: %w: %w", domain.ErrPersistence, err)
		}
	}
	l.apply(m, balance)

	slog.Debug("ledger: order filled",
		"trade_id", id,
		"side", req.Side,
		"market", req.MarketSlug,
		"price", req.Price,
		"size", req.Size,
		"balance", balance,
	)
	return id, nil
}

func (l *Ledger) planBuy(trade domain.TradeRecord) (domain.LedgerMutation, float64, error) {
	remaining := decimal.NewFromFloat(l.balance).Sub(decimal.NewFromFloat(trade.USDValue))
	if remaining.IsNegative() {
		return domain.LedgerMutation{}, 0, fmt.Errorf("cost $%.2f > balance $%.2f: %w",
			trade.USDValue, l.balance, domain.ErrInsufficientBalance)
	}

	var existing *domain.Position
	if p, ok := l.positions[domain.PositionKey(trade.MarketSlug, trade.TokenID)]; ok {
		existing = &p
	}
	pos := MergeFill(existing, trade)

	return domain.LedgerMutation{Trade: trade, UpsertPosition: &pos}, money(remaining), nil
}

func (l *Ledger) planSell(trade domain.TradeRecord) (domain.LedgerMutation, float64, error) {
	key := domain.PositionKey(trade.MarketSlug, trade.TokenID)
	pos, ok := l.positions[key]
	if !ok {
		return domain.LedgerMutation{}, 0, fmt.Errorf("%s: %w", key, domain.ErrPositionNotFound)
	}
	if math.Abs(trade.Size-pos.Shares) > shareTolerance {
		return domain.LedgerMutation{}, 0, fmt.Errorf("sell %.4f of %.4f shares: %w",
			trade.Size, pos.Shares, domain.ErrPartialClose)
	}

	exitValue, pnl := ClosePnL(pos, trade.Price)

	var open []domain.TradeRecord
	for _, id := range l.order {
		t := l.trades[id]
		if t.Side == domain.SideBuy && t.Status == domain.TradeOpen &&
			domain.PositionKey(t.MarketSlug, t.TokenID) == key {
			open = append(open, t)
		}
	}

	// The closing leg opens nothing; its pnl lives on the BUY trades it closes.
	trade.Status = domain.TradeClosed
	trade.USDValue = exitValue
	if trade.MarketTitle == "" {
		trade.MarketTitle = pos.MarketTitle
	}

	balance := money(decimal.NewFromFloat(l.balance).Add(decimal.NewFromFloat(exitValue)))
	slog.Info("ledger: position closed", "market", trade.MarketSlug, "token", trade.TokenID, "pnl", pnl)

	return domain.LedgerMutation{
		Trade:          trade,
		ClosedTrades:   AllocateClose(open, trade.Price, pnl),
		DeletePosition: key,
	}, balance, nil
}

func (l *Ledger) apply(m domain.LedgerMutation, balance float64) {
	l.trades[m.Trade.ID] = m.Trade
	l.order = append(l.order, m.Trade.ID)
	for _, t := range m.ClosedTrades {
		l.trades[t.ID] = t
	}
	if m.UpsertPosition != nil {
		l.positions[m.UpsertPosition.Key()] = *m.UpsertPosition
	}
	if m.DeletePosition != "" {
		delete(l.positions, m.DeletePosition)
	}
	l.balance = balance
}

// ClosePosition sells every share of the pair's position at price.
func (l *Ledger) ClosePosition(ctx context.Context, marketSlug, tokenID string, price float64, notes string) (string, error) {
	l.mu.RLock()
	pos, ok := l.positions[domain.PositionKey(marketSlug, tokenID)]
	l.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("ledger.ClosePosition: %s: %w", domain.PositionKey(marketSlug, tokenID), domain.ErrPositionNotFound)
	}
	return l.PlaceOrder(ctx, OrderRequest{
		MarketSlug:  marketSlug,
		MarketTitle: pos.MarketTitle,
		TokenID:     tokenID,
		Side:        domain.SideSell,
		Price:       price,
		Size:        pos.Shares,
		OrderType:   domain.OrderMarket,
		Notes:       notes,
	})
}

// UpdatePositionMark re-prices every open position in market. Balance is untouched.
// Marks are derived data: memory is updated even if the durable write fails.
func (l *Ledger) UpdatePositionMark(ctx context.Context, marketSlug string, price float64) (int, error) {
	return l.mark(ctx, price, func(p domain.Position) bool { return p.MarketSlug == marketSlug })
}

// UpdateTokenMark re-prices the position of a single (market, token) pair.
func (l *Ledger) UpdateTokenMark(ctx context.Context, marketSlug, tokenID string, price float64) (int, error) {
	key := domain.PositionKey(marketSlug, tokenID)
	return l.mark(ctx, price, func(p domain.Position) bool { return p.Key() == key })
}

func (l *Ledger) mark(ctx context.Context, price float64, match func(domain.Position) bool) (int, error) {
	if !finitePositive(price) || price > 1 {
		return 0, fmt.Errorf("ledger.mark: price %v: %w", price, domain.ErrInvalidOrder)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var updated []domain.Position
	for key, p := range l.positions {
		if !match(p) {
			continue
		}
		p = MarkPosition(p, price)
		l.positions[key] = p
		updated = append(updated, p)
	}
	if len(updated) == 0 || l.store == nil {
		return len(updated), nil
	}
	if err := l.store.SavePositions(ctx, updated); err != nil {
		slog.Warn("ledger: save marks failed", "positions", len(updated), "err", err)
		return len(updated), fmt.Errorf("ledger.mark: %w: %w", domain.ErrPersistence, err)
	}
	return len(updated), nil
}

// RecalculateBalance recomputes the balance from trade history and appends a
// snapshot. Calling it again without new trades yields the same values.
func (l *Ledger) RecalculateBalance(ctx context.Context) (domain.BalanceSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	trades := l.tradesLocked()
	positions := l.positionsLocked()

	l.balance = CashBalance(l.cfg.StartingBalance, trades, positions)
	snap := domain.BalanceSnapshot{
		Timestamp: l.now().UTC(),
		Balance:   l.balance,
		TotalPnL:  TotalPnL(trades, positions),
	}
	l.snapshots = append(l.snapshots, snap)

	if l.store != nil {
		if err := l.store.AppendSnapshot(ctx, snap); err != nil {
			slog.Warn("ledger: append snapshot failed", "err", err)
			return snap, fmt.Errorf("ledger.RecalculateBalance: %w: %w", domain.ErrPersistence, err)
		}
	}
	return snap, nil
}

// PerformanceSummary reports closed round trips and returns against the starting balance.
func (l *Ledger) PerformanceSummary() domain.PerformanceSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Summarize(l.cfg.StartingBalance, l.balance, l.tradesLocked(), l.positionsLocked())
}

// Balance returns the spendable paper balance.
func (l *Ledger) Balance() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance
}

// StartingBalance returns the configured starting balance.
func (l *Ledger) StartingBalance() float64 { return l.cfg.StartingBalance }

// Positions returns a copy of the open positions, oldest first.
func (l *Ledger) Positions() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.positionsLocked()
}

// Position returns the open position of a pair, if any.
func (l *Ledger) Position(marketSlug, tokenID string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[domain.PositionKey(marketSlug, tokenID)]
	return p, ok
}

// Trades returns a copy of every trade in insertion order.
func (l *Ledger) Trades() []domain.TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tradesLocked()
}

// Trade returns one trade by id.
func (l *Ledger) Trade(id string) (domain.TradeRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.trades[id]
	return t, ok
}

// Snapshots returns a copy of the balance history.
func (l *Ledger) Snapshots() []domain.BalanceSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.BalanceSnapshot, len(l.snapshots))
	copy(out, l.snapshots)
	return out
}

func (l *Ledger) tradesLocked() []domain.TradeRecord {
	out := make([]domain.TradeRecord, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.trades[id])
	}
	return out
}

func (l *Ledger) positionsLocked() []domain.Position {
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}
