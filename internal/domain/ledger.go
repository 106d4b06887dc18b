package domain

import "time"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType distinguishes resting limit orders from immediate market fills.
type OrderType string

const (
	OrderLimit  OrderType = "LIMIT"
	OrderMarket OrderType = "MARKET"
)

// TradeStatus represents the lifecycle of a ledger trade.
// OPEN → CLOSED is the only transition; CLOSED is terminal.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// TradeRecord is one simulated fill in the paper ledger.
type TradeRecord struct {
	ID          string
	Timestamp   time.Time
	MarketSlug  string
	MarketTitle string
	Side        Side
	TokenID     string
	Price       float64
	Size        float64 // shares
	USDValue    float64 // Price × Size
	OrderType   OrderType
	Status      TradeStatus
	PnL         float64 // realized, set once when a BUY is closed
	Notes       string
}

// Position is the open exposure in one (market, token) pair.
type Position struct {
	MarketSlug    string
	MarketTitle   string
	TokenID       string
	Side          Side
	EntryPrice    float64 // weighted average across merged BUYs
	CurrentPrice  float64
	Shares        float64
	EntryValue    float64
	CurrentValue  float64
	UnrealizedPnL float64
	OpenedAt      time.Time
}

// Key identifies the (market, token) pair the position belongs to.
func (p Position) Key() string {
	return PositionKey(p.MarketSlug, p.TokenID)
}

// PositionKey builds the map key for a (market, token) pair.
func PositionKey(marketSlug, tokenID string) string {
	return marketSlug + "|" + tokenID
}

// BalanceSnapshot is one append-only row of the balance history.
type BalanceSnapshot struct {
	Timestamp time.Time
	Balance   float64
	TotalPnL  float64 // realized + unrealized at snapshot time
}

// LedgerMutation is everything one fill changes, applied by storage in a single transaction.
type LedgerMutation struct {
	Trade          TradeRecord
	ClosedTrades   []TradeRecord // BUY trades moved to CLOSED by this fill
	UpsertPosition *Position
	DeletePosition string // position key removed by this fill
}

// LedgerState is the durable state loaded at startup.
// Trades are in insertion order.
type LedgerState struct {
	Trades    []TradeRecord
	Positions []Position
	Snapshots []BalanceSnapshot
}

// PerformanceSummary aggregates closed round trips of the paper account.
type PerformanceSummary struct {
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	WinRate         float64 // percent
	TotalPnL        float64 // realized
	AvgWin          float64
	AvgLoss         float64
	StartingBalance float64
	CurrentBalance  float64
	TotalReturn     float64 // percent vs starting balance
	OpenPositions   int
	UnrealizedPnL   float64
}
