package ledger

// accounting.go: pure P&L arithmetic over ledger values.
//
// Sums go through shopspring/decimal so long trade histories do not drift;
// results are converted back to float64 at the boundary. Every dollar amount is
// rounded to moneyPlaces before it leaves this file, so the float64 values
// stored on trades and positions convert back to the exact same decimal and a
// recalculated balance matches the incremental one to the cent fraction.

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

// moneyPlaces: decimales con los que se guarda cualquier importe en USD.
const moneyPlaces = 8

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func money(d decimal.Decimal) float64 { return d.Round(moneyPlaces).InexactFloat64() }

// Notional returns price × size rounded to moneyPlaces.
func Notional(price, size float64) float64 {
	return money(dec(price).Mul(dec(size)))
}

// MergeFill folds a BUY fill into the existing position of its pair.
// pos is nil when the pair has no open position. The merged entry price is the
// share-weighted average of every BUY folded in so far.
func MergeFill(pos *domain.Position, fill domain.TradeRecord) domain.Position {
	if pos == nil {
		return domain.Position{
			MarketSlug:   fill.MarketSlug,
			MarketTitle:  fill.MarketTitle,
			TokenID:      fill.TokenID,
			Side:         domain.SideBuy,
			EntryPrice:   fill.Price,
			CurrentPrice: fill.Price,
			Shares:       fill.Size,
			EntryValue:   fill.USDValue,
			CurrentValue: fill.USDValue,
			OpenedAt:     fill.Timestamp,
		}
	}

	merged := *pos
	shares := dec(pos.Shares).Add(dec(fill.Size))
	entry := dec(pos.EntryValue).Add(dec(fill.USDValue))
	merged.Shares = shares.InexactFloat64()
	merged.EntryValue = money(entry)
	merged.EntryPrice = entry.Div(shares).InexactFloat64()
	if merged.MarketTitle == "" {
		merged.MarketTitle = fill.MarketTitle
	}
	return MarkPosition(merged, fill.Price)
}

// MarkPosition re-prices a position at price without touching its entry.
func MarkPosition(pos domain.Position, price float64) domain.Position {
	current := dec(pos.Shares).Mul(dec(price)).Round(moneyPlaces)
	pos.CurrentPrice = price
	pos.CurrentValue = money(current)
	pos.UnrealizedPnL = money(current.Sub(dec(pos.EntryValue)))
	return pos
}

// ClosePnL returns the exit value and realized pnl of selling the whole position at exitPrice.
func ClosePnL(pos domain.Position, exitPrice float64) (exitValue, pnl float64) {
	exit := dec(pos.Shares).Mul(dec(exitPrice)).Round(moneyPlaces)
	return money(exit), money(exit.Sub(dec(pos.EntryValue)))
}

// AllocateClose closes every OPEN BUY trade of a pair at exitPrice.
// Each trade gets (exitPrice − trade.Price) × trade.Size; the last one absorbs
// the rounding remainder so the shares add up exactly to positionPnL, the value
// returned by ClosePnL.
func AllocateClose(open []domain.TradeRecord, exitPrice, positionPnL float64) []domain.TradeRecord {
	closed := make([]domain.TradeRecord, 0, len(open))
	exit := dec(exitPrice)
	allocated := decimal.Zero
	for i, t := range open {
		t.Status = domain.TradeClosed
		if i == len(open)-1 {
			t.PnL = money(dec(positionPnL).Sub(allocated))
		} else {
			t.PnL = money(exit.Sub(dec(t.Price)).Mul(dec(t.Size)))
			allocated = allocated.Add(dec(t.PnL))
		}
		closed = append(closed, t)
	}
	return closed
}

// RealizedPnL sums pnl over closed BUY round trips.
func RealizedPnL(trades []domain.TradeRecord) float64 {
	return money(realized(trades))
}

func realized(trades []domain.TradeRecord) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range trades {
		if isClosedRoundTrip(t) {
			sum = sum.Add(dec(t.PnL))
		}
	}
	return sum
}

// CashBalance recomputes the spendable balance from history:
// starting + realized pnl − cost still tied up in open positions.
func CashBalance(starting float64, trades []domain.TradeRecord, positions []domain.Position) float64 {
	bal := dec(starting).Add(realized(trades))
	for _, p := range positions {
		bal = bal.Sub(dec(p.EntryValue))
	}
	return money(bal)
}

// UnrealizedPnL sums mark-to-market pnl over open positions.
func UnrealizedPnL(positions []domain.Position) float64 {
	sum := decimal.Zero
	for _, p := range positions {
		sum = sum.Add(dec(p.UnrealizedPnL))
	}
	return sum.InexactFloat64()
}

// TotalPnL is realized plus unrealized pnl.
func TotalPnL(trades []domain.TradeRecord, positions []domain.Position) float64 {
	return dec(RealizedPnL(trades)).Add(dec(UnrealizedPnL(positions))).InexactFloat64()
}

// Summarize builds the performance summary over closed round trips.
func Summarize(starting, balance float64, trades []domain.TradeRecord, positions []domain.Position) domain.PerformanceSummary {
	s := domain.PerformanceSummary{
		StartingBalance: starting,
		CurrentBalance:  balance,
		OpenPositions:   len(positions),
		UnrealizedPnL:   UnrealizedPnL(positions),
	}

	total, wins, losses := decimal.Zero, decimal.Zero, decimal.Zero
	for _, t := range trades {
		if !isClosedRoundTrip(t) {
			continue
		}
		s.TotalTrades++
		total = total.Add(dec(t.PnL))
		switch {
		case t.PnL > 0:
			s.WinningTrades++
			wins = wins.Add(dec(t.PnL))
		case t.PnL < 0:
			s.LosingTrades++
			losses = losses.Add(dec(t.PnL))
		}
	}

	s.TotalPnL = total.InexactFloat64()
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	}
	if s.WinningTrades > 0 {
		s.AvgWin = wins.Div(decimal.NewFromInt(int64(s.WinningTrades))).InexactFloat64()
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = losses.Div(decimal.NewFromInt(int64(s.LosingTrades))).InexactFloat64()
	}
	if starting > 0 {
		s.TotalReturn = dec(balance).Sub(dec(starting)).Div(dec(starting)).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return s
}

// isClosedRoundTrip: only BUY legs carry pnl; the closing SELL leg is bookkeeping.
func isClosedRoundTrip(t domain.TradeRecord) bool {
	return t.Side == domain.SideBuy && t.Status == domain.TradeClosed
}
