// Package whale turns raw feed events into whale trades and keeps the
// registry of wallets that produced them.
package whale

import (
	"math"
	"strconv"
	"strings"

	"github.com/alejandrodnm/whalebot/internal/domain"
	"github.com/google/uuid"
)

// DefaultThreshold is the minimum notional, in USD, for a trade to count as a whale trade.
const DefaultThreshold = 10_000.0

// Classifier flags trades whose notional (price × size) reaches Threshold.
type Classifier struct {
	Threshold float64
}

// NewClassifier returns a classifier; a non-positive threshold falls back to DefaultThreshold.
func NewClassifier(threshold float64) Classifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Classifier{Threshold: threshold}
}

// Classify returns the whale trade for ev and true when its notional reaches the
// threshold. Malformed events are never errors: they return false.
func (c Classifier) Classify(ev domain.TradeEvent) (domain.WhaleTrade, bool) {
	if strings.TrimSpace(ev.Wallet) == "" || strings.TrimSpace(ev.MarketSlug) == "" {
		return domain.WhaleTrade{}, false
	}
	side, ok := parseSide(ev.Side)
	if !ok {
		return domain.WhaleTrade{}, false
	}
	price, ok := parsePositive(ev.Price)
	if !ok {
		return domain.WhaleTrade{}, false
	}
	size, ok := parsePositive(ev.Size)
	if !ok {
		return domain.WhaleTrade{}, false
	}

	usd := price * size
	if math.IsInf(usd, 0) || usd < c.Threshold {
		return domain.WhaleTrade{}, false
	}

	return domain.WhaleTrade{
		ID:          uuid.NewString(),
		DetectedAt:  ev.Timestamp,
		MarketSlug:  ev.MarketSlug,
		MarketTitle: ev.MarketTitle,
		Wallet:      ev.Wallet,
		Side:        side,
		Outcome:     ev.Outcome,
		TokenID:     ev.TokenID,
		Price:       price,
		Size:        size,
		USDValue:    usd,
		TxHash:      ev.TxHash,
	}, true
}

// Malformed reports whether ev would be dropped for bad input rather than for size.
func Malformed(ev domain.TradeEvent) bool {
	if strings.TrimSpace(ev.Wallet) == "" || strings.TrimSpace(ev.MarketSlug) == "" {
		return true
	}
	if _, ok := parseSide(ev.Side); !ok {
		return true
	}
	if _, ok := parsePositive(ev.Price); !ok {
		return true
	}
	_, ok := parsePositive(ev.Size)
	return !ok
}

// parseSide: un lado desconocido o vacío no se adivina, el evento se descarta.
func parseSide(s string) (domain.Side, bool) {
	side := domain.Side(strings.ToUpper(strings.TrimSpace(s)))
	return side, side.Valid()
}

func parsePositive(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	return f, true
}
