package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

const (
	tradesPath       = "/trades"
	maxTradesPerPage = 500
)

// RecentTrades obtiene los últimos trades de toda la plataforma desde la Data API,
// más recientes primero. El feed lo usa para rellenar el hueco tras una reconexión.
func (c *Client) RecentTrades(ctx context.Context, limit int) ([]domain.TradeEvent, error) {
	if limit <= 0 || limit > maxTradesPerPage {
		limit = maxTradesPerPage
	}
	u := fmt.Sprintf("%s%s?limit=%d&takerOnly=true", c.dataBase, tradesPath, limit)

	var resp []activityTrade
	if err := c.get(ctx, c.dataLimiter, u, &resp); err != nil {
		return nil, fmt.Errorf("data-api.RecentTrades: %w", err)
	}

	events := make([]domain.TradeEvent, 0, len(resp))
	for _, t := range resp {
		events = append(events, mapActivityTrade(t))
	}
	slog.Debug("polymarket: recent trades fetched", "count", len(events))
	return events, nil
}

// parseTradeTimestamp acepta unix en segundos o milisegundos, o ISO 8601.
func parseTradeTimestamp(n json.Number) time.Time {
	s := n.String()
	if s == "" {
		return time.Time{}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.UnixMilli(sec).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05Z",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
