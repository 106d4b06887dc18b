package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

const tradersPath = "/traders/"

// TraderStats consulta el historial de un trader. Implementa ports.WalletStatsProvider.
// Un 404 o una respuesta sin ninguna métrica significa que no hay datos: devuelve (nil, nil).
func (c *Client) TraderStats(ctx context.Context, wallet string) (*domain.WalletStats, error) {
	u := c.statsBase + tradersPath + url.PathEscape(wallet)

	var resp traderStatsResponse
	if err := c.get(ctx, c.statsLimiter, u, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("stats.TraderStats %s: %w", wallet, err)
	}
	if resp.WinRate == nil && resp.TotalVolume == nil && resp.ProfitLoss == nil {
		return nil, nil
	}
	return &domain.WalletStats{
		WinRate:     deref(resp.WinRate),
		TotalVolume: deref(resp.TotalVolume),
		ProfitLoss:  deref(resp.ProfitLoss),
	}, nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
