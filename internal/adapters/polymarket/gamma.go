package polymarket

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

const gammaEventsPath = "/events"

// MarketBySlug obtiene la metadata del evento con ese slug desde Gamma.
// Devuelve ErrNotFound si el slug no existe.
func (c *Client) MarketBySlug(ctx context.Context, slug string) (domain.Market, error) {
	u := fmt.Sprintf("%s%s?slug=%s", c.gammaBase, gammaEventsPath, url.QueryEscape(slug))

	var resp []gammaEvent
	if err := c.get(ctx, c.gammaLimiter, u, &resp); err != nil {
		return domain.Market{}, fmt.Errorf("gamma.MarketBySlug %s: %w", slug, err)
	}
	if len(resp) == 0 {
		return domain.Market{}, fmt.Errorf("gamma.MarketBySlug %s: %w", slug, ErrNotFound)
	}
	return mapGammaEvent(resp[0]), nil
}
