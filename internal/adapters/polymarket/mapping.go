package polymarket

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

// mapOrderBook convierte un DTO de libro a domain.OrderBook con niveles ordenados.
func mapOrderBook(r orderBookResponse) domain.OrderBook {
	return domain.OrderBook{
		TokenID: r.AssetID,
		Bids:    mapBookEntries(r.Bids, false),
		Asks:    mapBookEntries(r.Asks, true),
	}
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}

// mapActivityTrade convierte un trade del feed o de la Data API en un TradeEvent.
// Price y size se mantienen como texto; el clasificador decide si son válidos.
func mapActivityTrade(t activityTrade) domain.TradeEvent {
	slug := t.EventSlug
	if slug == "" {
		slug = t.Slug
	}
	wallet := t.ProxyWallet
	if wallet == "" {
		wallet = t.Trader
	}
	return domain.TradeEvent{
		MarketSlug:  slug,
		MarketTitle: t.Title,
		Wallet:      wallet,
		Side:        strings.ToUpper(t.Side),
		Price:       t.Price.String(),
		Size:        t.Size.String(),
		TokenID:     t.Asset,
		Outcome:     t.Outcome,
		TxHash:      t.TransactionHash,
		Timestamp:   parseTradeTimestamp(t.Timestamp),
	}
}

// mapGammaEvent convierte un evento de Gamma en domain.Market usando su primer mercado.
func mapGammaEvent(ev gammaEvent) domain.Market {
	m := domain.Market{Slug: ev.Slug, Title: ev.Title}
	if len(ev.Markets) == 0 {
		return m
	}
	gm := ev.Markets[0]
	enrichFromGamma(&m, gm)
	return m
}

// enrichFromGamma aplica la metadata de un mercado Gamma.
func enrichFromGamma(m *domain.Market, gm gammaMarket) {
	m.Question = gm.Question
	if m.Slug == "" {
		m.Slug = gm.Slug
	}
	m.Active = gm.Active
	m.Closed = gm.Closed

	if v, err := gm.Volume24h.Float64(); err == nil {
		m.Volume24h = v
	}

	if gm.EndDateISO != "" {
		// Polymarket usa varios formatos; intentamos los más comunes
		for _, layout := range []string{
			time.RFC3339,
			"2006-01-02T15:04:05.000Z",
			"2006-01-02T15:04:05Z",
			"2006-01-02",
		} {
			if t, err := time.Parse(layout, gm.EndDateISO); err == nil {
				m.EndDate = t.UTC()
				break
			}
		}
	}

	outcomes := parseStringArray(gm.Outcomes)
	prices := parseStringArray(gm.OutcomePrices)
	tokens := parseStringArray(gm.ClobTokenIDs)
	for i, outcome := range outcomes {
		tok := domain.Token{Outcome: outcome}
		if i < len(tokens) {
			tok.TokenID = tokens[i]
		}
		if i < len(prices) {
			tok.Price, _ = strconv.ParseFloat(prices[i], 64)
		}
		m.Tokens = append(m.Tokens, tok)
	}
}

// parseStringArray decodifica campos de Gamma como `"[\"Yes\", \"No\"]"`.
func parseStringArray(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
