package polymarket

import "encoding/json"

// DTOs raw de las APIs de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- CLOB API ---

// orderBookRequest es el body del POST /books batch.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse es la respuesta de GET /book o de un item en POST /books.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Market  string         `json:"market"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- Gamma API ---

// gammaEvent es un item de GET /events?slug=.
type gammaEvent struct {
	Slug    string        `json:"slug"`
	Title   string        `json:"title"`
	Markets []gammaMarket `json:"markets"`
}

// gammaMarket contiene la metadata de un mercado.
// Gamma devuelve outcomes, precios y token ids como strings con JSON dentro.
type gammaMarket struct {
	Question      string      `json:"question"`
	Slug          string      `json:"slug"`
	EndDateISO    string      `json:"endDateIso"`
	Volume24h     json.Number `json:"volume24hr"`
	Outcomes      string      `json:"outcomes"`
	OutcomePrices string      `json:"outcomePrices"`
	ClobTokenIDs  string      `json:"clobTokenIds"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
}

// --- Data API / live activity ---

// activityTrade es un trade tal como lo publican el websocket de actividad
// (payload de orders_matched) y GET /trades de la Data API.
type activityTrade struct {
	ProxyWallet     string      `json:"proxyWallet"`
	Trader          string      `json:"trader"`
	Side            string      `json:"side"`
	Asset           string      `json:"asset"`
	ConditionID     string      `json:"conditionId"`
	Size            json.Number `json:"size"`
	Price           json.Number `json:"price"`
	Timestamp       json.Number `json:"timestamp"`
	Title           string      `json:"title"`
	Slug            string      `json:"slug"`
	EventSlug       string      `json:"eventSlug"`
	Outcome         string      `json:"outcome"`
	TransactionHash string      `json:"transactionHash"`
}

// wsFrame es el sobre de cada mensaje del websocket de actividad.
type wsFrame struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// wsSubscribe es el mensaje de suscripción.
type wsSubscribe struct {
	Action        string           `json:"action"`
	Subscriptions []wsSubscription `json:"subscriptions"`
}

type wsSubscription struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
}

// --- Trader stats ---

// traderStatsResponse es la respuesta de GET /traders/{wallet}.
// Los campos son punteros: un cuerpo sin ninguno de ellos ({}) es "sin datos", no ceros.
type traderStatsResponse struct {
	WinRate     *float64 `json:"win_rate"`
	TotalVolume *float64 `json:"total_volume"`
	ProfitLoss  *float64 `json:"profit_loss"`
}
