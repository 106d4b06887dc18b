package domain

import (
	"strconv"
	"strings"
	"time"
)

// TradeEvent es un trade crudo recibido del feed de actividad.
// Price y Size se guardan como texto: la validación numérica es trabajo del clasificador.
type TradeEvent struct {
	MarketSlug  string
	MarketTitle string
	Wallet      string
	Side        string // "BUY" o "SELL" tal como llega del feed
	Price       string
	Size        string
	TokenID     string // asset id del outcome negociado
	Outcome     string // "Yes", "No", o el nombre del outcome
	TxHash      string
	Timestamp   time.Time
}

// Key identifica el evento para deduplicar reentregas tras una reconexión.
// El websocket y la Data API no formatean igual los números ("0.5" vs "0.50"),
// así que price y size entran en forma canónica.
func (e TradeEvent) Key() string {
	return strings.Join([]string{
		e.TxHash,
		e.TokenID,
		strings.ToUpper(strings.TrimSpace(e.Side)),
		canonicalNumber(e.Size),
		canonicalNumber(e.Price),
		strings.ToLower(e.Wallet),
	}, "|")
}

// canonicalNumber devuelve el texto sin ceros sobrantes; si no parsea, el original.
func canonicalNumber(s string) string {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WhaleTrade es un trade cuyo nocional supera el umbral configurado.
type WhaleTrade struct {
	ID          string
	DetectedAt  time.Time
	MarketSlug  string
	MarketTitle string
	Wallet      string
	Side        Side
	Outcome     string
	TokenID     string
	Price       float64
	Size        float64
	USDValue    float64
	TxHash      string

	// Rellenados por el pipeline después de la clasificación.
	TraderWinRate float64
	AIValidated   bool
	Copied        bool
}

// WalletStats is the external quality snapshot for a trader.
type WalletStats struct {
	WinRate     float64 // percent
	TotalVolume float64
	ProfitLoss  float64
}

// WhaleWallet is the registry profile of a tracked address.
type WhaleWallet struct {
	Address     string
	WinRate     float64
	TotalVolume float64
	ProfitLoss  float64
	FirstSeen   time.Time
	LastSeen    time.Time
	TradeCount  int
}

// Stats returns the wallet's last known quality snapshot.
func (w WhaleWallet) Stats() WalletStats {
	return WalletStats{WinRate: w.WinRate, TotalVolume: w.TotalVolume, ProfitLoss: w.ProfitLoss}
}

// Verdict is the consensus oracle answer.
type Verdict struct {
	Approved  bool
	Consensus float64 // yes votes / responses
	YesVotes  int
	NoVotes   int
	Responses int
}

// SignalOutcome tracks resolution of a copy signal. Only PENDING is produced today.
type SignalOutcome string

const (
	OutcomePending SignalOutcome = "PENDING"
	OutcomeWon     SignalOutcome = "WON"
	OutcomeLost    SignalOutcome = "LOST"
)

// CopySignal records an attempt to mirror a whale trade. Append-only.
type CopySignal struct {
	ID          string
	Timestamp   time.Time
	MarketSlug  string
	MarketTitle string
	WhaleWallet string
	WhaleSide   Side
	WhaleSize   float64 // USD
	OurSide     Side
	OurSize     float64 // USD
	Consensus   float64
	Executed    bool
	OrderID     string
	Outcome     SignalOutcome
}

// Copy rejection reasons.
const (
	ReasonWhaleExit        = "whale exit not mirrored"
	ReasonLowWinRate       = "low win rate"
	ReasonAIRejected       = "AI rejected"
	ReasonNoAIResponses    = "no AI responses"
	ReasonInsufficientFund = "insufficient balance"
	ReasonExecutionFailed  = "execution failed"
)

// CopyOutcome is the result of evaluating one whale trade for copying.
type CopyOutcome struct {
	Executed  bool
	Reason    string // empty when executed
	SizeUSD   float64
	Consensus float64
	Validated bool // passed the oracle gate
	OrderID   string
	Signal    *CopySignal // nil when a gate before execution failed
}

// TrackerStatus es la foto periódica que imprime el bucle de estado.
type TrackerStatus struct {
	At            time.Time
	Mode          string
	AutoCopy      bool
	FeedConnected bool
	TotalTrades   int64
	WhaleTrades   int64
	AIValidated   int64
	Copied        int64
	WhaleExits    int64 // SELL de ballenas que no se replican
	Duplicates    int64
	Malformed     int64
	KnownWallets  int
	Balance       float64
	OpenPositions int
}
