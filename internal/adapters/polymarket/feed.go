package polymarket

// feed.go: stream de trades en vivo desde el websocket de actividad de Polymarket.
//
// Ciclo de vida de una conexión:
//   dial → subscribe(activity/orders_matched) → [backfill si es reconexión] → read loop
// Un ping cada pingInterval mantiene viva la conexión. Cuando la lectura falla se
// reconecta con backoff exponencial (5s → 60s); una conexión que llegó a suscribirse
// resetea el backoff.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/whalebot/internal/domain"
	"github.com/alejandrodnm/whalebot/internal/observability"
)

const (
	DefaultFeedURL = "wss://ws-live-data.polymarket.com"

	defaultPingInterval  = 5 * time.Second
	defaultMinBackoff    = 5 * time.Second
	defaultMaxBackoff    = 60 * time.Second
	defaultBackfillLimit = 200
	writeTimeout         = 5 * time.Second

	topicActivity     = "activity"
	typeOrdersMatched = "orders_matched"
	typeSubscribed    = "subscribed"
	typePong          = "pong"
)

// Backfiller devuelve trades recientes, más recientes primero.
// El feed lo usa tras una reconexión para cubrir el hueco.
type Backfiller interface {
	RecentTrades(ctx context.Context, limit int) ([]domain.TradeEvent, error)
}

// Feed implementa ports.TradeFeed sobre gorilla/websocket.
type Feed struct {
	url    string
	dialer *websocket.Dialer

	backfill      Backfiller
	backfillLimit int

	pingInterval time.Duration
	minBackoff   time.Duration
	maxBackoff   time.Duration

	metrics   *observability.Metrics
	connected atomic.Bool
}

// FeedOption configura un Feed.
type FeedOption func(*Feed)

// WithBackfill activa el relleno por Data API después de cada reconexión.
func WithBackfill(b Backfiller, limit int) FeedOption {
	return func(f *Feed) {
		f.backfill = b
		if limit > 0 {
			f.backfillLimit = limit
		}
	}
}

// WithPingInterval cambia la frecuencia del keep-alive.
func WithPingInterval(d time.Duration) FeedOption {
	return func(f *Feed) {
		if d > 0 {
			f.pingInterval = d
		}
	}
}

// WithBackoff cambia los límites del backoff de reconexión.
func WithBackoff(minWait, maxWait time.Duration) FeedOption {
	return func(f *Feed) {
		if minWait > 0 {
			f.minBackoff = minWait
		}
		if maxWait >= f.minBackoff {
			f.maxBackoff = maxWait
		}
	}
}

// WithFeedMetrics publica el estado de la conexión.
func WithFeedMetrics(m *observability.Metrics) FeedOption {
	return func(f *Feed) { f.metrics = m }
}

// NewFeed crea un Feed contra url (DefaultFeedURL si está vacío).
func NewFeed(url string, opts ...FeedOption) *Feed {
	if url == "" {
		url = DefaultFeedURL
	}
	f := &Feed{
		url:           url,
		dialer:        &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backfillLimit: defaultBackfillLimit,
		pingInterval:  defaultPingInterval,
		minBackoff:    defaultMinBackoff,
		maxBackoff:    defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connected indica si hay una conexión suscrita en este momento.
func (f *Feed) Connected() bool {
	return f.connected.Load()
}

// Run emite trades en out hasta que ctx se cancela. Siempre devuelve ctx.Err().
func (f *Feed) Run(ctx context.Context, out chan<- domain.TradeEvent) error {
	backoff := f.minBackoff
	reconnect := false

	for {
		subscribed, err := f.session(ctx, out, reconnect)
		f.setConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if subscribed {
			backoff = f.minBackoff
			reconnect = true
		}
		slog.Warn("feed: disconnected, reconnecting", "err", err, "wait", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, f.maxBackoff)
	}
}

// session mantiene una conexión hasta que falla. subscribed indica si la
// suscripción llegó a enviarse.
func (f *Feed) session(ctx context.Context, out chan<- domain.TradeEvent, reconnect bool) (subscribed bool, err error) {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sub := wsSubscribe{
		Action:        "subscribe",
		Subscriptions: []wsSubscription{{Topic: topicActivity, Type: typeOrdersMatched}},
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	f.setConnected(true)
	slog.Info("feed: subscribed", "url", f.url, "topic", topicActivity)

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Cerrar la conexión desbloquea ReadMessage cuando el contexto termina.
	go func() {
		<-sessCtx.Done()
		conn.Close()
	}()
	go f.pingLoop(sessCtx, conn)

	if reconnect && f.backfill != nil {
		f.runBackfill(sessCtx, out)
	}

	return true, f.readLoop(sessCtx, conn, out)
}

// pingLoop es el único escritor tras la suscripción.
func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()
	ping := []byte(`{"type":"ping"}`)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				slog.Debug("feed: ping failed", "err", err)
				return
			}
		}
	}
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- domain.TradeEvent) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		ev, ok := decodeFrame(msg)
		if !ok {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// decodeFrame extrae el trade de un frame orders_matched. Control frames,
// otros topics y JSON inválido devuelven ok=false.
func decodeFrame(msg []byte) (domain.TradeEvent, bool) {
	var frame wsFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		slog.Debug("feed: unparseable frame", "err", err, "len", len(msg))
		return domain.TradeEvent{}, false
	}
	switch frame.Type {
	case typeSubscribed, typePong:
		return domain.TradeEvent{}, false
	}
	if frame.Topic != topicActivity || frame.Type != typeOrdersMatched || len(frame.Payload) == 0 {
		return domain.TradeEvent{}, false
	}

	var t activityTrade
	if err := json.Unmarshal(frame.Payload, &t); err != nil {
		slog.Debug("feed: bad orders_matched payload", "err", err)
		return domain.TradeEvent{}, false
	}
	return mapActivityTrade(t), true
}

// runBackfill reinyecta los trades recientes en orden cronológico.
// Los duplicados los descarta el tracker.
func (f *Feed) runBackfill(ctx context.Context, out chan<- domain.TradeEvent) {
	events, err := f.backfill.RecentTrades(ctx, f.backfillLimit)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("feed: backfill failed", "err", err)
		}
		return
	}
	for i := len(events) - 1; i >= 0; i-- {
		select {
		case out <- events[i]:
		case <-ctx.Done():
			return
		}
	}
	slog.Info("feed: backfill replayed", "events", len(events))
}

func (f *Feed) setConnected(v bool) {
	f.connected.Store(v)
	f.metrics.SetFeedConnected(v)
}
