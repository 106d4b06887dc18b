// Package observability exposes Prometheus metrics for the bot.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "whalebot"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Feed / tracker
	EventsTracked prometheus.Counter
	WhaleTrades   prometheus.Counter
	Duplicates    prometheus.Counter
	Malformed     prometheus.Counter
	FeedConnected prometheus.Gauge

	// Copy decisions
	AIValidated    prometheus.Counter
	CopiesExecuted prometheus.Counter
	CopyRejections *prometheus.CounterVec
	OracleLatency  prometheus.Histogram

	// Ledger
	Orders        *prometheus.CounterVec
	PaperBalance  prometheus.Gauge
	OpenPositions prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsTracked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "events_total",
			Help:      "Trade events received from the activity feed",
		}),
		WhaleTrades: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "whale_trades_total",
			Help:      "Trades at or above the whale threshold",
		}),
		Duplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "duplicates_total",
			Help:      "Replayed events dropped by the dedup window",
		}),
		Malformed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "malformed_total",
			Help:      "Events dropped for missing or invalid fields",
		}),
		FeedConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "connected",
			Help:      "1 when the live activity websocket is connected",
		}),
		AIValidated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copy",
			Name:      "ai_validated_total",
			Help:      "Whale trades approved by the consensus oracle",
		}),
		CopiesExecuted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copy",
			Name:      "executed_total",
			Help:      "Copy trades executed",
		}),
		CopyRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copy",
			Name:      "rejections_total",
			Help:      "Copy evaluations that did not execute, by reason",
		}, []string{"reason"}),
		OracleLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "latency_seconds",
			Help:      "Time spent collecting oracle votes",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		Orders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "orders_total",
			Help:      "Ledger orders by side and result",
		}, []string{"side", "result"}),
		PaperBalance: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "balance_usd",
			Help:      "Current paper balance",
		}),
		OpenPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "open_positions",
			Help:      "Open paper positions",
		}),
	}
}

func (m *Metrics) Event() {
	if m != nil {
		m.EventsTracked.Inc()
	}
}

func (m *Metrics) Whale() {
	if m != nil {
		m.WhaleTrades.Inc()
	}
}

func (m *Metrics) Duplicate() {
	if m != nil {
		m.Duplicates.Inc()
	}
}

func (m *Metrics) MalformedEvent() {
	if m != nil {
		m.Malformed.Inc()
	}
}

// SetFeedConnected mirrors the websocket state.
func (m *Metrics) SetFeedConnected(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.FeedConnected.Set(1)
		return
	}
	m.FeedConnected.Set(0)
}

func (m *Metrics) Validated() {
	if m != nil {
		m.AIValidated.Inc()
	}
}

func (m *Metrics) Copied() {
	if m != nil {
		m.CopiesExecuted.Inc()
	}
}

func (m *Metrics) Rejected(reason string) {
	if m != nil {
		m.CopyRejections.WithLabelValues(reason).Inc()
	}
}

// ObserveOracle records how long one consensus round took.
func (m *Metrics) ObserveOracle(d time.Duration) {
	if m != nil {
		m.OracleLatency.Observe(d.Seconds())
	}
}

// Order counts one ledger order; result is "ok" or "error".
func (m *Metrics) Order(side, result string) {
	if m != nil {
		m.Orders.WithLabelValues(side, result).Inc()
	}
}

// SetLedger updates the balance and open-position gauges.
func (m *Metrics) SetLedger(balance float64, openPositions int) {
	if m == nil {
		return
	}
	m.PaperBalance.Set(balance)
	m.OpenPositions.Set(float64(openPositions))
}

// Serve exposes /metrics for gatherer on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
