// Package tracker wires the whale pipeline:
//
//	feed → dedup → classifier → stats lookup → registry → whale-trade log → copy engine
//
// A single dispatcher goroutine deduplicates and classifies events; whale trades
// are then handled by a small worker pool so a slow oracle round does not stall
// the feed. Status and mark loops run beside it and only read shared state.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/whalebot/internal/application/copytrade"
	"github.com/alejandrodnm/whalebot/internal/application/ledger"
	"github.com/alejandrodnm/whalebot/internal/application/whale"
	"github.com/alejandrodnm/whalebot/internal/domain"
	"github.com/alejandrodnm/whalebot/internal/observability"
	"github.com/alejandrodnm/whalebot/internal/ports"
)

const (
	defaultDedupSize      = 10_000
	defaultWorkers        = 4
	defaultStatusInterval = 30 * time.Second
	statsTimeout          = 10 * time.Second
)

// Config controls the pipeline.
type Config struct {
	AutoCopy       bool
	Workers        int
	DedupSize      int
	StatusInterval time.Duration
	MarkInterval   time.Duration // 0 disables mark refreshes
}

// Deps are the collaborators of the pipeline. Feed, Registry and Classifier are
// required; the rest may be nil.
type Deps struct {
	Feed       ports.TradeFeed
	Classifier whale.Classifier
	Registry   *whale.Registry
	Stats      ports.WalletStatsProvider
	Trades     ports.WhaleTradeStorage
	Engine     *copytrade.Engine
	Backend    ports.ExecutionBackend
	Ledger     *ledger.Ledger
	Books      ports.BookProvider
	Notifier   ports.Notifier
	Status     ports.StatusReporter
	Metrics    *observability.Metrics
}

// Tracker runs the pipeline.
type Tracker struct {
	cfg  Config
	deps Deps
	seen *seenSet
	now  func() time.Time

	total     atomic.Int64
	whales    atomic.Int64
	validated atomic.Int64
	copied    atomic.Int64
	exits     atomic.Int64
	dupes     atomic.Int64
	malformed atomic.Int64
}

// New builds a tracker.
func New(cfg Config, deps Deps) *Tracker {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = defaultDedupSize
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaultStatusInterval
	}
	return &Tracker{
		cfg:  cfg,
		deps: deps,
		seen: newSeenSet(cfg.DedupSize),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Run consumes the feed until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	events := make(chan domain.TradeEvent, 256)
	work := make(chan domain.WhaleTrade, 64)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := t.deps.Feed.Run(gctx, events)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		defer close(work)
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-events:
				wt, ok := t.Admit(ev)
				if !ok {
					continue
				}
				select {
				case work <- wt:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})

	for i := 0; i < t.cfg.Workers; i++ {
		g.Go(func() error {
			for wt := range work {
				t.HandleWhale(gctx, wt)
			}
			return nil
		})
	}

	g.Go(func() error {
		t.statusLoop(gctx)
		return nil
	})

	if t.cfg.MarkInterval > 0 && t.deps.Ledger != nil && t.deps.Books != nil {
		g.Go(func() error {
			t.markLoop(gctx)
			return nil
		})
	}

	slog.Info("tracker: started",
		"workers", t.cfg.Workers,
		"auto_copy", t.cfg.AutoCopy,
		"threshold", t.deps.Classifier.Threshold,
	)
	return g.Wait()
}

// Admit counts ev, drops replays and malformed events, and returns the whale
// trade when ev crosses the threshold. Only one goroutine may call it.
func (t *Tracker) Admit(ev domain.TradeEvent) (domain.WhaleTrade, bool) {
	t.total.Add(1)
	t.deps.Metrics.Event()

	if !t.seen.add(ev.Key()) {
		t.dupes.Add(1)
		t.deps.Metrics.Duplicate()
		return domain.WhaleTrade{}, false
	}

	wt, ok := t.deps.Classifier.Classify(ev)
	if !ok {
		if whale.Malformed(ev) {
			t.malformed.Add(1)
			t.deps.Metrics.MalformedEvent()
			slog.Debug("tracker: malformed event dropped", "tx", ev.TxHash)
		}
		return domain.WhaleTrade{}, false
	}
	if wt.DetectedAt.IsZero() {
		wt.DetectedAt = t.now()
	}
	t.whales.Add(1)
	t.deps.Metrics.Whale()
	return wt, true
}

// HandleWhale runs everything after classification for one whale trade.
func (t *Tracker) HandleWhale(ctx context.Context, wt domain.WhaleTrade) domain.CopyOutcome {
	stats := t.lookupStats(ctx, wt.Wallet)

	wallet, err := t.deps.Registry.RecordSighting(ctx, wt.Wallet, stats)
	if err != nil {
		slog.Warn("tracker: record sighting failed", "wallet", wt.Wallet, "err", err)
	}
	// sin lookup se usa el win rate ya guardado
	effective := wallet.Stats()
	if err != nil && stats != nil {
		effective = *stats
	}
	wt.TraderWinRate = effective.WinRate

	slog.Info("tracker: whale trade",
		"market", wt.MarketSlug,
		"wallet", wt.Wallet,
		"side", wt.Side,
		"usd", wt.USDValue,
		"win_rate", wt.TraderWinRate,
	)

	if t.deps.Trades != nil {
		if err := t.deps.Trades.SaveWhaleTrade(ctx, wt); err != nil {
			slog.Warn("tracker: save whale trade failed", "id", wt.ID, "err", err)
		}
	}
	if t.deps.Notifier != nil {
		if err := t.deps.Notifier.WhaleDetected(ctx, wt, wallet); err != nil {
			slog.Warn("tracker: notify whale failed", "err", err)
		}
	}

	if !t.cfg.AutoCopy || t.deps.Engine == nil {
		return domain.CopyOutcome{}
	}

	out := t.deps.Engine.Evaluate(ctx, wt, effective)
	if out.Validated {
		t.validated.Add(1)
	}
	if out.Executed {
		t.copied.Add(1)
	}
	if out.Reason == domain.ReasonWhaleExit {
		t.exits.Add(1)
	}
	wt.AIValidated = out.Validated
	wt.Copied = out.Executed

	if t.deps.Trades != nil && (out.Validated || out.Executed) {
		if err := t.deps.Trades.MarkWhaleTrade(ctx, wt.ID, out.Validated, out.Executed); err != nil {
			slog.Warn("tracker: mark whale trade failed", "id", wt.ID, "err", err)
		}
	}
	if t.deps.Notifier != nil {
		if err := t.deps.Notifier.CopyEvaluated(ctx, wt, out); err != nil {
			slog.Warn("tracker: notify copy failed", "err", err)
		}
	}
	return out
}

func (t *Tracker) lookupStats(ctx context.Context, wallet string) *domain.WalletStats {
	if t.deps.Stats == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	stats, err := t.deps.Stats.TraderStats(ctx, wallet)
	if err != nil {
		slog.Debug("tracker: trader stats unavailable", "wallet", wallet, "err", err)
		return nil
	}
	return stats
}

// Status returns a snapshot of the counters and account state.
func (t *Tracker) Status(ctx context.Context) domain.TrackerStatus {
	s := domain.TrackerStatus{
		At:          t.now(),
		AutoCopy:    t.cfg.AutoCopy,
		TotalTrades: t.total.Load(),
		WhaleTrades: t.whales.Load(),
		AIValidated: t.validated.Load(),
		Copied:      t.copied.Load(),
		WhaleExits:  t.exits.Load(),
		Duplicates:  t.dupes.Load(),
		Malformed:   t.malformed.Load(),
	}
	if t.deps.Feed != nil {
		s.FeedConnected = t.deps.Feed.Connected()
	}
	if t.deps.Registry != nil {
		s.KnownWallets = t.deps.Registry.Count()
	}
	if t.deps.Backend != nil {
		s.Mode = t.deps.Backend.Mode()
		if bal, err := t.deps.Backend.Balance(ctx); err == nil {
			s.Balance = bal
		}
	}
	if t.deps.Ledger != nil {
		s.OpenPositions = len(t.deps.Ledger.Positions())
	}
	return s
}

func (t *Tracker) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := t.Status(ctx)
			t.deps.Metrics.SetFeedConnected(s.FeedConnected)
			if t.deps.Status != nil {
				if err := t.deps.Status.ReportStatus(ctx, s); err != nil {
					slog.Warn("tracker: status report failed", "err", err)
				}
			}
		}
	}
}

func (t *Tracker) markLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.MarkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.RefreshMarks(ctx)
		}
	}
}

// RefreshMarks re-prices open paper positions from order-book midpoints and
// recalculates the balance. Books are fetched before the ledger is touched.
func (t *Tracker) RefreshMarks(ctx context.Context) int {
	if t.deps.Ledger == nil || t.deps.Books == nil {
		return 0
	}
	updated := 0
	for _, p := range t.deps.Ledger.Positions() {
		book, err := t.deps.Books.FetchOrderBook(ctx, p.TokenID)
		if err != nil {
			slog.Debug("tracker: mark skipped", "token", p.TokenID, "err", err)
			continue
		}
		mid := book.Midpoint()
		if mid <= 0 || mid > 1 {
			continue
		}
		n, err := t.deps.Ledger.UpdateTokenMark(ctx, p.MarketSlug, p.TokenID, mid)
		if err != nil {
			slog.Warn("tracker: update mark failed", "market", p.MarketSlug, "err", err)
		}
		updated += n
	}
	if _, err := t.deps.Ledger.RecalculateBalance(ctx); err != nil {
		slog.Warn("tracker: recalculate balance failed", "err", err)
	}
	t.deps.Metrics.SetLedger(t.deps.Ledger.Balance(), len(t.deps.Ledger.Positions()))
	return updated
}
