// Package copytrade decides whether a whale trade is mirrored and, if so, how big.
//
// Gates run in order and the first failure wins:
//
//	side → win rate → consensus oracle → sizing → balance → execution
//
// Evaluate never returns an error: every failure is a reason on the outcome.
package copytrade

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/alejandrodnm/whalebot/internal/domain"
	"github.com/alejandrodnm/whalebot/internal/observability"
	"github.com/alejandrodnm/whalebot/internal/ports"
	"github.com/google/uuid"
)

// Config holds the copy-trading thresholds.
type Config struct {
	MinWinRate     float64 // percent, e.g. 60
	MinConsensus   float64 // 0..1, e.g. 0.70
	CopyPercentage float64 // percent of the whale notional, e.g. 10
	MaxPositionUSD float64 // hard cap per copy
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{MinWinRate: 60, MinConsensus: 0.70, CopyPercentage: 10, MaxPositionUSD: 100}
}

// Engine evaluates whale trades against Config and routes approved copies to a backend.
type Engine struct {
	cfg     Config
	oracle  ports.ConsensusOracle
	backend ports.ExecutionBackend
	signals ports.SignalStorage // optional
	metrics *observability.Metrics
	now     func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithSignalStorage persists every execution attempt as a copy signal.
func WithSignalStorage(s ports.SignalStorage) Option {
	return func(e *Engine) { e.signals = s }
}

// WithMetrics records gate outcomes and oracle latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine.
func New(cfg Config, oracle ports.ConsensusOracle, backend ports.ExecutionBackend, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		oracle:  oracle,
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the thresholds in use.
func (e *Engine) Config() Config { return e.cfg }

// Evaluate runs the gate sequence for one whale trade. stats is the trader's
// quality snapshot (zero value when unknown).
func (e *Engine) Evaluate(ctx context.Context, wt domain.WhaleTrade, stats domain.WalletStats) domain.CopyOutcome {
	if wt.Side != domain.SideBuy {
		return e.reject(wt, domain.CopyOutcome{}, domain.ReasonWhaleExit)
	}

	if stats.WinRate < e.cfg.MinWinRate {
		return e.reject(wt, domain.CopyOutcome{}, domain.ReasonLowWinRate)
	}

	out := domain.CopyOutcome{}
	verdict := e.consult(ctx, wt)
	out.Consensus = verdict.Consensus
	if verdict.Responses == 0 {
		return e.reject(wt, out, domain.ReasonNoAIResponses)
	}
	if !verdict.Approved {
		return e.reject(wt, out, domain.ReasonAIRejected)
	}
	out.Validated = true
	e.metrics.Validated()

	out.SizeUSD = e.Size(wt.USDValue)

	balance, err := e.backend.Balance(ctx)
	if err != nil {
		slog.Warn("copytrade: balance lookup failed", "mode", e.backend.Mode(), "err", err)
		return e.reject(wt, out, domain.ReasonInsufficientFund)
	}
	if balance < out.SizeUSD {
		slog.Info("copytrade: insufficient balance", "balance", balance, "needed", out.SizeUSD)
		return e.reject(wt, out, domain.ReasonInsufficientFund)
	}

	req := domain.ExecutionRequest{
		MarketSlug:     wt.MarketSlug,
		MarketTitle:    wt.MarketTitle,
		TokenID:        TokenFor(wt),
		USD:            out.SizeUSD,
		ReferencePrice: wt.Price,
		Notes:          Notes(wt.Wallet, stats.WinRate),
	}
	exec, execErr := e.backend.Buy(ctx, req)

	signal := domain.CopySignal{
		ID:          uuid.NewString(),
		Timestamp:   e.now(),
		MarketSlug:  wt.MarketSlug,
		MarketTitle: wt.MarketTitle,
		WhaleWallet: wt.Wallet,
		WhaleSide:   wt.Side,
		WhaleSize:   wt.USDValue,
		OurSide:     domain.SideBuy,
		OurSize:     out.SizeUSD,
		Consensus:   verdict.Consensus,
		Executed:    execErr == nil,
		OrderID:     exec.OrderID,
		Outcome:     domain.OutcomePending,
	}
	out.Signal = &signal
	if e.signals != nil {
		if err := e.signals.SaveCopySignal(ctx, signal); err != nil {
			slog.Warn("copytrade: save copy signal failed", "err", err)
		}
	}

	if execErr != nil {
		slog.Warn("copytrade: execution failed",
			"mode", e.backend.Mode(), "market", wt.MarketSlug, "usd", out.SizeUSD, "err", execErr)
		return e.reject(wt, out, domain.ReasonExecutionFailed)
	}

	out.Executed = true
	out.OrderID = exec.OrderID
	e.metrics.Copied()
	slog.Info("copytrade: copy executed",
		"mode", e.backend.Mode(),
		"order_id", exec.OrderID,
		"market", wt.MarketSlug,
		"usd", out.SizeUSD,
		"price", exec.Price,
		"shares", exec.Shares,
	)
	return out
}

// Size returns min(whaleUSD × pct/100, max position).
func (e *Engine) Size(whaleUSD float64) float64 {
	return math.Min(whaleUSD*e.cfg.CopyPercentage/100, e.cfg.MaxPositionUSD)
}

func (e *Engine) consult(ctx context.Context, wt domain.WhaleTrade) domain.Verdict {
	if e.oracle == nil {
		return domain.Verdict{}
	}
	side := wt.Outcome
	if side == "" {
		side = "YES"
	}

	start := time.Now()
	verdict, err := e.oracle.Validate(ctx, wt.MarketSlug, side, e.cfg.MinConsensus)
	e.metrics.ObserveOracle(time.Since(start))
	if err != nil {
		slog.Warn("copytrade: oracle failed", "market", wt.MarketSlug, "err", err)
		return domain.Verdict{}
	}
	slog.Debug("copytrade: oracle verdict",
		"market", wt.MarketSlug,
		"yes", verdict.YesVotes,
		"no", verdict.NoVotes,
		"responses", verdict.Responses,
		"consensus", verdict.Consensus,
	)
	return verdict
}

func (e *Engine) reject(wt domain.WhaleTrade, out domain.CopyOutcome, reason string) domain.CopyOutcome {
	out.Reason = reason
	e.metrics.Rejected(reason)
	slog.Debug("copytrade: not copied", "market", wt.MarketSlug, "wallet", wt.Wallet, "reason", reason)
	return out
}

// TokenFor returns the token to buy. Events without an asset id fall back to a
// synthetic per-outcome token so the paper ledger can still track the position.
func TokenFor(wt domain.WhaleTrade) string {
	if wt.TokenID != "" {
		return wt.TokenID
	}
	if strings.EqualFold(wt.Outcome, "yes") {
		return wt.MarketSlug + "_YES_TOKEN"
	}
	return wt.MarketSlug + "_NO_TOKEN"
}

// Notes is the free-text annotation stored with every copy trade.
func Notes(wallet string, winRate float64) string {
	short := wallet
	if len(short) > 16 {
		short = short[:16]
	}
	return fmt.Sprintf("Whale copy: %s... | Win rate: %.1f%% | AI validated", short, winRate)
}
