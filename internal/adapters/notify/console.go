package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

const rule = "============================================================"

// Console implementa ports.Notifier y ports.StatusReporter sobre un io.Writer.
// Las escrituras se serializan: los workers del tracker notifican en paralelo.
type Console struct {
	mu         sync.Mutex
	out        io.Writer
	minWinRate float64
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(minWinRate float64) *Console {
	return NewConsoleWriter(os.Stdout, minWinRate)
}

// NewConsoleWriter crea un notificador sobre w (tests, ficheros).
func NewConsoleWriter(w io.Writer, minWinRate float64) *Console {
	return &Console{out: w, minWinRate: minWinRate}
}

// BannerInfo resume la configuración que se muestra al arrancar.
type BannerInfo struct {
	Mode         string
	AutoCopy     bool
	MinWhaleUSD  float64
	MinWinRate   float64
	MinConsensus float64
	Voters       int
}

// PrintBanner imprime el modo de trading y los umbrales activos.
func (c *Console) PrintBanner(b BannerInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n%s\n  POLYMARKET WHALE TRACKER\n%s\n", rule, rule)
	if b.Mode == "live" {
		fmt.Fprintln(c.out, "  !! LIVE TRADING MODE - REAL MONEY AT RISK")
	} else {
		fmt.Fprintln(c.out, "  PAPER TRADING MODE - trades are simulated")
	}
	fmt.Fprintf(c.out, "  Min whale trade:   %s\n", FormatUSD(b.MinWhaleUSD))
	fmt.Fprintf(c.out, "  Min win rate:      %.1f%%\n", b.MinWinRate)
	fmt.Fprintf(c.out, "  AI consensus:      %.0f%% (%d models)\n", b.MinConsensus*100, b.Voters)
	fmt.Fprintf(c.out, "  Auto-copy:         %s\n%s\n\n", onOff(b.AutoCopy), rule)
}

// WhaleDetected imprime la alerta de una ballena.
func (c *Console) WhaleDetected(_ context.Context, t domain.WhaleTrade, w domain.WhaleWallet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n[%s] WHALE TRADE DETECTED\n", t.DetectedAt.Format("15:04:05"))
	fmt.Fprintf(c.out, "   Market:  %s\n", truncate(marketName(t), 60))
	fmt.Fprintf(c.out, "   Wallet:  %s (seen %dx)\n", shortWallet(t.Wallet), w.TradeCount)
	fmt.Fprintf(c.out, "   Side:    %s %s @ %.3f\n", t.Side, t.Outcome, t.Price)
	fmt.Fprintf(c.out, "   Size:    %s\n", FormatUSD(t.USDValue))
	switch {
	case w.WinRate >= c.minWinRate && w.WinRate > 0:
		fmt.Fprintf(c.out, "   Quality whale! Win rate: %.1f%%\n", w.WinRate)
	case w.WinRate > 0:
		fmt.Fprintf(c.out, "   Low win rate: %.1f%%\n", w.WinRate)
	default:
		fmt.Fprintln(c.out, "   Win rate: unknown")
	}
	return nil
}

// CopyEvaluated imprime el resultado de la decisión de copia.
func (c *Console) CopyEvaluated(_ context.Context, t domain.WhaleTrade, o domain.CopyOutcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !o.Executed {
		fmt.Fprintf(c.out, "   Not copied: %s", o.Reason)
		if o.Reason == domain.ReasonAIRejected {
			fmt.Fprintf(c.out, " (consensus %.0f%%)", o.Consensus*100)
		}
		fmt.Fprintln(c.out)
		return nil
	}

	fmt.Fprintf(c.out, "   COPIED %s on %s | whale %s -> ours %s | AI %.0f%% | order %s\n",
		t.Side, truncate(marketName(t), 40), FormatUSD(t.USDValue), FormatUSD(o.SizeUSD),
		o.Consensus*100, o.OrderID)
	return nil
}

// ReportStatus imprime el bloque periódico de estado.
func (c *Console) ReportStatus(_ context.Context, s domain.TrackerStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	link := "connected"
	if !s.FeedConnected {
		link = "DISCONNECTED"
	}
	fmt.Fprintf(c.out, "\n%s\nWhale tracker status @ %s [%s]\n%s\n", rule, s.At.Format("15:04:05"), s.Mode, rule)
	fmt.Fprintf(c.out, "   Feed:                 %s\n", link)
	fmt.Fprintf(c.out, "   Total trades tracked: %d\n", s.TotalTrades)
	fmt.Fprintf(c.out, "   Whale trades:         %d\n", s.WhaleTrades)
	fmt.Fprintf(c.out, "   AI validated:         %d\n", s.AIValidated)
	fmt.Fprintf(c.out, "   Trades copied:        %d\n", s.Copied)
	if s.WhaleExits > 0 {
		fmt.Fprintf(c.out, "   Whale exits skipped:  %d\n", s.WhaleExits)
	}
	fmt.Fprintf(c.out, "   Known whale wallets:  %d\n", s.KnownWallets)
	if s.Duplicates > 0 || s.Malformed > 0 {
		fmt.Fprintf(c.out, "   Dropped:              %d duplicate, %d malformed\n", s.Duplicates, s.Malformed)
	}
	fmt.Fprintf(c.out, "   Balance:              $%.2f (%d open)\n%s\n", s.Balance, s.OpenPositions, rule)
	return nil
}

// PerformanceReport agrupa todo lo que se imprime en el informe de paper trading.
type PerformanceReport struct {
	Summary      domain.PerformanceSummary
	Positions    []domain.Position
	RecentTrades []domain.TradeRecord
	TopWallets   []domain.WhaleWallet
}

// PrintReport imprime el resumen de rendimiento y las tablas de posiciones y trades.
func (c *Console) PrintReport(r PerformanceReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := r.Summary
	fmt.Fprintf(c.out, "\n%s\n  PAPER TRADING PERFORMANCE (SIMULATED)\n%s\n", rule, rule)
	fmt.Fprintf(c.out, "  Starting balance:  $%.2f\n", s.StartingBalance)
	fmt.Fprintf(c.out, "  Current balance:   $%.2f\n", s.CurrentBalance)
	fmt.Fprintf(c.out, "  Total return:      %+.2f%%\n", s.TotalReturn)
	fmt.Fprintf(c.out, "  Realized P&L:      %s\n", signedUSD(s.TotalPnL))
	fmt.Fprintf(c.out, "  Unrealized P&L:    %s\n\n", signedUSD(s.UnrealizedPnL))
	fmt.Fprintf(c.out, "  Closed trades:     %d (%d won / %d lost)\n", s.TotalTrades, s.WinningTrades, s.LosingTrades)
	fmt.Fprintf(c.out, "  Win rate:          %.1f%%\n", s.WinRate)
	fmt.Fprintf(c.out, "  Avg win / loss:    $%.2f / $%.2f\n", s.AvgWin, s.AvgLoss)
	fmt.Fprintf(c.out, "  Open positions:    %d\n", s.OpenPositions)

	if len(r.Positions) > 0 {
		fmt.Fprintln(c.out, "\n  --- OPEN POSITIONS ---")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Market", "Entry", "Mark", "Shares", "Cost", "Value", "uPnL")
		for _, p := range r.Positions {
			name := p.MarketTitle
			if name == "" {
				name = p.MarketSlug
			}
			tbl.Append(
				truncate(name, 40),
				fmt.Sprintf("%.3f", p.EntryPrice),
				fmt.Sprintf("%.3f", p.CurrentPrice),
				fmt.Sprintf("%.2f", p.Shares),
				fmt.Sprintf("$%.2f", p.EntryValue),
				fmt.Sprintf("$%.2f", p.CurrentValue),
				signedUSD(p.UnrealizedPnL),
			)
		}
		tbl.Render()
	}

	if len(r.RecentTrades) > 0 {
		fmt.Fprintln(c.out, "\n  --- RECENT TRADES ---")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Time", "Side", "Market", "Price", "Shares", "USD", "Status", "PnL")
		for _, t := range r.RecentTrades {
			tbl.Append(
				t.Timestamp.Format("01-02 15:04"),
				string(t.Side),
				truncate(t.MarketSlug, 32),
				fmt.Sprintf("%.3f", t.Price),
				fmt.Sprintf("%.2f", t.Size),
				fmt.Sprintf("$%.2f", t.USDValue),
				string(t.Status),
				signedUSD(t.PnL),
			)
		}
		tbl.Render()
	}

	if len(r.TopWallets) > 0 {
		fmt.Fprintln(c.out, "\n  --- TOP WHALES ---")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Wallet", "Win rate", "Volume", "P&L", "Seen", "Last seen")
		for _, w := range r.TopWallets {
			tbl.Append(
				shortWallet(w.Address),
				fmt.Sprintf("%.1f%%", w.WinRate),
				FormatUSD(w.TotalVolume),
				FormatUSD(w.ProfitLoss),
				fmt.Sprintf("%d", w.TradeCount),
				w.LastSeen.Format(time.DateTime),
			)
		}
		tbl.Render()
	}
	fmt.Fprintf(c.out, "%s\n\n", rule)
}

// FormatUSD abrevia importes: $1.50M, $12.00K, $99.99.
func FormatUSD(amount float64) string {
	switch {
	case amount >= 1_000_000:
		return fmt.Sprintf("$%.2fM", amount/1_000_000)
	case amount >= 1_000:
		return fmt.Sprintf("$%.2fK", amount/1_000)
	default:
		return fmt.Sprintf("$%.2f", amount)
	}
}

// --- helpers ---

func signedUSD(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}

func marketName(t domain.WhaleTrade) string {
	if t.MarketTitle != "" {
		return t.MarketTitle
	}
	return t.MarketSlug
}

func shortWallet(addr string) string {
	if len(addr) <= 16 {
		return addr
	}
	return addr[:16] + "..."
}

func onOff(b bool) string {
	if b {
		return "ENABLED"
	}
	return "disabled"
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
