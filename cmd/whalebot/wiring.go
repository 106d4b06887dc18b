package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/whalebot/config"
	"github.com/alejandrodnm/whalebot/internal/adapters/notify"
	"github.com/alejandrodnm/whalebot/internal/adapters/oracle"
	"github.com/alejandrodnm/whalebot/internal/adapters/polymarket"
	"github.com/alejandrodnm/whalebot/internal/application/execution"
	"github.com/alejandrodnm/whalebot/internal/application/ledger"
	"github.com/alejandrodnm/whalebot/internal/application/whale"
	"github.com/alejandrodnm/whalebot/internal/observability"
	"github.com/alejandrodnm/whalebot/internal/ports"
)

const (
	reportTrades  = 10
	reportWallets = 10
)

// buildBackend elige paper o live según la config. El closer libera la conexión RPC en live.
func buildBackend(cfg *config.Config, client *polymarket.Client, book *ledger.Ledger, m *observability.Metrics) (ports.ExecutionBackend, func(), error) {
	if cfg.Paper.Enabled {
		return execution.NewPaper(book, client, m), func() {}, nil
	}

	auth, err := polymarket.NewAuthClient(client, cfg.Live.PrivateKey, cfg.Live.Funder)
	if err != nil {
		return nil, nil, fmt.Errorf("auth client: %w", err)
	}
	trading, err := polymarket.NewTradingClient(auth, cfg.Live.RPCURL)
	if err != nil {
		return nil, nil, err
	}

	slog.Warn("LIVE TRADING ENABLED - real funds at risk",
		"signer", auth.Address(),
		"funder", auth.Funder().Hex(),
	)
	return execution.NewLive(trading, client, m), trading.Close, nil
}

// buildSwarm crea un ChatVoter por modelo configurado. Los que no se pueden
// construir se omiten con un warning.
func buildSwarm(cfg *config.Config, markets oracle.MarketLookup) *oracle.Swarm {
	voters := make([]oracle.Voter, 0, len(cfg.Oracle.Voters))
	for _, vc := range cfg.Oracle.Voters {
		key := vc.APIKey()
		if key == "" && vc.APIKeyEnv != "" {
			slog.Warn("oracle: api key not set", "voter", vc.Name, "env", vc.APIKeyEnv)
		}
		v, err := oracle.NewChatVoter(oracle.ChatConfig{
			Name:       vc.Name,
			BaseURL:    vc.BaseURL,
			Model:      vc.Model,
			APIKey:     key,
			RatePerSec: vc.RatePerSec,
		})
		if err != nil {
			slog.Warn("oracle: voter skipped", "voter", vc.Name, "err", err)
			continue
		}
		voters = append(voters, v)
	}
	return oracle.NewSwarm(voters, markets,
		oracle.WithVoterTimeout(time.Duration(cfg.Oracle.TimeoutSeconds)*time.Second),
	)
}

// watchStopFile cancela el contexto cuando aparece el archivo de parada.
func watchStopFile(ctx context.Context, path string, cancel context.CancelFunc) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(path); err == nil {
				slog.Info("stop file detected, shutting down", "file", path)
				os.Remove(path)
				cancel()
				return
			}
		}
	}
}

func printReport(console *notify.Console, book *ledger.Ledger, registry *whale.Registry) {
	trades := book.Trades()
	if len(trades) > reportTrades {
		trades = trades[len(trades)-reportTrades:]
	}
	console.PrintReport(notify.PerformanceReport{
		Summary:      book.PerformanceSummary(),
		Positions:    book.Positions(),
		RecentTrades: trades,
		TopWallets:   registry.Top(reportWallets),
	})
}
