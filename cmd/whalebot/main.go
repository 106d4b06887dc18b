package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alejandrodnm/whalebot/config"
	"github.com/alejandrodnm/whalebot/internal/adapters/cache"
	"github.com/alejandrodnm/whalebot/internal/adapters/notify"
	"github.com/alejandrodnm/whalebot/internal/adapters/polymarket"
	"github.com/alejandrodnm/whalebot/internal/adapters/storage"
	"github.com/alejandrodnm/whalebot/internal/application/copytrade"
	"github.com/alejandrodnm/whalebot/internal/application/ledger"
	"github.com/alejandrodnm/whalebot/internal/application/tracker"
	"github.com/alejandrodnm/whalebot/internal/application/whale"
	"github.com/alejandrodnm/whalebot/internal/observability"
	"github.com/alejandrodnm/whalebot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	reportOnly := flag.Bool("report", false, "print the paper trading report and exit")
	stopFile := flag.String("stop-file", "STOP_WHALEBOT", "shut down when this file appears (empty disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	book, err := ledger.Open(ctx, store, ledger.Config{StartingBalance: cfg.Paper.StartingBalance})
	if err != nil {
		slog.Error("failed to load paper ledger", "err", err)
		os.Exit(1)
	}
	registry, err := whale.NewRegistry(ctx, store)
	if err != nil {
		slog.Error("failed to load whale registry", "err", err)
		os.Exit(1)
	}

	console := notify.NewConsole(cfg.Whale.MinWinRate)
	if *reportOnly {
		printReport(console, book, registry)
		return
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.New(reg)
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := observability.Serve(ctx, cfg.Metrics.Addr, reg); err != nil {
				slog.Error("metrics server failed", "err", err, "addr", cfg.Metrics.Addr)
			}
		}()
	}

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase,
		polymarket.WithDataBase(cfg.API.DataBase),
		polymarket.WithStatsBase(cfg.API.StatsBase),
	)

	var stats ports.WalletStatsProvider = client
	if cfg.Cache.RedisAddr != "" {
		rdb := cache.NewRedisClient(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		defer rdb.Close()
		if err := cache.Ping(ctx, rdb); err != nil {
			slog.Warn("redis unavailable, trader stats are not cached", "err", err, "addr", cfg.Cache.RedisAddr)
		} else {
			stats = cache.NewRedisStats(rdb, client, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		}
	}

	backend, closeBackend, err := buildBackend(cfg, client, book, metrics)
	if err != nil {
		slog.Error("failed to set up execution backend", "err", err, "mode", cfg.Mode())
		os.Exit(1)
	}
	defer closeBackend()

	swarm := buildSwarm(cfg, client)

	engine := copytrade.New(copytrade.Config{
		MinWinRate:     cfg.Whale.MinWinRate,
		MinConsensus:   cfg.Copy.MinConsensus,
		CopyPercentage: cfg.Copy.CopyPercentage,
		MaxPositionUSD: cfg.Copy.MaxPositionUSD,
	}, swarm, backend,
		copytrade.WithSignalStorage(store),
		copytrade.WithMetrics(metrics),
	)

	var notifier ports.Notifier = console
	if cfg.Telegram.Enabled() {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Whale.MinWinRate)
		if err != nil {
			slog.Warn("telegram disabled", "err", err)
		} else {
			notifier = notify.NewMulti(console, tg)
		}
	}

	feed := polymarket.NewFeed(cfg.Feed.URL,
		polymarket.WithBackfill(client, cfg.Feed.BackfillLimit),
		polymarket.WithPingInterval(time.Duration(cfg.Feed.PingSeconds)*time.Second),
		polymarket.WithBackoff(
			time.Duration(cfg.Feed.ReconnectSeconds)*time.Second,
			time.Duration(cfg.Feed.MaxReconnectSeconds)*time.Second,
		),
		polymarket.WithFeedMetrics(metrics),
	)

	deps := tracker.Deps{
		Feed:       feed,
		Classifier: whale.NewClassifier(cfg.Whale.MinTradeUSD),
		Registry:   registry,
		Stats:      stats,
		Trades:     store,
		Engine:     engine,
		Backend:    backend,
		Books:      client,
		Notifier:   notifier,
		Status:     console,
		Metrics:    metrics,
	}
	markInterval := time.Duration(0)
	if cfg.Paper.Enabled {
		deps.Ledger = book
		markInterval = cfg.MarkInterval()
	}
	t := tracker.New(tracker.Config{
		AutoCopy:       cfg.Copy.AutoCopy,
		Workers:        cfg.Copy.Workers,
		StatusInterval: cfg.StatusInterval(),
		MarkInterval:   markInterval,
	}, deps)

	console.PrintBanner(notify.BannerInfo{
		Mode:         cfg.Mode(),
		AutoCopy:     cfg.Copy.AutoCopy,
		MinWhaleUSD:  cfg.Whale.MinTradeUSD,
		MinWinRate:   cfg.Whale.MinWinRate,
		MinConsensus: cfg.Copy.MinConsensus,
		Voters:       swarm.Size(),
	})

	if *stopFile != "" {
		go watchStopFile(ctx, *stopFile, cancel)
	}

	slog.Info("whalebot starting",
		"config", *configPath,
		"mode", cfg.Mode(),
		"auto_copy", cfg.Copy.AutoCopy,
		"voters", swarm.Size(),
		"stop_file", *stopFile,
	)

	runErr := t.Run(ctx)

	if cfg.Paper.Enabled {
		// el contexto ya está cancelado; el snapshot final usa uno nuevo
		snapCtx, snapCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := book.RecalculateBalance(snapCtx); err != nil {
			slog.Warn("final balance snapshot failed", "err", err)
		}
		snapCancel()
		printReport(console, book, registry)
	}

	if runErr != nil {
		slog.Error("tracker exited with error", "err", runErr)
		os.Exit(1)
	}
	slog.Info("whalebot stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
