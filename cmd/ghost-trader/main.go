package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ghost-trader/ghost/internal/config"
	"github.com/ghost-trader/ghost/internal/diagnostics"
	"github.com/ghost-trader/ghost/internal/engine"
	"github.com/ghost-trader/ghost/internal/journal"
	"github.com/ghost-trader/ghost/internal/learning"
	"github.com/ghost-trader/ghost/internal/marketdata"
	"github.com/ghost-trader/ghost/internal/observability"
	"github.com/ghost-trader/ghost/internal/positions"
	"github.com/ghost-trader/ghost/internal/scorer"
	"github.com/ghost-trader/ghost/internal/smartmoney"
	"github.com/ghost-trader/ghost/internal/solana"
	"github.com/ghost-trader/ghost/internal/wallet"
)

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "configs/ghost.yaml", "Path to configuration file")
	stubMode := flag.Bool("stub", false, "Use stub RPC (no real Solana connection)")
	closeOnExit := flag.Bool("close-on-exit", false, "Sell every open position on shutdown")
	flag.Parse()

	// 2. Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("GHOST Trader - Starting")
	log.Info().Msg("SCAN -> SCORE -> ENTER -> MANAGE -> LEARN")
	log.Info().Msg("=============================================")

	dryRun := cfg.General.DryRun
	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Bool("dry_run", dryRun).
		Bool("stub_mode", *stubMode).
		Int("scan_interval_s", cfg.Scan.IntervalS).
		Float64("buy_threshold", cfg.Scoring.BuyThreshold).
		Float64("max_exposure_sol", cfg.Risk.MaxExposureSOL).
		Int("max_positions", cfg.Risk.MaxPositions).
		Float64("stop_loss_pct", cfg.Risk.StopLossPct).
		Str("storage", cfg.Storage.Driver).
		Msg("Configuration loaded")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Configuration validation failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 4. Solana RPC and wallet.
	primary, fallback := buildRPC(ctx, cfg.Solana, *stubMode)

	signer, err := wallet.New(wallet.Config{
		PrivateKey:   cfg.Solana.PrivateKey,
		DryRun:       dryRun,
		PollInterval: time.Second,
		MaxPolls:     30,
	}, primary)
	if err != nil {
		log.Fatal().Err(err).Msg("Wallet initialization failed")
	}
	owner, hasWallet := signer.PublicKey()
	balances := wallet.NewBalances(owner, primary, fallback)
	for _, a := range cfg.Scan.ExcludedHolders {
		balances.ExcludeHolders(solana.Pubkey(a))
	}
	if hasWallet {
		log.Info().
			Str("wallet", string(owner)).
			Str("balance_sol", balances.SOLBalance(ctx).StringFixed(4)).
			Msg("Wallet loaded")
	}

	// 5. Market data client.
	market := marketdata.New(marketdata.Config{
		BaseURL:      cfg.API.BaseURL,
		SwapBaseURL:  cfg.API.SwapBaseURL,
		APIKey:       cfg.API.APIKey,
		ReadTimeout:  seconds(cfg.API.ReadTimeoutS),
		SwapTimeout:  seconds(cfg.API.SwapTimeoutS),
		CacheTTL:     seconds(cfg.API.CacheTTLS),
		CacheSize:    cfg.API.CacheSize,
		MaxRetries:   cfg.API.MaxRetries,
		RateLimitRPS: cfg.API.RateLimitRPS,
	})

	// 6. Storage.
	stores, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Storage initialization failed")
	}
	defer stores.Close()

	// 7. Learning store, warmed from storage.
	learn := learning.NewStore(learning.Config{
		MinTrades:     cfg.Learning.MinTrades,
		MaxAdjustment: cfg.Learning.MaxAdjustment,
	}, stores.durable)
	if stats, err := stores.durable.LoadSignalStats(ctx); err != nil {
		log.Warn().Err(err).Msg("Signal stats not restored")
	} else {
		learn.Load(stats)
	}

	// 8. Smart-money tracker and live feed.
	tracker := smartmoney.NewTracker(smartmoney.Config{
		ActivityTTL:     time.Duration(cfg.SmartMoney.ActivityTTLMin) * time.Minute,
		RecentWindow:    time.Duration(cfg.SmartMoney.RecentWindowMin) * time.Minute,
		CleanupInterval: seconds(cfg.SmartMoney.CleanupIntervalS),
	})
	var feed *smartmoney.Feed
	if cfg.SmartMoney.FeedEnabled && !*stubMode {
		monitor := solana.NewWSMonitor(solana.WSMonitorConfig{
			WSEndpoint:       cfg.Solana.WSEndpoint,
			ReconnectDelayMs: 1000,
			PingIntervalS:    30,
		})
		feed = smartmoney.NewFeed(tracker, monitor, primary)
	}
	seedTracker(ctx, tracker, stores.durable, cfg, feed)

	// 9. Scorer and position manager.
	score := scorer.New(scorer.Config{
		BuyThreshold:      cfg.Scoring.BuyThreshold,
		MaxTopHolderPct:   cfg.Scoring.MaxTopHolderPct,
		LiquidityFloorUSD: cfg.Scoring.LiquidityFloorUSD,
		MinLiquidityUSD:   cfg.Risk.MinLiquidityUSD,
		MinBuySellRatio:   cfg.Risk.MinBuySellRatio,
		MinHolderCount:    cfg.Scoring.MinHolderCount,
		MaxLearned:        cfg.Learning.MaxAdjustment,
	}, learn)

	metrics := observability.NewMetrics()

	manager := positions.New(positionsConfig(cfg), positions.Deps{
		Market:   market,
		Signer:   signer,
		Decimals: balances,
		Learning: learn,
		Store:    stores.durable,
	})
	manager.SetOnOpen(func(p positions.Position) {
		log.Info().
			Str("pos_id", p.ID).
			Str("mint", p.Mint).
			Str("symbol", p.Symbol).
			Str("amount_sol", p.AmountSOL.String()).
			Float64("score", p.EntryScore).
			Msg("[POSITION OPENED]")
	})
	manager.SetOnClose(func(p positions.Position) {
		metrics.ExitsTotal.Inc()
		log.Info().
			Str("pos_id", p.ID).
			Str("mint", p.Mint).
			Str("reason", p.ExitReason).
			Str("pnl_sol", p.PnLSOL.StringFixed(4)).
			Msg("[POSITION CLOSED]")
	})
	if saved, err := stores.durable.ListPositions(ctx, ""); err != nil {
		log.Warn().Err(err).Msg("Positions not restored")
	} else {
		manager.Load(saved)
	}

	// 10. Evaluation journal.
	var wg sync.WaitGroup
	var jrnl engine.Journal
	var writer *journal.Writer
	// The writer outlives the engine so evaluations from the last scan land.
	journalCtx, stopJournal := context.WithCancel(context.Background())
	defer stopJournal()
	if cfg.Journal.Enabled {
		client, err := journal.NewClient(cfg.Journal.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Journal initialization failed")
		}
		defer client.Close()
		if err := client.EnsureSchema(ctx, cfg.Journal.Database); err != nil {
			log.Warn().Err(err).Msg("Journal schema not ensured (continuing, inserts may fail)")
		}
		writer = journal.NewWriter(client, cfg.Journal.Database, cfg.Journal.BatchSize, seconds(cfg.Journal.FlushIntervalS))
		jrnl = writer

		wg.Add(1)
		go func() {
			defer wg.Done()
			writer.Start(journalCtx)
		}()
	}

	// 11. Health checks.
	health := observability.NewHealthMonitor(30 * time.Second)
	health.Register("solana_rpc", observability.ErrorCheck(primary.Health, observability.StatusUnhealthy))
	health.Register("wallet", func(context.Context) observability.ComponentHealth {
		if !signer.IsConfigured() {
			return observability.ComponentHealth{Status: observability.StatusDegraded, Message: "simulated signer"}
		}
		return observability.ComponentHealth{Status: observability.StatusHealthy}
	})
	if stores.ping != nil {
		health.Register("storage", observability.ErrorCheck(stores.ping, observability.StatusUnhealthy))
	}
	if writer != nil {
		health.Register("journal", func(context.Context) observability.ComponentHealth {
			st := writer.Stats()
			if st.Errors > 0 && st.Written == 0 {
				return observability.ComponentHealth{Status: observability.StatusDegraded, Message: "no batch written yet"}
			}
			return observability.ComponentHealth{
				Status:  observability.StatusHealthy,
				Details: map[string]any{"written": st.Written, "errors": st.Errors},
			}
		})
	}

	// 12. Engine.
	eng := engine.New(engine.Config{
		InstanceID:       cfg.General.InstanceID,
		ScanInterval:     seconds(cfg.Scan.IntervalS),
		Concurrency:      cfg.Scan.Concurrency,
		BatchSize:        cfg.API.LaunchBatchSize,
		CandidateTimeout: seconds(cfg.Scan.CandidateTimeoutS),
		TickInterval:     seconds(cfg.Scan.PositionTickS),
		TickTimeout:      seconds(cfg.Scan.PositionTimeoutS) * time.Duration(max(cfg.Risk.MaxPositions, 1)),
		DryRun:           dryRun,
		TrustedBots:      cfg.Scoring.TrustedBots,
	}, engine.Deps{
		Launches:   market,
		Holders:    balances,
		SmartMoney: tracker,
		Scorer:     score,
		Positions:  manager,
		Journal:    jrnl,
		Scans:      stores.scans,
		Metrics:    metrics,
	})

	// 13. Diagnostics server.
	var (
		balanceSrc diagnostics.BalanceSource
		claimSrc   diagnostics.ClaimSource
	)
	if hasWallet {
		balanceSrc = balances
		claimSrc = market
	}
	server := diagnostics.NewServer(cfg.Diagnostics.ListenAddr, diagnostics.Deps{
		Health:    health,
		Metrics:   observability.NewExporter(metrics.Registry),
		Balance:   balanceSrc,
		Claims:    claimSrc,
		Positions: manager,
		Config:    cfg,
		Wallets:   tracker,
		Scans:     stores.scans,
		LastScan:  eng.LastScan,
		Signals:   learn,
		DryRun:    dryRun,
	})
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Diagnostics server failed")
		}
	}()

	// 14. Start services.
	tracker.Start(ctx)
	if feed != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			feed.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		health.Start(ctx)
	}()

	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Engine start failed")
	}

	// Periodic maintenance and stats.
	wg.Add(1)
	go func() {
		defer wg.Done()
		statsTicker := time.NewTicker(5 * time.Minute)
		pruneTicker := time.NewTicker(time.Hour)
		defer statsTicker.Stop()
		defer pruneTicker.Stop()
		maxIdle := time.Duration(cfg.SmartMoney.LearnedMaxIdleH) * time.Hour
		for {
			select {
			case <-ctx.Done():
				return
			case <-pruneTicker.C:
				if n := tracker.PruneLearned(maxIdle); n > 0 {
					log.Info().Int("pruned", n).Msg("Learned wallets pruned")
				}
			case <-statsTicker.C:
				metrics.TrackedWallets.Set(float64(len(tracker.Wallets())))
				logStats(eng, manager, market)
			}
		}
	}()

	log.Info().Str("diagnostics", cfg.Diagnostics.ListenAddr).Msg("GHOST Trader - Running")

	// 15. Block until shutdown.
	<-ctx.Done()

	// 16. Graceful shutdown.
	log.Info().Msg("Shutting down GHOST Trader...")
	eng.Stop()
	stopJournal()

	if *closeOnExit {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 60*time.Second)
		n := manager.ForceCloseAll(closeCtx)
		closeCancel()
		log.Info().Int("closed", n).Msg("Open positions force-closed")
	}

	tracker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Diagnostics server shutdown failed")
	}
	shutdownCancel()

	wg.Wait()

	logStats(eng, manager, market)
	log.Info().Msg("GHOST Trader - Shutdown complete")
}

func logStats(eng *engine.Engine, manager *positions.Manager, market *marketdata.Client) {
	es := eng.Stats()
	perf := manager.Performance()
	ms := market.Stats()
	log.Info().
		Int64("scans", es.Scans).
		Int64("scan_errors", es.ScanErrors).
		Int64("evaluated", es.Evaluated).
		Int64("buys", es.Buys).
		Int64("opened", es.Opened).
		Int64("skipped", es.Skipped).
		Int("open_positions", perf.OpenPositions).
		Str("exposure_sol", perf.ExposureSOL).
		Int("trades", perf.TotalTrades).
		Float64("win_rate", perf.WinRate).
		Str("pnl_sol", perf.TotalPnLSOL).
		Int64("api_requests", ms.Requests).
		Int64("api_cache_hits", ms.CacheHits).
		Int64("api_failures", ms.Failures).
		Msg("GHOST Trader - Statistics")
}
