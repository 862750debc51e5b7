package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ghost-trader/ghost/internal/config"
	"github.com/ghost-trader/ghost/internal/positions"
	"github.com/ghost-trader/ghost/internal/smartmoney"
	"github.com/ghost-trader/ghost/internal/solana"
	"github.com/ghost-trader/ghost/internal/storage"
	"github.com/ghost-trader/ghost/internal/storage/memory"
	"github.com/ghost-trader/ghost/internal/storage/postgres"
	redisstore "github.com/ghost-trader/ghost/internal/storage/redis"
)

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "ghost-trader").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "ghost-trader").
			Str("instance", general.InstanceID).Logger()
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// buildRPC returns the primary and fallback RPC clients. Stub mode shares
// one in-memory client.
func buildRPC(ctx context.Context, cfg config.SolanaConfig, stub bool) (solana.RPCClient, solana.RPCClient) {
	if stub {
		log.Info().Msg("Solana RPC: STUB mode")
		rpc := solana.NewStubRPCClient()
		return rpc, rpc
	}

	rpcConfig := solana.RPCConfig{
		Endpoint:     cfg.RPCEndpoint,
		WSEndpoint:   cfg.WSEndpoint,
		Timeout:      seconds(cfg.TimeoutS),
		MaxRetries:   3,
		RateLimitRPS: cfg.RateLimitRPS,
	}
	primary := solana.NewLiveRPCClient(rpcConfig)

	fallbackConfig := rpcConfig
	fallbackConfig.Endpoint = cfg.FallbackEndpoint
	fallback := solana.NewLiveRPCClient(fallbackConfig)

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := primary.Health(healthCtx); err != nil {
		log.Warn().Err(err).Str("endpoint", cfg.RPCEndpoint).
			Msg("Solana RPC health check failed (continuing, may be rate-limited)")
	} else {
		log.Info().Str("endpoint", cfg.RPCEndpoint).Msg("Solana RPC: LIVE - connected")
	}
	return primary, fallback
}

// storageSet bundles the durable store, the live-scan store and their health
// probe.
type storageSet struct {
	durable storage.Store
	scans   storage.ScanStore
	ping    func(ctx context.Context) error
	closers []func()
}

func (s *storageSet) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (*storageSet, error) {
	s := &storageSet{}

	switch cfg.Driver {
	case "postgres":
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			return nil, err
		}
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		store := postgres.NewStore(pool)
		s.durable = store
		s.ping = pool.Ping
		s.closers = append(s.closers, store.Close)
		log.Info().Msg("Storage: postgres (migrations applied)")
	default:
		s.durable = memory.New()
		log.Warn().Msg("Storage: memory (state is lost on restart)")
	}

	s.scans = memory.NewScanStore()
	if cfg.RedisAddr != "" {
		rs, err := redisstore.NewScanStore(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Redis scan store unavailable, keeping live scan in memory")
		} else {
			s.scans = rs
			s.closers = append(s.closers, func() { _ = rs.Close() })
			log.Info().Str("addr", cfg.RedisAddr).Msg("Live scan store: redis")
		}
	}
	return s, nil
}

// seedTracker restores persisted wallets, adds configured seeds and trusted
// bots, then persists every later change and subscribes new wallets to the
// live feed.
func seedTracker(ctx context.Context, tracker *smartmoney.Tracker, store storage.WalletStore, cfg *config.Config, feed *smartmoney.Feed) {
	saved, err := store.ListWallets(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Smart-money wallets not restored")
	}
	for _, w := range saved {
		if err := tracker.AddWallet(w); err != nil {
			log.Warn().Err(err).Str("address", w.Address).Msg("Stored wallet rejected")
		}
	}

	tracker.SetOnChange(func(w smartmoney.Wallet, removed bool) {
		persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var err error
		if removed {
			err = store.DeleteWallet(persistCtx, w.Address)
		} else {
			err = store.SaveWallet(persistCtx, w)
			if feed != nil {
				feed.Watch(w.Address)
			}
		}
		if err != nil {
			log.Warn().Err(err).Str("address", w.Address).Msg("Wallet change not persisted")
		}
	})

	for _, seed := range cfg.SmartMoney.Wallets {
		err := tracker.AddWallet(smartmoney.Wallet{
			Address:       seed.Address,
			Label:         seed.Label,
			WinRate:       seed.WinRate,
			TotalPnLSOL:   seed.TotalPnLSOL,
			PreferredMcap: smartmoney.McapRange(seed.PreferredMcap),
			Source:        smartmoney.SourceManual,
		})
		if err != nil {
			log.Warn().Err(err).Str("address", seed.Address).Msg("Seed wallet rejected")
		}
	}
	for _, bot := range cfg.Scoring.TrustedBots {
		if tracker.IsSmartMoney(bot) {
			continue
		}
		if err := tracker.AddWallet(smartmoney.Wallet{Address: bot, Label: "trusted bot", WinRate: 0.5}); err != nil {
			log.Warn().Err(err).Str("address", bot).Msg("Trusted bot rejected")
		}
	}

	log.Info().
		Int("restored", len(saved)).
		Int("seeds", len(cfg.SmartMoney.Wallets)).
		Int("trusted_bots", len(cfg.Scoring.TrustedBots)).
		Int("tracked", len(tracker.Wallets())).
		Msg("Smart-money tracker initialized")
}

func positionsConfig(cfg *config.Config) positions.Config {
	tiers := make([]positions.TPLevel, len(cfg.Risk.TakeProfitTiers))
	for i, m := range cfg.Risk.TakeProfitTiers {
		tiers[i] = positions.TPLevel{Multiplier: m, SellPct: cfg.Risk.TakeProfitSellPct[i]}
	}
	return positions.Config{
		Exits: positions.ExitRules{
			StopLossPct:         cfg.Risk.StopLossPct,
			TrailingActivationX: cfg.Risk.TrailingActivationX,
			TrailingStopPct:     cfg.Risk.TrailingStopPct,
			DeadPositionAfter:   time.Duration(cfg.Risk.DeadPositionHours * float64(time.Hour)),
			TakeProfit:          tiers,
		},
		MinPositionSOL:  decimal.NewFromFloat(cfg.Risk.MinPositionSOL),
		MaxPositionSOL:  decimal.NewFromFloat(cfg.Risk.MaxPositionSOL),
		MaxExposureSOL:  decimal.NewFromFloat(cfg.Risk.MaxExposureSOL),
		MaxPositions:    cfg.Risk.MaxPositions,
		MaxDailyLossSOL: decimal.NewFromFloat(cfg.Risk.MaxDailyLossSOL),
		SlippageBps:     cfg.Risk.SlippageBps,
		BuyThreshold:    cfg.Scoring.BuyThreshold,
		TickTimeout:     seconds(cfg.Scan.PositionTimeoutS),
		MaxFailedKept:   200,
	}
}
