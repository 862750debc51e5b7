package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Ghost Trader engine.
type Config struct {
	General     GeneralConfig     `yaml:"general"`
	API         APIConfig         `yaml:"api"`
	Solana      SolanaConfig      `yaml:"solana"`
	Scan        ScanConfig        `yaml:"scan"`
	Risk        RiskConfig        `yaml:"risk"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	SmartMoney  SmartMoneyConfig  `yaml:"smart_money"`
	Learning    LearningConfig    `yaml:"learning"`
	Storage     StorageConfig     `yaml:"storage"`
	Journal     JournalConfig     `yaml:"journal"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	DryRun      bool   `yaml:"dry_run"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

// APIConfig points at the token-launch API and the swap-quote API.
type APIConfig struct {
	BaseURL         string  `yaml:"base_url"`
	APIKey          string  `yaml:"api_key"`
	SwapBaseURL     string  `yaml:"swap_base_url"`
	ReadTimeoutS    int     `yaml:"read_timeout_s"`
	SwapTimeoutS    int     `yaml:"swap_timeout_s"`
	CacheTTLS       int     `yaml:"cache_ttl_s"`
	CacheSize       int     `yaml:"cache_size"`
	MaxRetries      int     `yaml:"max_retries"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps"`
	LaunchBatchSize int     `yaml:"launch_batch_size"`
}

type SolanaConfig struct {
	RPCEndpoint      string  `yaml:"rpc_endpoint"`
	FallbackEndpoint string  `yaml:"fallback_endpoint"`
	WSEndpoint       string  `yaml:"ws_endpoint"`
	PrivateKey       string  `yaml:"private_key"` // base58; usually ${GHOST_PRIVATE_KEY}
	RateLimitRPS     float64 `yaml:"rate_limit_rps"`
	TimeoutS         int     `yaml:"timeout_s"`
}

type ScanConfig struct {
	IntervalS         int `yaml:"interval_s"`
	Concurrency       int `yaml:"concurrency"`
	CandidateTimeoutS int `yaml:"candidate_timeout_s"`
	PositionTickS     int `yaml:"position_tick_s"`
	PositionTimeoutS  int `yaml:"position_timeout_s"`

	// Token accounts ignored when computing holder concentration.
	ExcludedHolders []string `yaml:"excluded_holders"`
}

type RiskConfig struct {
	StopLossPct         float64   `yaml:"stop_loss_pct"`
	TakeProfitTiers     []float64 `yaml:"take_profit_tiers"`
	TakeProfitSellPct   []float64 `yaml:"take_profit_sell_pct"`
	TrailingActivationX float64   `yaml:"trailing_activation_x"`
	TrailingStopPct     float64   `yaml:"trailing_stop_pct"`
	DeadPositionHours   float64   `yaml:"dead_position_hours"`
	MinPositionSOL      float64   `yaml:"min_position_sol"`
	MaxPositionSOL      float64   `yaml:"max_position_sol"`
	MaxExposureSOL      float64   `yaml:"max_exposure_sol"`
	MaxPositions        int       `yaml:"max_positions"`
	MaxDailyLossSOL     float64   `yaml:"max_daily_loss_sol"`
	MinLiquidityUSD     float64   `yaml:"min_liquidity_usd"`
	MinBuySellRatio     float64   `yaml:"min_buy_sell_ratio"`
	SlippageBps         int       `yaml:"slippage_bps"`
}

type ScoringConfig struct {
	BuyThreshold      float64  `yaml:"buy_threshold"`
	MaxTopHolderPct   float64  `yaml:"max_top_holder_pct"`
	LiquidityFloorUSD float64  `yaml:"liquidity_floor_usd"`
	MinHolderCount    int      `yaml:"min_holder_count"`
	TrustedBots       []string `yaml:"trusted_bots"`
}

type SeedWallet struct {
	Address       string  `yaml:"address"`
	Label         string  `yaml:"label"`
	WinRate       float64 `yaml:"win_rate"`
	TotalPnLSOL   float64 `yaml:"total_pnl_sol"`
	PreferredMcap string  `yaml:"preferred_mcap"` // micro|small|mid
}

type SmartMoneyConfig struct {
	Wallets          []SeedWallet `yaml:"wallets"`
	ActivityTTLMin   int          `yaml:"activity_ttl_min"`
	RecentWindowMin  int          `yaml:"recent_window_min"`
	LearnedMaxIdleH  int          `yaml:"learned_max_idle_h"`
	FeedEnabled      bool         `yaml:"feed_enabled"`
	CleanupIntervalS int          `yaml:"cleanup_interval_s"`
}

type LearningConfig struct {
	MinTrades     int `yaml:"min_trades"`
	MaxAdjustment int `yaml:"max_adjustment"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver"` // memory|postgres
	PostgresDSN   string `yaml:"postgres_dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type JournalConfig struct {
	Enabled        bool   `yaml:"enabled"`
	DSN            string `yaml:"dsn"`
	Database       string `yaml:"database"`
	BatchSize      int    `yaml:"batch_size"`
	FlushIntervalS int    `yaml:"flush_interval_s"`
}

type DiagnosticsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads and parses a YAML configuration file. Variables from a .env
// file next to the working directory are loaded first so that ${VAR}
// references in the YAML can resolve secrets kept out of the file.
func Load(path string) (*Config, error) {
	// Missing .env is normal in production.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply defaults
	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "ghost-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}

	if cfg.API.SwapBaseURL == "" {
		cfg.API.SwapBaseURL = cfg.API.BaseURL
	}
	if cfg.API.ReadTimeoutS == 0 {
		cfg.API.ReadTimeoutS = 10
	}
	if cfg.API.SwapTimeoutS == 0 {
		cfg.API.SwapTimeoutS = 30
	}
	if cfg.API.CacheTTLS == 0 {
		cfg.API.CacheTTLS = 30
	}
	if cfg.API.CacheSize == 0 {
		cfg.API.CacheSize = 500
	}
	if cfg.API.MaxRetries == 0 {
		cfg.API.MaxRetries = 3
	}
	if cfg.API.RateLimitRPS == 0 {
		cfg.API.RateLimitRPS = 5
	}
	if cfg.API.LaunchBatchSize == 0 {
		cfg.API.LaunchBatchSize = 20
	}

	if cfg.Solana.RPCEndpoint == "" {
		cfg.Solana.RPCEndpoint = "https://api.mainnet-beta.solana.com"
	}
	if cfg.Solana.FallbackEndpoint == "" {
		cfg.Solana.FallbackEndpoint = "https://api.mainnet-beta.solana.com"
	}
	if cfg.Solana.WSEndpoint == "" {
		cfg.Solana.WSEndpoint = "wss://api.mainnet-beta.solana.com"
	}
	if cfg.Solana.RateLimitRPS == 0 {
		cfg.Solana.RateLimitRPS = 10
	}
	if cfg.Solana.TimeoutS == 0 {
		cfg.Solana.TimeoutS = 15
	}

	if cfg.Scan.IntervalS == 0 {
		cfg.Scan.IntervalS = 180
	}
	if cfg.Scan.Concurrency == 0 {
		cfg.Scan.Concurrency = 3
	}
	if cfg.Scan.CandidateTimeoutS == 0 {
		cfg.Scan.CandidateTimeoutS = 30
	}
	if cfg.Scan.PositionTickS == 0 {
		cfg.Scan.PositionTickS = 15
	}
	if cfg.Scan.PositionTimeoutS == 0 {
		cfg.Scan.PositionTimeoutS = 20
	}

	if cfg.Risk.StopLossPct == 0 {
		cfg.Risk.StopLossPct = 15
	}
	if len(cfg.Risk.TakeProfitTiers) == 0 {
		cfg.Risk.TakeProfitTiers = []float64{1.5, 2.0, 3.0}
	}
	if len(cfg.Risk.TakeProfitSellPct) == 0 {
		cfg.Risk.TakeProfitSellPct = []float64{33, 33, 100}
	}
	if cfg.Risk.TrailingActivationX == 0 {
		cfg.Risk.TrailingActivationX = 2.0
	}
	if cfg.Risk.TrailingStopPct == 0 {
		cfg.Risk.TrailingStopPct = 10
	}
	if cfg.Risk.DeadPositionHours == 0 {
		cfg.Risk.DeadPositionHours = 8
	}
	if cfg.Risk.MinPositionSOL == 0 {
		cfg.Risk.MinPositionSOL = 0.05
	}
	if cfg.Risk.MaxPositionSOL == 0 {
		cfg.Risk.MaxPositionSOL = 0.25
	}
	if cfg.Risk.MaxExposureSOL == 0 {
		cfg.Risk.MaxExposureSOL = 1.0
	}
	if cfg.Risk.MaxPositions == 0 {
		cfg.Risk.MaxPositions = 5
	}
	if cfg.Risk.MaxDailyLossSOL == 0 {
		cfg.Risk.MaxDailyLossSOL = 0.5
	}
	if cfg.Risk.MinLiquidityUSD == 0 {
		cfg.Risk.MinLiquidityUSD = 25000
	}
	if cfg.Risk.MinBuySellRatio == 0 {
		cfg.Risk.MinBuySellRatio = 1.2
	}
	if cfg.Risk.SlippageBps == 0 {
		cfg.Risk.SlippageBps = 300
	}

	if cfg.Scoring.BuyThreshold == 0 {
		cfg.Scoring.BuyThreshold = 55
	}
	if cfg.Scoring.MaxTopHolderPct == 0 {
		cfg.Scoring.MaxTopHolderPct = 50
	}
	if cfg.Scoring.LiquidityFloorUSD == 0 {
		cfg.Scoring.LiquidityFloorUSD = 5000
	}
	if cfg.Scoring.MinHolderCount == 0 {
		cfg.Scoring.MinHolderCount = 100
	}

	if cfg.SmartMoney.ActivityTTLMin == 0 {
		cfg.SmartMoney.ActivityTTLMin = 60
	}
	if cfg.SmartMoney.RecentWindowMin == 0 {
		cfg.SmartMoney.RecentWindowMin = 5
	}
	if cfg.SmartMoney.LearnedMaxIdleH == 0 {
		cfg.SmartMoney.LearnedMaxIdleH = 72
	}
	if cfg.SmartMoney.CleanupIntervalS == 0 {
		cfg.SmartMoney.CleanupIntervalS = 300
	}

	if cfg.Learning.MinTrades == 0 {
		cfg.Learning.MinTrades = 3
	}
	if cfg.Learning.MaxAdjustment == 0 {
		cfg.Learning.MaxAdjustment = 10
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}

	if cfg.Journal.Database == "" {
		cfg.Journal.Database = "ghost"
	}
	if cfg.Journal.BatchSize == 0 {
		cfg.Journal.BatchSize = 500
	}
	if cfg.Journal.FlushIntervalS == 0 {
		cfg.Journal.FlushIntervalS = 5
	}

	if cfg.Diagnostics.ListenAddr == "" {
		cfg.Diagnostics.ListenAddr = ":9092"
	}
}

// Validate rejects configurations that would violate the risk model.
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.StopLossPct >= 100 {
		errs = append(errs, fmt.Errorf("risk.stop_loss_pct must be in (0,100), got %.2f", c.Risk.StopLossPct))
	}
	if len(c.Risk.TakeProfitTiers) != len(c.Risk.TakeProfitSellPct) {
		errs = append(errs, fmt.Errorf("risk.take_profit_tiers (%d) and take_profit_sell_pct (%d) length mismatch",
			len(c.Risk.TakeProfitTiers), len(c.Risk.TakeProfitSellPct)))
	}
	for i := 1; i < len(c.Risk.TakeProfitTiers); i++ {
		if c.Risk.TakeProfitTiers[i] <= c.Risk.TakeProfitTiers[i-1] {
			errs = append(errs, errors.New("risk.take_profit_tiers must be strictly increasing"))
			break
		}
	}
	if c.Risk.MinPositionSOL > c.Risk.MaxPositionSOL {
		errs = append(errs, fmt.Errorf("risk.min_position_sol %.4f > max_position_sol %.4f",
			c.Risk.MinPositionSOL, c.Risk.MaxPositionSOL))
	}
	if c.Risk.MaxPositionSOL > c.Risk.MaxExposureSOL {
		errs = append(errs, fmt.Errorf("risk.max_position_sol %.4f > max_exposure_sol %.4f",
			c.Risk.MaxPositionSOL, c.Risk.MaxExposureSOL))
	}
	if c.Risk.MaxPositions <= 0 {
		errs = append(errs, errors.New("risk.max_positions must be positive"))
	}
	if c.Scan.Concurrency < 1 || c.Scan.Concurrency > 5 {
		errs = append(errs, fmt.Errorf("scan.concurrency must be in [1,5], got %d", c.Scan.Concurrency))
	}
	if c.Storage.Driver != "memory" && c.Storage.Driver != "postgres" {
		errs = append(errs, fmt.Errorf("storage.driver must be memory|postgres, got %q", c.Storage.Driver))
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
	}
	if c.Journal.Enabled && c.Journal.DSN == "" {
		errs = append(errs, errors.New("journal.dsn is required when the journal is enabled"))
	}

	return errors.Join(errs...)
}

const redacted = "***"

// Redacted returns a copy of the configuration safe to expose: secrets are
// masked and DSNs lose their credentials.
func (c *Config) Redacted() Config {
	out := *c
	out.Scoring.TrustedBots = append([]string(nil), c.Scoring.TrustedBots...)
	out.Scan.ExcludedHolders = append([]string(nil), c.Scan.ExcludedHolders...)
	out.SmartMoney.Wallets = append([]SeedWallet(nil), c.SmartMoney.Wallets...)
	out.Risk.TakeProfitTiers = append([]float64(nil), c.Risk.TakeProfitTiers...)
	out.Risk.TakeProfitSellPct = append([]float64(nil), c.Risk.TakeProfitSellPct...)

	if out.Solana.PrivateKey != "" {
		out.Solana.PrivateKey = redacted
	}
	if out.API.APIKey != "" {
		out.API.APIKey = redacted
	}
	if out.Storage.RedisPassword != "" {
		out.Storage.RedisPassword = redacted
	}
	out.Storage.PostgresDSN = redactDSN(out.Storage.PostgresDSN)
	out.Journal.DSN = redactDSN(out.Journal.DSN)
	return out
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), redacted)
	}
	return u.String()
}
