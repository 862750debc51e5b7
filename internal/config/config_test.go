package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "ghost-config-*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	_, err = tmpFile.WriteString(body)
	require.NoError(t, err)
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoadConfig(t *testing.T) {
	yaml := `
general:
  instance_id: "test-node"
  environment: "development"
  dry_run: true
  log_level: "debug"

api:
  base_url: "https://launch.example.com/api"
  cache_ttl_s: 15

solana:
  rpc_endpoint: "https://rpc.example.com"

risk:
  stop_loss_pct: 20
  take_profit_tiers: [1.5, 2.5, 4]
  take_profit_sell_pct: [25, 25, 100]
  max_positions: 3
  max_exposure_sol: 0.75

smart_money:
  wallets:
    - address: "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
      label: "whale-1"
      win_rate: 0.71
      preferred_mcap: "micro"
`
	cfg, err := Load(writeTempConfig(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, "test-node", cfg.General.InstanceID)
	assert.True(t, cfg.General.DryRun)
	assert.Equal(t, "https://launch.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, "https://launch.example.com/api", cfg.API.SwapBaseURL)
	assert.Equal(t, 15, cfg.API.CacheTTLS)
	assert.Equal(t, 20.0, cfg.Risk.StopLossPct)
	assert.Equal(t, []float64{1.5, 2.5, 4}, cfg.Risk.TakeProfitTiers)
	assert.Equal(t, 3, cfg.Risk.MaxPositions)
	require.Len(t, cfg.SmartMoney.Wallets, 1)
	assert.Equal(t, "whale-1", cfg.SmartMoney.Wallets[0].Label)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigDefaults(t *testing.T) {
	yaml := `
general:
  dry_run: true
`
	cfg, err := Load(writeTempConfig(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, "ghost-1", cfg.General.InstanceID)
	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, 30, cfg.API.CacheTTLS)
	assert.Equal(t, 500, cfg.API.CacheSize)
	assert.Equal(t, 3, cfg.API.MaxRetries)
	assert.Equal(t, 15.0, cfg.Risk.StopLossPct)
	assert.Equal(t, []float64{1.5, 2.0, 3.0}, cfg.Risk.TakeProfitTiers)
	assert.Equal(t, 2.0, cfg.Risk.TrailingActivationX)
	assert.Equal(t, 10.0, cfg.Risk.TrailingStopPct)
	assert.Equal(t, 8.0, cfg.Risk.DeadPositionHours)
	assert.Equal(t, 55.0, cfg.Scoring.BuyThreshold)
	assert.Equal(t, 3, cfg.Learning.MinTrades)
	assert.Equal(t, 10, cfg.Learning.MaxAdjustment)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Scan.Concurrency)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("GHOST_TEST_PRIVATE_KEY", "secret-key-material")
	t.Setenv("GHOST_TEST_API_KEY", "api-key-123")

	yaml := `
api:
  base_url: "https://launch.example.com/api"
  api_key: "${GHOST_TEST_API_KEY}"
solana:
  private_key: "${GHOST_TEST_PRIVATE_KEY}"
`
	cfg, err := Load(writeTempConfig(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, "secret-key-material", cfg.Solana.PrivateKey)
	assert.Equal(t, "api-key-123", cfg.API.APIKey)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/ghost.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{API: APIConfig{BaseURL: "https://x"}}
		applyDefaults(cfg)
		return cfg
	}

	t.Run("defaults valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("missing base url", func(t *testing.T) {
		cfg := base()
		cfg.API.BaseURL = ""
		assert.ErrorContains(t, cfg.Validate(), "api.base_url")
	})

	t.Run("tiers not increasing", func(t *testing.T) {
		cfg := base()
		cfg.Risk.TakeProfitTiers = []float64{2, 1.5, 3}
		assert.ErrorContains(t, cfg.Validate(), "strictly increasing")
	})

	t.Run("tier length mismatch", func(t *testing.T) {
		cfg := base()
		cfg.Risk.TakeProfitSellPct = []float64{50}
		assert.ErrorContains(t, cfg.Validate(), "length mismatch")
	})

	t.Run("position larger than exposure", func(t *testing.T) {
		cfg := base()
		cfg.Risk.MaxPositionSOL = 2
		assert.ErrorContains(t, cfg.Validate(), "max_exposure_sol")
	})

	t.Run("concurrency out of range", func(t *testing.T) {
		cfg := base()
		cfg.Scan.Concurrency = 12
		assert.ErrorContains(t, cfg.Validate(), "scan.concurrency")
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		cfg := base()
		cfg.Storage.Driver = "postgres"
		assert.ErrorContains(t, cfg.Validate(), "postgres_dsn")
	})
}

func TestRedacted(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Solana.PrivateKey = "5KQwrPbwdL6PhXujxW37FSSQZ1JiwsST4cqQzDeyXtP7"
	cfg.API.APIKey = "key-123"
	cfg.Storage.PostgresDSN = "postgres://ghost:hunter2@db:5432/ghost?sslmode=disable"
	cfg.Journal.DSN = "clickhouse://localhost:9000/default"
	cfg.Scoring.TrustedBots = []string{"Bot1"}

	out := cfg.Redacted()
	assert.Equal(t, "***", out.Solana.PrivateKey)
	assert.Equal(t, "***", out.API.APIKey)
	assert.Equal(t, "postgres://ghost:***@db:5432/ghost?sslmode=disable", out.Storage.PostgresDSN)
	assert.Equal(t, "clickhouse://localhost:9000/default", out.Journal.DSN)
	assert.Empty(t, out.Storage.RedisPassword)

	out.Scoring.TrustedBots[0] = "changed"
	assert.Equal(t, "5KQwrPbwdL6PhXujxW37FSSQZ1JiwsST4cqQzDeyXtP7", cfg.Solana.PrivateKey)
	assert.Equal(t, "Bot1", cfg.Scoring.TrustedBots[0])
}
