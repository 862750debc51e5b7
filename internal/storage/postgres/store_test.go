package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghost-trader/ghost/internal/learning"
	"github.com/ghost-trader/ghost/internal/positions"
	"github.com/ghost-trader/ghost/internal/smartmoney"
	"github.com/ghost-trader/ghost/internal/storage"
)

// setupTestStore connects to GHOST_TEST_POSTGRES_DSN, migrates and
// truncates. Tests skip when the variable is unset.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("GHOST_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GHOST_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	require.NoError(t, Migrate(dsn))

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE positions, signal_stats, smart_money_wallets`)
	require.NoError(t, err)

	return NewStore(pool)
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/ghost", migrateURL("postgres://u:p@localhost:5432/ghost"))
	assert.Equal(t, "pgx5://localhost/ghost", migrateURL("postgresql://localhost/ghost"))
	assert.Equal(t, "pgx5://localhost/ghost", migrateURL("pgx5://localhost/ghost"))
}

func TestStore_PositionRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := positions.Position{
		ID:             "pos000000001",
		Mint:           "MintA",
		Symbol:         "AAA",
		Status:         positions.StatusOpen,
		EntryPriceSOL:  0.0001,
		InitialSOL:     decimal.RequireFromString("0.1"),
		AmountSOL:      decimal.RequireFromString("0.067"),
		TokenAmount:    decimal.RequireFromString("670.5"),
		TokenDecimals:  6,
		EntryScore:     77,
		EntrySignals:   []string{"buy_pressure", "deep_liquidity"},
		RealizedSOL:    decimal.RequireFromString("0.0528"),
		PeakMultiplier: 1.6,
		TPTiersHit:     []bool{true, false, false},
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	require.NoError(t, s.SavePosition(ctx, p))

	got, err := s.GetPosition(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.TokenAmount.Equal(p.TokenAmount))
	assert.True(t, got.RealizedSOL.Equal(p.RealizedSOL))
	assert.Equal(t, p.EntrySignals, got.EntrySignals)
	assert.Equal(t, p.TPTiersHit, got.TPTiersHit)
	assert.Nil(t, got.ClosedAt)

	closed := created.Add(time.Hour)
	p.Status = positions.StatusClosed
	p.ExitReason = positions.ReasonStopLoss
	p.PnLSOL = decimal.RequireFromString("-0.016")
	p.ClosedAt = &closed
	require.NoError(t, s.SavePosition(ctx, p))

	open, err := s.ListPositions(ctx, positions.StatusOpen)
	require.NoError(t, err)
	assert.Empty(t, open)

	all, err := s.ListPositions(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, positions.ReasonStopLoss, all[0].ExitReason)
	assert.True(t, all[0].PnLSOL.Equal(p.PnLSOL))
	require.NotNil(t, all[0].ClosedAt)

	_, err = s.GetPosition(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_SignalStatsAndWallets(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSignalStats(ctx, []learning.SignalStat{
		{Signal: "smart_money", Trades: 4, Wins: 3, Losses: 1, TotalPnL: 0.4},
	}))
	require.NoError(t, s.SaveSignalStats(ctx, []learning.SignalStat{
		{Signal: "smart_money", Trades: 5, Wins: 3, Losses: 2, TotalPnL: 0.3},
	}))
	stats, err := s.LoadSignalStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 5, stats[0].Trades)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := smartmoney.Wallet{Address: "W1", Label: "alpha", WinRate: 0.7, Source: smartmoney.SourceManual,
		PreferredMcap: smartmoney.McapMicro, AddedAt: now, LastSeenAt: now}
	require.NoError(t, s.SaveWallet(ctx, w))

	ws, err := s.ListWallets(ctx)
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, smartmoney.McapMicro, ws[0].PreferredMcap)

	require.NoError(t, s.DeleteWallet(ctx, "W1"))
	assert.ErrorIs(t, s.DeleteWallet(ctx, "W1"), storage.ErrNotFound)
}
