package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghost-trader/ghost/internal/learning"
	"github.com/ghost-trader/ghost/internal/positions"
	"github.com/ghost-trader/ghost/internal/scorer"
	"github.com/ghost-trader/ghost/internal/smartmoney"
	"github.com/ghost-trader/ghost/internal/storage"
)

func TestStore_Positions(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SavePosition(ctx, positions.Position{
		ID: "b", Mint: "MintB", Status: positions.StatusOpen, CreatedAt: base.Add(time.Minute),
		AmountSOL: decimal.NewFromFloat(0.1), EntrySignals: []string{"buy_pressure"},
	}))
	require.NoError(t, s.SavePosition(ctx, positions.Position{
		ID: "a", Mint: "MintA", Status: positions.StatusClosed, CreatedAt: base,
	}))

	all, err := s.ListPositions(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)

	open, err := s.ListPositions(ctx, positions.StatusOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "b", open[0].ID)

	// Stored copies are isolated from the caller.
	open[0].EntrySignals[0] = "mutated"
	got, err := s.GetPosition(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"buy_pressure"}, got.EntrySignals)

	// Saves upsert.
	got.Status = positions.StatusClosed
	require.NoError(t, s.SavePosition(ctx, *got))
	open, _ = s.ListPositions(ctx, positions.StatusOpen)
	assert.Empty(t, open)

	_, err = s.GetPosition(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.SavePosition(ctx, positions.Position{}), storage.ErrInvalidInput)
}

func TestStore_SignalStats(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.SaveSignalStats(ctx, []learning.SignalStat{
		{Signal: "smart_money", Trades: 4, Wins: 3},
		{Signal: "buy_pressure", Trades: 2, Wins: 0},
	}))
	require.NoError(t, s.SaveSignalStats(ctx, []learning.SignalStat{{Signal: "smart_money", Trades: 5, Wins: 4}}))

	stats, err := s.LoadSignalStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "buy_pressure", stats[0].Signal)
	assert.Equal(t, 5, stats[1].Trades)
}

func TestStore_Wallets(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.SaveWallet(ctx, smartmoney.Wallet{Address: "W2", Source: smartmoney.SourceManual}))
	require.NoError(t, s.SaveWallet(ctx, smartmoney.Wallet{Address: "W1", Source: smartmoney.SourceLearned}))

	ws, err := s.ListWallets(ctx)
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.Equal(t, "W1", ws[0].Address)

	require.NoError(t, s.DeleteWallet(ctx, "W1"))
	assert.ErrorIs(t, s.DeleteWallet(ctx, "W1"), storage.ErrNotFound)
}

func TestScanStore(t *testing.T) {
	ctx := context.Background()
	s := NewScanStore()

	_, err := s.LatestScan(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	results := []scorer.Result{{Mint: "MintA", Score: 77, Verdict: scorer.VerdictBuy}}
	require.NoError(t, s.SaveScan(ctx, storage.ScanSnapshot{At: at, Results: results}))
	results[0].Score = 0

	snap, err := s.LatestScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, at, snap.At)
	assert.Equal(t, 77.0, snap.Results[0].Score)
}
