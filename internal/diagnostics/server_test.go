package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghost-trader/ghost/internal/config"
	"github.com/ghost-trader/ghost/internal/learning"
	"github.com/ghost-trader/ghost/internal/marketdata"
	"github.com/ghost-trader/ghost/internal/observability"
	"github.com/ghost-trader/ghost/internal/positions"
	"github.com/ghost-trader/ghost/internal/scorer"
	"github.com/ghost-trader/ghost/internal/smartmoney"
	"github.com/ghost-trader/ghost/internal/solana"
	"github.com/ghost-trader/ghost/internal/storage"
	"github.com/ghost-trader/ghost/internal/storage/memory"
)

type fakeBalance struct{}

func (fakeBalance) Owner() solana.Pubkey { return "GhostWa11et" }

func (fakeBalance) SOLBalance(context.Context) decimal.Decimal {
	return decimal.RequireFromString("1.23456789")
}

func (fakeBalance) TokenBalance(_ context.Context, mint solana.Pubkey) decimal.Decimal {
	if mint == "MintA" {
		return decimal.RequireFromString("1520.5")
	}
	return decimal.Zero
}

type fakeClaims struct {
	err error
}

func (f fakeClaims) ClaimablePositions(_ context.Context, wallet string) ([]marketdata.ClaimablePosition, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []marketdata.ClaimablePosition{{Mint: "Fees" + wallet, ClaimableSOL: 0.42}}, nil
}

type fakePositions struct {
	list []positions.Position
}

func (f *fakePositions) Positions() []positions.Position { return f.list }

func (f *fakePositions) Performance() positions.Performance {
	return positions.Performance{TotalTrades: 1, Wins: 1, WinRate: 100, TotalPnLSOL: "0.0950"}
}

func newTestServer(t *testing.T, mutate func(*Deps)) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Solana.PrivateKey = "secret-key"
	cfg.General.InstanceID = "ghost-test"

	tracker := smartmoney.NewTracker(smartmoney.DefaultConfig())
	require.NoError(t, tracker.AddWallet(smartmoney.Wallet{Address: "W1", Label: "alpha", WinRate: 0.7}))

	signals := learning.NewStore(learning.DefaultConfig(), nil)
	require.NoError(t, signals.RecordOutcome(context.Background(), []string{scorer.SignalBuyPressure}, 0.02))

	metrics := observability.NewMetrics()
	metrics.ScansTotal.Inc()

	pos := &fakePositions{list: []positions.Position{
		{ID: "a", Mint: "MintA", Status: positions.StatusOpen},
		{ID: "b", Mint: "MintB", Status: positions.StatusClosed},
		{ID: "c", Mint: "MintC", Status: positions.StatusFailed},
	}}

	deps := Deps{
		Health:    observability.NewHealthMonitor(time.Minute),
		Metrics:   observability.NewExporter(metrics.Registry),
		Balance:   fakeBalance{},
		Positions: pos,
		Config:    cfg,
		Wallets:   tracker,
		Scans:     memory.NewScanStore(),
		Signals:   signals,
		DryRun:    true,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewServer("", deps)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	s.deps.Health.Register("rpc", observability.ErrorCheck(func(context.Context) error { return nil }, observability.StatusUnhealthy))
	s.deps.Health.Register("journal", observability.ErrorCheck(func(context.Context) error {
		return errors.New("connection refused")
	}, observability.StatusDegraded))
	s.deps.Health.Check(context.Background())

	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
}

func TestHealth_UnhealthyIs503(t *testing.T) {
	s := newTestServer(t, nil)
	s.deps.Health.Register("rpc", observability.ErrorCheck(func(context.Context) error {
		return errors.New("timeout")
	}, observability.StatusUnhealthy))
	s.deps.Health.Check(context.Background())

	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBalance(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/balance")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "GhostWa11et", body["wallet"])
	assert.Equal(t, "1.2346", body["balance_sol"])
	assert.Equal(t, true, body["dry_run"])

	holdings, ok := body["holdings"].([]any)
	require.True(t, ok)
	require.Len(t, holdings, 1, "only open positions report holdings")
	h := holdings[0].(map[string]any)
	assert.Equal(t, "a", h["position_id"])
	assert.Equal(t, "MintA", h["mint"])
	assert.Equal(t, "1520.5", h["balance"])
}

func TestBalance_ClaimableFees(t *testing.T) {
	body := decode(t, get(t, newTestServer(t, nil), "/api/balance"))
	assert.NotContains(t, body, "claimable")

	s := newTestServer(t, func(d *Deps) { d.Claims = fakeClaims{} })
	body = decode(t, get(t, s, "/api/balance"))
	claims, ok := body["claimable"].([]any)
	require.True(t, ok)
	require.Len(t, claims, 1)
	assert.Equal(t, "FeesGhostWa11et", claims[0].(map[string]any)["mint"])
	assert.Equal(t, 0.42, claims[0].(map[string]any)["claimableSol"])

	s = newTestServer(t, func(d *Deps) { d.Claims = fakeClaims{err: errors.New("api down")} })
	rec := get(t, s, "/api/balance")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decode(t, rec), "claimable")
}

func TestPositions(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		query string
		count float64
		code  int
	}{
		{"", 3, http.StatusOK},
		{"?status=open", 1, http.StatusOK},
		{"?status=closed", 1, http.StatusOK},
		{"?status=failed", 1, http.StatusOK},
		{"?status=bogus", 0, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := get(t, s, "/api/positions"+tt.query)
			require.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, tt.count, decode(t, rec)["count"])
			}
		})
	}
}

func TestPerformance(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/performance")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "0.0950", body["total_pnl_sol"])
	assert.Equal(t, float64(100), body["win_rate"])
}

func TestConfigIsRedacted(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/config")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-key")
	assert.Contains(t, rec.Body.String(), "ghost-test")
}

func TestWalletsAndSignals(t *testing.T) {
	s := newTestServer(t, nil)

	rec := get(t, s, "/api/wallets")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = get(t, s, "/api/signals")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Contains(t, rec.Body.String(), scorer.SignalBuyPressure)
}

func TestLiveScan(t *testing.T) {
	s := newTestServer(t, nil)

	rec := get(t, s, "/api/scan/live")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, s.deps.Scans.SaveScan(context.Background(), storage.ScanSnapshot{
		At:      time.Now(),
		Results: []scorer.Result{{Mint: "MintA", Score: 77, Verdict: scorer.VerdictBuy}},
	}))
	rec = get(t, s, "/api/scan/live")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "MintA")
}

func TestLiveScan_FallsBackToEngine(t *testing.T) {
	s := newTestServer(t, func(d *Deps) {
		d.Scans = nil
		d.LastScan = func() storage.ScanSnapshot {
			return storage.ScanSnapshot{At: time.Now(), Results: []scorer.Result{{Mint: "MintZ"}}}
		}
	})
	rec := get(t, s, "/api/scan/live")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "MintZ")
}

func TestMetrics(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ghost_scans_total 1"))
}

func TestReadOnly(t *testing.T) {
	s := newTestServer(t, nil)
	paths := []string{
		"/api/balance", "/api/positions", "/api/performance", "/api/config",
		"/api/wallets", "/api/scan/live", "/api/signals",
	}
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		for _, path := range paths {
			req := httptest.NewRequest(method, path, strings.NewReader("{}"))
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method+" "+path)
		}
	}
}

func TestMissingDependencies(t *testing.T) {
	s := NewServer("", Deps{})
	for _, path := range []string{"/api/balance", "/api/positions", "/api/performance", "/api/config", "/api/wallets", "/api/signals"} {
		assert.Equal(t, http.StatusServiceUnavailable, get(t, s, path).Code, path)
	}
	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/metrics").Code)
}
