package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.BackoffBase = time.Millisecond
	cfg.RateLimitRPS = 1000
	return New(cfg), &hits
}

func writeEnvelope(w http.ResponseWriter, response any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "response": response})
}

func TestFetch_CachesGETWithinTTL(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []Launch{{Mint: "mint-1", Symbol: "GHOST", LiquidityUSD: 30000}})
	})
	ctx := context.Background()

	first, err := client.RecentLaunches(ctx, 10)
	require.NoError(t, err)
	second, err := client.RecentLaunches(ctx, 10)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), hits.Load())

	stats := client.Stats()
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
	assert.Equal(t, 1, stats.CacheSize)
}

func TestFetch_CacheReturnsIdenticalBytes(t *testing.T) {
	n := 0
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n++
		writeEnvelope(w, map[string]any{"n": n})
	})
	ctx := context.Background()

	a, err := client.do(ctx, "/x", RequestOptions{}, true)
	require.NoError(t, err)
	b, err := client.do(ctx, "/x", RequestOptions{}, true)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, int64(1), hits.Load())
}

func TestFetch_CacheExpires(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []Launch{})
	})
	now := time.Now()
	client.cache.now = func() time.Time { return now }

	_, err := client.RecentLaunches(context.Background(), 5)
	require.NoError(t, err)

	now = now.Add(31 * time.Second)
	_, err = client.RecentLaunches(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, int64(2), hits.Load())
}

func TestFetch_NonGETBypassesCache(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]any{"ok": true})
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := Fetch[map[string]any](ctx, client, "/post", RequestOptions{Method: http.MethodPost, Body: map[string]int{"i": i}})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), hits.Load())
	assert.Equal(t, 0, client.cache.len())
}

func TestFetch_RetriesServerErrorsThenFails(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream exploded"))
	})

	_, err := client.RecentLaunches(context.Background(), 5)
	require.Error(t, err)
	assert.Equal(t, int64(1+3), hits.Load())

	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "upstream exploded")
	assert.Equal(t, int64(3), client.Stats().Retries)
	assert.Equal(t, int64(1), client.Stats().Failures)
}

func TestFetch_RecoversAfterTransientError(t *testing.T) {
	calls := 0
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeEnvelope(w, FeeClaims{Mint: "m", LifetimeFeesSOL: 2.5, ClaimCount: 3})
	})

	fees, err := client.FeeClaims(context.Background(), "m")
	require.NoError(t, err)
	assert.Equal(t, 2.5, fees.LifetimeFeesSOL)
	assert.Equal(t, int64(2), hits.Load())
}

func TestFetch_ClientErrorNotRetried(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":"not found"}`))
	})

	_, err := client.FeeClaims(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, int64(1), hits.Load())

	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.False(t, apiErr.Transient())
}

func TestFetch_SuccessFalseNotRetriedNorCached(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":false,"error":"token not indexed"}`))
	})

	_, err := client.CreatorHistory(context.Background(), "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token not indexed")
	assert.Equal(t, int64(1), hits.Load())
	assert.Equal(t, 0, client.cache.len())
}

func TestFetch_MalformedEnvelopeNotRetried(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	})

	_, err := client.RecentLaunches(context.Background(), 5)
	require.Error(t, err)
	assert.Equal(t, int64(1), hits.Load())
}

func TestFetchRaw_DecodesBareBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"mint":"m","priceSol":0.0001}`))
	})

	snap, err := FetchRaw[MarketSnapshot](context.Background(), client, "/raw", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0.0001, snap.PriceSOL)
}

func TestSwapQuoteAndBuild(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/trade/quote":
			var req QuoteRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, SOLMint, req.InputMint)
			assert.Equal(t, uint64(100_000_000), req.Amount)
			w.Write([]byte(`{"inputMint":"` + SOLMint + `","outputMint":"mint-1","inAmount":"100000000","outAmount":"5000000000","priceImpactPct":0.4,"slippageBps":300}`))
		case "/trade/swap":
			var req SwapBuildRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "wallet-pub", req.UserPublicKey)
			assert.Contains(t, string(req.QuoteResponse), `"outAmount":"5000000000"`)
			w.Write([]byte(`{"transaction":"AQID","lastValidBlockHeight":42}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	quote, err := client.SwapQuote(ctx, QuoteRequest{InputMint: SOLMint, OutputMint: "mint-1", Amount: 100_000_000, SlippageBps: 300})
	require.NoError(t, err)
	assert.Equal(t, "5000000000", quote.OutAmount)

	tx, err := client.BuildSwap(ctx, quote, "wallet-pub")
	require.NoError(t, err)
	assert.Equal(t, "AQID", tx.Transaction)
	assert.Equal(t, uint64(42), tx.LastValidBlockHeight)
}

func TestMarket_BypassesCache(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, MarketSnapshot{Mint: "m", PriceSOL: 0.002, Volume1hUSD: 1200})
	})

	for i := 0; i < 3; i++ {
		snap, err := client.Market(context.Background(), "m")
		require.NoError(t, err)
		assert.Equal(t, 0.002, snap.PriceSOL)
	}
	assert.Equal(t, int64(3), hits.Load())
}

func TestPrice_RejectsZero(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, MarketSnapshot{Mint: "m"})
	})

	_, err := client.Price(context.Background(), "m")
	assert.Error(t, err)
}

func TestAPIKeyHeader(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("x-api-key")
		writeEnvelope(w, []Launch{})
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.APIKey = "k-123"
	_, err := New(cfg).RecentLaunches(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "k-123", got)
}

func TestClaimablePositions(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token-launch/claimable-positions", r.URL.Path)
		require.Equal(t, "GhostWa11et", r.URL.Query().Get("wallet"))
		writeEnvelope(w, []map[string]any{
			{"mint": "MintA", "claimableSol": 0.42},
			{"mint": "MintB", "claimableSol": 0.01},
		})
	})

	claims, err := client.ClaimablePositions(context.Background(), "GhostWa11et")
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, ClaimablePosition{Mint: "MintA", ClaimableSOL: 0.42}, claims[0])
}
