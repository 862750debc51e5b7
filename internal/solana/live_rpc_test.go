package solana

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

func newTestRPCServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *LiveRPCClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	config := RPCConfig{
		Endpoint:     server.URL,
		Timeout:      5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		RateLimitRPS: 1000,
	}
	client := NewLiveRPCClient(config)
	t.Cleanup(func() { server.Close() })
	return server, client
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result":  result,
	})
}

func TestLiveRPC_Health(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, "ok")
	})

	err := client.Health(context.Background())
	assert.NoError(t, err)

	stats := client.Stats()
	assert.Equal(t, int64(1), stats.RequestCount)
}

func TestLiveRPC_SendTransaction(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sendTransaction", req.Method)
		assert.Equal(t, "AQID", req.Params[0])
		writeResult(w, "5sig")
	})

	sig, err := client.SendTransaction(context.Background(), "AQID")
	require.NoError(t, err)
	assert.Equal(t, Signature("5sig"), sig)
}

func TestLiveRPC_RetriesRateLimitWithBound(t *testing.T) {
	var hits atomic.Int64
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.SendTransaction(context.Background(), "AQID")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int64(4), hits.Load())
	assert.Equal(t, int64(4), client.Stats().RateLimited)
	assert.False(t, client.Stats().CircuitOpen)
}

func TestLiveRPC_RateLimitThenSuccess(t *testing.T) {
	var hits atomic.Int64
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeResult(w, "sig-after-429")
	})

	sig, err := client.SendTransaction(context.Background(), "AQID")
	require.NoError(t, err)
	assert.Equal(t, Signature("sig-after-429"), sig)
	assert.Equal(t, int64(3), hits.Load())
}

func TestLiveRPC_ServerErrorNotRetried(t *testing.T) {
	var hits atomic.Int64
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetBalance(context.Background(), "wallet")
	require.Error(t, err)
	assert.Equal(t, int64(1), hits.Load())
}

func TestLiveRPC_RPCErrorReturned(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]any{"code": -32002, "message": "Transaction simulation failed"},
		})
	})

	_, err := client.SendTransaction(context.Background(), "AQID")
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32002, rpcErr.Code)
	assert.Equal(t, "sendTransaction", rpcErr.Method)
}

func TestLiveRPC_GetSignatureStatuses(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{
			"context": map[string]any{"slot": 10},
			"value": []any{
				map[string]any{"slot": 9, "confirmations": nil, "err": nil, "confirmationStatus": "finalized"},
				nil,
				map[string]any{"slot": 9, "confirmations": 1, "err": map[string]any{"InstructionError": []any{0, "Custom"}}, "confirmationStatus": "confirmed"},
			},
		})
	})

	statuses, err := client.GetSignatureStatuses(context.Background(), "a", "b", "c")
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	assert.True(t, statuses[0].Confirmed())
	assert.False(t, statuses[0].Failed())
	assert.Nil(t, statuses[1])
	assert.True(t, statuses[2].Failed())
}

func TestLiveRPC_GetBalanceAndBlockhash(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		switch req.Method {
		case "getBalance":
			writeResult(w, map[string]any{"value": 2_500_000_000})
		case "getLatestBlockhash":
			writeResult(w, map[string]any{"value": map[string]any{"blockhash": "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N", "lastValidBlockHeight": 3090}})
		}
	})

	lamports, err := client.GetBalance(context.Background(), "wallet")
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000_000), lamports)
	assert.Equal(t, "2.5", LamportsToSOL(lamports).String())

	bh, err := client.GetLatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3090), bh.LastValidBlockHeight)
}

func TestLiveRPC_TokenQueries(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		switch req.Method {
		case "getTokenAccountsByOwner":
			writeResult(w, map[string]any{"value": []any{
				map[string]any{
					"pubkey": "acct1",
					"account": map[string]any{"data": map[string]any{"parsed": map[string]any{"info": map[string]any{
						"mint":  "mint1",
						"owner": "wallet",
						"tokenAmount": map[string]any{
							"amount": "1500000", "decimals": 6, "uiAmount": 1.5, "uiAmountString": "1.5",
						},
					}}}},
				},
			}})
		case "getTokenSupply":
			writeResult(w, map[string]any{"value": map[string]any{"amount": "1000000000000", "decimals": 9, "uiAmount": 1000.0, "uiAmountString": "1000"}})
		case "getTokenLargestAccounts":
			writeResult(w, map[string]any{"value": []any{
				map[string]any{"address": "holder1", "amount": "500", "decimals": 9, "uiAmount": 0.0000005, "uiAmountString": "0.0000005"},
			}})
		}
	})
	ctx := context.Background()

	accts, err := client.GetTokenAccountsByOwner(ctx, "wallet", "")
	require.NoError(t, err)
	require.Len(t, accts, 1)
	assert.Equal(t, Pubkey("mint1"), accts[0].Mint)
	assert.Equal(t, uint8(6), accts[0].Amount.Decimals)

	supply, err := client.GetTokenSupply(ctx, "mint1")
	require.NoError(t, err)
	assert.Equal(t, uint8(9), supply.Decimals)

	largest, err := client.GetTokenLargestAccounts(ctx, "mint1")
	require.NoError(t, err)
	require.Len(t, largest, 1)
	assert.Equal(t, Pubkey("holder1"), largest[0].Address)
	assert.Equal(t, "500", largest[0].Amount.Amount)
}

func TestLiveRPC_GetTransaction(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{
			"slot": 77,
			"meta": map[string]any{
				"err":          nil,
				"preBalances":  []uint64{3_000_000_000, 0},
				"postBalances": []uint64{1_999_000_000, 0},
				"preTokenBalances": []any{},
				"postTokenBalances": []any{
					map[string]any{"accountIndex": 1, "mint": "mint1", "owner": "wallet", "uiTokenAmount": map[string]any{"amount": "100", "decimals": 0, "uiAmount": 100.0, "uiAmountString": "100"}},
				},
			},
			"transaction": map[string]any{"message": map[string]any{"accountKeys": []any{
				map[string]any{"pubkey": "wallet", "signer": true},
				map[string]any{"pubkey": "ata", "signer": false},
			}}},
		})
	})

	tx, err := client.GetTransaction(context.Background(), "sig")
	require.NoError(t, err)
	assert.Equal(t, uint64(77), tx.Slot)
	assert.Equal(t, []Pubkey{"wallet", "ata"}, tx.AccountKeys)
	require.Len(t, tx.Meta.PostTokenBalances, 1)
	assert.Equal(t, "mint1", tx.Meta.PostTokenBalances[0].Mint)
}

func TestLiveRPC_NullResultIsError(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, nil)
	})

	_, err := client.GetTransaction(context.Background(), "unknown")
	assert.ErrorContains(t, err, "null result")
}

func TestLiveRPC_CircuitBreakerOpens(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < circuitBreakerThreshold; i++ {
		_, _ = client.GetBalance(context.Background(), "wallet")
	}
	assert.True(t, client.Stats().CircuitOpen)

	_, err := client.GetBalance(context.Background(), "wallet")
	assert.ErrorContains(t, err, "circuit breaker open")
}
