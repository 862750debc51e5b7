package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ghost-trader/ghost/internal/retry"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ---------------------------------------------------------------------------
// Live RPC Client: real Solana JSON-RPC with rate limiting and 429 retry
// ---------------------------------------------------------------------------

// ErrRateLimited is returned (wrapped) when the endpoint answers HTTP 429.
var ErrRateLimited = errors.New("rpc: rate limited (429)")

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Method  string `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc: %s error %d: %s", e.Method, e.Code, e.Message)
}

// LiveRPCClient connects to a real Solana RPC endpoint.
type LiveRPCClient struct {
	config     RPCConfig
	httpClient *http.Client
	limiter    *rate.Limiter

	// Unique request ID generator.
	nextID atomic.Int64

	// Circuit breaker.
	consecutiveErrors atomic.Int64
	circuitOpen       atomic.Bool

	// Stats.
	requestCount  atomic.Int64
	errorCount    atomic.Int64
	rateLimited   atomic.Int64
	latencySum    atomic.Int64 // cumulative microseconds
	lastRequestAt atomic.Int64
}

const (
	circuitBreakerThreshold = 10 // open after 10 consecutive errors
	circuitBreakerCooldown  = 30 * time.Second
)

// NewLiveRPCClient creates a live Solana RPC client.
func NewLiveRPCClient(config RPCConfig) *LiveRPCClient {
	def := DefaultRPCConfig()
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = def.RetryBackoff
	}
	if config.RateLimitRPS == 0 {
		config.RateLimitRPS = def.RateLimitRPS
	}

	burst := int(config.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	return &LiveRPCClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimitRPS), burst),
	}
}

// Endpoint returns the HTTP endpoint this client talks to.
func (c *LiveRPCClient) Endpoint() string {
	return c.config.Endpoint
}

// rpcRequest is a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// call makes a rate-limited JSON-RPC call and decodes the result into out.
// Only HTTP 429 is retried, with linear backoff; every other failure is
// returned to the caller, which owns its own fallback or polling policy.
func (c *LiveRPCClient) call(ctx context.Context, method string, params []any, out any) error {
	if c.circuitOpen.Load() {
		return fmt.Errorf("rpc: circuit breaker open for %s (too many consecutive errors)", method)
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("rpc: marshal request: %w", err)
	}

	var result json.RawMessage
	policy := retry.Policy{
		Op:         "rpc " + method,
		MaxRetries: c.config.MaxRetries,
		Backoff:    retry.Linear(c.config.RetryBackoff),
		Retryable:  func(err error) bool { return errors.Is(err, ErrRateLimited) },
	}
	err = retry.Do(ctx, policy, func(ctx context.Context, _ int) error {
		r, err := c.post(ctx, method, body)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if len(result) == 0 || string(result) == "null" {
		return fmt.Errorf("rpc: %s returned null result", method)
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("rpc: %s unmarshal result: %w", method, err)
	}
	return nil
}

func (c *LiveRPCClient) post(ctx context.Context, method string, body []byte) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, retry.Permanent(err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rpc: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.errorCount.Add(1)
		c.recordError()
		return nil, fmt.Errorf("rpc: %s http error: %w", method, err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		c.errorCount.Add(1)
		c.recordError()
		return nil, fmt.Errorf("rpc: %s read response: %w", method, err)
	}

	c.requestCount.Add(1)
	c.latencySum.Add(time.Since(start).Microseconds())
	c.lastRequestAt.Store(time.Now().UnixMilli())

	if resp.StatusCode == http.StatusTooManyRequests {
		// Not a circuit-breaker error: the node is healthy, just busy.
		c.rateLimited.Add(1)
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, method)
	}

	if resp.StatusCode != http.StatusOK {
		c.errorCount.Add(1)
		c.recordError()
		return nil, fmt.Errorf("rpc: %s HTTP %d: %s", method, resp.StatusCode, truncate(string(respBody), 256))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		c.errorCount.Add(1)
		c.recordError()
		return nil, fmt.Errorf("rpc: %s unmarshal response: %w", method, err)
	}

	c.resetErrors()
	if rpcResp.Error != nil {
		rpcResp.Error.Method = method
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// recordError increments consecutive errors and opens circuit breaker if needed.
func (c *LiveRPCClient) recordError() {
	count := c.consecutiveErrors.Add(1)
	if count >= circuitBreakerThreshold {
		if c.circuitOpen.CompareAndSwap(false, true) {
			log.Error().Int64("errors", count).Str("endpoint", c.config.Endpoint).
				Msg("rpc: CIRCUIT BREAKER OPEN - too many consecutive errors")
			time.AfterFunc(circuitBreakerCooldown, func() {
				c.circuitOpen.Store(false)
				c.consecutiveErrors.Store(0)
				log.Info().Str("endpoint", c.config.Endpoint).Msg("rpc: circuit breaker reset")
			})
		}
	}
}

// resetErrors resets the consecutive error counter.
func (c *LiveRPCClient) resetErrors() {
	c.consecutiveErrors.Store(0)
}

// ---------------------------------------------------------------------------
// RPCClient interface implementation
// ---------------------------------------------------------------------------

// SendTransaction submits a signed transaction.
func (c *LiveRPCClient) SendTransaction(ctx context.Context, txBase64 string) (Signature, error) {
	var sig string
	err := c.call(ctx, "sendTransaction", []any{
		txBase64,
		map[string]any{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": "confirmed",
			"maxRetries":          0,
		},
	}, &sig)
	if err != nil {
		return "", err
	}
	return Signature(sig), nil
}

// GetSignatureStatuses checks confirmation status of signatures.
func (c *LiveRPCClient) GetSignatureStatuses(ctx context.Context, sigs ...Signature) ([]*SignatureStatus, error) {
	strs := make([]string, len(sigs))
	for i, s := range sigs {
		strs[i] = string(s)
	}

	var resp struct {
		Value []*SignatureStatus `json:"value"`
	}
	if err := c.call(ctx, "getSignatureStatuses", []any{
		strs,
		map[string]any{"searchTransactionHistory": false},
	}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Value) != len(sigs) {
		return nil, fmt.Errorf("rpc: getSignatureStatuses returned %d entries for %d signatures", len(resp.Value), len(sigs))
	}
	return resp.Value, nil
}

// GetBalance fetches the lamport balance of an account.
func (c *LiveRPCClient) GetBalance(ctx context.Context, account Pubkey) (uint64, error) {
	var resp struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []any{string(account), map[string]any{"commitment": "confirmed"}}, &resp); err != nil {
		return 0, err
	}
	return resp.Value, nil
}

// GetLatestBlockhash fetches the most recent blockhash.
func (c *LiveRPCClient) GetLatestBlockhash(ctx context.Context) (*Blockhash, error) {
	var resp struct {
		Value Blockhash `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", []any{map[string]any{"commitment": "confirmed"}}, &resp); err != nil {
		return nil, err
	}
	if resp.Value.Blockhash == "" {
		return nil, fmt.Errorf("rpc: getLatestBlockhash returned empty blockhash")
	}
	return &resp.Value, nil
}

// GetTokenAccountsByOwner lists SPL token accounts via jsonParsed encoding.
func (c *LiveRPCClient) GetTokenAccountsByOwner(ctx context.Context, owner, mint Pubkey) ([]TokenAccount, error) {
	filter := map[string]any{"programId": string(TokenProgramID)}
	if mint != "" {
		filter = map[string]any{"mint": string(mint)}
	}

	var resp struct {
		Value []struct {
			Pubkey  string `json:"pubkey"`
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							Mint        string      `json:"mint"`
							Owner       string      `json:"owner"`
							TokenAmount TokenAmount `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getTokenAccountsByOwner", []any{
		string(owner),
		filter,
		map[string]any{"encoding": "jsonParsed"},
	}, &resp); err != nil {
		return nil, err
	}

	accounts := make([]TokenAccount, 0, len(resp.Value))
	for _, v := range resp.Value {
		info := v.Account.Data.Parsed.Info
		accounts = append(accounts, TokenAccount{
			Address: Pubkey(v.Pubkey),
			Mint:    Pubkey(info.Mint),
			Owner:   Pubkey(info.Owner),
			Amount:  info.TokenAmount,
		})
	}
	return accounts, nil
}

// GetTokenSupply fetches the supply and decimals of a mint.
func (c *LiveRPCClient) GetTokenSupply(ctx context.Context, mint Pubkey) (*TokenAmount, error) {
	var resp struct {
		Value TokenAmount `json:"value"`
	}
	if err := c.call(ctx, "getTokenSupply", []any{string(mint)}, &resp); err != nil {
		return nil, err
	}
	return &resp.Value, nil
}

// GetTokenLargestAccounts returns the largest token accounts for a mint.
func (c *LiveRPCClient) GetTokenLargestAccounts(ctx context.Context, mint Pubkey) ([]LargestAccount, error) {
	var resp struct {
		Value []struct {
			Address string `json:"address"`
			TokenAmount
		} `json:"value"`
	}
	if err := c.call(ctx, "getTokenLargestAccounts", []any{string(mint)}, &resp); err != nil {
		return nil, err
	}

	out := make([]LargestAccount, 0, len(resp.Value))
	for _, v := range resp.Value {
		out = append(out, LargestAccount{Address: Pubkey(v.Address), Amount: v.TokenAmount})
	}
	return out, nil
}

// GetTransaction fetches the balance changes of a confirmed transaction.
func (c *LiveRPCClient) GetTransaction(ctx context.Context, sig Signature) (*TransactionMeta, error) {
	var raw struct {
		TransactionMeta
		Transaction struct {
			Message struct {
				AccountKeys []struct {
					Pubkey string `json:"pubkey"`
				} `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
	}
	if err := c.call(ctx, "getTransaction", []any{
		string(sig),
		map[string]any{
			"encoding":                       "jsonParsed",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}, &raw); err != nil {
		return nil, err
	}

	tx := raw.TransactionMeta
	tx.AccountKeys = make([]Pubkey, len(raw.Transaction.Message.AccountKeys))
	for i, k := range raw.Transaction.Message.AccountKeys {
		tx.AccountKeys[i] = Pubkey(k.Pubkey)
	}
	return &tx, nil
}

// Health checks the RPC endpoint health.
func (c *LiveRPCClient) Health(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.call(healthCtx, "getHealth", nil, nil)
}

// RPCStats returns RPC client statistics.
type RPCStats struct {
	Endpoint      string `json:"endpoint"`
	RequestCount  int64  `json:"request_count"`
	ErrorCount    int64  `json:"error_count"`
	RateLimited   int64  `json:"rate_limited"`
	AvgLatencyUs  int64  `json:"avg_latency_us"`
	LastRequestAt int64  `json:"last_request_at"`
	CircuitOpen   bool   `json:"circuit_open"`
	ConsecErrors  int64  `json:"consecutive_errors"`
}

func (c *LiveRPCClient) Stats() RPCStats {
	reqCount := c.requestCount.Load()
	avgLatency := int64(0)
	if reqCount > 0 {
		avgLatency = c.latencySum.Load() / reqCount
	}
	return RPCStats{
		Endpoint:      c.config.Endpoint,
		RequestCount:  reqCount,
		ErrorCount:    c.errorCount.Load(),
		RateLimited:   c.rateLimited.Load(),
		AvgLatencyUs:  avgLatency,
		LastRequestAt: c.lastRequestAt.Load(),
		CircuitOpen:   c.circuitOpen.Load(),
		ConsecErrors:  c.consecutiveErrors.Load(),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
