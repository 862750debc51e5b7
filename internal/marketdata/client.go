package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ghost-trader/ghost/internal/retry"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ---------------------------------------------------------------------------
// Market Data Client: cached, retrying access to the token-launch API and
// the swap-quote API
// ---------------------------------------------------------------------------

// Config configures the market data client.
type Config struct {
	BaseURL      string        `yaml:"base_url"`
	SwapBaseURL  string        `yaml:"swap_base_url"`
	APIKey       string        `yaml:"api_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	SwapTimeout  time.Duration `yaml:"swap_timeout"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	CacheSize    int           `yaml:"cache_size"`
	MaxRetries   int           `yaml:"max_retries"`
	BackoffBase  time.Duration `yaml:"backoff_base"` // retry n waits BackoffBase * 2^n
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
	MaxInFlight  int64         `yaml:"max_in_flight"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:  10 * time.Second,
		SwapTimeout:  30 * time.Second,
		CacheTTL:     30 * time.Second,
		CacheSize:    500,
		MaxRetries:   3,
		BackoffBase:  time.Second,
		RateLimitRPS: 5,
		MaxInFlight:  4,
	}
}

// APIError is a non-2xx response or a success:false envelope.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("marketdata: %s: api error: %s", e.Endpoint, e.Message)
	}
	return fmt.Sprintf("marketdata: %s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Transient reports whether the error may succeed on retry.
func (e *APIError) Transient() bool {
	return e.StatusCode >= 500
}

// RequestOptions tunes a single call.
type RequestOptions struct {
	Method  string        // default GET
	Body    any           // JSON-encoded for non-GET requests
	Timeout time.Duration // per attempt; default Config.ReadTimeout
	NoCache bool
}

// Client is the market data client. It is safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	inFlight   *semaphore.Weighted
	cache      *responseCache

	requests    atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	retries     atomic.Int64
	failures    atomic.Int64
}

// New creates a market data client.
func New(config Config) *Client {
	def := DefaultConfig()
	if config.ReadTimeout == 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.SwapTimeout == 0 {
		config.SwapTimeout = def.SwapTimeout
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = def.CacheTTL
	}
	if config.CacheSize == 0 {
		config.CacheSize = def.CacheSize
	}
	if config.BackoffBase == 0 {
		config.BackoffBase = def.BackoffBase
	}
	if config.RateLimitRPS == 0 {
		config.RateLimitRPS = def.RateLimitRPS
	}
	if config.MaxInFlight == 0 {
		config.MaxInFlight = def.MaxInFlight
	}
	if config.SwapBaseURL == "" {
		config.SwapBaseURL = config.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	config.SwapBaseURL = strings.TrimRight(config.SwapBaseURL, "/")

	burst := int(config.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimitRPS), burst),
		inFlight:   semaphore.NewWeighted(config.MaxInFlight),
		cache:      newResponseCache(config.CacheTTL, config.CacheSize),
	}
}

// Fetch calls endpoint and decodes the response field of the
// {success, response, error} envelope into T.
func Fetch[T any](ctx context.Context, c *Client, endpoint string, opts RequestOptions) (T, error) {
	var out T
	body, err := c.do(ctx, endpoint, opts, true)
	if err != nil {
		return out, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return out, fmt.Errorf("marketdata: %s: decode envelope: %w", endpoint, err)
	}
	if len(env.Response) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(env.Response, &out); err != nil {
		return out, fmt.Errorf("marketdata: %s: decode response: %w", endpoint, err)
	}
	return out, nil
}

// FetchRaw calls endpoint and decodes the whole body into T.
func FetchRaw[T any](ctx context.Context, c *Client, endpoint string, opts RequestOptions) (T, error) {
	var out T
	body, err := c.do(ctx, endpoint, opts, false)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("marketdata: %s: decode body: %w", endpoint, err)
	}
	return out, nil
}

// do performs the request with cache, rate limit and bounded retry. It
// returns the raw response body.
func (c *Client) do(ctx context.Context, endpoint string, opts RequestOptions, withEnvelope bool) ([]byte, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	url := c.resolve(endpoint)
	cacheable := method == http.MethodGet && !opts.NoCache

	if cacheable {
		if body, ok := c.cache.get(url); ok {
			c.cacheHits.Add(1)
			return body, nil
		}
		c.cacheMisses.Add(1)
	}

	var payload []byte
	if opts.Body != nil && method != http.MethodGet {
		var err error
		payload, err = json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("marketdata: %s: marshal body: %w", endpoint, err)
		}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.config.ReadTimeout
	}

	var body []byte
	policy := retry.Policy{
		Op:         "marketdata " + method + " " + endpoint,
		MaxRetries: c.config.MaxRetries,
		Backoff:    retry.Exponential(c.config.BackoffBase),
	}
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			c.retries.Add(1)
		}
		b, err := c.attempt(ctx, method, url, endpoint, payload, timeout, withEnvelope)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		c.failures.Add(1)
		log.Warn().
			Err(err).
			Str("endpoint", endpoint).
			Str("method", method).
			Msg("marketdata: request failed")
		return nil, err
	}

	if cacheable {
		c.cache.put(url, body)
	}
	return body, nil
}

// attempt performs one HTTP round trip and classifies the outcome.
func (c *Client) attempt(ctx context.Context, method, url, endpoint string, payload []byte, timeout time.Duration, withEnvelope bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, retry.Permanent(err)
	}
	if err := c.inFlight.Acquire(ctx, 1); err != nil {
		return nil, retry.Permanent(err)
	}
	defer c.inFlight.Release(1)

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marketdata: %s: create request: %w", endpoint, err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("x-api-key", c.config.APIKey)
	}

	c.requests.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("marketdata: %s: http error: %w", endpoint, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("marketdata: %s: read body: %w", endpoint, err)
	}

	if resp.StatusCode >= 500 {
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: excerpt(body)}
	}
	if resp.StatusCode >= 400 {
		return nil, retry.Permanent(&APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: excerpt(body)})
	}

	if withEnvelope {
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, retry.Permanent(fmt.Errorf("marketdata: %s: malformed envelope: %w", endpoint, err))
		}
		if !env.Success {
			msg := env.Error
			if msg == "" {
				msg = "success=false"
			}
			return nil, retry.Permanent(&APIError{Endpoint: endpoint, Message: msg})
		}
	}

	return body, nil
}

func (c *Client) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.config.BaseURL + endpoint
}

func excerpt(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// IsAPIError reports whether err carries an APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ClientStats returns market data client statistics.
type ClientStats struct {
	Requests    int64 `json:"requests"`
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	CacheSize   int   `json:"cache_size"`
	Retries     int64 `json:"retries"`
	Failures    int64 `json:"failures"`
}

func (c *Client) Stats() ClientStats {
	return ClientStats{
		Requests:    c.requests.Load(),
		CacheHits:   c.cacheHits.Load(),
		CacheMisses: c.cacheMisses.Load(),
		CacheSize:   c.cache.len(),
		Retries:     c.retries.Load(),
		Failures:    c.failures.Load(),
	}
}
