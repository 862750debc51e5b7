package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// SOLMint is the wrapped SOL mint used as the quote currency.
const SOLMint = "So11111111111111111111111111111111111111112"

// RecentLaunches returns the most recent token launches.
func (c *Client) RecentLaunches(ctx context.Context, limit int) ([]Launch, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	return Fetch[[]Launch](ctx, c, "/launches/recent?"+q.Encode(), RequestOptions{})
}

// FeeClaims returns the lifetime fee-claim history of a mint.
func (c *Client) FeeClaims(ctx context.Context, mint string) (*FeeClaims, error) {
	q := url.Values{}
	q.Set("tokenMint", mint)
	fees, err := Fetch[FeeClaims](ctx, c, "/token-launch/lifetime-fees?"+q.Encode(), RequestOptions{})
	if err != nil {
		return nil, err
	}
	return &fees, nil
}

// CreatorHistory returns the launch history of a token's creator.
func (c *Client) CreatorHistory(ctx context.Context, mint string) (*CreatorHistory, error) {
	q := url.Values{}
	q.Set("tokenMint", mint)
	hist, err := Fetch[CreatorHistory](ctx, c, "/token-launch/creator?"+q.Encode(), RequestOptions{})
	if err != nil {
		return nil, err
	}
	return &hist, nil
}

// ClaimablePositions returns unclaimed fee positions for a wallet.
func (c *Client) ClaimablePositions(ctx context.Context, wallet string) ([]ClaimablePosition, error) {
	q := url.Values{}
	q.Set("wallet", wallet)
	return Fetch[[]ClaimablePosition](ctx, c, "/token-launch/claimable-positions?"+q.Encode(), RequestOptions{})
}

// Market returns the current price and activity of a mint. Exit
// evaluation needs fresh data, so the cache is bypassed.
func (c *Client) Market(ctx context.Context, mint string) (*MarketSnapshot, error) {
	snap, err := Fetch[MarketSnapshot](ctx, c, "/tokens/"+url.PathEscape(mint)+"/market", RequestOptions{NoCache: true})
	if err != nil {
		return nil, err
	}
	if snap.PriceSOL <= 0 {
		return nil, fmt.Errorf("marketdata: zero/negative price for %s", mint)
	}
	return &snap, nil
}

// Price returns the current SOL price of a mint.
func (c *Client) Price(ctx context.Context, mint string) (float64, error) {
	snap, err := c.Market(ctx, mint)
	if err != nil {
		return 0, err
	}
	return snap.PriceSOL, nil
}

// SwapQuote fetches a swap route from the swap-quote API.
func (c *Client) SwapQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	raw, err := FetchRaw[json.RawMessage](ctx, c, c.config.SwapBaseURL+"/trade/quote", RequestOptions{
		Method:  http.MethodPost,
		Body:    req,
		Timeout: c.config.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}

	var quote Quote
	if err := json.Unmarshal(raw, &quote); err != nil {
		return nil, fmt.Errorf("marketdata: parse quote for %s: %w", req.OutputMint, err)
	}
	if quote.OutAmount == "" || quote.OutAmount == "0" {
		return nil, fmt.Errorf("marketdata: empty quote for %s -> %s", req.InputMint, req.OutputMint)
	}
	quote.Raw = raw
	return &quote, nil
}

// BuildSwap turns a quote into an unsigned transaction for the wallet.
func (c *Client) BuildSwap(ctx context.Context, quote *Quote, userPublicKey string) (*SwapTransaction, error) {
	tx, err := FetchRaw[SwapTransaction](ctx, c, c.config.SwapBaseURL+"/trade/swap", RequestOptions{
		Method: http.MethodPost,
		Body: SwapBuildRequest{
			QuoteResponse: quote.Raw,
			UserPublicKey: userPublicKey,
		},
		Timeout: c.config.SwapTimeout,
	})
	if err != nil {
		return nil, err
	}
	if tx.Transaction == "" {
		return nil, fmt.Errorf("marketdata: swap build returned no transaction for %s", quote.OutputMint)
	}
	return &tx, nil
}
