package marketdata

import (
	"encoding/json"
	"time"
)

// envelope is the token-launch API response wrapper.
type envelope struct {
	Success  bool            `json:"success"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Launch is a newly created token observed by the scan loop.
type Launch struct {
	Mint              string  `json:"mint"`
	Name              string  `json:"name"`
	Symbol            string  `json:"symbol"`
	Creator           string  `json:"creator"`
	AgeSeconds        int64   `json:"ageSeconds"`
	MarketCapUSD      float64 `json:"marketCapUsd"`
	LiquidityUSD      float64 `json:"liquidityUsd"`
	Volume24hUSD      float64 `json:"volume24hUsd"`
	BuyCount24h       int     `json:"buyCount24h"`
	SellCount24h      int     `json:"sellCount24h"`
	HolderCount       int     `json:"holderCount"`
	TopHolderPct      float64 `json:"topHolderPct"`
	PriceChange24hPct float64 `json:"priceChange24hPct"`
	PriceSOL          float64 `json:"priceSol"`
	LifetimeFeesSOL   float64 `json:"lifetimeFeesSol"`
}

// FeeClaims is the per-mint fee-claim history.
type FeeClaims struct {
	Mint            string  `json:"mint"`
	LifetimeFeesSOL float64 `json:"lifetimeFeesSol"`
	ClaimCount      int     `json:"claimCount"`
	LastClaimAt     int64   `json:"lastClaimAt"`
}

// CreatorHistory summarizes previous launches by a creator.
type CreatorHistory struct {
	Creator        string `json:"creator"`
	TokensLaunched int    `json:"tokensLaunched"`
	RugCount       int    `json:"rugCount"`
}

// ClaimablePosition is a fee position the creator can still claim.
type ClaimablePosition struct {
	Mint         string  `json:"mint"`
	ClaimableSOL float64 `json:"claimableSol"`
}

// MarketSnapshot is the current price and activity for a mint, used by
// the position loop.
type MarketSnapshot struct {
	Mint             string  `json:"mint"`
	PriceSOL         float64 `json:"priceSol"`
	Volume1hUSD      float64 `json:"volume1hUsd"`
	PriceChange1hPct float64 `json:"priceChange1hPct"`
	Trades1h         int     `json:"trades1h"`
}

// QuoteRequest asks for a swap route. Amount is in the input mint's
// smallest unit.
type QuoteRequest struct {
	InputMint   string `json:"inputMint"`
	OutputMint  string `json:"outputMint"`
	Amount      uint64 `json:"amount"`
	SlippageBps int    `json:"slippageBps"`
}

// Quote is a swap route. Raw keeps the upstream body for the build call.
type Quote struct {
	InputMint      string          `json:"inputMint"`
	OutputMint     string          `json:"outputMint"`
	InAmount       string          `json:"inAmount"`
	OutAmount      string          `json:"outAmount"`
	MinOutAmount   string          `json:"minOutAmount"`
	PriceImpactPct float64         `json:"priceImpactPct"`
	SlippageBps    int             `json:"slippageBps"`
	Raw            json.RawMessage `json:"-"`
}

// SwapBuildRequest turns a quote into an unsigned transaction.
type SwapBuildRequest struct {
	QuoteResponse json.RawMessage `json:"quoteResponse"`
	UserPublicKey string          `json:"userPublicKey"`
	PriorityFee   uint64          `json:"computeUnitPriceMicroLamports,omitempty"`
}

// SwapTransaction is an unsigned, base64 encoded transaction.
type SwapTransaction struct {
	Transaction          string `json:"transaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Age returns the launch age as a duration.
func (l Launch) Age() time.Duration {
	return time.Duration(l.AgeSeconds) * time.Second
}
