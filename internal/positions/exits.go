package positions

import (
	"math"
	"time"

	"github.com/ghost-trader/ghost/internal/marketdata"
)

// ---------------------------------------------------------------------------
// Exit rules, evaluated in priority order; at most one fires per tick:
// stop loss, dead position, trailing stop, take-profit tiers.
// ---------------------------------------------------------------------------

// TPLevel is a take-profit tier. SellPct is the share of the remaining
// tokens sold; the last tier always closes the position.
type TPLevel struct {
	Multiplier float64 `yaml:"multiplier"`
	SellPct    float64 `yaml:"sell_pct"`
}

// ExitRules configures exit evaluation.
type ExitRules struct {
	StopLossPct         float64       `yaml:"stop_loss_pct"`         // 15 = close at 0.85x
	TrailingActivationX float64       `yaml:"trailing_activation_x"` // peak multiplier arming the trail
	TrailingStopPct     float64       `yaml:"trailing_stop_pct"`     // drop from peak that closes
	DeadPositionAfter   time.Duration `yaml:"dead_position_after"`
	TakeProfit          []TPLevel     `yaml:"take_profit"`
}

// DefaultExitRules returns defaults.
func DefaultExitRules() ExitRules {
	return ExitRules{
		StopLossPct:         15,
		TrailingActivationX: 2.0,
		TrailingStopPct:     10,
		DeadPositionAfter:   8 * time.Hour,
		TakeProfit: []TPLevel{
			{Multiplier: 1.5, SellPct: 33},
			{Multiplier: 2.0, SellPct: 33},
			{Multiplier: 3.0, SellPct: 100},
		},
	}
}

// ExitDecision is the outcome of one evaluation.
type ExitDecision struct {
	Reason  string  // empty when nothing fires
	SellPct float64 // share of remaining tokens to sell
	Full    bool    // closes the position
	Tier    int     // take-profit tier index, -1 otherwise
}

// Fires reports whether the decision sells anything.
func (d ExitDecision) Fires() bool { return d.Reason != "" }

// Evaluate checks p against snap at now. The peak used for the trailing
// stop includes the current multiplier.
func (r ExitRules) Evaluate(p Position, snap marketdata.MarketSnapshot, now time.Time) ExitDecision {
	none := ExitDecision{Tier: -1}
	if p.Status != StatusOpen || p.EntryPriceSOL <= 0 || snap.PriceSOL <= 0 {
		return none
	}
	mult := p.Multiplier(snap.PriceSOL)
	peak := math.Max(p.PeakMultiplier, mult)

	// 1. Stop loss.
	if r.StopLossPct > 0 && mult <= 1-r.StopLossPct/100 {
		return ExitDecision{Reason: ReasonStopLoss, SellPct: 100, Full: true, Tier: -1}
	}

	// 2. Dead position: old, no venue activity and a decaying price.
	if r.DeadPositionAfter > 0 && now.Sub(p.CreatedAt) >= r.DeadPositionAfter {
		noVolume := snap.Volume1hUSD <= 0 && snap.Trades1h == 0
		decaying := snap.PriceChange1hPct < 0 || (p.LastPrice > 0 && snap.PriceSOL < p.LastPrice)
		if noVolume && decaying {
			return ExitDecision{Reason: ReasonDeadPosition, SellPct: 100, Full: true, Tier: -1}
		}
	}

	// 3. Trailing stop, armed once the peak reaches the activation level.
	if r.TrailingActivationX > 0 && peak >= r.TrailingActivationX {
		if mult <= peak*(1-r.TrailingStopPct/100) {
			return ExitDecision{Reason: ReasonTrailingStop, SellPct: 100, Full: true, Tier: -1}
		}
	}

	// 4. Take profit: lowest unrealized tier crossed.
	for i, tier := range r.TakeProfit {
		if i < len(p.TPTiersHit) && p.TPTiersHit[i] {
			continue
		}
		if mult < tier.Multiplier {
			break
		}
		last := i == len(r.TakeProfit)-1
		pct := tier.SellPct
		if last || pct >= 100 {
			pct = 100
		}
		return ExitDecision{
			Reason:  TakeProfitReason(tier.Multiplier),
			SellPct: pct,
			Full:    pct >= 100,
			Tier:    i,
		}
	}

	return none
}
