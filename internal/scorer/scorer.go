// Package scorer turns a launch plus its market context into a score, an
// explanation and a BUY/PASS verdict. Scoring performs no I/O.
package scorer

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/ghost-trader/ghost/internal/marketdata"
	"github.com/ghost-trader/ghost/internal/smartmoney"
)

// ---------------------------------------------------------------------------
// Multi-factor scoring
// Base axes (100): vol/mcap 25 + buy/sell 25 + momentum 20 + liquidity 15 +
// age 15. Bonuses: fee claims 10, smart money 15, trusted bot 15, holders 5,
// learned ±10. Final score clamped to [0,150].
// ---------------------------------------------------------------------------

// Verdict is the scorer's decision for a candidate.
type Verdict string

const (
	VerdictBuy  Verdict = "BUY"
	VerdictPass Verdict = "PASS"
)

// MaxScore is the upper clamp of a final score.
const MaxScore = 150

// Machine-readable signal names credited by the learning store.
const (
	SignalHighVolumeRatio = "high_volume_ratio"
	SignalBuyPressure     = "buy_pressure"
	SignalMomentum        = "positive_momentum"
	SignalDeepLiquidity   = "deep_liquidity"
	SignalEarlyEntry      = "early_entry"
	SignalFeeClaims       = "fee_claims"
	SignalSmartMoney      = "smart_money"
	SignalTrustedBot      = "trusted_bot"
	SignalHolderBase      = "holder_base"
	SignalCleanCreator    = "clean_creator"
)

// Adjuster supplies learned adjustments for a set of signals.
type Adjuster interface {
	Adjustments(signals []string) int
}

// Config configures thresholds. Zero fields take defaults.
type Config struct {
	BuyThreshold      float64 `yaml:"buy_threshold"`       // default 55
	MaxTopHolderPct   float64 `yaml:"max_top_holder_pct"`  // red flag above, default 50
	LiquidityFloorUSD float64 `yaml:"liquidity_floor_usd"` // red flag below, default 5000
	MinLiquidityUSD   float64 `yaml:"min_liquidity_usd"`   // "deep" liquidity, default 25000
	MinBuySellRatio   float64 `yaml:"min_buy_sell_ratio"`  // default 1.2
	MinHolderCount    int     `yaml:"min_holder_count"`    // default 100
	MaxLearned        int     `yaml:"max_learned"`         // default 10
}

// DefaultConfig returns defaults.
func DefaultConfig() Config {
	return Config{
		BuyThreshold:      55,
		MaxTopHolderPct:   50,
		LiquidityFloorUSD: 5000,
		MinLiquidityUSD:   25000,
		MinBuySellRatio:   1.2,
		MinHolderCount:    100,
		MaxLearned:        10,
	}
}

// Input is everything scoring needs for one candidate.
type Input struct {
	Launch           marketdata.Launch          `json:"launch"`
	FeeClaims        *marketdata.FeeClaims      `json:"fee_claims,omitempty"`
	Creator          *marketdata.CreatorHistory `json:"creator,omitempty"`
	SmartMoney       smartmoney.Signal          `json:"smart_money"`
	TrustedBotActive bool                       `json:"trusted_bot_active"`
}

// Breakdown is the per-axis contribution to a score.
type Breakdown struct {
	VolumeRatio float64 `json:"volume_ratio"`
	BuyPressure float64 `json:"buy_pressure"`
	Momentum    float64 `json:"momentum"`
	Liquidity   float64 `json:"liquidity"`
	Age         float64 `json:"age"`
	FeeClaims   float64 `json:"fee_claims"`
	SmartMoney  float64 `json:"smart_money"`
	TrustedBot  float64 `json:"trusted_bot"`
	Holders     float64 `json:"holders"`
	Learned     float64 `json:"learned"`
}

// Result is the explained outcome of scoring a candidate.
type Result struct {
	Mint      string    `json:"mint"`
	Symbol    string    `json:"symbol"`
	Score     float64   `json:"score"`
	Verdict   Verdict   `json:"verdict"`
	Reasons   []string  `json:"reasons"`
	RedFlags  []string  `json:"red_flags"`
	Signals   []string  `json:"signals"`
	Breakdown Breakdown `json:"breakdown"`
}

// Scorer scores candidates. Safe for concurrent use if its Adjuster is.
type Scorer struct {
	config   Config
	adjuster Adjuster
}

// New creates a scorer. adjuster may be nil.
func New(config Config, adjuster Adjuster) *Scorer {
	def := DefaultConfig()
	if config.BuyThreshold <= 0 {
		config.BuyThreshold = def.BuyThreshold
	}
	if config.MaxTopHolderPct <= 0 {
		config.MaxTopHolderPct = def.MaxTopHolderPct
	}
	if config.LiquidityFloorUSD <= 0 {
		config.LiquidityFloorUSD = def.LiquidityFloorUSD
	}
	if config.MinLiquidityUSD <= 0 {
		config.MinLiquidityUSD = def.MinLiquidityUSD
	}
	if config.MinBuySellRatio <= 0 {
		config.MinBuySellRatio = def.MinBuySellRatio
	}
	if config.MinHolderCount <= 0 {
		config.MinHolderCount = def.MinHolderCount
	}
	if config.MaxLearned <= 0 {
		config.MaxLearned = def.MaxLearned
	}
	return &Scorer{config: config, adjuster: adjuster}
}

// Config returns the effective thresholds.
func (s *Scorer) Config() Config { return s.config }

// Score evaluates one candidate.
func (s *Scorer) Score(in Input) Result {
	l := in.Launch
	r := Result{Mint: l.Mint, Symbol: l.Symbol}

	r.RedFlags = s.redFlags(in)

	// Axis 1: volume / market cap (25).
	if l.MarketCapUSD > 0 {
		ratio := l.Volume24hUSD / l.MarketCapUSD
		switch {
		case ratio >= 1.0:
			r.Breakdown.VolumeRatio = 25
		case ratio >= 0.5:
			r.Breakdown.VolumeRatio = 20
		case ratio >= 0.25:
			r.Breakdown.VolumeRatio = 12
		case ratio >= 0.1:
			r.Breakdown.VolumeRatio = 6
		}
		if ratio >= 0.5 {
			r.add(SignalHighVolumeRatio, fmt.Sprintf("volume/mcap %.2f", ratio))
		}
	}

	// Axis 2: buy / sell pressure (25).
	sells := l.SellCount24h
	if sells < 1 {
		sells = 1
	}
	bs := float64(l.BuyCount24h) / float64(sells)
	switch {
	case bs >= 3:
		r.Breakdown.BuyPressure = 25
	case bs >= 2:
		r.Breakdown.BuyPressure = 20
	case bs >= s.config.MinBuySellRatio:
		r.Breakdown.BuyPressure = 12
	case bs >= 1:
		r.Breakdown.BuyPressure = 5
	}
	if bs >= s.config.MinBuySellRatio {
		r.add(SignalBuyPressure, fmt.Sprintf("buy/sell %.2f", bs))
	}

	// Axis 3: 24h momentum (20).
	pc := l.PriceChange24hPct
	switch {
	case pc > 300:
		r.Breakdown.Momentum = 8 // overextended
	case pc >= 20:
		r.Breakdown.Momentum = 20
		r.add(SignalMomentum, fmt.Sprintf("momentum +%.0f%%", pc))
	case pc >= 0:
		r.Breakdown.Momentum = 10
	case pc >= -20:
		r.Breakdown.Momentum = 3
	}

	// Axis 4: liquidity depth (15).
	liq := l.LiquidityUSD
	switch {
	case liq >= 100_000:
		r.Breakdown.Liquidity = 15
	case liq >= s.config.MinLiquidityUSD:
		r.Breakdown.Liquidity = 12
	case liq >= 10_000:
		r.Breakdown.Liquidity = 6
	case liq >= s.config.LiquidityFloorUSD:
		r.Breakdown.Liquidity = 2
	}
	if liq >= s.config.MinLiquidityUSD {
		r.add(SignalDeepLiquidity, fmt.Sprintf("liquidity $%.0f", liq))
	}

	// Axis 5: age / rug risk (15).
	age := l.Age().Minutes()
	switch {
	case age < 5:
		r.Breakdown.Age = 5
	case age <= 60:
		r.Breakdown.Age = 15
		r.add(SignalEarlyEntry, fmt.Sprintf("early entry, %.0fm old", age))
	case age <= 360:
		r.Breakdown.Age = 10
	case age <= 1440:
		r.Breakdown.Age = 6
	default:
		r.Breakdown.Age = 3
	}
	if c := in.Creator; c != nil && c.TokensLaunched > 0 && c.RugCount == 0 {
		r.add(SignalCleanCreator, fmt.Sprintf("creator has %d clean launches", c.TokensLaunched))
	}

	// Bonuses.
	fees := l.LifetimeFeesSOL
	claims := 0
	if in.FeeClaims != nil {
		fees = math.Max(fees, in.FeeClaims.LifetimeFeesSOL)
		claims = in.FeeClaims.ClaimCount
	}
	switch {
	case fees >= 10:
		r.Breakdown.FeeClaims = 10
	case fees > 0 || claims > 0:
		r.Breakdown.FeeClaims = 5
	}
	if r.Breakdown.FeeClaims > 0 {
		r.add(SignalFeeClaims, fmt.Sprintf("fee claims %.2f SOL", fees))
	}

	if in.SmartMoney.Score > 0 {
		r.Breakdown.SmartMoney = math.Round(float64(in.SmartMoney.Score) * 15 / 100)
		r.add(SignalSmartMoney, fmt.Sprintf("smart money %d/100", in.SmartMoney.Score))
		r.Reasons = append(r.Reasons, in.SmartMoney.Signals...)
	}

	if in.TrustedBotActive {
		r.Breakdown.TrustedBot = 15
		r.add(SignalTrustedBot, "trusted bot active")
	}

	if l.HolderCount >= s.config.MinHolderCount {
		r.Breakdown.Holders = 5
		r.add(SignalHolderBase, fmt.Sprintf("%d holders", l.HolderCount))
	}

	if s.adjuster != nil && len(r.Signals) > 0 {
		adj := s.adjuster.Adjustments(r.Signals)
		adj = clampInt(adj, -s.config.MaxLearned, s.config.MaxLearned)
		r.Breakdown.Learned = float64(adj)
		if adj != 0 {
			r.Reasons = append(r.Reasons, fmt.Sprintf("learned adjustment %+d", adj))
		}
	}

	b := r.Breakdown
	total := b.VolumeRatio + b.BuyPressure + b.Momentum + b.Liquidity + b.Age +
		b.FeeClaims + b.SmartMoney + b.TrustedBot + b.Holders + b.Learned
	r.Score = clampScore(total)

	r.Verdict = s.verdict(r)
	return r
}

// add records a positive signal and its reason.
func (r *Result) add(signal, reason string) {
	r.Signals = append(r.Signals, signal)
	r.Reasons = append(r.Reasons, reason)
}

// verdict is BUY only when the threshold is met and nothing vetoes it.
func (s *Scorer) verdict(r Result) Verdict {
	if len(r.RedFlags) == 0 && r.Score >= s.config.BuyThreshold {
		return VerdictBuy
	}
	return VerdictPass
}

// redFlags returns the hard vetoes for a candidate.
func (s *Scorer) redFlags(in Input) []string {
	l := in.Launch
	var flags []string

	if l.TopHolderPct > s.config.MaxTopHolderPct {
		flags = append(flags, fmt.Sprintf("holder_concentration: top holder %.1f%%", l.TopHolderPct))
	}
	if l.LiquidityUSD < s.config.LiquidityFloorUSD {
		flags = append(flags, fmt.Sprintf("low_liquidity: $%.0f", l.LiquidityUSD))
	}
	if in.Creator != nil && in.Creator.RugCount > 0 {
		flags = append(flags, fmt.Sprintf("creator_rug_history: %d rugs", in.Creator.RugCount))
	}
	if word := scamWord(l.Name, l.Symbol); word != "" {
		flags = append(flags, "scam_name: "+word)
	}
	return flags
}

var scamWords = map[string]bool{
	"scam": true, "rug": true, "rugpull": true, "honeypot": true,
	"drainer": true, "airdrop": true, "giveaway": true, "freesol": true,
}

// scamWord returns the first scam marker among the words of name and
// symbol.
func scamWord(name, symbol string) string {
	words := strings.FieldsFunc(strings.ToLower(name+" "+symbol), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if scamWords[w] {
			return w
		}
	}
	return ""
}

// clampScore clamps a score to [0, MaxScore].
func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
