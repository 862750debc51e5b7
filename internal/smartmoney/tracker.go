// Package smartmoney tracks known profitable wallets and turns their recent
// activity on a mint into a confidence signal.
package smartmoney

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Smart-Money Tracker
// Registry of tracked wallets plus per-mint activity aggregates.
// ---------------------------------------------------------------------------

// Source records how a wallet entered the registry.
type Source string

const (
	SourceManual     Source = "manual"
	SourceDiscovered Source = "discovered"
	SourceLearned    Source = "learned"
)

// McapRange is the market-cap band a wallet prefers to trade.
type McapRange string

const (
	McapMicro McapRange = "micro"
	McapSmall McapRange = "small"
	McapMid   McapRange = "mid"
)

// Action is the direction of a tracked trade.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Wallet is a tracked smart-money wallet.
type Wallet struct {
	Address        string    `json:"address"`
	Label          string    `json:"label"`
	WinRate        float64   `json:"win_rate"` // 0-1
	TotalPnLSOL    float64   `json:"total_pnl_sol"`
	AvgHoldMinutes float64   `json:"avg_hold_minutes"`
	PreferredMcap  McapRange `json:"preferred_mcap"`
	Source         Source    `json:"source"`
	AddedAt        time.Time `json:"added_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// Activity aggregates tracked-wallet trades on one mint.
type Activity struct {
	Mint         string              `json:"mint"`
	BuyCount     int                 `json:"buy_count"`
	SellCount    int                 `json:"sell_count"`
	NetBuySOL    float64             `json:"net_buy_sol"`
	Buyers       map[string]struct{} `json:"-"`
	Sellers      map[string]struct{} `json:"-"`
	LastActivity time.Time           `json:"last_activity"`
}

// Signal is the smart-money view of a mint used by the scorer.
type Signal struct {
	Mint    string   `json:"mint"`
	Score   int      `json:"score"` // 0-100
	Buyers  []string `json:"buyers"`
	Signals []string `json:"signals"`
}

// Config configures the tracker.
type Config struct {
	ActivityTTL     time.Duration // idle activity older than this is evicted
	RecentWindow    time.Duration // "fresh activity" bonus window
	CleanupInterval time.Duration
	MaxWallets      int
}

// DefaultConfig returns defaults.
func DefaultConfig() Config {
	return Config{
		ActivityTTL:     time.Hour,
		RecentWindow:    5 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxWallets:      1000,
	}
}

// Tracker is safe for concurrent use.
type Tracker struct {
	config Config
	now    func() time.Time

	mu       sync.RWMutex
	wallets  map[string]*Wallet
	activity map[string]*Activity

	onChange func(w Wallet, removed bool)

	recorded int64
	ignored  int64

	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewTracker creates an empty tracker.
func NewTracker(config Config) *Tracker {
	if config.ActivityTTL <= 0 {
		config.ActivityTTL = time.Hour
	}
	if config.RecentWindow <= 0 {
		config.RecentWindow = 5 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.MaxWallets <= 0 {
		config.MaxWallets = 1000
	}
	return &Tracker{
		config:   config,
		now:      time.Now,
		wallets:  make(map[string]*Wallet),
		activity: make(map[string]*Activity),
	}
}

// SetOnChange sets the callback invoked after a wallet is added, updated or
// removed. It runs outside the tracker lock.
func (t *Tracker) SetOnChange(fn func(w Wallet, removed bool)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// AddWallet registers or updates a tracked wallet.
func (t *Tracker) AddWallet(w Wallet) error {
	if w.Address == "" {
		return fmt.Errorf("smartmoney: wallet address required")
	}
	if w.WinRate < 0 || w.WinRate > 1 {
		return fmt.Errorf("smartmoney: win rate %.2f out of range [0,1]", w.WinRate)
	}
	if w.Source == "" {
		w.Source = SourceManual
	}

	t.mu.Lock()
	existing, ok := t.wallets[w.Address]
	if !ok && len(t.wallets) >= t.config.MaxWallets {
		t.mu.Unlock()
		return fmt.Errorf("smartmoney: registry full (%d wallets)", t.config.MaxWallets)
	}
	if ok {
		w.AddedAt = existing.AddedAt
		if w.LastSeenAt.IsZero() {
			w.LastSeenAt = existing.LastSeenAt
		}
	} else if w.AddedAt.IsZero() {
		w.AddedAt = t.now()
	}
	t.wallets[w.Address] = &w
	fn := t.onChange
	t.mu.Unlock()

	log.Debug().
		Str("address", w.Address).
		Str("label", w.Label).
		Str("source", string(w.Source)).
		Msg("smartmoney: wallet added")

	if fn != nil {
		fn(w, false)
	}
	return nil
}

// RemoveWallet drops a wallet from the registry.
func (t *Tracker) RemoveWallet(address string) bool {
	t.mu.Lock()
	w, ok := t.wallets[address]
	if ok {
		delete(t.wallets, address)
	}
	fn := t.onChange
	t.mu.Unlock()

	if ok && fn != nil {
		fn(*w, true)
	}
	return ok
}

// IsSmartMoney reports whether address is tracked.
func (t *Tracker) IsSmartMoney(address string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.wallets[address]
	return ok
}

// Wallets returns the tracked wallets ordered by address.
func (t *Tracker) Wallets() []Wallet {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Wallet, 0, len(t.wallets))
	for _, w := range t.wallets {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// RecordActivity adds a tracked wallet's trade to the mint aggregate. It
// reports false and does nothing for untracked wallets.
func (t *Tracker) RecordActivity(mint, wallet string, action Action, amountSOL float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.wallets[wallet]
	if !ok {
		t.ignored++
		return false
	}
	if action != ActionBuy && action != ActionSell {
		return false
	}

	now := t.now()
	a, ok := t.activity[mint]
	if !ok {
		a = &Activity{
			Mint:    mint,
			Buyers:  make(map[string]struct{}),
			Sellers: make(map[string]struct{}),
		}
		t.activity[mint] = a
	}

	switch action {
	case ActionBuy:
		a.BuyCount++
		a.NetBuySOL += amountSOL
		a.Buyers[wallet] = struct{}{}
	case ActionSell:
		a.SellCount++
		a.NetBuySOL -= amountSOL
		a.Sellers[wallet] = struct{}{}
	}
	a.LastActivity = now
	w.LastSeenAt = now
	t.recorded++

	log.Debug().
		Str("wallet", wallet).
		Str("mint", mint).
		Str("action", string(action)).
		Float64("amount_sol", amountSOL).
		Msg("smartmoney: activity recorded")
	return true
}

// Score returns the smart-money signal for mint. Mints without tracked
// activity score zero.
func (t *Tracker) Score(mint string) Signal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sig := Signal{Mint: mint}
	a, ok := t.activity[mint]
	if !ok {
		return sig
	}

	score := 0
	switch {
	case a.BuyCount >= 3:
		score += 40
		sig.Signals = append(sig.Signals, fmt.Sprintf("%d smart-money buys", a.BuyCount))
	case a.BuyCount >= 1:
		score += 20
		sig.Signals = append(sig.Signals, fmt.Sprintf("%d smart-money buy(s)", a.BuyCount))
	}

	switch {
	case a.NetBuySOL >= 1:
		score += 30
		sig.Signals = append(sig.Signals, fmt.Sprintf("net smart-money inflow %.2f SOL", a.NetBuySOL))
	case a.NetBuySOL > 0:
		score += 15
		sig.Signals = append(sig.Signals, fmt.Sprintf("small smart-money inflow %.2f SOL", a.NetBuySOL))
	case a.NetBuySOL < 0:
		score -= 20
		sig.Signals = append(sig.Signals, fmt.Sprintf("smart money selling %.2f SOL", -a.NetBuySOL))
	}

	if len(a.Buyers) >= 2 {
		score += 20
		sig.Signals = append(sig.Signals, fmt.Sprintf("%d distinct smart wallets buying", len(a.Buyers)))
	}

	if t.now().Sub(a.LastActivity) <= t.config.RecentWindow {
		score += 10
		sig.Signals = append(sig.Signals, "fresh smart-money activity")
	}

	sig.Score = clamp(score, 0, 100)
	sig.Buyers = make([]string, 0, len(a.Buyers))
	for b := range a.Buyers {
		sig.Buyers = append(sig.Buyers, b)
	}
	sort.Strings(sig.Buyers)
	return sig
}

// Activity returns a copy of the aggregate for mint.
func (t *Tracker) Activity(mint string) (Activity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.activity[mint]
	if !ok {
		return Activity{}, false
	}
	cp := *a
	cp.Buyers = make(map[string]struct{}, len(a.Buyers))
	for k := range a.Buyers {
		cp.Buyers[k] = struct{}{}
	}
	cp.Sellers = make(map[string]struct{}, len(a.Sellers))
	for k := range a.Sellers {
		cp.Sellers[k] = struct{}{}
	}
	return cp, true
}

// Cleanup evicts activity idle for at least ActivityTTL.
func (t *Tracker) Cleanup() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	cutoff := t.now().Add(-t.config.ActivityTTL)
	for mint, a := range t.activity {
		if !a.LastActivity.After(cutoff) {
			delete(t.activity, mint)
			removed++
		}
	}

	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("smartmoney: cleaned up idle activity")
	}
	return removed
}

// PruneLearned removes learned wallets not seen within maxIdle. Manual and
// discovered wallets are never pruned.
func (t *Tracker) PruneLearned(maxIdle time.Duration) int {
	t.mu.Lock()
	cutoff := t.now().Add(-maxIdle)
	var pruned []Wallet
	for addr, w := range t.wallets {
		if w.Source != SourceLearned {
			continue
		}
		last := w.LastSeenAt
		if last.IsZero() {
			last = w.AddedAt
		}
		if last.Before(cutoff) {
			pruned = append(pruned, *w)
			delete(t.wallets, addr)
		}
	}
	fn := t.onChange
	t.mu.Unlock()

	for _, w := range pruned {
		log.Info().Str("address", w.Address).Str("label", w.Label).Msg("smartmoney: pruned stale learned wallet")
		if fn != nil {
			fn(w, true)
		}
	}
	return len(pruned)
}

// Start runs the periodic activity cleanup until Stop or ctx cancellation.
func (t *Tracker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.config.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Cleanup()
			}
		}
	}()
}

// Stop halts the cleanup loop and waits for it to exit.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
	})
	t.wg.Wait()
}

// TrackerStats returns tracker statistics.
type TrackerStats struct {
	TrackedWallets  int            `json:"tracked_wallets"`
	ActiveMints     int            `json:"active_mints"`
	Recorded        int64          `json:"recorded"`
	Ignored         int64          `json:"ignored"`
	SourceBreakdown map[string]int `json:"source_breakdown"`
}

func (t *Tracker) Stats() TrackerStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sources := make(map[string]int)
	for _, w := range t.wallets {
		sources[string(w.Source)]++
	}
	return TrackerStats{
		TrackedWallets:  len(t.wallets),
		ActiveMints:     len(t.activity),
		Recorded:        t.recorded,
		Ignored:         t.ignored,
		SourceBreakdown: sources,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
