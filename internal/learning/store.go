// Package learning keeps per-signal trade outcomes and turns them into a
// bounded score adjustment.
package learning

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Learning Store
// Every closed position credits one win or loss to each signal that was
// present at entry. Signals with enough samples nudge future scores.
// ---------------------------------------------------------------------------

// SignalStat is the running outcome of one entry signal.
type SignalStat struct {
	Signal     string    `json:"signal"`
	Trades     int       `json:"trades"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	TotalPnL   float64   `json:"total_pnl"`
	WinRate    float64   `json:"win_rate"`
	Adjustment int       `json:"adjustment"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Persister stores signal stats after each update.
type Persister interface {
	SaveSignalStats(ctx context.Context, stats []SignalStat) error
}

// Config configures the learning store.
type Config struct {
	MinTrades     int `yaml:"min_trades"`     // samples before a signal adjusts scores
	MaxAdjustment int `yaml:"max_adjustment"` // absolute bound per signal and per candidate
}

// DefaultConfig returns defaults.
func DefaultConfig() Config {
	return Config{
		MinTrades:     3,
		MaxAdjustment: 10,
	}
}

// Store is safe for concurrent use.
type Store struct {
	config    Config
	persister Persister
	now       func() time.Time

	mu    sync.RWMutex
	stats map[string]*SignalStat

	outcomes int64
}

// NewStore creates an empty store. persister may be nil.
func NewStore(config Config, persister Persister) *Store {
	if config.MinTrades <= 0 {
		config.MinTrades = 3
	}
	if config.MaxAdjustment <= 0 {
		config.MaxAdjustment = 10
	}
	return &Store{
		config:    config,
		persister: persister,
		now:       time.Now,
		stats:     make(map[string]*SignalStat),
	}
}

// Load replaces the in-memory stats, typically from storage at startup.
func (s *Store) Load(stats []SignalStat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = make(map[string]*SignalStat, len(stats))
	for _, st := range stats {
		if st.Signal == "" {
			continue
		}
		st := st
		s.derive(&st)
		s.stats[st.Signal] = &st
	}
	log.Info().Int("signals", len(s.stats)).Msg("learning: stats loaded")
}

// RecordOutcome credits one trade to every distinct signal. A positive pnl
// is a win; anything else is a loss. The updated stats are persisted before
// returning.
func (s *Store) RecordOutcome(ctx context.Context, signals []string, pnl float64) error {
	if math.IsNaN(pnl) || math.IsInf(pnl, 0) {
		return fmt.Errorf("learning: non-finite pnl %v", pnl)
	}

	s.mu.Lock()
	now := s.now()
	seen := make(map[string]bool, len(signals))
	updated := make([]SignalStat, 0, len(signals))
	for _, sig := range signals {
		if sig == "" || seen[sig] {
			continue
		}
		seen[sig] = true

		st, ok := s.stats[sig]
		if !ok {
			st = &SignalStat{Signal: sig}
			s.stats[sig] = st
		}
		st.Trades++
		if pnl > 0 {
			st.Wins++
		} else {
			st.Losses++
		}
		st.TotalPnL += pnl
		st.UpdatedAt = now
		s.derive(st)
		updated = append(updated, *st)
	}
	s.outcomes++
	s.mu.Unlock()

	log.Debug().
		Strs("signals", signals).
		Float64("pnl", pnl).
		Msg("learning: outcome recorded")

	if s.persister == nil || len(updated) == 0 {
		return nil
	}
	if err := s.persister.SaveSignalStats(ctx, updated); err != nil {
		return fmt.Errorf("learning: persist stats: %w", err)
	}
	return nil
}

// derive recomputes WinRate and Adjustment. Caller holds the lock.
func (s *Store) derive(st *SignalStat) {
	if st.Trades > 0 {
		st.WinRate = float64(st.Wins) / float64(st.Trades)
	} else {
		st.WinRate = 0
	}
	st.Adjustment = adjustment(st.Trades, st.WinRate, s.config.MinTrades, s.config.MaxAdjustment)
}

// adjustment maps a win rate to round((winRate-0.5)*20) within ±bound,
// and zero below minTrades samples.
func adjustment(trades int, winRate float64, minTrades, bound int) int {
	if trades < minTrades {
		return 0
	}
	adj := int(math.Round((winRate - 0.5) * 20))
	return clamp(adj, -bound, bound)
}

// Adjustment returns the score adjustment of one signal.
func (s *Store) Adjustment(signal string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[signal]
	if !ok {
		return 0
	}
	return st.Adjustment
}

// Adjustments sums the adjustments of signals, bounded by MaxAdjustment.
func (s *Store) Adjustments(signals []string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	seen := make(map[string]bool, len(signals))
	for _, sig := range signals {
		if seen[sig] {
			continue
		}
		seen[sig] = true
		if st, ok := s.stats[sig]; ok {
			total += st.Adjustment
		}
	}
	return clamp(total, -s.config.MaxAdjustment, s.config.MaxAdjustment)
}

// Snapshot returns all stats ordered by signal name.
func (s *Store) Snapshot() []SignalStat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SignalStat, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signal < out[j].Signal })
	return out
}

// StoreStats summarizes the store.
type StoreStats struct {
	Signals  int   `json:"signals"`
	Active   int   `json:"active"` // signals with a non-zero adjustment
	Outcomes int64 `json:"outcomes"`
}

func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := 0
	for _, st := range s.stats {
		if st.Adjustment != 0 {
			active++
		}
	}
	return StoreStats{
		Signals:  len(s.stats),
		Active:   active,
		Outcomes: s.outcomes,
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
