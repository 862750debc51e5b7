// Package observability provides the health monitor and the metric
// registry exported on /metrics.
package observability

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Counter
// ---------------------------------------------------------------------------

// Counter is a monotonically increasing value, stored in thousandths so
// updates stay lock-free.
type Counter struct {
	name  string
	help  string
	milli atomic.Int64
}

func (c *Counter) Inc() { c.milli.Add(1000) }

// Add increments by delta. Negative deltas are ignored.
func (c *Counter) Add(delta float64) {
	if delta < 0 || math.IsNaN(delta) {
		return
	}
	c.milli.Add(int64(math.Round(delta * 1000)))
}

func (c *Counter) Value() float64 { return float64(c.milli.Load()) / 1000 }

// ---------------------------------------------------------------------------
// Gauge
// ---------------------------------------------------------------------------

// Gauge is a value that can go up and down.
type Gauge struct {
	name string
	help string
	bits atomic.Uint64
}

func (g *Gauge) Set(v float64) { g.bits.Store(math.Float64bits(v)) }

func (g *Gauge) Value() float64 { return math.Float64frombits(g.bits.Load()) }

// ---------------------------------------------------------------------------
// Histogram
// ---------------------------------------------------------------------------

// Histogram counts observations into cumulative upper-bound buckets.
type Histogram struct {
	name    string
	help    string
	mu      sync.Mutex
	bounds  []float64
	buckets []int64 // cumulative: observations <= bounds[i]
	sum     float64
	count   int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, b := range h.bounds {
		if v <= b {
			h.buckets[i]++
		}
	}
}

// Snapshot returns copies of the bounds and cumulative counts.
func (h *Histogram) Snapshot() (bounds []float64, buckets []int64, sum float64, count int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float64(nil), h.bounds...), append([]int64(nil), h.buckets...), h.sum, h.count
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry owns named metrics. Registering an existing name returns the
// existing metric.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

func (r *Registry) Histogram(name, help string, bounds []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	h := &Histogram{name: name, help: help, bounds: sorted, buckets: make([]int64, len(sorted))}
	r.histograms[name] = h
	return h
}

// ---------------------------------------------------------------------------
// Engine metrics
// ---------------------------------------------------------------------------

var (
	// LatencyBucketsMs for scan and RPC latencies.
	LatencyBucketsMs = []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

	// ScoreBuckets cover the 0-150 score range.
	ScoreBuckets = []float64{10, 20, 30, 40, 55, 70, 85, 100, 125, 150}
)

// Metrics are the engine's named metrics.
type Metrics struct {
	Registry *Registry

	ScansTotal       *Counter
	ScanErrors       *Counter
	CandidatesScored *Counter
	BuyVerdicts      *Counter
	EntriesOpened    *Counter
	EntriesFailed    *Counter
	EntriesSkipped   *Counter
	ExitsTotal       *Counter

	OpenPositions  *Gauge
	ExposureSOL    *Gauge
	RealizedPnLSOL *Gauge
	WinRatePct     *Gauge
	TrackedWallets *Gauge

	ScanDurationMs *Histogram
	Scores         *Histogram
}

// NewMetrics registers the engine metrics on a fresh registry.
func NewMetrics() *Metrics {
	r := NewRegistry()
	return &Metrics{
		Registry: r,

		ScansTotal:       r.Counter("ghost_scans_total", "Completed scan cycles"),
		ScanErrors:       r.Counter("ghost_scan_errors_total", "Scan cycles that failed to fetch launches"),
		CandidatesScored: r.Counter("ghost_candidates_scored_total", "Candidates evaluated by the scorer"),
		BuyVerdicts:      r.Counter("ghost_buy_verdicts_total", "Candidates with a BUY verdict"),
		EntriesOpened:    r.Counter("ghost_entries_opened_total", "Positions opened"),
		EntriesFailed:    r.Counter("ghost_entries_failed_total", "Entries that failed or were simulated"),
		EntriesSkipped:   r.Counter("ghost_entries_skipped_total", "BUY verdicts skipped by risk limits"),
		ExitsTotal:       r.Counter("ghost_exits_total", "Positions closed"),

		OpenPositions:  r.Gauge("ghost_open_positions", "Open positions"),
		ExposureSOL:    r.Gauge("ghost_exposure_sol", "SOL committed to open positions"),
		RealizedPnLSOL: r.Gauge("ghost_realized_pnl_sol", "Realized PnL of closed positions in SOL"),
		WinRatePct:     r.Gauge("ghost_win_rate_pct", "Share of closed positions with positive PnL"),
		TrackedWallets: r.Gauge("ghost_tracked_wallets", "Smart-money wallets tracked"),

		ScanDurationMs: r.Histogram("ghost_scan_duration_ms", "Scan cycle duration in milliseconds", LatencyBucketsMs),
		Scores:         r.Histogram("ghost_candidate_score", "Distribution of candidate scores", ScoreBuckets),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
