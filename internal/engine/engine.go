// Package engine runs the two periodic loops of the trader: the scan loop
// that scores new launches and opens positions, and the position loop that
// evaluates exits.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ghost-trader/ghost/internal/journal"
	"github.com/ghost-trader/ghost/internal/marketdata"
	"github.com/ghost-trader/ghost/internal/observability"
	"github.com/ghost-trader/ghost/internal/positions"
	"github.com/ghost-trader/ghost/internal/scorer"
	"github.com/ghost-trader/ghost/internal/smartmoney"
	"github.com/ghost-trader/ghost/internal/solana"
	"github.com/ghost-trader/ghost/internal/storage"
)

// LaunchSource supplies candidates and their enrichment data.
type LaunchSource interface {
	RecentLaunches(ctx context.Context, limit int) ([]marketdata.Launch, error)
	FeeClaims(ctx context.Context, mint string) (*marketdata.FeeClaims, error)
	CreatorHistory(ctx context.Context, mint string) (*marketdata.CreatorHistory, error)
}

// HolderSource fills in holder concentration when the launch API omits it.
type HolderSource interface {
	TopHolderPct(ctx context.Context, mint solana.Pubkey) float64
}

// SmartMoney scores tracked-wallet activity on a mint.
type SmartMoney interface {
	Score(mint string) smartmoney.Signal
}

// Journal records evaluations.
type Journal interface {
	Record(ctx context.Context, e journal.Evaluation) error
}

// Positions is the subset of the position manager the loops drive.
type Positions interface {
	Open(ctx context.Context, e positions.Entry) (positions.Position, error)
	Tick(ctx context.Context)
	Performance() positions.Performance
}

// Config configures the loops.
type Config struct {
	InstanceID       string
	ScanInterval     time.Duration
	Concurrency      int // candidates evaluated in parallel, 1-5
	BatchSize        int // launches fetched per scan
	CandidateTimeout time.Duration
	TickInterval     time.Duration
	TickTimeout      time.Duration
	DryRun           bool     // score only, never open positions
	TrustedBots      []string // wallet addresses of trusted trading bots
}

// DefaultConfig returns defaults.
func DefaultConfig() Config {
	return Config{
		InstanceID:       "ghost-1",
		ScanInterval:     3 * time.Minute,
		Concurrency:      3,
		BatchSize:        20,
		CandidateTimeout: 30 * time.Second,
		TickInterval:     15 * time.Second,
		TickTimeout:      2 * time.Minute,
	}
}

// Deps are the engine's collaborators. Holders, Journal, Scans and
// Metrics may be nil.
type Deps struct {
	Launches   LaunchSource
	Holders    HolderSource
	SmartMoney SmartMoney
	Scorer     *scorer.Scorer
	Positions  Positions
	Journal    Journal
	Scans      storage.ScanStore
	Metrics    *observability.Metrics
}

// Engine owns the scan and position loops.
type Engine struct {
	config Config
	deps   Deps
	bots   map[string]struct{}

	mu       sync.RWMutex
	lastScan storage.ScanSnapshot

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	scans      atomic.Int64
	scanErrors atomic.Int64
	evaluated  atomic.Int64
	buys       atomic.Int64
	opened     atomic.Int64
	skipped    atomic.Int64
	ticks      atomic.Int64
}

// New creates an engine.
func New(config Config, deps Deps) *Engine {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.Concurrency > 5 {
		config.Concurrency = 5
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 20
	}
	if config.CandidateTimeout <= 0 {
		config.CandidateTimeout = 30 * time.Second
	}
	if config.TickTimeout <= 0 {
		config.TickTimeout = 2 * time.Minute
	}
	bots := make(map[string]struct{}, len(config.TrustedBots))
	for _, b := range config.TrustedBots {
		bots[b] = struct{}{}
	}
	return &Engine{config: config, deps: deps, bots: bots}
}

// Start runs both loops until ctx is cancelled or Stop is called. The first
// scan runs immediately.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine: already running")
	}
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.scanLoop(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.positionLoop(ctx)
	}()

	log.Info().
		Dur("scan_interval", e.config.ScanInterval).
		Dur("tick_interval", e.config.TickInterval).
		Int("concurrency", e.config.Concurrency).
		Bool("dry_run", e.config.DryRun).
		Msg("engine: started")
	return nil
}

// Stop cancels both loops and waits for in-flight work. Transactions
// already submitted keep confirming on their own detached contexts.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	e.cancel()
	e.wg.Wait()
	log.Info().Msg("engine: stopped")
}

func (e *Engine) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.ScanInterval)
	defer ticker.Stop()

	for {
		if _, err := e.ScanOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("engine: scan failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) positionLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.TickOnce(ctx)
		}
	}
}

// ---------------------------------------------------------------------------
// Scan
// ---------------------------------------------------------------------------

// ScanOnce fetches a batch of launches, scores them with bounded
// concurrency and opens positions for BUY verdicts, best score first.
func (e *Engine) ScanOnce(ctx context.Context) ([]scorer.Result, error) {
	start := time.Now()

	launches, err := e.deps.Launches.RecentLaunches(ctx, e.config.BatchSize)
	if err != nil {
		e.scanErrors.Add(1)
		if m := e.deps.Metrics; m != nil {
			m.ScanErrors.Inc()
		}
		return nil, fmt.Errorf("fetch launches: %w", err)
	}

	results := make([]*scorer.Result, len(launches))
	g := new(errgroup.Group)
	g.SetLimit(e.config.Concurrency)
	for i, l := range launches {
		if l.Mint == "" {
			continue
		}
		g.Go(func() error {
			candCtx, cancel := context.WithTimeout(ctx, e.config.CandidateTimeout)
			defer cancel()
			r := e.evaluate(candCtx, l)
			results[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	scored := make([]scorer.Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			scored = append(scored, *r)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	e.publish(ctx, scored)

	var buys int
	for _, r := range scored {
		if r.Verdict != scorer.VerdictBuy {
			continue
		}
		buys++
		e.enter(ctx, r)
	}

	e.scans.Add(1)
	elapsed := time.Since(start)
	if m := e.deps.Metrics; m != nil {
		m.ScansTotal.Inc()
		m.ScanDurationMs.Observe(float64(elapsed.Milliseconds()))
	}
	log.Info().
		Int("launches", len(launches)).
		Int("scored", len(scored)).
		Int("buys", buys).
		Dur("elapsed", elapsed).
		Msg("engine: scan complete")
	return scored, nil
}

// evaluate enriches and scores one launch. Enrichment failures degrade to
// missing data rather than failing the candidate.
func (e *Engine) evaluate(ctx context.Context, l marketdata.Launch) scorer.Result {
	in := scorer.Input{Launch: l}

	if fees, err := e.deps.Launches.FeeClaims(ctx, l.Mint); err != nil {
		log.Debug().Err(err).Str("mint", l.Mint).Msg("engine: fee claims unavailable")
	} else {
		in.FeeClaims = fees
	}
	if creator, err := e.deps.Launches.CreatorHistory(ctx, l.Mint); err != nil {
		log.Debug().Err(err).Str("mint", l.Mint).Msg("engine: creator history unavailable")
	} else {
		in.Creator = creator
	}
	if in.Launch.TopHolderPct == 0 && e.deps.Holders != nil {
		in.Launch.TopHolderPct = e.deps.Holders.TopHolderPct(ctx, solana.Pubkey(l.Mint))
	}
	if e.deps.SmartMoney != nil {
		in.SmartMoney = e.deps.SmartMoney.Score(l.Mint)
		in.TrustedBotActive = e.trustedBotActive(in.SmartMoney.Buyers)
	}

	r := e.deps.Scorer.Score(in)

	e.evaluated.Add(1)
	if m := e.deps.Metrics; m != nil {
		m.CandidatesScored.Inc()
		m.Scores.Observe(r.Score)
	}
	if e.deps.Journal != nil {
		if err := e.deps.Journal.Record(ctx, journal.Evaluation{
			At:       time.Now(),
			Instance: e.config.InstanceID,
			Input:    in,
			Result:   r,
		}); err != nil {
			log.Warn().Err(err).Str("mint", l.Mint).Msg("engine: journal record failed")
		}
	}

	log.Debug().
		Str("mint", r.Mint).
		Str("symbol", r.Symbol).
		Float64("score", r.Score).
		Str("verdict", string(r.Verdict)).
		Strs("red_flags", r.RedFlags).
		Msg("engine: candidate scored")
	return r
}

func (e *Engine) trustedBotActive(buyers []string) bool {
	for _, b := range buyers {
		if _, ok := e.bots[b]; ok {
			return true
		}
	}
	return false
}

func (e *Engine) publish(ctx context.Context, scored []scorer.Result) {
	snap := storage.ScanSnapshot{At: time.Now(), Results: scored}
	e.mu.Lock()
	e.lastScan = snap
	e.mu.Unlock()

	if e.deps.Scans != nil {
		if err := e.deps.Scans.SaveScan(ctx, snap); err != nil {
			log.Warn().Err(err).Msg("engine: live scan snapshot not saved")
		}
	}
}

func (e *Engine) enter(ctx context.Context, r scorer.Result) {
	e.buys.Add(1)
	m := e.deps.Metrics
	if m != nil {
		m.BuyVerdicts.Inc()
	}

	if e.config.DryRun {
		log.Info().
			Str("mint", r.Mint).
			Str("symbol", r.Symbol).
			Float64("score", r.Score).
			Msg("engine: dry run, entry not executed")
		return
	}

	_, err := e.deps.Positions.Open(ctx, positions.Entry{Result: r})
	switch {
	case err == nil:
		e.opened.Add(1)
		if m != nil {
			m.EntriesOpened.Inc()
		}
	case isLimit(err):
		e.skipped.Add(1)
		if m != nil {
			m.EntriesSkipped.Inc()
		}
	default:
		if m != nil {
			m.EntriesFailed.Inc()
		}
	}
}

func isLimit(err error) bool {
	return errors.Is(err, positions.ErrExposureLimit) ||
		errors.Is(err, positions.ErrMaxPositions) ||
		errors.Is(err, positions.ErrDailyLossLimit) ||
		errors.Is(err, positions.ErrAlreadyOpen)
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// TickOnce runs one exit evaluation pass and refreshes position gauges.
func (e *Engine) TickOnce(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, e.config.TickTimeout)
	defer cancel()

	e.deps.Positions.Tick(tickCtx)
	e.ticks.Add(1)

	if m := e.deps.Metrics; m != nil {
		perf := e.deps.Positions.Performance()
		m.OpenPositions.Set(float64(perf.OpenPositions))
		m.ExposureSOL.Set(parseFloat(perf.ExposureSOL))
		m.RealizedPnLSOL.Set(parseFloat(perf.TotalPnLSOL))
		m.WinRatePct.Set(perf.WinRate)
	}
}

// LastScan returns the most recent scan snapshot.
func (e *Engine) LastScan() storage.ScanSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := e.lastScan
	snap.Results = append([]scorer.Result(nil), e.lastScan.Results...)
	return snap
}

// Stats are engine counters.
type Stats struct {
	Running    bool  `json:"running"`
	Scans      int64 `json:"scans"`
	ScanErrors int64 `json:"scan_errors"`
	Evaluated  int64 `json:"evaluated"`
	Buys       int64 `json:"buys"`
	Opened     int64 `json:"opened"`
	Skipped    int64 `json:"skipped"`
	Ticks      int64 `json:"ticks"`
}

func (e *Engine) Stats() Stats {
	return Stats{
		Running:    e.running.Load(),
		Scans:      e.scans.Load(),
		ScanErrors: e.scanErrors.Load(),
		Evaluated:  e.evaluated.Load(),
		Buys:       e.buys.Load(),
		Opened:     e.opened.Load(),
		Skipped:    e.skipped.Load(),
		Ticks:      e.ticks.Load(),
	}
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
