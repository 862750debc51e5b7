package positions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ghost-trader/ghost/internal/marketdata"
	"github.com/ghost-trader/ghost/internal/scorer"
	"github.com/ghost-trader/ghost/internal/solana"
	"github.com/ghost-trader/ghost/internal/wallet"
)

// ---------------------------------------------------------------------------
// Position Manager
// Entries are limit-checked and reserved before any network call so that
// concurrent opens never exceed exposure or count ceilings. Exits are
// always allowed.
// ---------------------------------------------------------------------------

// MarketData is the subset of the market data client the manager uses.
type MarketData interface {
	Market(ctx context.Context, mint string) (*marketdata.MarketSnapshot, error)
	SwapQuote(ctx context.Context, req marketdata.QuoteRequest) (*marketdata.Quote, error)
	BuildSwap(ctx context.Context, quote *marketdata.Quote, userPublicKey string) (*marketdata.SwapTransaction, error)
}

// DecimalsSource resolves token decimals.
type DecimalsSource interface {
	TokenDecimals(ctx context.Context, mint solana.Pubkey) int
}

// OutcomeRecorder receives closed-trade outcomes.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, signals []string, pnl float64) error
}

// Persister stores position snapshots.
type Persister interface {
	SavePosition(ctx context.Context, p Position) error
}

// Config configures risk limits and exits.
type Config struct {
	Exits           ExitRules
	MinPositionSOL  decimal.Decimal
	MaxPositionSOL  decimal.Decimal
	MaxExposureSOL  decimal.Decimal
	MaxPositions    int
	MaxDailyLossSOL decimal.Decimal // zero disables the guard
	SlippageBps     int
	BuyThreshold    float64       // score mapped to MinPositionSOL
	TickTimeout     time.Duration // per-position exit evaluation
	MaxFailedKept   int
}

// DefaultConfig returns defaults.
func DefaultConfig() Config {
	return Config{
		Exits:           DefaultExitRules(),
		MinPositionSOL:  decimal.NewFromFloat(0.05),
		MaxPositionSOL:  decimal.NewFromFloat(0.25),
		MaxExposureSOL:  decimal.NewFromInt(1),
		MaxPositions:    5,
		MaxDailyLossSOL: decimal.NewFromFloat(0.5),
		SlippageBps:     300,
		BuyThreshold:    55,
		TickTimeout:     30 * time.Second,
		MaxFailedKept:   200,
	}
}

// Deps are the manager's collaborators. Decimals, Learning and Store may
// be nil.
type Deps struct {
	Market   MarketData
	Signer   wallet.Signer
	Decimals DecimalsSource
	Learning OutcomeRecorder
	Store    Persister
}

// Entry is a request to open a position from a BUY verdict. A zero
// AmountSOL sizes the position from the score.
type Entry struct {
	Result    scorer.Result
	AmountSOL decimal.Decimal
}

// Manager is safe for concurrent use.
type Manager struct {
	config Config
	deps   Deps
	now    func() time.Time

	mu        sync.RWMutex
	positions map[string]*Position
	order     []string        // insertion order of IDs
	busy      map[string]bool // positions with an exit in flight
	pending   int             // entries reserved but not yet resolved
	reserved  decimal.Decimal // SOL reserved by pending entries

	dailyLoss decimal.Decimal
	dayStart  time.Time

	onOpen  func(Position)
	onClose func(Position)

	entries    atomic.Int64
	failed     atomic.Int64
	simulated  atomic.Int64
	exits      atomic.Int64
	partials   atomic.Int64
	evalErrors atomic.Int64
}

// New creates a manager.
func New(config Config, deps Deps) *Manager {
	if config.TickTimeout <= 0 {
		config.TickTimeout = 30 * time.Second
	}
	if config.MaxFailedKept <= 0 {
		config.MaxFailedKept = 200
	}
	m := &Manager{
		config:    config,
		deps:      deps,
		now:       time.Now,
		positions: make(map[string]*Position),
		busy:      make(map[string]bool),
	}
	m.dayStart = startOfDay(m.now())
	return m
}

// SetOnOpen sets the callback for newly opened positions.
func (m *Manager) SetOnOpen(fn func(Position)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOpen = fn
}

// SetOnClose sets the callback for closed positions.
func (m *Manager) SetOnClose(fn func(Position)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = fn
}

// Load restores positions from storage. Open positions resume exit
// evaluation; today's realized losses re-arm the daily guard.
func (m *Manager) Load(saved []Position) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollDayLocked()
	sort.Slice(saved, func(i, j int) bool { return saved[i].CreatedAt.Before(saved[j].CreatedAt) })
	for _, p := range saved {
		if _, ok := m.positions[p.ID]; ok || p.ID == "" {
			continue
		}
		p := p.clone()
		if len(p.TPTiersHit) < len(m.config.Exits.TakeProfit) {
			hit := make([]bool, len(m.config.Exits.TakeProfit))
			copy(hit, p.TPTiersHit)
			p.TPTiersHit = hit
		}
		m.positions[p.ID] = &p
		m.order = append(m.order, p.ID)

		if p.Status == StatusClosed && p.ClosedAt != nil && !p.ClosedAt.Before(m.dayStart) && p.PnLSOL.IsNegative() {
			m.dailyLoss = m.dailyLoss.Add(p.PnLSOL.Neg())
		}
	}
	log.Info().Int("positions", len(saved)).Msg("positions: restored from storage")
}

// ---------------------------------------------------------------------------
// Entry
// ---------------------------------------------------------------------------

// Open executes an entry. Limit violations return before any network
// call. A failed or simulated execution is recorded with status failed and
// never counts toward exposure.
func (m *Manager) Open(ctx context.Context, e Entry) (Position, error) {
	r := e.Result
	if r.Verdict != scorer.VerdictBuy {
		return Position{}, ErrNotBuy
	}
	amount := m.size(e)

	if err := m.reserve(r.Mint, amount); err != nil {
		log.Info().
			Err(err).
			Str("mint", r.Mint).
			Str("amount_sol", amount.String()).
			Msg("positions: entry skipped")
		return Position{}, err
	}
	defer m.release(amount)

	now := m.now()
	pos := &Position{
		ID:           uuid.New().String()[:12],
		Mint:         r.Mint,
		Symbol:       r.Symbol,
		InitialSOL:   amount,
		AmountSOL:    amount,
		EntryScore:   r.Score,
		EntryReason:  strings.Join(r.Reasons, "; "),
		EntrySignals: append([]string(nil), r.Signals...),
		TPTiersHit:   make([]bool, len(m.config.Exits.TakeProfit)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	log.Info().
		Str("pos_id", pos.ID).
		Str("mint", pos.Mint).
		Str("symbol", pos.Symbol).
		Str("amount_sol", amount.String()).
		Float64("score", r.Score).
		Msg("positions: EXECUTING BUY")

	err := m.executeEntry(ctx, pos)
	if err != nil {
		pos.Status = StatusFailed
		pos.FailReason = err.Error()
		m.failed.Add(1)
	} else {
		pos.Status = StatusOpen
		pos.PeakMultiplier = 1
		m.entries.Add(1)
	}

	m.mu.Lock()
	m.positions[pos.ID] = pos
	m.order = append(m.order, pos.ID)
	if pos.Status == StatusFailed {
		m.pruneFailedLocked()
	}
	snapshot := pos.clone()
	cb := m.onOpen
	m.mu.Unlock()

	m.persist(ctx, snapshot)

	if err != nil {
		log.Warn().Err(err).Str("pos_id", pos.ID).Str("mint", pos.Mint).Msg("positions: entry failed")
		return snapshot, err
	}

	if cb != nil {
		cb(snapshot)
	}
	log.Info().
		Str("pos_id", pos.ID).
		Str("mint", pos.Mint).
		Float64("entry_price", pos.EntryPriceSOL).
		Str("tokens", pos.TokenAmount.String()).
		Str("signature", pos.EntrySignature).
		Msg("positions: position OPENED")
	return snapshot, nil
}

// size picks the entry amount: explicit amounts are clamped to the
// min/max range, zero amounts scale with the score above the threshold.
func (m *Manager) size(e Entry) decimal.Decimal {
	lo, hi := m.config.MinPositionSOL, m.config.MaxPositionSOL
	if e.AmountSOL.IsPositive() {
		return decimal.Min(decimal.Max(e.AmountSOL, lo), hi)
	}
	frac := (e.Result.Score - m.config.BuyThreshold) / 45
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return lo.Add(hi.Sub(lo).Mul(decimal.NewFromFloat(frac))).Round(4)
}

// reserve checks every entry limit and books the slot.
func (m *Manager) reserve(mint string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollDayLocked()
	if m.config.MaxDailyLossSOL.IsPositive() && m.dailyLoss.GreaterThanOrEqual(m.config.MaxDailyLossSOL) {
		return fmt.Errorf("%w: lost %s SOL today", ErrDailyLossLimit, m.dailyLoss.StringFixed(4))
	}

	open := 0
	exposure := decimal.Zero
	for _, p := range m.positions {
		if p.Status != StatusOpen {
			continue
		}
		if p.Mint == mint {
			return fmt.Errorf("%w: %s", ErrAlreadyOpen, mint)
		}
		open++
		exposure = exposure.Add(p.AmountSOL)
	}

	if open+m.pending+1 > m.config.MaxPositions {
		return fmt.Errorf("%w: %d open, %d pending", ErrMaxPositions, open, m.pending)
	}
	if exposure.Add(m.reserved).Add(amount).GreaterThan(m.config.MaxExposureSOL) {
		return fmt.Errorf("%w: %s + %s > %s SOL", ErrExposureLimit,
			exposure.Add(m.reserved).String(), amount.String(), m.config.MaxExposureSOL.String())
	}

	m.pending++
	m.reserved = m.reserved.Add(amount)
	return nil
}

func (m *Manager) release(amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending--
	m.reserved = m.reserved.Sub(amount)
}

// executeEntry quotes, builds, signs and submits the buy.
func (m *Manager) executeEntry(ctx context.Context, pos *Position) error {
	lamports := solana.SOLToLamports(pos.AmountSOL)
	quote, err := m.deps.Market.SwapQuote(ctx, marketdata.QuoteRequest{
		InputMint:   string(solana.SOLMint),
		OutputMint:  pos.Mint,
		Amount:      lamports,
		SlippageBps: m.config.SlippageBps,
	})
	if err != nil {
		return fmt.Errorf("%w: quote %s: %w", ErrEntryFailed, pos.Mint, err)
	}
	outRaw, err := decimal.NewFromString(quote.OutAmount)
	if err != nil || !outRaw.IsPositive() {
		return fmt.Errorf("%w: quote %s: bad out amount %q", ErrEntryFailed, pos.Mint, quote.OutAmount)
	}

	decimals := 6
	if m.deps.Decimals != nil {
		decimals = m.deps.Decimals.TokenDecimals(ctx, solana.Pubkey(pos.Mint))
	}
	tokens := outRaw.Shift(-int32(decimals))
	pos.TokenDecimals = decimals
	pos.TokenAmount = tokens
	pos.EntryPriceSOL = pos.AmountSOL.Div(tokens).InexactFloat64()
	pos.LastPrice = pos.EntryPriceSOL

	res, err := m.swap(ctx, quote, "buy "+pos.Symbol)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEntryFailed, err)
	}
	if res.Simulated {
		m.simulated.Add(1)
		pos.EntrySignature = string(res.Signature)
		return fmt.Errorf("%w: %s", ErrSimulated, res.Message)
	}
	pos.EntrySignature = string(res.Signature)
	return nil
}

// swap builds and submits a swap for quote.
func (m *Manager) swap(ctx context.Context, quote *marketdata.Quote, label string) (wallet.SendResult, error) {
	txBase64 := ""
	if pub, ok := m.deps.Signer.PublicKey(); ok {
		tx, err := m.deps.Market.BuildSwap(ctx, quote, string(pub))
		if err != nil {
			return wallet.SendResult{}, fmt.Errorf("build swap: %w", err)
		}
		txBase64 = tx.Transaction
	}
	return m.deps.Signer.SignAndSend(ctx, txBase64, wallet.SendOptions{Label: label})
}

// ---------------------------------------------------------------------------
// Exits
// ---------------------------------------------------------------------------

// Tick evaluates every position that was open when the tick started.
// Failures leave the position open for the next tick.
func (m *Manager) Tick(ctx context.Context) {
	for _, id := range m.openIDs() {
		if ctx.Err() != nil {
			return
		}
		posCtx, cancel := context.WithTimeout(ctx, m.config.TickTimeout)
		if err := m.evaluate(posCtx, id); err != nil {
			m.evalErrors.Add(1)
			log.Warn().Err(err).Str("pos_id", id).Msg("positions: exit evaluation failed, staying open")
		}
		cancel()
	}
}

func (m *Manager) openIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, id := range m.order {
		if m.positions[id].Status == StatusOpen {
			ids = append(ids, id)
		}
	}
	return ids
}

// claim marks a position busy; only the claimant mutates it.
func (m *Manager) claim(id string) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok || p.Status != StatusOpen || m.busy[id] {
		return Position{}, false
	}
	m.busy[id] = true
	return p.clone(), true
}

func (m *Manager) unclaim(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.busy, id)
}

func (m *Manager) evaluate(ctx context.Context, id string) error {
	pos, ok := m.claim(id)
	if !ok {
		return nil
	}
	defer m.unclaim(id)

	snap, err := m.deps.Market.Market(ctx, pos.Mint)
	if err != nil {
		return fmt.Errorf("price %s: %w", pos.Mint, err)
	}

	now := m.now()
	decision := m.config.Exits.Evaluate(pos, *snap, now)

	m.mu.Lock()
	p := m.positions[id]
	mult := p.Multiplier(snap.PriceSOL)
	if mult > p.PeakMultiplier {
		p.PeakMultiplier = mult
	}
	p.LastPrice = snap.PriceSOL
	p.UpdatedAt = now
	pos = p.clone()
	m.mu.Unlock()

	if !decision.Fires() {
		return nil
	}
	return m.exit(ctx, pos, decision)
}

// exit sells the decided share of a claimed position.
func (m *Manager) exit(ctx context.Context, pos Position, d ExitDecision) error {
	sellTokens := pos.TokenAmount
	if !d.Full {
		sellTokens = pos.TokenAmount.Mul(decimal.NewFromFloat(d.SellPct / 100)).Round(int32(pos.TokenDecimals))
	}
	raw := sellTokens.Shift(int32(pos.TokenDecimals)).IntPart()
	if raw <= 0 {
		return fmt.Errorf("sell %s: nothing to sell", pos.Mint)
	}

	log.Info().
		Str("pos_id", pos.ID).
		Str("mint", pos.Mint).
		Str("reason", d.Reason).
		Float64("sell_pct", d.SellPct).
		Float64("multiplier", pos.Multiplier(pos.LastPrice)).
		Msg("positions: EXECUTING SELL")

	quote, err := m.deps.Market.SwapQuote(ctx, marketdata.QuoteRequest{
		InputMint:   pos.Mint,
		OutputMint:  string(solana.SOLMint),
		Amount:      uint64(raw),
		SlippageBps: m.config.SlippageBps,
	})
	if err != nil {
		return fmt.Errorf("sell quote %s: %w", pos.Mint, err)
	}
	outLamports, err := decimal.NewFromString(quote.OutAmount)
	if err != nil {
		return fmt.Errorf("sell quote %s: bad out amount %q", pos.Mint, quote.OutAmount)
	}
	proceeds := outLamports.Shift(-9)

	res, err := m.swap(ctx, quote, "sell "+pos.Symbol+" "+d.Reason)
	if err != nil {
		return fmt.Errorf("sell %s: %w", pos.Mint, err)
	}
	if res.Simulated {
		return fmt.Errorf("sell %s: simulated signer cannot exit a live position", pos.Mint)
	}
	if !res.Confirmed {
		// Submitted but unconfirmed: recorded as sold so the next tick
		// does not sell the same tokens twice.
		log.Warn().Str("pos_id", pos.ID).Str("signature", string(res.Signature)).Msg("positions: sell unconfirmed, recording as executed")
	}

	if d.Full {
		return m.close(ctx, pos.ID, d.Reason, proceeds, string(res.Signature))
	}
	return m.partial(ctx, pos.ID, d, sellTokens, proceeds)
}

// partial applies a take-profit that leaves the position open.
func (m *Manager) partial(ctx context.Context, id string, d ExitDecision, sold, proceeds decimal.Decimal) error {
	m.mu.Lock()
	p := m.positions[id]
	frac := decimal.Zero
	if p.TokenAmount.IsPositive() {
		frac = sold.Div(p.TokenAmount)
	}
	p.AmountSOL = p.AmountSOL.Sub(p.AmountSOL.Mul(frac)).Round(9)
	p.TokenAmount = p.TokenAmount.Sub(sold)
	p.RealizedSOL = p.RealizedSOL.Add(proceeds)
	if d.Tier >= 0 && d.Tier < len(p.TPTiersHit) {
		p.TPTiersHit[d.Tier] = true
	}
	p.UpdatedAt = m.now()
	snapshot := p.clone()
	m.mu.Unlock()

	m.partials.Add(1)
	m.persist(ctx, snapshot)

	log.Info().
		Str("pos_id", id).
		Str("reason", d.Reason).
		Str("proceeds_sol", proceeds.StringFixed(4)).
		Str("remaining_sol", snapshot.AmountSOL.StringFixed(4)).
		Msg("positions: partial take-profit")
	return nil
}

// close finalizes a position and feeds its outcome to learning, except for
// forced exits.
func (m *Manager) close(ctx context.Context, id, reason string, proceeds decimal.Decimal, signature string) error {
	m.mu.Lock()
	p := m.positions[id]
	now := m.now()
	p.RealizedSOL = p.RealizedSOL.Add(proceeds)
	p.PnLSOL = p.RealizedSOL.Sub(p.InitialSOL)
	p.Status = StatusClosed
	p.ExitReason = reason
	p.ExitSignature = signature
	p.AmountSOL = decimal.Zero
	p.TokenAmount = decimal.Zero
	p.UpdatedAt = now
	p.ClosedAt = &now

	m.rollDayLocked()
	if p.PnLSOL.IsNegative() {
		m.dailyLoss = m.dailyLoss.Add(p.PnLSOL.Neg())
	}
	snapshot := p.clone()
	cb := m.onClose
	m.mu.Unlock()

	m.exits.Add(1)

	pnl := snapshot.PnLSOL.InexactFloat64()
	// An operator close says nothing about the entry signals.
	if m.deps.Learning != nil && reason != ReasonForceClose {
		if err := m.deps.Learning.RecordOutcome(ctx, snapshot.EntrySignals, pnl); err != nil {
			log.Warn().Err(err).Str("pos_id", id).Msg("positions: learning update failed")
		}
	}
	m.persist(ctx, snapshot)
	if cb != nil {
		cb(snapshot)
	}

	log.Info().
		Str("pos_id", id).
		Str("mint", snapshot.Mint).
		Str("reason", reason).
		Str("pnl_sol", snapshot.PnLSOL.StringFixed(4)).
		Float64("peak", snapshot.PeakMultiplier).
		Msg("positions: position CLOSED")
	return nil
}

// ForceCloseAll sells every open position, typically at shutdown.
func (m *Manager) ForceCloseAll(ctx context.Context) int {
	closed := 0
	for _, id := range m.openIDs() {
		pos, ok := m.claim(id)
		if !ok {
			continue
		}
		err := m.exit(ctx, pos, ExitDecision{Reason: ReasonForceClose, SellPct: 100, Full: true, Tier: -1})
		m.unclaim(id)
		if err != nil {
			log.Error().Err(err).Str("pos_id", id).Msg("positions: force close failed")
			continue
		}
		closed++
	}
	return closed
}

func (m *Manager) persist(ctx context.Context, p Position) {
	if m.deps.Store == nil {
		return
	}
	if err := m.deps.Store.SavePosition(ctx, p); err != nil {
		log.Warn().Err(err).Str("pos_id", p.ID).Msg("positions: persist failed")
	}
}

// pruneFailedLocked drops the oldest failed records beyond MaxFailedKept.
func (m *Manager) pruneFailedLocked() {
	failed := 0
	for _, id := range m.order {
		if m.positions[id].Status == StatusFailed {
			failed++
		}
	}
	if failed <= m.config.MaxFailedKept {
		return
	}
	drop := failed - m.config.MaxFailedKept
	kept := m.order[:0]
	for _, id := range m.order {
		if drop > 0 && m.positions[id].Status == StatusFailed {
			delete(m.positions, id)
			drop--
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

func (m *Manager) rollDayLocked() {
	if day := startOfDay(m.now()); !day.Equal(m.dayStart) {
		m.dayStart = day
		m.dailyLoss = decimal.Zero
	}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ---------------------------------------------------------------------------
// Read side
// ---------------------------------------------------------------------------

// Positions returns copies of all positions, oldest first.
func (m *Manager) Positions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.positions[id].clone())
	}
	return out
}

// OpenPositions returns copies of open positions, oldest first.
func (m *Manager) OpenPositions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Position
	for _, id := range m.order {
		if p := m.positions[id]; p.Status == StatusOpen {
			out = append(out, p.clone())
		}
	}
	return out
}

// Exposure returns the SOL committed to open positions.
func (m *Manager) Exposure() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, p := range m.positions {
		if p.Status == StatusOpen {
			total = total.Add(p.AmountSOL)
		}
	}
	return total
}

// Performance summarizes realized results.
type Performance struct {
	TotalTrades   int     `json:"total_trades"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"win_rate"` // percent
	TotalPnLSOL   string  `json:"total_pnl_sol"`
	BestTradeSOL  string  `json:"best_trade_sol"`
	WorstTradeSOL string  `json:"worst_trade_sol"`
	OpenPositions int     `json:"open_positions"`
	ExposureSOL   string  `json:"exposure_sol"`
	FailedEntries int     `json:"failed_entries"`
	DailyLossSOL  string  `json:"daily_loss_sol"`
}

func (m *Manager) Performance() Performance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		perf     Performance
		total    = decimal.Zero
		exposure = decimal.Zero
		best     *decimal.Decimal
		worst    *decimal.Decimal
	)
	for _, p := range m.positions {
		switch p.Status {
		case StatusOpen:
			perf.OpenPositions++
			exposure = exposure.Add(p.AmountSOL)
		case StatusFailed:
			perf.FailedEntries++
		case StatusClosed:
			perf.TotalTrades++
			if p.PnLSOL.IsPositive() {
				perf.Wins++
			} else {
				perf.Losses++
			}
			pnl := p.PnLSOL
			total = total.Add(pnl)
			if best == nil || pnl.GreaterThan(*best) {
				best = &pnl
			}
			if worst == nil || pnl.LessThan(*worst) {
				worst = &pnl
			}
		}
	}
	if perf.TotalTrades > 0 {
		perf.WinRate = float64(perf.Wins) / float64(perf.TotalTrades) * 100
	}
	perf.TotalPnLSOL = total.StringFixed(4)
	perf.ExposureSOL = exposure.StringFixed(4)
	perf.DailyLossSOL = m.dailyLoss.StringFixed(4)
	if best != nil {
		perf.BestTradeSOL = best.StringFixed(4)
		perf.WorstTradeSOL = worst.StringFixed(4)
	}
	return perf
}

// ManagerStats are operational counters.
type ManagerStats struct {
	Entries    int64 `json:"entries"`
	Failed     int64 `json:"failed"`
	Simulated  int64 `json:"simulated"`
	Exits      int64 `json:"exits"`
	Partials   int64 `json:"partials"`
	EvalErrors int64 `json:"eval_errors"`
}

func (m *Manager) Stats() ManagerStats {
	return ManagerStats{
		Entries:    m.entries.Load(),
		Failed:     m.failed.Load(),
		Simulated:  m.simulated.Load(),
		Exits:      m.exits.Load(),
		Partials:   m.partials.Load(),
		EvalErrors: m.evalErrors.Load(),
	}
}
