package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ghost-trader/ghost/internal/learning"
	"github.com/ghost-trader/ghost/internal/positions"
	"github.com/ghost-trader/ghost/internal/smartmoney"
	"github.com/ghost-trader/ghost/internal/storage"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	pool *Pool
}

// NewStore creates a store on pool.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

func (s *Store) Close() { s.pool.Close() }

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

const positionColumns = `
	id, mint, symbol, status, entry_price_sol,
	initial_sol::text, amount_sol::text, token_amount::text, token_decimals,
	entry_score, entry_reason, entry_signals, exit_reason, fail_reason,
	realized_sol::text, pnl_sol::text, peak_multiplier, last_price, tp_tiers_hit,
	entry_signature, exit_signature, created_at, updated_at, closed_at`

// SavePosition upserts p by ID.
func (s *Store) SavePosition(ctx context.Context, p positions.Position) error {
	if p.ID == "" {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO positions (
			id, mint, symbol, status, entry_price_sol,
			initial_sol, amount_sol, token_amount, token_decimals,
			entry_score, entry_reason, entry_signals, exit_reason, fail_reason,
			realized_sol, pnl_sol, peak_multiplier, last_price, tp_tiers_hit,
			entry_signature, exit_signature, created_at, updated_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::numeric, $7::numeric, $8::numeric, $9,
			$10, $11, $12, $13, $14,
			$15::numeric, $16::numeric, $17, $18, $19,
			$20, $21, $22, $23, $24
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			entry_price_sol = EXCLUDED.entry_price_sol,
			amount_sol = EXCLUDED.amount_sol,
			token_amount = EXCLUDED.token_amount,
			token_decimals = EXCLUDED.token_decimals,
			exit_reason = EXCLUDED.exit_reason,
			fail_reason = EXCLUDED.fail_reason,
			realized_sol = EXCLUDED.realized_sol,
			pnl_sol = EXCLUDED.pnl_sol,
			peak_multiplier = EXCLUDED.peak_multiplier,
			last_price = EXCLUDED.last_price,
			tp_tiers_hit = EXCLUDED.tp_tiers_hit,
			entry_signature = EXCLUDED.entry_signature,
			exit_signature = EXCLUDED.exit_signature,
			updated_at = EXCLUDED.updated_at,
			closed_at = EXCLUDED.closed_at
	`

	signals := p.EntrySignals
	if signals == nil {
		signals = []string{}
	}
	tiers := p.TPTiersHit
	if tiers == nil {
		tiers = []bool{}
	}

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Mint, p.Symbol, string(p.Status), p.EntryPriceSOL,
		p.InitialSOL.String(), p.AmountSOL.String(), p.TokenAmount.String(), p.TokenDecimals,
		p.EntryScore, p.EntryReason, signals, p.ExitReason, p.FailReason,
		p.RealizedSOL.String(), p.PnLSOL.String(), p.PeakMultiplier, p.LastPrice, tiers,
		p.EntrySignature, p.ExitSignature, p.CreatedAt, p.UpdatedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", p.ID, err)
	}
	return nil
}

// GetPosition returns ErrNotFound for unknown IDs.
func (s *Store) GetPosition(ctx context.Context, id string) (*positions.Position, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position %s: %w", id, err)
	}
	return p, nil
}

// ListPositions returns positions ordered by created_at. An empty status
// lists all.
func (s *Store) ListPositions(ctx context.Context, status positions.Status) ([]positions.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []positions.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return out, nil
}

func scanPosition(row pgx.Row) (*positions.Position, error) {
	var (
		p                                      positions.Position
		status                                 string
		initial, amount, tokens, realized, pnl string
	)
	err := row.Scan(
		&p.ID, &p.Mint, &p.Symbol, &status, &p.EntryPriceSOL,
		&initial, &amount, &tokens, &p.TokenDecimals,
		&p.EntryScore, &p.EntryReason, &p.EntrySignals, &p.ExitReason, &p.FailReason,
		&realized, &pnl, &p.PeakMultiplier, &p.LastPrice, &p.TPTiersHit,
		&p.EntrySignature, &p.ExitSignature, &p.CreatedAt, &p.UpdatedAt, &p.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = positions.Status(status)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&p.InitialSOL, initial},
		{&p.AmountSOL, amount},
		{&p.TokenAmount, tokens},
		{&p.RealizedSOL, realized},
		{&p.PnLSOL, pnl},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("parse numeric %q: %w", f.src, err)
		}
		*f.dst = d
	}
	return &p, nil
}

// ---------------------------------------------------------------------------
// Signal stats
// ---------------------------------------------------------------------------

// SaveSignalStats upserts stats in one transaction.
func (s *Store) SaveSignalStats(ctx context.Context, stats []learning.SignalStat) error {
	if len(stats) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO signal_stats (signal, trades, wins, losses, total_pnl, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (signal) DO UPDATE SET
			trades = EXCLUDED.trades,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			total_pnl = EXCLUDED.total_pnl,
			updated_at = EXCLUDED.updated_at
	`
	batch := &pgx.Batch{}
	for _, st := range stats {
		if st.Signal == "" {
			return storage.ErrInvalidInput
		}
		updated := st.UpdatedAt
		if updated.IsZero() {
			updated = time.Now()
		}
		batch.Queue(query, st.Signal, st.Trades, st.Wins, st.Losses, st.TotalPnL, updated)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert signal stats: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit signal stats: %w", err)
	}
	return nil
}

// LoadSignalStats returns raw counters ordered by signal. Derived fields
// are recomputed by the learning store on Load.
func (s *Store) LoadSignalStats(ctx context.Context) ([]learning.SignalStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT signal, trades, wins, losses, total_pnl, updated_at
		FROM signal_stats
		ORDER BY signal ASC`)
	if err != nil {
		return nil, fmt.Errorf("load signal stats: %w", err)
	}
	defer rows.Close()

	var out []learning.SignalStat
	for rows.Next() {
		var st learning.SignalStat
		if err := rows.Scan(&st.Signal, &st.Trades, &st.Wins, &st.Losses, &st.TotalPnL, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan signal stat: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Smart-money wallets
// ---------------------------------------------------------------------------

// SaveWallet upserts w by address.
func (s *Store) SaveWallet(ctx context.Context, w smartmoney.Wallet) error {
	if w.Address == "" {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO smart_money_wallets (
			address, label, win_rate, total_pnl_sol, avg_hold_minutes,
			preferred_mcap, source, added_at, last_seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (address) DO UPDATE SET
			label = EXCLUDED.label,
			win_rate = EXCLUDED.win_rate,
			total_pnl_sol = EXCLUDED.total_pnl_sol,
			avg_hold_minutes = EXCLUDED.avg_hold_minutes,
			preferred_mcap = EXCLUDED.preferred_mcap,
			source = EXCLUDED.source,
			last_seen_at = EXCLUDED.last_seen_at
	`
	_, err := s.pool.Exec(ctx, query,
		w.Address, w.Label, w.WinRate, w.TotalPnLSOL, w.AvgHoldMinutes,
		string(w.PreferredMcap), string(w.Source), w.AddedAt, w.LastSeenAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("upsert wallet %s: %w", w.Address, err)
	}
	return nil
}

// DeleteWallet returns ErrNotFound for unknown addresses.
func (s *Store) DeleteWallet(ctx context.Context, address string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM smart_money_wallets WHERE address = $1`, address)
	if err != nil {
		return fmt.Errorf("delete wallet %s: %w", address, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListWallets returns all wallets ordered by address.
func (s *Store) ListWallets(ctx context.Context) ([]smartmoney.Wallet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, label, win_rate, total_pnl_sol, avg_hold_minutes,
			preferred_mcap, source, added_at, last_seen_at
		FROM smart_money_wallets
		ORDER BY address ASC`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var out []smartmoney.Wallet
	for rows.Next() {
		var (
			w            smartmoney.Wallet
			mcap, source string
		)
		if err := rows.Scan(&w.Address, &w.Label, &w.WinRate, &w.TotalPnLSOL, &w.AvgHoldMinutes,
			&mcap, &source, &w.AddedAt, &w.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		w.PreferredMcap = smartmoney.McapRange(mcap)
		w.Source = smartmoney.Source(source)
		out = append(out, w)
	}
	return out, rows.Err()
}
