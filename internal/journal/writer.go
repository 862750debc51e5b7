package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ghost-trader/ghost/internal/scorer"
)

const evaluationsTable = "ghost_evaluations"

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("journal: writer is closed")

// Evaluation is one scoring decision with the inputs that produced it.
type Evaluation struct {
	At       time.Time
	Instance string
	Input    scorer.Input
	Result   scorer.Result
}

// FlushFunc receives a batch of rows for table. It replaces the ClickHouse
// insert, which is how tests observe flushes.
type FlushFunc func(ctx context.Context, table string, rows [][]any) error

// Writer batches evaluations and flushes them periodically or when the
// batch is full.
type Writer struct {
	client        *Client
	table         string
	batchSize     int
	flushInterval time.Duration
	flushHook     FlushFunc

	mu         sync.Mutex
	buf        []Evaluation
	closed     bool
	written    int64
	flushCount int64
	errorCount int64
}

// NewWriter creates a writer for database.ghost_evaluations. client may
// be nil when a flush hook is set.
func NewWriter(client *Client, database string, batchSize int, flushInterval time.Duration) *Writer {
	if batchSize <= 0 {
		batchSize = 500
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Writer{
		client:        client,
		table:         database + "." + evaluationsTable,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		buf:           make([]Evaluation, 0, batchSize),
	}
}

// SetFlushHook replaces the ClickHouse insert.
func (w *Writer) SetFlushHook(fn FlushFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushHook = fn
}

// Record buffers one evaluation. A full buffer is flushed inline.
func (w *Writer) Record(ctx context.Context, e Evaluation) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	w.buf = append(w.buf, e)
	full := len(w.buf) >= w.batchSize
	w.mu.Unlock()

	// Evaluations recorded while the engine drains after shutdown must
	// still land.
	if full {
		return w.Flush(context.WithoutCancel(ctx))
	}
	return nil
}

// Start runs the periodic flush loop until ctx is cancelled, then flushes
// what is left.
func (w *Writer) Start(ctx context.Context) {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	log.Info().
		Str("table", w.table).
		Int("batch_size", w.batchSize).
		Dur("flush_interval", w.flushInterval).
		Msg("journal: writer started")

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			if err := w.Flush(flushCtx); err != nil {
				log.Error().Err(err).Msg("journal: final flush failed")
			}
			cancel()
			return
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				log.Error().Err(err).Msg("journal: periodic flush failed")
			}
		}
	}
}

// Flush writes all buffered evaluations. Rows of a failed flush are
// dropped; the journal is best-effort and never blocks trading.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	pending := w.buf
	w.buf = make([]Evaluation, 0, w.batchSize)
	hook := w.flushHook
	w.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(pending))
	for _, e := range pending {
		row, err := toRow(e)
		if err != nil {
			log.Warn().Err(err).Str("mint", e.Result.Mint).Msg("journal: skipping unencodable evaluation")
			continue
		}
		rows = append(rows, row)
	}

	var err error
	switch {
	case hook != nil:
		err = hook(ctx, w.table, rows)
	case w.client != nil:
		err = w.insert(ctx, rows)
	default:
		err = errors.New("journal: no clickhouse client configured")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushCount++
	if err != nil {
		w.errorCount++
		log.Error().Err(err).Int("count", len(rows)).Msg("journal: failed to flush evaluations")
		return err
	}
	w.written += int64(len(rows))
	log.Debug().Int("rows", len(rows)).Int64("total_flushes", w.flushCount).Msg("journal: batch flushed")
	return nil
}

func (w *Writer) insert(ctx context.Context, rows [][]any) error {
	batch, err := w.client.conn.PrepareBatch(ctx,
		"INSERT INTO "+w.table+" (ts, instance, mint, symbol, score, verdict, reasons, red_flags, signals, breakdown, input)")
	if err != nil {
		return fmt.Errorf("prepare evaluation batch: %w", err)
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("append evaluation: %w", err)
		}
	}
	return batch.Send()
}

func toRow(e Evaluation) ([]any, error) {
	breakdown, err := json.Marshal(e.Result.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("encode breakdown: %w", err)
	}
	input, err := json.Marshal(e.Input)
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}
	return []any{
		e.At.UTC(),
		e.Instance,
		e.Result.Mint,
		e.Result.Symbol,
		e.Result.Score,
		string(e.Result.Verdict),
		nonNil(e.Result.Reasons),
		nonNil(e.Result.RedFlags),
		nonNil(e.Result.Signals),
		string(breakdown),
		string(input),
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Close marks the writer closed. Buffered rows are flushed by Start on
// cancellation, or by an explicit Flush.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	log.Info().
		Int64("written", w.written).
		Int64("total_flushes", w.flushCount).
		Int64("errors", w.errorCount).
		Msg("journal: writer closed")
	return nil
}

// WriterStats are journal counters.
type WriterStats struct {
	Written int64 `json:"written"`
	Flushes int64 `json:"flushes"`
	Errors  int64 `json:"errors"`
	Pending int   `json:"pending"`
}

func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WriterStats{
		Written: w.written,
		Flushes: w.flushCount,
		Errors:  w.errorCount,
		Pending: len(w.buf),
	}
}
