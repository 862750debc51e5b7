// Package positions owns trading positions: risk-checked entries, exit
// evaluation on every tick and realized P&L.
package positions

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a position. Closed and failed are
// terminal.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
	StatusFailed Status = "failed"
)

// Exit reasons.
const (
	ReasonStopLoss     = "stop_loss"
	ReasonDeadPosition = "dead_position"
	ReasonTrailingStop = "trailing_stop"
	ReasonForceClose   = "force_close"
	reasonTakeProfit   = "take_profit_"
)

// TakeProfitReason names the exit reason of a take-profit tier, e.g.
// take_profit_1.5x.
func TakeProfitReason(multiplier float64) string {
	return reasonTakeProfit + strconv.FormatFloat(multiplier, 'f', -1, 64) + "x"
}

var (
	ErrExposureLimit  = errors.New("positions: exposure limit reached")
	ErrMaxPositions   = errors.New("positions: max open positions reached")
	ErrDailyLossLimit = errors.New("positions: daily loss limit reached")
	ErrAlreadyOpen    = errors.New("positions: mint already has an open position")
	ErrNotBuy         = errors.New("positions: verdict is not BUY")
	ErrSimulated      = errors.New("positions: simulated execution, no position opened")
	ErrEntryFailed    = errors.New("positions: entry failed")
)

// Position is one trade from entry to exit. AmountSOL is the cost basis
// still at risk; partial take-profits reduce it.
type Position struct {
	ID             string          `json:"id"`
	Mint           string          `json:"mint"`
	Symbol         string          `json:"symbol"`
	Status         Status          `json:"status"`
	EntryPriceSOL  float64         `json:"entry_price_sol"`
	InitialSOL     decimal.Decimal `json:"initial_sol"`
	AmountSOL      decimal.Decimal `json:"amount_sol"`
	TokenAmount    decimal.Decimal `json:"token_amount"`
	TokenDecimals  int             `json:"token_decimals"`
	EntryScore     float64         `json:"entry_score"`
	EntryReason    string          `json:"entry_reason"`
	EntrySignals   []string        `json:"entry_signals"`
	ExitReason     string          `json:"exit_reason,omitempty"`
	FailReason     string          `json:"fail_reason,omitempty"`
	RealizedSOL    decimal.Decimal `json:"realized_sol"` // proceeds of partial sells
	PnLSOL         decimal.Decimal `json:"pnl_sol"`
	PeakMultiplier float64         `json:"peak_multiplier"`
	LastPrice      float64         `json:"last_price"`
	TPTiersHit     []bool          `json:"tp_tiers_hit"`
	EntrySignature string          `json:"entry_signature,omitempty"`
	ExitSignature  string          `json:"exit_signature,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
}

// Multiplier returns price relative to the entry price.
func (p Position) Multiplier(price float64) float64 {
	if p.EntryPriceSOL <= 0 {
		return 0
	}
	return price / p.EntryPriceSOL
}

// clone returns a deep copy safe to hand out.
func (p *Position) clone() Position {
	cp := *p
	cp.EntrySignals = append([]string(nil), p.EntrySignals...)
	cp.TPTiersHit = append([]bool(nil), p.TPTiersHit...)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		cp.ClosedAt = &t
	}
	return cp
}

func (p Position) String() string {
	return fmt.Sprintf("%s(%s %s %s SOL)", p.ID, p.Symbol, p.Status, p.AmountSOL.StringFixed(4))
}
