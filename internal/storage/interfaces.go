// Package storage defines the persistence contracts of the engine.
// Implementations live in the memory, postgres and redis subpackages.
package storage

import (
	"context"
	"time"

	"github.com/ghost-trader/ghost/internal/learning"
	"github.com/ghost-trader/ghost/internal/positions"
	"github.com/ghost-trader/ghost/internal/scorer"
	"github.com/ghost-trader/ghost/internal/smartmoney"
)

// PositionStore persists positions. Saves are upserts keyed by ID.
type PositionStore interface {
	SavePosition(ctx context.Context, p positions.Position) error

	// GetPosition returns ErrNotFound for unknown IDs.
	GetPosition(ctx context.Context, id string) (*positions.Position, error)

	// ListPositions returns positions ordered by creation time. An empty
	// status lists all.
	ListPositions(ctx context.Context, status positions.Status) ([]positions.Position, error)
}

// SignalStatStore persists learning statistics.
type SignalStatStore interface {
	SaveSignalStats(ctx context.Context, stats []learning.SignalStat) error
	LoadSignalStats(ctx context.Context) ([]learning.SignalStat, error)
}

// WalletStore persists the smart-money registry.
type WalletStore interface {
	SaveWallet(ctx context.Context, w smartmoney.Wallet) error

	// DeleteWallet returns ErrNotFound for unknown addresses.
	DeleteWallet(ctx context.Context, address string) error
	ListWallets(ctx context.Context) ([]smartmoney.Wallet, error)
}

// Store bundles the durable stores.
type Store interface {
	PositionStore
	SignalStatStore
	WalletStore
	Close()
}

// ScanSnapshot is the result set of one scan cycle.
type ScanSnapshot struct {
	At      time.Time       `json:"at"`
	Results []scorer.Result `json:"results"`
}

// ScanStore holds the latest scan snapshot for readers.
type ScanStore interface {
	SaveScan(ctx context.Context, snap ScanSnapshot) error

	// LatestScan returns ErrNotFound before the first scan completes.
	LatestScan(ctx context.Context) (*ScanSnapshot, error)
}
