// Package memory implements the storage contracts in process memory.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ghost-trader/ghost/internal/learning"
	"github.com/ghost-trader/ghost/internal/positions"
	"github.com/ghost-trader/ghost/internal/smartmoney"
	"github.com/ghost-trader/ghost/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu        sync.RWMutex
	positions map[string]positions.Position  // keyed by position ID
	signals   map[string]learning.SignalStat // keyed by signal name
	wallets   map[string]smartmoney.Wallet   // keyed by address
}

// New creates an empty store.
func New() *Store {
	return &Store{
		positions: make(map[string]positions.Position),
		signals:   make(map[string]learning.SignalStat),
		wallets:   make(map[string]smartmoney.Wallet),
	}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

func (s *Store) SavePosition(_ context.Context, p positions.Position) error {
	if p.ID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.ID] = copyPosition(p)
	return nil
}

func (s *Store) GetPosition(_ context.Context, id string) (*positions.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := copyPosition(p)
	return &cp, nil
}

func (s *Store) ListPositions(_ context.Context, status positions.Status) ([]positions.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]positions.Position, 0, len(s.positions))
	for _, p := range s.positions {
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, copyPosition(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SaveSignalStats(_ context.Context, stats []learning.SignalStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stats {
		if st.Signal == "" {
			return storage.ErrInvalidInput
		}
		s.signals[st.Signal] = st
	}
	return nil
}

func (s *Store) LoadSignalStats(_ context.Context) ([]learning.SignalStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]learning.SignalStat, 0, len(s.signals))
	for _, st := range s.signals {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signal < out[j].Signal })
	return out, nil
}

func (s *Store) SaveWallet(_ context.Context, w smartmoney.Wallet) error {
	if w.Address == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[w.Address] = w
	return nil
}

func (s *Store) DeleteWallet(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[address]; !ok {
		return storage.ErrNotFound
	}
	delete(s.wallets, address)
	return nil
}

func (s *Store) ListWallets(_ context.Context) ([]smartmoney.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]smartmoney.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (s *Store) Close() {}

func copyPosition(p positions.Position) positions.Position {
	p.EntrySignals = append([]string(nil), p.EntrySignals...)
	p.TPTiersHit = append([]bool(nil), p.TPTiersHit...)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		p.ClosedAt = &t
	}
	return p
}
