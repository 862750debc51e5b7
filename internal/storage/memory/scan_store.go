package memory

import (
	"context"
	"sync"

	"github.com/ghost-trader/ghost/internal/scorer"
	"github.com/ghost-trader/ghost/internal/storage"
)

// ScanStore keeps the latest scan snapshot in memory.
type ScanStore struct {
	mu     sync.RWMutex
	latest *storage.ScanSnapshot
}

func NewScanStore() *ScanStore { return &ScanStore{} }

var _ storage.ScanStore = (*ScanStore)(nil)

func (s *ScanStore) SaveScan(_ context.Context, snap storage.ScanSnapshot) error {
	snap.Results = append([]scorer.Result(nil), snap.Results...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &snap
	return nil
}

func (s *ScanStore) LatestScan(_ context.Context) (*storage.ScanSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, storage.ErrNotFound
	}
	cp := *s.latest
	cp.Results = append([]scorer.Result(nil), s.latest.Results...)
	return &cp, nil
}
