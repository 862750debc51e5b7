// Package redis keeps the live scan snapshot in Redis so that every
// instance's diagnostics surface sees the same latest scan.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ghost-trader/ghost/internal/storage"
)

const (
	defaultKey = "ghost:scan:latest"
	defaultTTL = 15 * time.Minute
)

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string        // defaults to ghost:scan:latest
	TTL      time.Duration // snapshot expiry, defaults to 15m
}

// ScanStore implements storage.ScanStore on a Redis string key.
type ScanStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ storage.ScanStore = (*ScanStore)(nil)

// NewScanStore connects and pings Redis.
func NewScanStore(ctx context.Context, opts Options) (*ScanStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", opts.Addr, err)
	}

	return newScanStore(client, opts), nil
}

func newScanStore(client *redis.Client, opts Options) *ScanStore {
	s := &ScanStore{client: client, key: opts.Key, ttl: opts.TTL}
	if s.key == "" {
		s.key = defaultKey
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	return s
}

func (s *ScanStore) SaveScan(ctx context.Context, snap storage.ScanSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal scan snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

func (s *ScanStore) LatestScan(ctx context.Context) (*storage.ScanSnapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	var snap storage.ScanSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode scan snapshot: %w", err)
	}
	return &snap, nil
}

// Close closes the client.
func (s *ScanStore) Close() error {
	return s.client.Close()
}
