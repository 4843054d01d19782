package cache

import (
	"context"
	"time"
)

// Store is a byte key-value store with per-key TTL and glob key listing.
// Implemented by memory store (dev, tests) and Redis store (prod).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Keys lists keys matching a Redis-style glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Delete removes keys and reports how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)
	// Usage is the approximate memory footprint of a key in bytes; 0 if absent.
	Usage(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
}

// NoopStore is used when caching is disabled: every read misses, writes vanish.
type NoopStore struct{}

func (NoopStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NoopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NoopStore) Keys(context.Context, string) ([]string, error) { return nil, nil }
func (NoopStore) Delete(context.Context, ...string) (int64, error) { return 0, nil }
func (NoopStore) Usage(context.Context, string) (int64, error) { return 0, nil }
func (NoopStore) Ping(context.Context) error { return nil }
