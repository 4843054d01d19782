package cache

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"go.uber.org/zap"

	"imgopt-gateway/internal/errs"
	"imgopt-gateway/internal/transform"
	"imgopt-gateway/pkg/logging/logging"
)

const (
	DefaultTTL = 7 * 24 * time.Hour

	// statsSampleSize bounds the MEMORY USAGE calls made by Stats.
	statsSampleSize = 100
)

// Entry is the stored record of one computed optimisation.
type Entry struct {
	OriginalHash     string             `json:"original_hash"`
	Metadata         transform.Metadata `json:"metadata"`
	Output           []byte             `json:"output"`
	ProcessingTimeMs float64            `json:"processing_time_ms"`
	CachedAt         time.Time          `json:"cached_at"`
	ExpiresAt        time.Time          `json:"expires_at"`
}

type Stats struct {
	Enabled            bool    `json:"enabled"`
	TotalKeys          int     `json:"total_keys"`
	RequestKeys        int     `json:"request_keys"`
	ContentKeys        int     `json:"content_keys"`
	SampledKeys        int     `json:"sampled_keys"`
	EstimatedSizeBytes int64   `json:"estimated_size_bytes"`
	EstimatedSizeMB    float64 `json:"estimated_size_mb"`
}

// Coordinator stores Entries under request and content keys. Store failures on
// the read and write paths are logged and degrade to misses; they never fail
// an optimisation.
type Coordinator struct {
	store   Store
	ttl     time.Duration
	enabled bool
	logger  *zap.Logger
}

// NewCoordinator wraps store; a nil store or NoopStore disables caching.
func NewCoordinator(store Store, ttl time.Duration, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	enabled := true
	switch store.(type) {
	case nil:
		store, enabled = NoopStore{}, false
	case NoopStore:
		enabled = false
	}

	return &Coordinator{
		store:   store,
		ttl:     ttl,
		enabled: enabled,
		logger:  logger.Named("cache"),
	}
}

func (c *Coordinator) Enabled() bool { return c.enabled }

func (c *Coordinator) TTL() time.Duration { return c.ttl }

// Get returns the entry under key. Store or decode failures are misses.
func (c *Coordinator) Get(ctx context.Context, key string) (*Entry, bool) {
	if !c.enabled {
		return nil, false
	}

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log(ctx).Warn("cache read failed, treating as miss",
			zap.String("cache_key", key),
			zap.Error(errs.Wrap(errs.ErrCacheUnavailable, "get", err)),
		)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.log(ctx).Warn("corrupt cache entry, treating as miss",
			zap.String("cache_key", key),
			zap.Error(err),
		)
		return nil, false
	}
	return &entry, true
}

// Put stores entry under key with the coordinator TTL.
func (c *Coordinator) Put(ctx context.Context, key string, entry *Entry) error {
	return c.put(ctx, []string{key}, entry)
}

// PutBoth writes the same entry under both keys with one TTL. The two writes are
// independent: a failure of either leaves the other in place.
func (c *Coordinator) PutBoth(ctx context.Context, requestKey, contentKey string, entry *Entry) error {
	return c.put(ctx, []string{requestKey, contentKey}, entry)
}

func (c *Coordinator) put(ctx context.Context, keys []string, entry *Entry) error {
	if !c.enabled || entry == nil {
		return nil
	}

	now := time.Now().UTC()
	entry.CachedAt = now
	entry.ExpiresAt = now.Add(c.ttl)

	raw, err := json.Marshal(entry)
	if err != nil {
		return errs.Wrap(errs.ErrCacheUnavailable, "encode entry", err)
	}

	var firstErr error
	for _, key := range keys {
		if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
			c.log(ctx).Warn("cache write failed",
				zap.String("cache_key", key),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = errs.Wrap(errs.ErrCacheUnavailable, "set", err)
			}
		}
	}
	return firstErr
}

// Stats counts request and content keys and sums the footprint of the first
// statsSampleSize of them.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	if !c.enabled {
		return Stats{Enabled: false}, nil
	}

	requestKeys, err := c.store.Keys(ctx, RequestPrefix+":*")
	if err != nil {
		return Stats{Enabled: true}, errs.Wrap(errs.ErrCacheUnavailable, "list request keys", err)
	}
	contentKeys, err := c.store.Keys(ctx, ContentPrefix+":*")
	if err != nil {
		return Stats{Enabled: true}, errs.Wrap(errs.ErrCacheUnavailable, "list content keys", err)
	}

	keys := append(requestKeys, contentKeys...)
	st := Stats{
		Enabled:     true,
		TotalKeys:   len(keys),
		RequestKeys: len(requestKeys),
		ContentKeys: len(contentKeys),
	}

	for _, key := range keys[:min(len(keys), statsSampleSize)] {
		n, err := c.store.Usage(ctx, key)
		if err != nil {
			c.log(ctx).Debug("memory usage unavailable", zap.String("cache_key", key), zap.Error(err))
			continue
		}
		st.EstimatedSizeBytes += n
		st.SampledKeys++
	}
	st.EstimatedSizeMB = transform.Round2(float64(st.EstimatedSizeBytes) / (1024 * 1024))

	return st, nil
}

// Clear deletes keys matching pattern (DefaultClearPattern when empty).
// Matching nothing is not an error.
func (c *Coordinator) Clear(ctx context.Context, pattern string) (int64, error) {
	if !c.enabled {
		return 0, nil
	}
	if pattern == "" {
		pattern = DefaultClearPattern
	}

	keys, err := c.store.Keys(ctx, pattern)
	if err != nil {
		return 0, errs.Wrap(errs.ErrCacheUnavailable, "list keys", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := c.store.Delete(ctx, keys...)
	if err != nil {
		return 0, errs.Wrap(errs.ErrCacheUnavailable, "delete keys", err)
	}
	c.log(ctx).Info("cache cleared", zap.String("pattern", pattern), zap.Int64("deleted_keys", n))
	return n, nil
}

// Ping checks the backing store.
func (c *Coordinator) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return errs.Wrap(errs.ErrCacheUnavailable, "ping", err)
	}
	return nil
}

func (c *Coordinator) Close() error {
	if cl, ok := c.store.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func (c *Coordinator) log(ctx context.Context) *zap.Logger {
	return logging.FromContext(ctx, c.logger)
}
