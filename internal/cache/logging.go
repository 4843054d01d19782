package cache

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"imgopt-gateway/internal/metrics"
	"imgopt-gateway/pkg/logging/logging"
)

// LoggingStore wraps a Store with logging + metrics.
type LoggingStore struct {
	inner  Store
	logger *zap.Logger
}

// NewLoggingStore returns a store that logs and records metrics. Request-scoped
// loggers in ctx take precedence over logger.
func NewLoggingStore(inner Store, logger *zap.Logger) *LoggingStore {
	return &LoggingStore{inner: inner, logger: logger}
}

func (s *LoggingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := s.inner.Get(ctx, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	ns := namespace(key)
	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
	}
	metrics.CacheLookupsTotal.WithLabelValues(ns, result).Inc()

	fields := []zap.Field{
		zap.String("cache_namespace", ns),
		zap.String("cache_key", key),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	}

	logger := logging.FromContext(ctx, s.logger)
	if err != nil {
		logger.Error("cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Info("cache_get", fields...)
	}

	return value, ok, err
}

func (s *LoggingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := s.inner.Set(ctx, key, value, ttl)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	fields := []zap.Field{
		zap.String("cache_namespace", namespace(key)),
		zap.String("cache_key", key),
		zap.Int("bytes", len(value)),
		zap.Duration("ttl", ttl),
		zap.Float64("latency_ms", latencyMs),
	}

	logger := logging.FromContext(ctx, s.logger)
	if err != nil {
		logger.Error("cache_set", append(fields, zap.Error(err))...)
	} else {
		logger.Info("cache_set", fields...)
	}

	return err
}

func (s *LoggingStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.inner.Keys(ctx, pattern)
	if err != nil {
		logging.FromContext(ctx, s.logger).Error("cache_keys", zap.String("pattern", pattern), zap.Error(err))
	}
	return keys, err
}

func (s *LoggingStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	n, err := s.inner.Delete(ctx, keys...)
	logger := logging.FromContext(ctx, s.logger)
	if err != nil {
		logger.Error("cache_delete", zap.Int("requested", len(keys)), zap.Error(err))
	} else {
		logger.Info("cache_delete", zap.Int("requested", len(keys)), zap.Int64("deleted", n))
	}
	return n, err
}

func (s *LoggingStore) Usage(ctx context.Context, key string) (int64, error) {
	return s.inner.Usage(ctx, key)
}

func (s *LoggingStore) Ping(ctx context.Context) error {
	err := s.inner.Ping(ctx)
	if err != nil {
		logging.FromContext(ctx, s.logger).Warn("cache_ping", zap.Error(err))
	}
	return err
}

// Close closes the wrapped store when it holds resources.
func (s *LoggingStore) Close() error {
	if c, ok := s.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
