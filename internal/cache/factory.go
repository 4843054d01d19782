package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

type Config struct {
	Backend string
	TTL     time.Duration
	Prefix  string
	// CleanupInterval is the memory store janitor period.
	CleanupInterval time.Duration
}

// NewStore builds the configured backend wrapped in a LoggingStore. The "none"
// backend and a redis backend without a client yield an unwrapped NoopStore.
func NewStore(cfg Config, redisClient *redis.Client, logger *zap.Logger) Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cache")

	switch cfg.Backend {
	case BackendNone:
		return NoopStore{}
	case BackendRedis:
		if redisClient == nil {
			logger.Warn("redis backend selected without a client; caching disabled")
			return NoopStore{}
		}
		return NewLoggingStore(NewRedisStore(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
		}), logger)
	default:
		return NewLoggingStore(NewMemoryStore(cfg.CleanupInterval), logger)
	}
}
