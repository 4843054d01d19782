package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"imgopt-gateway/internal/cache"
	"imgopt-gateway/internal/config"
	"imgopt-gateway/internal/fetcher"
	"imgopt-gateway/internal/handlers"
	"imgopt-gateway/internal/optimizer"
	"imgopt-gateway/internal/transform"
)

const redisPingTimeout = 3 * time.Second

// app is the wired service graph shared by serve and the offline commands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	redis     *redis.Client
	cache     *cache.Coordinator
	fetcher   *fetcher.Client
	engine    *transform.Engine
	optimizer *optimizer.Optimizer
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// An unreachable Redis degrades to cache misses rather than failing startup;
	// /health reports it.
	if cfg.Cache.Backend == cache.BackendRedis {
		opts, err := cfg.RedisOptions()
		if err != nil {
			return nil, err
		}
		a.redis = redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err = a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Error("redis connection failed", zap.String("addr", opts.Addr), zap.Error(err))
		} else {
			logger.Info("redis connection established", zap.String("addr", opts.Addr))
		}
	}

	store := cache.NewStore(cache.Config{
		Backend:         cfg.Cache.Backend,
		TTL:             cfg.Cache.TTL,
		Prefix:          cfg.Cache.Prefix,
		CleanupInterval: cfg.Cache.CleanupInterval,
	}, a.redis, logger)
	a.cache = cache.NewCoordinator(store, cfg.Cache.TTL, logger)

	f, err := fetcher.New(fetcher.Options{
		Timeout:      cfg.Fetch.Timeout,
		MaxBytes:     cfg.Fetch.MaxFileBytes,
		UserAgent:    cfg.Fetch.UserAgent,
		Retries:      cfg.Fetch.Retries,
		HostInterval: cfg.Fetch.HostInterval,
	}, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("building fetcher: %w", err)
	}
	a.fetcher = f

	a.engine = transform.NewEngine(transform.Config{
		MaxWidth:        cfg.Optimizer.MaxWidth,
		MaxHeight:       cfg.Optimizer.MaxHeight,
		ThumbnailWidth:  cfg.Optimizer.ThumbnailWidth,
		ThumbnailHeight: cfg.Optimizer.ThumbnailHeight,
		ThumbnailFill:   cfg.Optimizer.ThumbnailFill,
	}, logger)

	a.optimizer = optimizer.New(optimizer.Config{
		DefaultFormat: transform.Codec(cfg.Optimizer.DefaultFormat),
		Qualities:     cfg.Qualities(),
		MaxBatchSize:  cfg.Optimizer.MaxBatchSize,
		Dedupe:        cfg.Optimizer.Dedupe,
	}, a.fetcher, a.engine, a.cache, logger)

	return a, nil
}

func (a *app) summary() handlers.OptimizerSummary {
	o := a.cfg.Optimizer
	return handlers.OptimizerSummary{
		MaxDimensions: fmt.Sprintf("%dx%d", o.MaxWidth, o.MaxHeight),
		ThumbnailSize: fmt.Sprintf("%dx%d", o.ThumbnailWidth, o.ThumbnailHeight),
		DefaultFormat: o.DefaultFormat,
		WebPQuality:   o.WebPQuality,
		JPEGQuality:   o.JPEGQuality,
		AVIFQuality:   o.AVIFQuality,
		CacheTTLHours: a.cfg.Cache.TTL.Hours(),
		CacheBackend:  a.cfg.Cache.Backend,
		MaxBatchSize:  o.MaxBatchSize,
	}
}

func (a *app) close() {
	if a.fetcher != nil {
		_ = a.fetcher.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
