// Package optimizer runs the URL-to-optimised-image pipeline:
//
//	classify -> request-key lookup -> fetch -> content hash -> content-key lookup
//	-> transform -> write both keys
//
// and the sequential batch orchestration on top of it.
package optimizer

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"imgopt-gateway/internal/cache"
	"imgopt-gateway/internal/classifier"
	"imgopt-gateway/internal/errs"
	"imgopt-gateway/internal/fetcher"
	"imgopt-gateway/internal/metrics"
	"imgopt-gateway/internal/transform"
	"imgopt-gateway/pkg/logging/logging"
)

const (
	DefaultMaxBatchSize = 20

	CacheTypeHashMatch = "hash_match"
)

// Fetcher is the blocking byte source the pipeline reads from.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.RawImage, error)
}

type Config struct {
	DefaultFormat transform.Codec
	// Qualities overrides transform.Codec.DefaultQuality per codec.
	Qualities    map[transform.Codec]int
	MaxBatchSize int
	// Dedupe collapses concurrent misses for the same request key into one computation.
	Dedupe bool
}

// Result is the outcome of one optimisation, success or failure.
type Result struct {
	Success              bool                `json:"success"`
	Error                string              `json:"error,omitempty"`
	ErrorType            string              `json:"error_type,omitempty"`
	OriginalURL          string              `json:"original_url"`
	OriginalHash         string              `json:"original_hash,omitempty"`
	IsGeneric            bool                `json:"is_generic"`
	Metadata             *transform.Metadata `json:"metadata,omitempty"`
	SizeReductionPercent *float64            `json:"size_reduction_percent,omitempty"`
	FromCache            bool                `json:"from_cache"`
	CacheType            string              `json:"cache_type,omitempty"`
	ProcessingTimeMs     int64               `json:"processing_time_ms"`
	Timestamp            time.Time           `json:"timestamp"`
	OptimizedBase64      string              `json:"optimized_base64,omitempty"`
	OptimizedURL         string              `json:"optimized_url,omitempty"`
	OptimizedURLOrBase64 string              `json:"optimized_url_or_base64,omitempty"`

	// Output holds the encoded bytes for in-process callers.
	Output []byte `json:"-"`
	// Err is the classified failure, nil on success.
	Err error `json:"-"`
}

type Optimizer struct {
	cfg     Config
	fetcher Fetcher
	engine  *transform.Engine
	cache   *cache.Coordinator
	group   singleflight.Group
	logger  *zap.Logger
}

// New wires the pipeline. A nil coordinator disables caching.
func New(cfg Config, f Fetcher, engine *transform.Engine, c *cache.Coordinator, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = transform.WEBP
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if c == nil {
		c = cache.NewCoordinator(nil, 0, logger)
	}
	return &Optimizer{
		cfg:     cfg,
		fetcher: f,
		engine:  engine,
		cache:   c,
		logger:  logger.Named("optimizer"),
	}
}

func (o *Optimizer) Config() Config { return o.cfg }

func (o *Optimizer) Cache() *cache.Coordinator { return o.cache }

func (o *Optimizer) Engine() *transform.Engine { return o.engine }

// ContentHash is the first 16 hex chars of the SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// outcome is what a computation shares between singleflight waiters.
type outcome struct {
	entry     *cache.Entry
	cacheType string
	fromCache bool
}

// Optimize never returns nil; failures are reported in the Result.
func (o *Optimizer) Optimize(ctx context.Context, url string, opts Options) *Result {
	start := time.Now()
	url = strings.TrimSpace(url)
	res := &Result{OriginalURL: url, Timestamp: start.UTC()}
	logger := logging.FromContext(ctx, o.logger).With(zap.String("image_url", url))

	if url == "" {
		return o.fail(res, errs.Newf(errs.ErrValidation, "image_url must not be empty"), opts.Format, start)
	}
	if classifier.IsGenericSource(url) {
		res.IsGeneric = true
		logger.Warn("generic source image rejected")
		return o.fail(res, errs.Newf(errs.ErrGenericSource, "generic placeholder image will not be optimized"), opts.Format, start)
	}

	resolved, err := opts.Resolve(o.cfg.DefaultFormat, o.cfg.Qualities, o.engine.Config())
	if err != nil {
		return o.fail(res, err, opts.Format, start)
	}

	reqKey := cache.RequestKey(url, resolved.Canonical())
	if entry, ok := o.cache.Get(ctx, reqKey); ok {
		metrics.OptimizationsTotal.WithLabelValues(resolved.Format.Lower(), "request_hit").Inc()
		logger.Info("served from request cache")
		return o.render(res, &outcome{entry: entry, fromCache: true}, resolved, start)
	}

	var out *outcome
	if o.cfg.Dedupe {
		// The shared computation outlives any single caller; the fetcher's own
		// timeout bounds it. Each waiter still gives up on its own context.
		detached := context.WithoutCancel(ctx)
		ch := o.group.DoChan(reqKey, func() (any, error) {
			return o.compute(detached, url, reqKey, resolved)
		})
		select {
		case r := <-ch:
			if r.Err != nil {
				return o.fail(res, r.Err, resolved.Format, start)
			}
			out = r.Val.(*outcome)
			if r.Shared {
				logger.Debug("joined in-flight optimization")
			}
		case <-ctx.Done():
			return o.fail(res, errs.Wrap(errs.ErrNetwork, "wait for optimization", ctx.Err()), resolved.Format, start)
		}
	} else {
		out, err = o.compute(ctx, url, reqKey, resolved)
		if err != nil {
			return o.fail(res, err, resolved.Format, start)
		}
	}

	result := "computed"
	if out.cacheType == CacheTypeHashMatch {
		result = CacheTypeHashMatch
	}
	metrics.OptimizationsTotal.WithLabelValues(resolved.Format.Lower(), result).Inc()

	o.render(res, out, resolved, start)
	logger.Info("optimization finished",
		zap.Bool("from_cache", res.FromCache),
		zap.String("cache_type", res.CacheType),
		zap.Float64("size_reduction_percent", out.entry.Metadata.SizeReductionPercent),
		zap.Int64("processing_time_ms", res.ProcessingTimeMs),
	)
	return res
}

// compute runs the miss path. Cache write failures are logged by the coordinator
// and do not fail the computation.
func (o *Optimizer) compute(ctx context.Context, url, reqKey string, opts Options) (*outcome, error) {
	start := time.Now()

	raw, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	hash := ContentHash(raw.Data)

	var contentKey string
	if opts.standardGeometry(o.engine.Config()) {
		contentKey = cache.ContentKey(hash, opts.Format, opts.Quality)
		if entry, ok := o.cache.Get(ctx, contentKey); ok {
			// repopulate the request key so the next identical request skips the fetch
			_ = o.cache.Put(ctx, reqKey, entry)
			return &outcome{entry: entry, cacheType: CacheTypeHashMatch, fromCache: true}, nil
		}
	}

	tr, err := o.engine.Optimize(raw.Data, opts.transformRequest())
	if err != nil {
		return nil, err
	}

	entry := &cache.Entry{
		OriginalHash:     hash,
		Metadata:         tr.Metadata,
		Output:           tr.Data,
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}

	if contentKey != "" {
		_ = o.cache.PutBoth(ctx, reqKey, contentKey, entry)
	} else {
		_ = o.cache.Put(ctx, reqKey, entry)
	}

	if saved := tr.Metadata.OriginalBytes - tr.Metadata.OptimizedBytes; saved > 0 {
		metrics.BytesSavedTotal.Add(float64(saved))
	}

	return &outcome{entry: entry}, nil
}

func (o *Optimizer) render(res *Result, out *outcome, opts Options, start time.Time) *Result {
	md := out.entry.Metadata
	reduction := md.SizeReductionPercent

	res.Success = true
	res.OriginalHash = out.entry.OriginalHash
	res.Metadata = &md
	res.SizeReductionPercent = &reduction
	res.FromCache = out.fromCache
	res.CacheType = out.cacheType
	res.Output = out.entry.Output

	if opts.ReturnReference {
		res.OptimizedURL = "/optimized/" + out.entry.OriginalHash + "." + opts.Format.Ext()
		res.OptimizedURLOrBase64 = res.OptimizedURL
	} else {
		res.OptimizedBase64 = "data:" + opts.Format.MIME() + ";base64," + base64.StdEncoding.EncodeToString(out.entry.Output)
		res.OptimizedURLOrBase64 = res.OptimizedBase64
	}

	res.ProcessingTimeMs = time.Since(start).Milliseconds()
	return res
}

func (o *Optimizer) fail(res *Result, err error, format transform.Codec, start time.Time) *Result {
	label := format.Lower()
	if label == "" {
		label = o.cfg.DefaultFormat.Lower()
	}
	metrics.OptimizationsTotal.WithLabelValues(label, errs.Code(err)).Inc()

	res.Success = false
	res.Err = err
	res.Error = err.Error()
	res.ErrorType = errs.Code(err)
	res.ProcessingTimeMs = time.Since(start).Milliseconds()

	o.logger.Warn("optimization failed",
		zap.String("image_url", res.OriginalURL),
		zap.String("error_type", res.ErrorType),
		zap.Error(err),
	)
	return res
}
