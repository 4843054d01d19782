package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"imgopt-gateway/internal/handlers"
	"imgopt-gateway/internal/metrics"
	"imgopt-gateway/internal/middleware"
)

const (
	DefaultRequestTimeout = 5 * time.Minute
	DefaultMaxBodyBytes   = 1 << 20
)

type Options struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// AllowedOrigins defaults to any origin.
	AllowedOrigins []string
}

type Handlers struct {
	Image  *handlers.ImageHandler
	Cache  *handlers.CacheHandler
	Health *handlers.HealthHandler
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, h Handlers, opts Options) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r.Use(metrics.Middleware)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/", h.Health.Index)
	r.Get("/health", h.Health.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))

		r.Post("/optimize-image", h.Image.OptimizeImage)
		r.Post("/batch-optimize", h.Image.BatchOptimize)
		r.Post("/analyze-image", h.Image.AnalyzeImage)
		r.Get("/cache-stats", h.Cache.Stats)
		r.Post("/clear-cache", h.Cache.Clear)
	})
}
