package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"imgopt-gateway/internal/cache"
	"imgopt-gateway/pkg/logging/logging"
)

const (
	ServiceName    = "imgopt-gateway"
	ServiceVersion = "1.0.0"

	pingTimeout = 2 * time.Second
)

// Endpoint describes one public route for the index and 404 responses.
type Endpoint struct {
	Name   string
	Method string
	Path   string
}

func (e Endpoint) String() string { return e.Path + " [" + e.Method + "]" }

// Endpoints is the public API surface in display order.
var Endpoints = []Endpoint{
	{"optimize_image", http.MethodPost, "/optimize-image"},
	{"batch_optimize", http.MethodPost, "/batch-optimize"},
	{"analyze_image", http.MethodPost, "/analyze-image"},
	{"cache_stats", http.MethodGet, "/cache-stats"},
	{"clear_cache", http.MethodPost, "/clear-cache"},
	{"health", http.MethodGet, "/health"},
	{"metrics", http.MethodGet, "/metrics"},
}

// OptimizerSummary is the configuration echoed by /health.
type OptimizerSummary struct {
	MaxDimensions string  `json:"max_dimensions"`
	ThumbnailSize string  `json:"thumbnail_size"`
	DefaultFormat string  `json:"default_format"`
	WebPQuality   int     `json:"webp_quality"`
	JPEGQuality   int     `json:"jpeg_quality"`
	AVIFQuality   int     `json:"avif_quality"`
	CacheTTLHours float64 `json:"cache_ttl_hours"`
	CacheBackend  string  `json:"cache_backend"`
	MaxBatchSize  int     `json:"max_batch_size"`
}

type HealthHandler struct {
	Cache        *cache.Coordinator
	CacheBackend string
	ConfigIssues []string
	Summary      OptimizerSummary
	now          func() time.Time
}

func NewHealthHandler(c *cache.Coordinator, backend string, issues []string, summary OptimizerSummary) *HealthHandler {
	if issues == nil {
		issues = []string{}
	}
	return &HealthHandler{
		Cache:        c,
		CacheBackend: backend,
		ConfigIssues: issues,
		Summary:      summary,
		now:          time.Now,
	}
}

type healthResponse struct {
	Status          string           `json:"status"`
	Timestamp       time.Time        `json:"timestamp"`
	RedisStatus     string           `json:"redis_status"`
	CacheStatus     string           `json:"cache_status"`
	ConfigValid     bool             `json:"config_valid"`
	ConfigIssues    []string         `json:"config_issues"`
	OptimizerConfig OptimizerSummary `json:"optimizer_config"`
}

// Health handles GET /health. An unreachable store is reported, not failed.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cacheStatus := h.storeStatus(ctx)
	redisStatus := "disabled"
	if h.CacheBackend == cache.BackendRedis {
		redisStatus = cacheStatus
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:          "healthy",
		Timestamp:       h.now().UTC(),
		RedisStatus:     redisStatus,
		CacheStatus:     cacheStatus,
		ConfigValid:     len(h.ConfigIssues) == 0,
		ConfigIssues:    h.ConfigIssues,
		OptimizerConfig: h.Summary,
	})
}

func (h *HealthHandler) storeStatus(ctx context.Context) string {
	if !h.Cache.Enabled() {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := h.Cache.Ping(ctx); err != nil {
		logging.L(ctx).Warn("cache ping failed", zap.Error(err))
		return "error"
	}
	return "connected"
}

type indexResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
	Timestamp time.Time         `json:"timestamp"`
}

// Index handles GET /.
func (h *HealthHandler) Index(w http.ResponseWriter, r *http.Request) {
	eps := make(map[string]string, len(Endpoints))
	for _, e := range Endpoints {
		eps[e.Name] = e.String()
	}
	writeJSON(w, http.StatusOK, indexResponse{
		Service:   ServiceName,
		Version:   ServiceVersion,
		Status:    "running",
		Endpoints: eps,
		Timestamp: h.now().UTC(),
	})
}

type notFoundResponse struct {
	Success            bool     `json:"success"`
	Error              string   `json:"error"`
	AvailableEndpoints []string `json:"available_endpoints"`
}

// NotFound renders unknown routes as JSON listing the public endpoints.
func NotFound(w http.ResponseWriter, r *http.Request) {
	eps := make([]string, 0, len(Endpoints))
	for _, e := range Endpoints {
		eps = append(eps, e.String())
	}
	writeJSON(w, http.StatusNotFound, notFoundResponse{
		Error:              "endpoint not found",
		AvailableEndpoints: eps,
	})
}

// MethodNotAllowed is the 405 counterpart of NotFound.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
}
