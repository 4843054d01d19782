package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: cache lookups by key namespace (request|content) and result (hit|miss|error).
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgopt_cache_lookups_total",
			Help: "Total number of cache lookups by key namespace and result.",
		},
		[]string{"namespace", "result"},
	)

	// Counter: optimizations by output format and outcome.
	OptimizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgopt_optimizations_total",
			Help: "Total number of optimization requests by format and result.",
		},
		[]string{"format", "result"},
	)

	// Counter: bytes saved by freshly computed optimizations (negative savings ignored).
	BytesSavedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "imgopt_bytes_saved_total",
			Help: "Total bytes saved by computed optimizations.",
		},
	)

	// Histogram: decode+resize+encode time in seconds.
	TransformSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imgopt_transform_seconds",
			Help:    "Image transform latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"format"},
	)

	// Histogram: origin fetch time in seconds.
	FetchSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imgopt_fetch_seconds",
			Help:    "Origin fetch latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"result"},
	)

	// Histogram: HTTP latency in seconds.
	HTTPLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imgopt_http_latency_seconds",
			Help:    "HTTP request latency for the service in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"path", "method", "status_code"},
	)

	registerOnce sync.Once
)

// Register is called once in main() to register metrics.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CacheLookupsTotal,
			OptimizationsTotal,
			BytesSavedTotal,
			TransformSeconds,
			FetchSeconds,
			HTTPLatencySeconds,
		)
	})
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		HTTPLatencySeconds.
			WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
