// Package metrics provides Prometheus metrics for the ingest server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Ingestion metrics
	ingestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_ingestions_total",
			Help: "Total number of ingestion runs",
		},
		[]string{"source", "status"},
	)

	ingestionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_ingestion_duration_seconds",
			Help:    "End to end ingestion duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	digestBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_digest_bytes_total",
			Help: "Total bytes of rendered digest content",
		},
	)

	// Download metrics
	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_downloads_total",
			Help: "Total number of digest downloads",
		},
		[]string{"status"},
	)

	// Quota metrics
	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_rate_limit_hits_total",
			Help: "Total rate limit rejections (429s)",
		},
	)

	// Retention metrics
	evictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_evictions_total",
			Help: "Total stored digests removed by the retention sweep",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordIngestion records one ingestion run.
func RecordIngestion(sourceKind string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	ingestionsTotal.WithLabelValues(sourceKind, status).Inc()
	ingestionDuration.Observe(duration.Seconds())
}

// RecordDigestBytes records the size of a rendered digest.
func RecordDigestBytes(byteCount int) {
	digestBytesTotal.Add(float64(byteCount))
}

// RecordDownload records a digest download.
func RecordDownload(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	downloadsTotal.WithLabelValues(status).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// RecordEvictions records digests removed by the retention sweep.
func RecordEvictions(removedCount int) {
	evictionsTotal.Add(float64(removedCount))
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
