package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricRateLimitRequests     = "molrank_rate_limit_requests_total"
	MetricRateLimitBlocked      = "molrank_rate_limit_blocked_total"
	MetricRateLimitStoreErrors  = "molrank_rate_limit_store_errors_total"
	MetricHTTPRequestDuration   = "molrank_http_request_duration_seconds"
	MetricHTTPRequestsTotal     = "molrank_http_requests_total"
	MetricHTTPRequestSizeBytes  = "molrank_http_request_size_bytes"
	MetricHTTPResponseSizeBytes = "molrank_http_response_size_bytes"
)

// Metrics contains Prometheus metrics for middleware operations.
// All operations are thread-safe.
type Metrics struct {
	rateLimitRequests    *prometheus.CounterVec
	rateLimitBlocked     *prometheus.CounterVec
	rateLimitStoreErrors prometheus.Counter
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestSize      *prometheus.HistogramVec
	httpResponseSize     *prometheus.HistogramVec
}

var httpLabels = []string{"method", "path", "status"}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	// Rank requests with full histories can be large; 100 B to ~100 MB.
	sizeBuckets := prometheus.ExponentialBuckets(100, 10, 7)

	return &Metrics{
		rateLimitRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRateLimitRequests,
				Help: "Total number of rate limit checks by route",
			},
			[]string{"route"},
		),
		rateLimitBlocked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRateLimitBlocked,
				Help: "Total number of requests rejected by the rate limiter by route",
			},
			[]string{"route"},
		),
		rateLimitStoreErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricRateLimitStoreErrors,
				Help: "Total number of rate limit store failures (requests allowed through)",
			},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPRequestDuration,
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 10},
			},
			httpLabels,
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricHTTPRequestsTotal,
				Help: "Total number of HTTP requests",
			},
			httpLabels,
		),
		httpRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPRequestSizeBytes,
				Help:    "HTTP request size in bytes",
				Buckets: sizeBuckets,
			},
			httpLabels,
		),
		httpResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPResponseSizeBytes,
				Help:    "HTTP response size in bytes",
				Buckets: sizeBuckets,
			},
			httpLabels,
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRateLimitRequests counts a rate limit check for route.
func (m *Metrics) IncRateLimitRequests(route string) {
	m.rateLimitRequests.WithLabelValues(route).Inc()
}

// IncRateLimitBlocked counts a rejected request for route.
func (m *Metrics) IncRateLimitBlocked(route string) {
	m.rateLimitBlocked.WithLabelValues(route).Inc()
}

// IncRateLimitStoreErrors counts a fail-open event.
func (m *Metrics) IncRateLimitStoreErrors() {
	m.rateLimitStoreErrors.Inc()
}

// ObserveHTTPRequest records one request. path should already be normalized.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, duration float64, requestSize, responseSize int64) {
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": status,
	}
	m.httpRequestDuration.With(labels).Observe(duration)
	m.httpRequestsTotal.With(labels).Inc()
	m.httpRequestSize.With(labels).Observe(float64(requestSize))
	m.httpResponseSize.With(labels).Observe(float64(responseSize))
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.rateLimitRequests,
		m.rateLimitBlocked,
		m.rateLimitStoreErrors,
		m.httpRequestDuration,
		m.httpRequestsTotal,
		m.httpRequestSize,
		m.httpResponseSize,
	}
}
