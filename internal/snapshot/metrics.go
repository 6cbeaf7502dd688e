package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRefreshTotal         = "molrank_snapshot_refresh_total"
	MetricRefreshErrors        = "molrank_snapshot_refresh_errors_total"
	MetricRefreshDuration      = "molrank_snapshot_refresh_duration_seconds"
	MetricLastRefreshTimestamp = "molrank_snapshot_last_refresh_timestamp"
	MetricCacheLookups         = "molrank_snapshot_cache_lookups_total"
)

// Metrics contains Prometheus metrics for snapshot refresh and lookup.
// All operations are thread-safe.
type Metrics struct {
	refreshTotal         prometheus.Counter
	refreshErrors        *prometheus.CounterVec
	refreshDuration      prometheus.Histogram
	lastRefreshTimestamp prometheus.Gauge
	cacheLookups         *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		refreshTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRefreshTotal,
			Help: "Total number of snapshot refresh cycles",
		}),
		refreshErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRefreshErrors,
				Help: "Total number of snapshot refresh errors by type",
			},
			[]string{"error_type"},
		),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRefreshDuration,
			Help:    "Histogram of snapshot refresh cycle duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}),
		lastRefreshTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastRefreshTimestamp,
			Help: "Unix timestamp of the last completed snapshot refresh",
		}),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCacheLookups,
				Help: "Total snapshot cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRefreshTotal increments the refresh cycle counter.
func (m *Metrics) IncRefreshTotal() {
	m.refreshTotal.Inc()
}

// IncRefreshErrors increments the refresh error counter.
func (m *Metrics) IncRefreshErrors(errorType string) {
	m.refreshErrors.WithLabelValues(errorType).Inc()
}

// ObserveRefreshDuration records the duration of a refresh cycle.
func (m *Metrics) ObserveRefreshDuration(seconds float64) {
	m.refreshDuration.Observe(seconds)
}

// SetLastRefreshTimestamp sets the last refresh time.
func (m *Metrics) SetLastRefreshTimestamp(unix float64) {
	m.lastRefreshTimestamp.Set(unix)
}

// IncCacheLookup records a cache hit or miss.
func (m *Metrics) IncCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.refreshTotal,
		m.refreshErrors,
		m.refreshDuration,
		m.lastRefreshTimestamp,
		m.cacheLookups,
	}
}
