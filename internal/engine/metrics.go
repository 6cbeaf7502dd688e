package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRunsTotal          = "molrank_engine_runs_total"
	MetricStageDuration      = "molrank_engine_stage_duration_seconds"
	MetricCandidates         = "molrank_engine_candidates"
	MetricDroppedCandidates  = "molrank_engine_dropped_candidates_total"
	MetricDiffusionIteration = "molrank_engine_diffusion_iterations_total"
)

// Stage labels.
const (
	StageScore      = "score"
	StageRank       = "rank"
	StageGraphBuild = "graph_build"
	StageDiffuse    = "diffuse"
	StageBoost      = "boost"
)

// Run outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

// Metrics contains Prometheus metrics for scoring pipeline runs.
// All operations are thread-safe.
type Metrics struct {
	runsTotal           *prometheus.CounterVec
	stageDuration       *prometheus.HistogramVec
	candidates          prometheus.Histogram
	droppedCandidates   *prometheus.CounterVec
	diffusionIterations prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRunsTotal,
				Help: "Total number of engine runs by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricStageDuration,
				Help:    "Duration of each engine stage in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"stage"},
		),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricCandidates,
			Help:    "Number of candidates per engine run",
			Buckets: []float64{1, 10, 50, 100, 300, 1000, 5000},
		}),
		droppedCandidates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricDroppedCandidates,
				Help: "Total candidates removed by the graph size threshold",
			},
			[]string{"policy"},
		),
		diffusionIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDiffusionIteration,
			Help: "Total diffusion iterations executed",
		}),
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

// IncRuns increments the run counter for a strategy and outcome.
func (m *Metrics) IncRuns(strategy Strategy, outcome string) {
	m.runsTotal.WithLabelValues(string(strategy), outcome).Inc()
}

// ObserveStage records the duration of a stage.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// ObserveCandidates records the input size of a run.
func (m *Metrics) ObserveCandidates(n int) {
	m.candidates.Observe(float64(n))
}

// AddDropped records candidates removed by an oversize policy.
func (m *Metrics) AddDropped(policy OversizePolicy, n int) {
	m.droppedCandidates.WithLabelValues(string(policy)).Add(float64(n))
}

// AddDiffusionIterations records executed diffusion iterations.
func (m *Metrics) AddDiffusionIterations(n int) {
	m.diffusionIterations.Add(float64(n))
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.runsTotal,
		m.stageDuration,
		m.candidates,
		m.droppedCandidates,
		m.diffusionIterations,
	}
}
