package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/molrank/internal/api"
	"github.com/onnwee/molrank/internal/config"
	"github.com/onnwee/molrank/internal/engine"
	"github.com/onnwee/molrank/internal/middleware"
	"github.com/onnwee/molrank/internal/ranking"
	"github.com/onnwee/molrank/internal/snapshot"
	"github.com/onnwee/molrank/internal/store"
)

// backends are the stateful dependencies behind the handlers. Checkers
// are nil for in-memory backends.
type backends struct {
	repo         store.Repository
	cache        snapshot.Cache
	limiter      middleware.RateLimitStore
	dbChecker    api.HealthChecker
	redisChecker api.HealthChecker
}

type server struct {
	handler  http.Handler
	refresh  *snapshot.RefreshJob
	registry *prometheus.Registry
}

// newServer assembles the engine, handlers and middleware chain. Probes,
// /metrics and the root document sit outside the rate limiter.
func newServer(cfg *config.Config, logger *slog.Logger, b backends) (*server, error) {
	weights := ranking.DefaultWeights()
	if cfg.CalibrationPath != "" {
		w, err := ranking.LoadCalibration(cfg.CalibrationPath)
		if err != nil {
			return nil, fmt.Errorf("load calibration: %w", err)
		}
		weights = w
	}
	policy, err := engine.ParseOversizePolicy(cfg.OversizePolicy)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := engine.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	snapshotMetrics := snapshot.NewMetrics()
	for _, r := range []interface{ Register(prometheus.Registerer) error }{engineMetrics, httpMetrics, snapshotMetrics} {
		if err := r.Register(reg); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	eng := engine.New(engine.Config{
		MaxGraphCandidates:     cfg.GraphMaxCandidates,
		MaxDiffusionIterations: cfg.DiffusionMaxIterations,
		OversizePolicy:         policy,
		Logger:                 logger,
		Metrics:                engineMetrics,
	})
	refresh := snapshot.NewRefreshJob(snapshot.RefreshJobConfig{
		Interval: cfg.SnapshotRefreshInterval(),
		Datasets: cfg.SnapshotDatasets,
		Weights:  weights,
		Logger:   logger,
		Metrics:  snapshotMetrics,
	}, b.repo, b.cache)

	rank := api.NewRankHandlers(eng, weights)
	v1 := http.NewServeMux()
	api.Handlers{
		Rank:     rank,
		Graph:    api.NewGraphHandlers(eng),
		Datasets: api.NewDatasetHandlers(b.repo, eng, refresh, weights),
		Stream:   api.NewStreamHandlers(rank, cfg.CORSAllowedOrigins),
	}.Register(v1)

	var v1Handler http.Handler = v1
	if cfg.RateLimitPerMinute > 0 {
		v1Handler = middleware.RateLimiter(b.limiter, middleware.PerMinute(cfg.RateLimitPerMinute), middleware.IPKeyFunc(), httpMetrics)(v1Handler)
	}

	mux := http.NewServeMux()
	api.Handlers{Health: api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    b.dbChecker,
		RedisChecker: b.redisChecker,
	})}.Register(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/v1/", v1Handler)
	mux.HandleFunc("/", root)

	// RequestID -> Tracing -> Logging -> HTTPMetrics -> CORS -> Profiling -> mux
	var handler http.Handler = mux
	handler = middleware.Profiling(middleware.ProfilingConfig{Enabled: cfg.ProfilingEnabled, Environment: cfg.Env})(handler)
	handler = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins))(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	handler = middleware.RequestID(handler)

	return &server{handler: handler, refresh: refresh, registry: reg}, nil
}

func root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		api.WriteError(w, r.Context(), http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, `{"service":%q,"version":%q}`, serviceName, version); err != nil {
		slog.ErrorContext(r.Context(), "failed to write response", "error", err)
	}
}
