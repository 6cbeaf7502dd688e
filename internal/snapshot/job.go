package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/molrank/internal/candidate"
	"github.com/onnwee/molrank/internal/ranking"
)

// Source lists the stored candidates of a dataset. limit <= 0 means all.
type Source interface {
	List(ctx context.Context, dataset string, limit int) ([]candidate.Candidate, error)
}

// RefreshJobConfig configures the snapshot refresh job.
type RefreshJobConfig struct {
	// Interval is the duration between refresh cycles.
	Interval time.Duration
	// Timeout for each refresh cycle.
	Timeout time.Duration
	// Datasets to refresh every cycle.
	Datasets []string
	// TopN leading IDs kept per snapshot.
	TopN int
	// Weights used to score candidates; nil uses the defaults.
	Weights *ranking.Weights
	Logger  *slog.Logger
	Metrics *Metrics
	// Now overrides the clock in tests.
	Now func() time.Time
}

// DefaultRefreshInterval is the default interval between refresh cycles.
const DefaultRefreshInterval = time.Minute

// DefaultRefreshTimeout is the default timeout for a single refresh cycle.
const DefaultRefreshTimeout = 30 * time.Second

// RefreshJob periodically recomputes the snapshots of configured datasets.
type RefreshJob struct {
	config RefreshJobConfig
	source Source
	cache  Cache

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRefreshJob creates a new snapshot refresh job.
func NewRefreshJob(config RefreshJobConfig, source Source, cache Cache) *RefreshJob {
	if config.Interval == 0 {
		config.Interval = DefaultRefreshInterval
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultRefreshTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &RefreshJob{
		config: config,
		source: source,
		cache:  cache,
	}
}

// Start begins the periodic refresh job.
// Returns immediately; the job runs in a background goroutine.
func (j *RefreshJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the refresh job to stop and waits for it to finish.
func (j *RefreshJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *RefreshJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *RefreshJob) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("snapshot refresh job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("snapshot refresh job stopping due to stop signal")
			return
		case <-ticker.C:
			j.refreshAll(ctx)
		}
	}
}

// RefreshNow refreshes every configured dataset without waiting for the
// ticker. It returns the number of datasets refreshed.
func (j *RefreshJob) RefreshNow(ctx context.Context) int {
	return j.refreshAll(ctx)
}

func (j *RefreshJob) refreshAll(parentCtx context.Context) int {
	if len(j.config.Datasets) == 0 {
		return 0
	}
	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	start := time.Now()
	refreshed := 0
	for _, name := range j.config.Datasets {
		if ctx.Err() != nil {
			j.config.Logger.Error("snapshot refresh timeout exceeded",
				"processed", refreshed,
				"total", len(j.config.Datasets),
				"timeout", j.config.Timeout)
			if j.config.Metrics != nil {
				j.config.Metrics.IncRefreshErrors("timeout")
			}
			break
		}
		if _, err := j.Refresh(ctx, name); err != nil {
			j.config.Logger.Error("failed to refresh snapshot",
				"dataset", name,
				"error", err)
			if j.config.Metrics != nil {
				j.config.Metrics.IncRefreshErrors(errorType(err))
			}
			continue
		}
		refreshed++
	}

	duration := time.Since(start).Seconds()
	if j.config.Metrics != nil {
		j.config.Metrics.IncRefreshTotal()
		j.config.Metrics.ObserveRefreshDuration(duration)
		j.config.Metrics.SetLastRefreshTimestamp(float64(j.config.Now().Unix()))
	}
	j.config.Logger.Info("snapshot refresh completed",
		"duration_seconds", duration,
		"datasets_refreshed", refreshed,
		"datasets_failed", len(j.config.Datasets)-refreshed)
	return refreshed
}

// Refresh recomputes one dataset's snapshot and stores it in the cache.
func (j *RefreshJob) Refresh(ctx context.Context, dataset string) (*Snapshot, error) {
	cands, err := j.source.List(ctx, dataset, 0)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dataset, err)
	}
	s := Summarize(dataset, cands, j.config.Weights, j.config.TopN, j.config.Now())
	if err := j.cache.Set(ctx, s); err != nil {
		return nil, fmt.Errorf("cache %s: %w", dataset, err)
	}
	j.config.Logger.Debug("snapshot refreshed",
		"dataset", dataset,
		"count", s.Count,
		"max_score", s.MaxScore)
	return s, nil
}

// Lookup returns the cached snapshot, computing and caching it on a miss.
func (j *RefreshJob) Lookup(ctx context.Context, dataset string) (*Snapshot, error) {
	s, err := j.cache.Get(ctx, dataset)
	switch {
	case err == nil:
		if j.config.Metrics != nil {
			j.config.Metrics.IncCacheLookup(true)
		}
		return s, nil
	case !errors.Is(err, ErrCacheMiss):
		j.config.Logger.Warn("snapshot cache read failed", "dataset", dataset, "error", err)
	}
	if j.config.Metrics != nil {
		j.config.Metrics.IncCacheLookup(false)
	}
	return j.Refresh(ctx, dataset)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "refresh_error"
	}
}
