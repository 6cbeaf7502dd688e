// Package engine runs the full candidate pipeline: weighted scoring, rank
// and softmax, the graph size threshold, and the selected smoothing
// strategy.
//
// An Engine holds only configuration. Every Run works on copies of its
// input, so a single Engine may be shared across goroutines.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/molrank/internal/candidate"
	"github.com/onnwee/molrank/internal/diffusion"
	"github.com/onnwee/molrank/internal/features"
	"github.com/onnwee/molrank/internal/graph"
	"github.com/onnwee/molrank/internal/ranking"
	"github.com/onnwee/molrank/internal/tracing"
)

// DefaultMaxGraphCandidates is the graph diffusion size threshold used when
// Config.MaxGraphCandidates is not set.
const DefaultMaxGraphCandidates = 300

// DefaultMaxDiffusionIterations is the per-request iteration bound used when
// Config.MaxDiffusionIterations is not set.
const DefaultMaxDiffusionIterations = 1000

// Engine errors.
var (
	ErrInvalidStrategy   = errors.New("invalid strategy")
	ErrInvalidPolicy     = errors.New("invalid oversize policy")
	ErrTooManyCandidates = errors.New("too many candidates for graph diffusion")
	ErrMissingEmbedding  = candidate.ErrMissingEmbedding
)

// Config configures an Engine.
type Config struct {
	// MaxGraphCandidates bounds the O(N^2) graph build. Zero uses the default.
	MaxGraphCandidates int
	// MaxDiffusionIterations bounds a diffusion request's iteration count.
	// Zero uses DefaultMaxDiffusionIterations; values above
	// diffusion.MaxIterations are lowered to it.
	MaxDiffusionIterations int
	// OversizePolicy applies when graph diffusion exceeds the threshold.
	OversizePolicy OversizePolicy
	// Logger for pipeline activity; nil uses slog.Default().
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *Metrics
}

// DiffusionOptions configures the graph diffusion strategy.
type DiffusionOptions struct {
	K              int     `json:"k"`
	Iterations     int     `json:"iterations"`
	MixRate        float64 `json:"mix_rate"`
	IncludeHistory bool    `json:"include_history"`
}

// DefaultDiffusionOptions returns the diffusion settings used when a
// request does not provide its own.
func DefaultDiffusionOptions() DiffusionOptions {
	return DiffusionOptions{K: 8, Iterations: 20, MixRate: 0.3}
}

// BoostOptions configures the neighborhood boost strategy.
type BoostOptions struct {
	Alpha float64              `json:"alpha"`
	K     int                  `json:"k"`
	Axis  candidate.Descriptor `json:"axis"`
}

// DefaultBoostOptions returns the boost settings used when a request does
// not provide its own.
func DefaultBoostOptions() BoostOptions {
	return BoostOptions{Alpha: 0.25, K: 5, Axis: candidate.MolecularWeight}
}

// Request is one pipeline invocation.
type Request struct {
	Candidates []candidate.Candidate
	// Weights may be nil for defaults; they are normalized before use.
	Weights *ranking.Weights
	// Temperature is the softmax temperature and must be finite and > 0.
	Temperature float64
	Strategy    Strategy
	Diffusion   DiffusionOptions
	Boost       BoostOptions
}

// Result is the pipeline output.
type Result struct {
	Strategy    Strategy `json:"strategy"`
	Temperature float64  `json:"temperature"`
	// Candidates are ordered by the strategy's final ranking: DiffusedRank
	// for graph diffusion, BoostedRank for boosting, otherwise Rank.
	Candidates []ranking.ScoredCandidate `json:"candidates"`
	// Dropped counts candidates removed by the graph size threshold.
	Dropped int `json:"dropped"`
	// History is set for graph diffusion when requested. Vector positions
	// follow HistoryIDs.
	History    *diffusion.History `json:"history,omitempty"`
	HistoryIDs []string           `json:"history_ids,omitempty"`
	// Graph is the similarity graph built for diffusion, in Rank order.
	Graph *graph.Graph `json:"-"`
}

// Engine executes scoring pipelines.
type Engine struct {
	maxGraph int
	maxIter  int
	policy   OversizePolicy
	logger   *slog.Logger
	metrics  *Metrics
}

// New creates an Engine. An invalid policy falls back to PolicyCap.
func New(cfg Config) *Engine {
	if cfg.MaxGraphCandidates <= 0 {
		cfg.MaxGraphCandidates = DefaultMaxGraphCandidates
	}
	if cfg.MaxDiffusionIterations <= 0 {
		cfg.MaxDiffusionIterations = DefaultMaxDiffusionIterations
	}
	if cfg.MaxDiffusionIterations > diffusion.MaxIterations {
		cfg.MaxDiffusionIterations = diffusion.MaxIterations
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	policy, err := ParseOversizePolicy(string(cfg.OversizePolicy))
	if err != nil {
		cfg.Logger.Warn("unknown oversize policy, using cap", "policy", cfg.OversizePolicy)
		policy = PolicyCap
	}
	return &Engine{
		maxGraph: cfg.MaxGraphCandidates,
		maxIter:  cfg.MaxDiffusionIterations,
		policy:   policy,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// MaxDiffusionIterations returns the configured iteration bound.
func (e *Engine) MaxDiffusionIterations() int {
	return e.maxIter
}

// MaxGraphCandidates returns the configured graph size threshold.
func (e *Engine) MaxGraphCandidates() int {
	return e.maxGraph
}

// Run scores, ranks, and smooths the request's candidates.
func (e *Engine) Run(ctx context.Context, req Request) (res *Result, err error) {
	strategy, err := ParseStrategy(string(req.Strategy))
	if err != nil {
		return nil, err
	}
	if err := ranking.ValidateTemperature(req.Temperature); err != nil {
		return nil, err
	}

	ctx, endSpan := tracing.StartSpan(ctx, "engine.run",
		attribute.String("molrank.strategy", string(strategy)),
		attribute.Int("molrank.candidates", len(req.Candidates)),
	)
	defer func() { endSpan(err) }()

	if e.metrics != nil {
		e.metrics.ObserveCandidates(len(req.Candidates))
		defer func() {
			outcome := OutcomeSuccess
			if errors.Is(err, ErrTooManyCandidates) {
				outcome = OutcomeRejected
			} else if err != nil {
				outcome = OutcomeError
			}
			e.metrics.IncRuns(strategy, outcome)
		}()
	}

	var scored []ranking.ScoredCandidate
	e.stage(ctx, StageScore, func(context.Context) error {
		scored = ranking.ScoreCandidates(req.Candidates, req.Weights)
		return nil
	})

	var ranked []ranking.ScoredCandidate
	if err := e.stage(ctx, StageRank, func(context.Context) error {
		var rerr error
		ranked, rerr = ranking.RankAndNormalize(scored, req.Temperature)
		return rerr
	}); err != nil {
		return nil, err
	}

	res = &Result{Strategy: strategy, Temperature: req.Temperature, Candidates: ranked}

	switch strategy {
	case StrategyGraphDiffusion:
		err = e.runDiffusion(ctx, req, res)
	case StrategyNeighborhoodBoost:
		err = e.runBoost(ctx, req.Boost, res)
	}
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "engine run complete",
		"strategy", strategy,
		"candidates", len(res.Candidates),
		"dropped", res.Dropped)
	return res, nil
}

// BuildGraph builds a similarity graph for raw embeddings, enforcing the
// size threshold by rejection since raw embeddings carry no ranking.
func (e *Engine) BuildGraph(ctx context.Context, embeddings [][]float64, k int) (g *graph.Graph, err error) {
	if len(embeddings) > e.maxGraph {
		return nil, fmt.Errorf("%w: %d embeddings exceeds %d", ErrTooManyCandidates, len(embeddings), e.maxGraph)
	}
	err = e.stage(ctx, StageGraphBuild, func(context.Context) error {
		var berr error
		g, berr = graph.Build(embeddings, k)
		return berr
	})
	return g, err
}

func (e *Engine) runDiffusion(ctx context.Context, req Request, res *Result) error {
	opts := req.Diffusion
	if opts.Iterations > e.maxIter {
		return fmt.Errorf("%w: got %d, max %d", diffusion.ErrInvalidIterations, opts.Iterations, e.maxIter)
	}
	params := diffusion.Params{
		Iterations:   opts.Iterations,
		MixRate:      opts.MixRate,
		RecordFrames: opts.IncludeHistory,
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if _, err := graph.EffectiveK(opts.K); err != nil {
		return err
	}

	if n := len(res.Candidates); n > e.maxGraph {
		if e.policy == PolicyReject {
			return fmt.Errorf("%w: %d candidates exceeds %d", ErrTooManyCandidates, n, e.maxGraph)
		}
		kept := make([]ranking.ScoredCandidate, 0, e.maxGraph)
		for _, i := range selectIndices(e.policy, n, e.maxGraph) {
			kept = append(kept, res.Candidates[i])
		}
		reranked, err := ranking.RankAndNormalize(kept, req.Temperature)
		if err != nil {
			return err
		}
		res.Candidates = reranked
		res.Dropped = n - len(kept)

		e.logger.WarnContext(ctx, "graph diffusion over size threshold",
			"candidates", n,
			"max", e.maxGraph,
			"policy", e.policy,
			"dropped", res.Dropped)
		if e.metrics != nil {
			e.metrics.AddDropped(e.policy, res.Dropped)
		}
	}

	if len(res.Candidates) == 0 {
		return nil
	}

	cands := make([]candidate.Candidate, len(res.Candidates))
	initial := make([]float64, len(res.Candidates))
	for i := range res.Candidates {
		cands[i] = res.Candidates[i].Candidate
		initial[i] = res.Candidates[i].Probability
	}
	embeddings, err := candidate.Embeddings(cands)
	if err != nil {
		return err
	}

	var g *graph.Graph
	if err := e.stage(ctx, StageGraphBuild, func(context.Context) error {
		var berr error
		g, berr = graph.Build(embeddings, opts.K)
		return berr
	}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var hist *diffusion.History
	if err := e.stage(ctx, StageDiffuse, func(sctx context.Context) error {
		var derr error
		hist, derr = diffusion.Diffuse(sctx, g, initial, params)
		return derr
	}); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.AddDiffusionIterations(hist.Steps())
	}

	final := hist.Final()
	ranks := ranking.AssignRanks(final)
	for i := range res.Candidates {
		res.Candidates[i].DiffusedProbability = final[i]
		res.Candidates[i].DiffusedRank = ranks[i]
	}

	res.Graph = g
	if opts.IncludeHistory {
		res.History = hist
		res.HistoryIDs = make([]string, len(res.Candidates))
		for i := range res.Candidates {
			res.HistoryIDs[i] = res.Candidates[i].ID
		}
	}

	sortByRank(res.Candidates, func(c *ranking.ScoredCandidate) int { return c.DiffusedRank })
	return nil
}

func (e *Engine) runBoost(ctx context.Context, opts BoostOptions, res *Result) error {
	axis := opts.Axis
	if axis == "" {
		axis = candidate.MolecularWeight
	}

	items := make([]diffusion.BoostItem, len(res.Candidates))
	for i := range res.Candidates {
		items[i] = diffusion.BoostItem{
			Axis: res.Candidates[i].Value(axis),
			Base: res.Candidates[i].WeightedScore,
		}
	}

	var boosted []diffusion.BoostResult
	if err := e.stage(ctx, StageBoost, func(context.Context) error {
		var berr error
		boosted, berr = diffusion.Boost(items, opts.Alpha, opts.K)
		return berr
	}); err != nil {
		return err
	}

	scores := make([]float64, len(boosted))
	for i, b := range boosted {
		scores[i] = features.Round(b.Final, ranking.ScorePrecision)
	}
	ranks := ranking.AssignRanks(scores)
	for i := range res.Candidates {
		res.Candidates[i].BoostedScore = scores[i]
		res.Candidates[i].BoostedRank = ranks[i]
	}

	sortByRank(res.Candidates, func(c *ranking.ScoredCandidate) int { return c.BoostedRank })
	return nil
}

// stage runs fn inside a span and records its duration.
func (e *Engine) stage(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	sctx, endSpan := tracing.StartSpan(ctx, "engine."+name)
	start := time.Now()
	defer func() {
		endSpan(err)
		if e.metrics != nil {
			e.metrics.ObserveStage(name, time.Since(start).Seconds())
		}
	}()
	return fn(sctx)
}

func sortByRank(cands []ranking.ScoredCandidate, rank func(*ranking.ScoredCandidate) int) {
	sort.SliceStable(cands, func(i, j int) bool {
		return rank(&cands[i]) < rank(&cands[j])
	})
}
