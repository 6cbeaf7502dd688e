package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/onnwee/molrank/internal/candidate"
	"github.com/onnwee/molrank/internal/diffusion"
	"github.com/onnwee/molrank/internal/graph"
	"github.com/onnwee/molrank/internal/ranking"
)

func drugCandidate(id string, efficacy, safety, complexity float64, emb ...float64) candidate.Candidate {
	return candidate.Candidate{
		ID: id,
		Descriptors: map[candidate.Descriptor]float64{
			candidate.EfficacyIndex:       efficacy,
			candidate.SafetyIndex:         safety,
			candidate.MolecularComplexity: complexity,
			candidate.MolecularWeight:     200 + 100*efficacy,
		},
		Embedding: emb,
	}
}

func sampleCandidates(n int) []candidate.Candidate {
	out := make([]candidate.Candidate, n)
	for i := range out {
		f := float64((i*37)%100) / 100
		out[i] = drugCandidate(fmt.Sprintf("c%03d", i), f, 1-f/2, 0.3+f/3, f, float64(i%7)/7, 1-f)
	}
	return out
}

func TestRun_PerfectCandidate(t *testing.T) {
	e := New(Config{})
	res, err := e.Run(context.Background(), Request{
		Candidates:  []candidate.Candidate{drugCandidate("best", 1, 1, 0.5)},
		Weights:     ranking.DefaultWeights(),
		Temperature: 1,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	c := res.Candidates[0]
	if c.WeightedScore != 1.0 {
		t.Errorf("expected weighted score 1.0, got %v", c.WeightedScore)
	}
	if c.Rank != 1 || c.Probability != 1 {
		t.Errorf("expected rank 1 probability 1, got %d %v", c.Rank, c.Probability)
	}
	if res.Strategy != StrategyNone {
		t.Errorf("expected strategy none, got %s", res.Strategy)
	}
}

func TestRun_SoftmaxRatio(t *testing.T) {
	// Scores 0.8 and 0.2 under the drug model with only efficacy weighted.
	w := &ranking.Weights{Model: ranking.ModelDrug, Drug: ranking.DrugWeights{Efficacy: 1}}
	res, err := New(Config{}).Run(context.Background(), Request{
		Candidates: []candidate.Candidate{
			drugCandidate("low", 0.2, 0, 0),
			drugCandidate("high", 0.8, 0, 0),
		},
		Weights:     w,
		Temperature: 1,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Candidates[0].ID != "high" {
		t.Fatalf("expected high first, got %s", res.Candidates[0].ID)
	}
	ratio := res.Candidates[0].Probability / res.Candidates[1].Probability
	if math.Abs(ratio-math.Exp(0.6)) > 1e-9 {
		t.Errorf("expected ratio %f, got %f", math.Exp(0.6), ratio)
	}
}

func TestRun_Deterministic(t *testing.T) {
	e := New(Config{})
	req := Request{
		Candidates:  sampleCandidates(40),
		Temperature: 5,
		Strategy:    StrategyGraphDiffusion,
		Diffusion:   DefaultDiffusionOptions(),
	}

	a, err := e.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	b, err := e.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for i := range a.Candidates {
		x, y := a.Candidates[i], b.Candidates[i]
		if x.ID != y.ID || x.WeightedScore != y.WeightedScore || x.Probability != y.Probability ||
			x.DiffusedProbability != y.DiffusedProbability {
			t.Fatalf("runs differ at %d: %+v vs %+v", i, x, y)
		}
	}
}

func TestRun_InputNotMutated(t *testing.T) {
	cands := sampleCandidates(10)
	firstID := cands[0].ID
	_, err := New(Config{}).Run(context.Background(), Request{
		Candidates:  cands,
		Temperature: 1,
		Strategy:    StrategyNeighborhoodBoost,
		Boost:       DefaultBoostOptions(),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if cands[0].ID != firstID {
		t.Error("input candidate order was modified")
	}
}

func TestRun_Empty(t *testing.T) {
	for _, s := range []Strategy{StrategyNone, StrategyGraphDiffusion, StrategyNeighborhoodBoost} {
		t.Run(string(s), func(t *testing.T) {
			res, err := New(Config{}).Run(context.Background(), Request{
				Temperature: 1,
				Strategy:    s,
				Diffusion:   DefaultDiffusionOptions(),
				Boost:       DefaultBoostOptions(),
			})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if len(res.Candidates) != 0 {
				t.Errorf("expected no candidates, got %d", len(res.Candidates))
			}
		})
	}
}

func TestRun_GraphDiffusion(t *testing.T) {
	cands := []candidate.Candidate{
		drugCandidate("a", 0.9, 0.9, 0.5, 0, 0),
		drugCandidate("b", 0.1, 0.2, 0.5, 1, 0),
		drugCandidate("c", 0.5, 0.5, 0.5, 10, 10),
	}
	res, err := New(Config{}).Run(context.Background(), Request{
		Candidates:  cands,
		Temperature: 5,
		Strategy:    StrategyGraphDiffusion,
		Diffusion:   DiffusionOptions{K: 1, Iterations: 4, MixRate: 0.5, IncludeHistory: true},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.History == nil || res.History.Len() != 4 {
		t.Fatalf("expected 4 history frames, got %+v", res.History)
	}
	if len(res.HistoryIDs) != 3 {
		t.Fatalf("expected 3 history ids, got %d", len(res.HistoryIDs))
	}
	if res.Graph == nil || res.Graph.K != 1 {
		t.Fatalf("expected graph with k=1")
	}

	var sum float64
	for i, c := range res.Candidates {
		sum += c.DiffusedProbability
		if c.DiffusedRank != i+1 {
			t.Errorf("candidate %s at position %d has diffused rank %d", c.ID, i, c.DiffusedRank)
		}
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("diffused probabilities sum to %f", sum)
	}

	// Final history frame matches the per-candidate values.
	final := res.History.Final()
	byID := make(map[string]float64)
	for i, id := range res.HistoryIDs {
		byID[id] = final[i]
	}
	for _, c := range res.Candidates {
		if byID[c.ID] != c.DiffusedProbability {
			t.Errorf("history and result disagree for %s", c.ID)
		}
	}
}

func TestRun_GraphDiffusionIterationBound(t *testing.T) {
	cands := sampleCandidates(4)
	e := New(Config{MaxDiffusionIterations: 50})
	if e.MaxDiffusionIterations() != 50 {
		t.Fatalf("MaxDiffusionIterations = %d, want 50", e.MaxDiffusionIterations())
	}

	_, err := e.Run(context.Background(), Request{
		Candidates:  cands,
		Temperature: 1,
		Strategy:    StrategyGraphDiffusion,
		Diffusion:   DiffusionOptions{K: 2, Iterations: 51, MixRate: 0.3},
	})
	if !errors.Is(err, diffusion.ErrInvalidIterations) {
		t.Errorf("expected ErrInvalidIterations, got %v", err)
	}

	res, err := e.Run(context.Background(), Request{
		Candidates:  cands,
		Temperature: 1,
		Strategy:    StrategyGraphDiffusion,
		Diffusion:   DiffusionOptions{K: 2, Iterations: 50, MixRate: 0.3},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.History != nil {
		t.Error("history should be omitted unless requested")
	}

	if got := New(Config{MaxDiffusionIterations: 1 << 30}).MaxDiffusionIterations(); got != diffusion.MaxIterations {
		t.Errorf("bound should be lowered to %d, got %d", diffusion.MaxIterations, got)
	}
}

func TestRun_GraphDiffusionMissingEmbedding(t *testing.T) {
	cands := []candidate.Candidate{
		drugCandidate("a", 0.9, 0.9, 0.5, 0, 0),
		drugCandidate("b", 0.1, 0.2, 0.5),
	}
	_, err := New(Config{}).Run(context.Background(), Request{
		Candidates:  cands,
		Temperature: 1,
		Strategy:    StrategyGraphDiffusion,
		Diffusion:   DefaultDiffusionOptions(),
	})
	if !errors.Is(err, ErrMissingEmbedding) {
		t.Errorf("expected ErrMissingEmbedding, got %v", err)
	}
}

func TestRun_OversizePolicies(t *testing.T) {
	cands := sampleCandidates(25)

	tests := []struct {
		name    string
		policy  OversizePolicy
		wantErr error
		check   func(*testing.T, *Result)
	}{
		{
			name:    "reject",
			policy:  PolicyReject,
			wantErr: ErrTooManyCandidates,
		},
		{
			name:   "cap keeps top ranked",
			policy: PolicyCap,
			check: func(t *testing.T, res *Result) {
				if len(res.Candidates) != 10 || res.Dropped != 15 {
					t.Fatalf("expected 10 kept 15 dropped, got %d/%d", len(res.Candidates), res.Dropped)
				}
				full, _ := New(Config{}).Run(context.Background(), Request{Candidates: cands, Temperature: 2})
				top := make(map[string]bool)
				for _, c := range full.Candidates[:10] {
					top[c.ID] = true
				}
				for _, c := range res.Candidates {
					if !top[c.ID] {
						t.Errorf("%s is not in the top 10", c.ID)
					}
				}
			},
		},
		{
			name:   "subsample keeps rank one",
			policy: PolicySubsample,
			check: func(t *testing.T, res *Result) {
				if len(res.Candidates) != 10 || res.Dropped != 15 {
					t.Fatalf("expected 10 kept 15 dropped, got %d/%d", len(res.Candidates), res.Dropped)
				}
				full, _ := New(Config{}).Run(context.Background(), Request{Candidates: cands, Temperature: 2})
				found := false
				for _, c := range res.Candidates {
					if c.ID == full.Candidates[0].ID {
						found = true
						if c.Rank != 1 {
							t.Errorf("best candidate should keep rank 1, got %d", c.Rank)
						}
					}
				}
				if !found {
					t.Error("subsample dropped the rank 1 candidate")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(Config{MaxGraphCandidates: 10, OversizePolicy: tt.policy})
			res, err := e.Run(context.Background(), Request{
				Candidates:  cands,
				Temperature: 2,
				Strategy:    StrategyGraphDiffusion,
				Diffusion:   DefaultDiffusionOptions(),
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			var sum float64
			for _, c := range res.Candidates {
				sum += c.Probability
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Errorf("kept probabilities sum to %f", sum)
			}
			tt.check(t, res)
		})
	}
}

func TestRun_ThresholdIgnoredWithoutGraph(t *testing.T) {
	e := New(Config{MaxGraphCandidates: 5, OversizePolicy: PolicyReject})
	res, err := e.Run(context.Background(), Request{Candidates: sampleCandidates(20), Temperature: 1})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Candidates) != 20 || res.Dropped != 0 {
		t.Errorf("threshold should only apply to graph diffusion")
	}
}

func TestRun_NeighborhoodBoost(t *testing.T) {
	res, err := New(Config{}).Run(context.Background(), Request{
		Candidates:  sampleCandidates(12),
		Temperature: 1,
		Strategy:    StrategyNeighborhoodBoost,
		Boost:       BoostOptions{Alpha: 0.5, K: 2},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for i, c := range res.Candidates {
		if c.BoostedRank != i+1 {
			t.Errorf("position %d has boosted rank %d", i, c.BoostedRank)
		}
		if c.BoostedScore < c.WeightedScore {
			t.Errorf("%s boosted score %f below base %f", c.ID, c.BoostedScore, c.WeightedScore)
		}
		if c.DiffusedRank != 0 {
			t.Errorf("boost must not populate diffusion fields")
		}
	}
}

func TestRun_Errors(t *testing.T) {
	cands := sampleCandidates(3)
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"zero temperature", Request{Candidates: cands}, ranking.ErrInvalidTemperature},
		{"unknown strategy", Request{Candidates: cands, Temperature: 1, Strategy: "quantum_walk"}, ErrInvalidStrategy},
		{"graph k zero", Request{Candidates: cands, Temperature: 1, Strategy: StrategyGraphDiffusion,
			Diffusion: DiffusionOptions{Iterations: 1, MixRate: 0.5}}, graph.ErrInvalidK},
		{"boost k zero", Request{Candidates: cands, Temperature: 1, Strategy: StrategyNeighborhoodBoost,
			Boost: BoostOptions{Alpha: 1}}, graph.ErrInvalidK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{}).Run(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Run(ctx, Request{
		Candidates:  sampleCandidates(10),
		Temperature: 1,
		Strategy:    StrategyGraphDiffusion,
		Diffusion:   DefaultDiffusionOptions(),
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBuildGraph_Threshold(t *testing.T) {
	e := New(Config{MaxGraphCandidates: 2})
	if _, err := e.BuildGraph(context.Background(), [][]float64{{0}, {1}, {2}}, 1); !errors.Is(err, ErrTooManyCandidates) {
		t.Errorf("expected ErrTooManyCandidates, got %v", err)
	}
	g, err := e.BuildGraph(context.Background(), [][]float64{{0}, {1}}, 1)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}
	if g.N() != 2 {
		t.Errorf("expected 2 nodes, got %d", g.N())
	}
}

func TestRun_RecordsMetrics(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	e := New(Config{Metrics: m, MaxGraphCandidates: 5, OversizePolicy: PolicyCap})
	_, err := e.Run(context.Background(), Request{
		Candidates:  sampleCandidates(8),
		Temperature: 1,
		Strategy:    StrategyGraphDiffusion,
		Diffusion:   DiffusionOptions{K: 2, Iterations: 3, MixRate: 0.2},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	_, _ = e.Run(context.Background(), Request{Candidates: sampleCandidates(2)})

	if got := counterValue(t, m.runsTotal.WithLabelValues(string(StrategyGraphDiffusion), OutcomeSuccess)); got != 1 {
		t.Errorf("expected 1 successful graph run, got %v", got)
	}
	if got := counterValue(t, m.droppedCandidates.WithLabelValues(string(PolicyCap))); got != 3 {
		t.Errorf("expected 3 dropped, got %v", got)
	}
	if got := counterValue(t, m.diffusionIterations); got != 3 {
		t.Errorf("expected 3 iterations, got %v", got)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}
