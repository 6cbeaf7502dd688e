// Package snapshot computes and caches per-dataset ranking summaries.
package snapshot

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/onnwee/molrank/internal/candidate"
	"github.com/onnwee/molrank/internal/features"
	"github.com/onnwee/molrank/internal/ranking"
)

// DefaultTopN is the number of leading candidate IDs kept in a snapshot.
const DefaultTopN = 10

// ErrCacheMiss is returned by Cache.Get when no live entry exists.
var ErrCacheMiss = errors.New("snapshot not cached")

// Snapshot summarizes the scored state of one dataset.
type Snapshot struct {
	Dataset    string         `json:"dataset"`
	Count      int            `json:"count"`
	MeanScore  float64        `json:"mean_score"`
	MaxScore   float64        `json:"max_score"`
	Sources    map[string]int `json:"sources"`
	TopIDs     []string       `json:"top_ids"`
	ComputedAt time.Time      `json:"computed_at"`
}

// Cache stores snapshots with an explicit lifetime. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, dataset string) (*Snapshot, error)
	Set(ctx context.Context, s *Snapshot) error
	Invalidate(ctx context.Context, dataset string) error
}

// Summarize scores the candidates and summarizes them. Ties in score keep
// input order. topN <= 0 uses DefaultTopN.
func Summarize(dataset string, cands []candidate.Candidate, w *ranking.Weights, topN int, now time.Time) *Snapshot {
	if topN <= 0 {
		topN = DefaultTopN
	}
	s := &Snapshot{
		Dataset:    dataset,
		Count:      len(cands),
		Sources:    make(map[string]int),
		TopIDs:     []string{},
		ComputedAt: now.UTC(),
	}
	if len(cands) == 0 {
		return s
	}

	scored := ranking.ScoreCandidates(cands, w)
	var sum float64
	for i := range scored {
		v := scored[i].WeightedScore
		sum += v
		if i == 0 || v > s.MaxScore {
			s.MaxScore = v
		}
		src := scored[i].Source
		if src == "" {
			src = "unknown"
		}
		s.Sources[src]++
	}
	s.MeanScore = features.Round(sum/float64(len(scored)), ranking.ScorePrecision)

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].WeightedScore > scored[b].WeightedScore
	})
	if topN > len(scored) {
		topN = len(scored)
	}
	for i := 0; i < topN; i++ {
		s.TopIDs = append(s.TopIDs, scored[i].ID)
	}
	return s
}
