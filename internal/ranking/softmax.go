package ranking

import (
	"errors"
	"math"
	"sort"

	"github.com/onnwee/molrank/internal/candidate"
)

// ErrInvalidTemperature is returned when the softmax temperature is not a
// finite positive number.
var ErrInvalidTemperature = errors.New("softmax temperature must be finite and > 0")

// ScoredCandidate is a candidate augmented with its scoring results.
type ScoredCandidate struct {
	candidate.Candidate

	SubScores     map[string]float64 `json:"sub_scores"`
	WeightedScore float64            `json:"weighted_score"`
	Rank          int                `json:"rank"`
	Probability   float64            `json:"probability"`

	// Populated by graph diffusion.
	DiffusedProbability float64 `json:"diffused_probability,omitempty"`
	DiffusedRank        int     `json:"diffused_rank,omitempty"`

	// Populated by neighborhood boosting.
	BoostedScore float64 `json:"boosted_score,omitempty"`
	BoostedRank  int     `json:"boosted_rank,omitempty"`
}

// ValidateTemperature checks that t can be used as a softmax temperature.
func ValidateTemperature(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 {
		return ErrInvalidTemperature
	}
	return nil
}

// Softmax converts scores into a probability distribution:
// p_i = exp(T*(s_i - max)) / sum_j exp(T*(s_j - max)).
// Subtracting the max keeps exponents <= 0. An empty input returns nil.
func Softmax(scores []float64, temperature float64) ([]float64, error) {
	if err := ValidateTemperature(temperature); err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, nil
	}

	maxScore := math.Inf(-1)
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}

	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(temperature * (s - maxScore))
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out, nil
}

// RankAndNormalize sorts candidates by descending weighted score, assigns
// 1-based ranks (ties keep input order), and sets softmax probabilities.
// The input slice is not modified; the result is a new slice in rank order.
func RankAndNormalize(scored []ScoredCandidate, temperature float64) ([]ScoredCandidate, error) {
	if err := ValidateTemperature(temperature); err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return []ScoredCandidate{}, nil
	}

	out := make([]ScoredCandidate, len(scored))
	copy(out, scored)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WeightedScore > out[j].WeightedScore
	})

	scores := make([]float64, len(out))
	for i := range out {
		out[i].Rank = i + 1
		scores[i] = out[i].WeightedScore
	}

	probs, err := Softmax(scores, temperature)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Probability = probs[i]
	}
	return out, nil
}

// AssignRanks returns 1-based ranks for values sorted descending, with ties
// broken by index. ranks[i] is the rank of values[i].
func AssignRanks(values []float64) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return values[idx[a]] > values[idx[b]]
	})
	ranks := make([]int, len(values))
	for r, i := range idx {
		ranks[i] = r + 1
	}
	return ranks
}
