package engine

import (
	"fmt"
	"strings"
)

// Strategy selects how ranked probabilities are smoothed after scoring.
// The two smoothing strategies are not numerically equivalent.
type Strategy string

const (
	// StrategyNone returns the softmax ranking as is.
	StrategyNone Strategy = "none"
	// StrategyGraphDiffusion builds a kNN graph over embeddings and
	// diffuses probabilities across it.
	StrategyGraphDiffusion Strategy = "graph_diffusion"
	// StrategyNeighborhoodBoost adds the mean score of the nearest
	// candidates along a single descriptor axis.
	StrategyNeighborhoodBoost Strategy = "neighborhood_boost"
)

// ParseStrategy converts a string to a Strategy. The empty string maps to
// StrategyNone.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyNone:
		return StrategyNone, nil
	case StrategyGraphDiffusion:
		return StrategyGraphDiffusion, nil
	case StrategyNeighborhoodBoost:
		return StrategyNeighborhoodBoost, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
	}
}

// OversizePolicy decides what happens when a graph diffusion request has
// more candidates than the configured threshold.
type OversizePolicy string

const (
	// PolicyReject fails the request with ErrTooManyCandidates.
	PolicyReject OversizePolicy = "reject"
	// PolicyCap keeps only the top ranked candidates.
	PolicyCap OversizePolicy = "cap"
	// PolicySubsample keeps an evenly strided sample of the ranked list,
	// always including rank 1.
	PolicySubsample OversizePolicy = "subsample"
)

// ParseOversizePolicy converts a string to an OversizePolicy. The empty
// string maps to PolicyCap.
func ParseOversizePolicy(s string) (OversizePolicy, error) {
	switch OversizePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyCap:
		return PolicyCap, nil
	case PolicyReject:
		return PolicyReject, nil
	case PolicySubsample:
		return PolicySubsample, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// selectIndices returns the positions of a ranked list of length n to keep
// under the policy when at most max may be kept.
func selectIndices(policy OversizePolicy, n, max int) []int {
	if n <= max {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	idx := make([]int, max)
	for i := range idx {
		if policy == PolicySubsample {
			idx[i] = i * n / max
		} else {
			idx[i] = i
		}
	}
	return idx
}
