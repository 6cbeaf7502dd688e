// Package diffusion smooths candidate probabilities across a similarity
// graph, and provides the cheaper single-axis neighborhood boost.
//
// The two are separate strategies with different guarantees. Boost is not
// an approximation of Diffuse and should not be used as a stand-in for it.
package diffusion

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/onnwee/molrank/internal/graph"
)

// renormTolerance is how far a frame's mass may drift from 1 before it is
// rescaled.
const renormTolerance = 1e-12

// MaxIterations is the largest iteration count Diffuse accepts.
const MaxIterations = 10000

// Diffusion errors.
var (
	ErrSizeMismatch         = errors.New("probability vector length does not match graph size")
	ErrInvalidProbabilities = errors.New("probabilities must be finite, non-negative, and sum > 0")
	ErrInvalidIterations    = errors.New("iterations out of range")
	ErrInvalidMixRate       = errors.New("mix rate must be in [0, 1]")
)

// Params controls a diffusion run.
type Params struct {
	// Iterations is the number of propagation steps. Zero returns the input.
	Iterations int `json:"iterations"`
	// MixRate blends each step: prob = (1-mix)*prob + mix*propagated.
	MixRate float64 `json:"mix_rate"`
	// RecordFrames keeps every post-iteration vector in History.Frames.
	// Without it only the final vector is retained.
	RecordFrames bool `json:"-"`
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	if p.Iterations < 0 || p.Iterations > MaxIterations {
		return fmt.Errorf("%w: got %d, want 0..%d", ErrInvalidIterations, p.Iterations, MaxIterations)
	}
	if math.IsNaN(p.MixRate) || p.MixRate < 0 || p.MixRate > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidMixRate, p.MixRate)
	}
	return nil
}

// History records the probability vector after each iteration. Frames is
// empty unless the run was made with Params.RecordFrames.
type History struct {
	Initial []float64   `json:"initial"`
	Frames  [][]float64 `json:"frames"`

	final []float64
	steps int
}

// Final returns the vector after the last iteration, or the initial vector
// when no iterations ran.
func (h *History) Final() []float64 {
	if h.final != nil {
		return h.final
	}
	if len(h.Frames) > 0 {
		return h.Frames[len(h.Frames)-1]
	}
	return h.Initial
}

// Steps returns the number of iterations that ran.
func (h *History) Steps() int {
	return h.steps
}

// Len returns the number of recorded frames.
func (h *History) Len() int {
	return len(h.Frames)
}

// Diffuse propagates probability mass along the graph's edges.
//
// Each iteration computes propagated[i] as the sum over every edge j->i of
// w(j,i)*prob[j], using the transposed adjacency. The result is mixed with
// the previous state and renormalized to sum to 1. Every post-iteration
// vector is appended to the returned history when p.RecordFrames is set.
// The inputs are not modified.
//
// ctx is checked before every iteration; a cancelled run returns ctx.Err().
func Diffuse(ctx context.Context, g *graph.Graph, initial []float64, p Params) (*History, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if len(initial) != g.N() {
		return nil, fmt.Errorf("%w: %d probabilities for %d nodes", ErrSizeMismatch, len(initial), g.N())
	}
	if err := validateProbabilities(initial); err != nil {
		return nil, err
	}

	h := &History{
		Initial: append([]float64(nil), initial...),
		Frames:  [][]float64{},
	}
	if p.Iterations == 0 {
		return h, nil
	}

	incoming := g.Incoming()
	prob := append([]float64(nil), initial...)
	next := make([]float64, len(prob))

	for it := 0; it < p.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i, in := range incoming {
			var acc float64
			for _, e := range in {
				acc += e.Weight * prob[e.Neighbor]
			}
			next[i] = acc
		}

		var sum float64
		for i := range prob {
			prob[i] = (1-p.MixRate)*prob[i] + p.MixRate*next[i]
			sum += prob[i]
		}
		if len(prob) > 0 && sum > 0 && math.Abs(sum-1) > renormTolerance {
			for i := range prob {
				prob[i] /= sum
			}
		}

		h.steps++
		if p.RecordFrames {
			h.Frames = append(h.Frames, append([]float64(nil), prob...))
		}
	}

	h.final = prob
	return h, nil
}

func validateProbabilities(p []float64) error {
	if len(p) == 0 {
		return nil
	}
	var sum float64
	for i, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: index %d is %v", ErrInvalidProbabilities, i, v)
		}
		sum += v
	}
	if sum <= 0 {
		return fmt.Errorf("%w: sum is %v", ErrInvalidProbabilities, sum)
	}
	return nil
}
