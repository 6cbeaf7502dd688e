package diffusion

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/onnwee/molrank/internal/graph"
)

// ErrInvalidAlpha is returned when the boost factor is not finite.
var ErrInvalidAlpha = errors.New("boost alpha must be finite")

// BoostItem is one record on the single comparison axis. A NaN Axis means
// the value is unknown; a NaN Base scores as 0.
type BoostItem struct {
	Axis float64
	Base float64
}

// BoostResult holds the neighborhood boost of one item.
type BoostResult struct {
	// Boost is the mean base score of the item's neighbors.
	Boost float64 `json:"boost"`
	// Final is Base + alpha*Boost.
	Final float64 `json:"final"`
	// Neighbors lists the indices used, nearest first.
	Neighbors []int `json:"neighbors"`
}

// Boost scores each item by its k nearest neighbors along the axis.
//
// Neighbors are ranked by |axis_i - axis_j|, ties broken by index, with
// self excluded. Items whose axis is unknown sort after every known one.
// k is capped at graph.MaxK. Results are returned in input order and are
// not clamped.
func Boost(items []BoostItem, alpha float64, k int) ([]BoostResult, error) {
	k, err := graph.EffectiveK(k)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidAlpha, alpha)
	}

	n := len(items)
	out := make([]BoostResult, n)
	order := make([]int, 0, n)

	for i := range items {
		order = order[:0]
		for j := range items {
			if j != i {
				order = append(order, j)
			}
		}
		sort.SliceStable(order, func(a, b int) bool {
			da := axisDistance(items[i].Axis, items[order[a]].Axis)
			db := axisDistance(items[i].Axis, items[order[b]].Axis)
			if da != db {
				return da < db
			}
			return order[a] < order[b]
		})

		m := k
		if len(order) < m {
			m = len(order)
		}

		res := BoostResult{Neighbors: append([]int{}, order[:m]...)}
		if m > 0 {
			var sum float64
			for _, j := range res.Neighbors {
				sum += baseScore(items[j].Base)
			}
			res.Boost = sum / float64(m)
		}
		res.Final = baseScore(items[i].Base) + alpha*res.Boost
		out[i] = res
	}

	return out, nil
}

// axisDistance treats an unknown value on either side as infinitely far.
func axisDistance(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return math.Inf(1)
	}
	return math.Abs(a - b)
}

func baseScore(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
