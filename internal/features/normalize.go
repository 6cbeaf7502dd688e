// Package features maps raw descriptor values into [0, 1] sub-scores.
//
// Every function here is total: non-finite or missing inputs normalize to 0
// so that one bad field lowers a candidate's score instead of failing the
// whole ranking.
package features

import (
	"math"
)

// Optimum values for distance-from-optimum transforms.
const (
	MolecularWeightOptimum = 375.0
	MolecularWeightSpan    = 425.0
	LogPOptimum            = 2.0
	LogPSpan               = 5.0

	// BalanceMidpoint is the complexity value that scores 1.0.
	BalanceMidpoint = 0.5
)

// finite reports whether v is neither NaN nor infinite.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Clamp01 clamps v to [0, 1]. NaN and ±Inf return 0.
func Clamp01(v float64) float64 {
	if !finite(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Normalize linearly rescales v from [lo, hi] into [0, 1].
// A degenerate or inverted range returns 0.
func Normalize(v, lo, hi float64) float64 {
	if !finite(v) || !finite(lo) || !finite(hi) || hi <= lo {
		return 0
	}
	return Clamp01((v - lo) / (hi - lo))
}

// Inverse returns 1 - Clamp01(v) for risk-style descriptors where lower is
// better. Missing values return 0, not 1.
func Inverse(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return 1 - Clamp01(v)
}

// Balance rewards values near the midpoint of a [0, 1] scale:
// 1 - |v - 0.5| * 2, clamped. Balance(0.5) == 1, Balance(0) == Balance(1) == 0.
func Balance(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return Clamp01(1 - math.Abs(v-BalanceMidpoint)*2)
}

// DistanceFromOptimum scores v by its linear distance from optimum:
// 1 - |v - optimum| / span, clamped to [0, 1].
func DistanceFromOptimum(v, optimum, span float64) float64 {
	if !finite(v) || span <= 0 {
		return 0
	}
	return Clamp01(1 - math.Abs(v-optimum)/span)
}

// MolecularWeightScore peaks at 375 Da and reaches 0 at 425 Da away.
func MolecularWeightScore(mw float64) float64 {
	return DistanceFromOptimum(mw, MolecularWeightOptimum, MolecularWeightSpan)
}

// LogPScore peaks at logP 2 and reaches 0 five units away.
func LogPScore(logP float64) float64 {
	return DistanceFromOptimum(logP, LogPOptimum, LogPSpan)
}

// Round rounds v to the given number of decimal places, half away from zero.
func Round(v float64, places int) float64 {
	if !finite(v) {
		return 0
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// MinMax scales values into [0, 1] using the observed min and max.
// NaN entries are ignored when computing the range and map to NaN.
// A degenerate range (all equal, or no finite values) yields zeros.
func MinMax(values []float64) []float64 {
	out := make([]float64, len(values))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if !finite(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if !finite(lo) || !finite(hi) || lo == hi {
		return out
	}
	for i, v := range values {
		if !finite(v) {
			out[i] = math.NaN()
			continue
		}
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
