package dataset

import (
	"math"
	"sort"
)

// Winsorization bounds.
const (
	LowerQuantile = 0.01
	UpperQuantile = 0.99
)

func finiteSorted(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// quantileSorted linearly interpolates between closest ranks.
func quantileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Quantile returns the q-quantile of the non-NaN values, or NaN if none.
func Quantile(values []float64, q float64) float64 {
	return quantileSorted(finiteSorted(values), q)
}

// Median returns the median of the non-NaN values, or NaN if none.
func Median(values []float64) float64 {
	return Quantile(values, 0.5)
}

// Winsorize clips values in place to the [LowerQuantile, UpperQuantile]
// range. Columns whose bounds coincide are left alone; NaN stays NaN.
func Winsorize(values []float64) {
	sorted := finiteSorted(values)
	if len(sorted) == 0 {
		return
	}
	lo := quantileSorted(sorted, LowerQuantile)
	hi := quantileSorted(sorted, UpperQuantile)
	if lo == hi {
		return
	}
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		values[i] = math.Min(math.Max(v, lo), hi)
	}
}

// ImputeMedian replaces NaN entries with the column median, or 0 when the
// column has no values at all.
func ImputeMedian(values []float64) {
	m := Median(values)
	if math.IsNaN(m) {
		m = 0
	}
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = m
		}
	}
}

// IQROutliers counts values outside [Q1 - 1.5·IQR, Q3 + 1.5·IQR]. A zero
// IQR reports no outliers.
func IQROutliers(values []float64) int {
	sorted := finiteSorted(values)
	if len(sorted) == 0 {
		return 0
	}
	q1 := quantileSorted(sorted, 0.25)
	q3 := quantileSorted(sorted, 0.75)
	iqr := q3 - q1
	if iqr == 0 {
		return 0
	}
	lo, hi := q1-1.5*iqr, q3+1.5*iqr
	n := 0
	for _, v := range sorted {
		if v < lo || v > hi {
			n++
		}
	}
	return n
}

func clipAll(values []float64, lo, hi float64) {
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		values[i] = math.Min(math.Max(v, lo), hi)
	}
}
