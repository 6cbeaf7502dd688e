package features

import (
	"math"
	"testing"

	"github.com/onnwee/molrank/internal/candidate"
)

func TestClamp01(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"inside", 0.25, 0.25},
		{"below", -3, 0},
		{"above", 7, 1},
		{"nan", math.NaN(), 0},
		{"positive infinity", math.Inf(1), 0},
		{"negative infinity", math.Inf(-1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clamp01(tt.in); got != tt.want {
				t.Errorf("Clamp01(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(5, 0, 10); got != 0.5 {
		t.Errorf("expected 0.5, got %f", got)
	}
	if got := Normalize(5, 10, 10); got != 0 {
		t.Errorf("degenerate range should return 0, got %f", got)
	}
	if got := Normalize(20, 0, 10); got != 1 {
		t.Errorf("expected clamp to 1, got %f", got)
	}
}

func TestInverse_MissingIsWorstCase(t *testing.T) {
	if got := Inverse(math.NaN()); got != 0 {
		t.Errorf("missing toxicity must score 0, got %f", got)
	}
	if got := Inverse(0.2); math.Abs(got-0.8) > 1e-12 {
		t.Errorf("expected 0.8, got %f", got)
	}
}

func TestBalance(t *testing.T) {
	if got := Balance(0.5); got != 1.0 {
		t.Errorf("Balance(0.5) = %v, want 1", got)
	}
	if got := Balance(0.0); got != 0.0 {
		t.Errorf("Balance(0) = %v, want 0", got)
	}
	if got := Balance(1.0); got != 0.0 {
		t.Errorf("Balance(1) = %v, want 0", got)
	}
	if got := Balance(math.NaN()); got != 0.0 {
		t.Errorf("Balance(NaN) = %v, want 0", got)
	}

	// Monotonically decreasing away from the midpoint in both directions.
	prevUp, prevDown := Balance(0.5), Balance(0.5)
	for step := 1; step <= 50; step++ {
		d := float64(step) / 100
		up := Balance(0.5 + d)
		down := Balance(0.5 - d)
		if up > prevUp {
			t.Errorf("Balance increased above midpoint at %v", 0.5+d)
		}
		if down > prevDown {
			t.Errorf("Balance increased below midpoint at %v", 0.5-d)
		}
		prevUp, prevDown = up, down
	}
}

func TestDistanceFromOptimum(t *testing.T) {
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"mw at optimum", MolecularWeightScore(375), 1},
		{"mw far", MolecularWeightScore(800), 0},
		{"mw halfway", MolecularWeightScore(375 + 212.5), 0.5},
		{"logp at optimum", LogPScore(2), 1},
		{"logp one away", LogPScore(3), 0.8},
		{"logp far negative", LogPScore(-10), 0},
		{"missing logp", LogPScore(math.NaN()), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if math.Abs(tt.got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestRound(t *testing.T) {
	if got := Round(0.1234567, 6); got != 0.123457 {
		t.Errorf("expected 0.123457, got %v", got)
	}
	if got := Round(math.NaN(), 6); got != 0 {
		t.Errorf("NaN should round to 0, got %v", got)
	}
}

func TestMinMax(t *testing.T) {
	out := MinMax([]float64{2, 4, math.NaN(), 6})
	if out[0] != 0 || out[1] != 0.5 || out[3] != 1 {
		t.Errorf("unexpected scaling: %v", out)
	}
	if !math.IsNaN(out[2]) {
		t.Errorf("NaN should stay NaN, got %v", out[2])
	}

	flat := MinMax([]float64{3, 3, 3})
	for i, v := range flat {
		if v != 0 {
			t.Errorf("degenerate range index %d = %v, want 0", i, v)
		}
	}
}

func TestLipinskiRatio(t *testing.T) {
	c := candidate.Candidate{Descriptors: map[candidate.Descriptor]float64{
		candidate.MolecularWeight: 650, // fails
		candidate.LogP:            2.1,
		candidate.HBondDonors:     2,
		candidate.HBondAcceptors:  12, // fails
	}}
	ratio, ok := LipinskiRatio(&c)
	if !ok {
		t.Fatal("expected ok with four checkable rules")
	}
	if ratio != 0.5 {
		t.Errorf("expected 0.5, got %v", ratio)
	}

	empty := candidate.Candidate{}
	if _, ok := LipinskiRatio(&empty); ok {
		t.Error("expected ok=false with no descriptors")
	}
}
