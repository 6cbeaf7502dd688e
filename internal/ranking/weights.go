// Package ranking provides weighted candidate scoring, ranking, and softmax
// normalization with calibration support.
package ranking

import (
	"math"
)

// Model selects which set of weighted terms a score is built from.
type Model string

const (
	// ModelDrug combines efficacy, safety, and complexity balance.
	ModelDrug Model = "drug"
	// ModelProfile combines six descriptor-level terms.
	ModelProfile Model = "profile"
)

// Valid reports whether m is a known scoring model.
func (m Model) Valid() bool {
	return m == ModelDrug || m == ModelProfile
}

// DrugWeights defines the three-term weights (default 0.45 / 0.35 / 0.20).
type DrugWeights struct {
	Efficacy          float64 `json:"efficacy" toml:"efficacy"`
	Safety            float64 `json:"safety" toml:"safety"`
	ComplexityBalance float64 `json:"complexity_balance" toml:"complexity_balance"`
}

// ProfileWeights defines the six-term descriptor weights.
type ProfileWeights struct {
	Binding         float64 `json:"binding" toml:"binding"`
	Toxicity        float64 `json:"toxicity" toml:"toxicity"`
	Solubility      float64 `json:"solubility" toml:"solubility"`
	Lipinski        float64 `json:"lipinski" toml:"lipinski"`
	MolecularWeight float64 `json:"molecular_weight" toml:"molecular_weight"`
	LogP            float64 `json:"log_p" toml:"log_p"`
}

// Weights holds the scoring weights for both models and the active model.
// Coefficients need not sum to 1; they are normalized before use.
type Weights struct {
	Model   Model          `json:"model" toml:"model"`
	Drug    DrugWeights    `json:"drug" toml:"drug"`
	Profile ProfileWeights `json:"profile" toml:"profile"`
}

// DefaultDrugWeights returns the documented three-term defaults.
func DefaultDrugWeights() DrugWeights {
	return DrugWeights{
		Efficacy:          0.45,
		Safety:            0.35,
		ComplexityBalance: 0.20,
	}
}

// DefaultProfileWeights returns the documented six-term defaults.
func DefaultProfileWeights() ProfileWeights {
	return ProfileWeights{
		Binding:         0.30,
		Toxicity:        0.20,
		Solubility:      0.15,
		Lipinski:        0.15,
		MolecularWeight: 0.10,
		LogP:            0.10,
	}
}

// DefaultWeights returns the default weight configuration using the drug model.
//
// Drug formula: score = efficacy*0.45 + safety*0.35 + complexity_balance*0.20
//
// Profile formula: score = binding*0.30 + (1-toxicity)*0.20 + solubility*0.15 +
// lipinski*0.15 + mw_fit*0.10 + logp_fit*0.10
func DefaultWeights() *Weights {
	return &Weights{
		Model:   ModelDrug,
		Drug:    DefaultDrugWeights(),
		Profile: DefaultProfileWeights(),
	}
}

// Terms returns the active model's coefficients as name/value pairs in a
// fixed order. The names match the sub-score keys produced by ComputeScore.
func (w *Weights) Terms() []Term {
	if w.model() == ModelProfile {
		return []Term{
			{TermBinding, w.Profile.Binding},
			{TermToxicity, w.Profile.Toxicity},
			{TermSolubility, w.Profile.Solubility},
			{TermLipinski, w.Profile.Lipinski},
			{TermMolecularWeight, w.Profile.MolecularWeight},
			{TermLogP, w.Profile.LogP},
		}
	}
	return []Term{
		{TermEfficacy, w.Drug.Efficacy},
		{TermSafety, w.Drug.Safety},
		{TermComplexityBalance, w.Drug.ComplexityBalance},
	}
}

// Term is one named coefficient.
type Term struct {
	Name  string
	Value float64
}

// model returns the active model, defaulting to ModelDrug.
func (w *Weights) model() Model {
	if w == nil || !w.Model.Valid() {
		return ModelDrug
	}
	return w.Model
}

// Normalized returns a copy whose active-model coefficients sum to 1.0.
// Negative coefficients are treated as 0. If the active coefficients sum to
// <= 0 or any is non-finite, the defaults for that model are used instead.
// A nil receiver yields normalized defaults.
func (w *Weights) Normalized() *Weights {
	if w == nil {
		w = DefaultWeights()
	}
	out := *w
	out.Model = w.model()

	switch out.Model {
	case ModelProfile:
		p := out.Profile
		vals := []*float64{&p.Binding, &p.Toxicity, &p.Solubility, &p.Lipinski, &p.MolecularWeight, &p.LogP}
		if !normalizeInPlace(vals) {
			p = DefaultProfileWeights()
			normalizeInPlace([]*float64{&p.Binding, &p.Toxicity, &p.Solubility, &p.Lipinski, &p.MolecularWeight, &p.LogP})
		}
		out.Profile = p
	default:
		d := out.Drug
		if !normalizeInPlace([]*float64{&d.Efficacy, &d.Safety, &d.ComplexityBalance}) {
			d = DefaultDrugWeights()
			normalizeInPlace([]*float64{&d.Efficacy, &d.Safety, &d.ComplexityBalance})
		}
		out.Drug = d
	}
	return &out
}

// normalizeInPlace rescales the values to sum to 1. It returns false, and
// leaves the values unspecified, when the set is non-finite or sums to <= 0.
func normalizeInPlace(vals []*float64) bool {
	var sum float64
	for _, v := range vals {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return false
		}
		if *v < 0 {
			*v = 0
		}
		sum += *v
	}
	if sum <= 0 {
		return false
	}
	for _, v := range vals {
		*v /= sum
	}
	return true
}
