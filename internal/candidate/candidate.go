// Package candidate defines the canonical molecule record consumed by the
// scoring engine. Provider-specific shapes are converted into this form by
// the adapter package before they reach scoring.
package candidate

import (
	"encoding/json"
	"errors"
	"math"
)

// Descriptor names a numeric property of a candidate.
type Descriptor string

// Canonical descriptor keys.
const (
	MolecularWeight     Descriptor = "molecular_weight"
	LogP                Descriptor = "log_p"
	HBondDonors         Descriptor = "h_bond_donors"
	HBondAcceptors      Descriptor = "h_bond_acceptors"
	RotatableBonds      Descriptor = "rotatable_bonds"
	PolarArea           Descriptor = "polar_area"
	HeavyAtoms          Descriptor = "heavy_atoms"
	Complexity          Descriptor = "complexity"
	MolecularComplexity Descriptor = "molecular_complexity"
	Binding             Descriptor = "binding"
	Toxicity            Descriptor = "toxicity"
	Stability           Descriptor = "stability"
	Solubility          Descriptor = "solubility"
	EfficacyIndex       Descriptor = "efficacy_index"
	SafetyIndex         Descriptor = "safety_index"
	Lipinski            Descriptor = "lipinski"
)

// Known lists every canonical descriptor in a fixed order.
var Known = []Descriptor{
	MolecularWeight,
	LogP,
	HBondDonors,
	HBondAcceptors,
	RotatableBonds,
	PolarArea,
	HeavyAtoms,
	Complexity,
	MolecularComplexity,
	Binding,
	Toxicity,
	Stability,
	Solubility,
	EfficacyIndex,
	SafetyIndex,
	Lipinski,
}

// Validation errors.
var (
	ErrMissingEmbedding  = errors.New("candidate has no embedding")
	ErrInvalidEmbedding  = errors.New("embedding contains non-finite coordinates")
	ErrDimensionMismatch = errors.New("embeddings have mismatched dimensions")
)

// IsKnown reports whether d is a canonical descriptor.
func IsKnown(d Descriptor) bool {
	for _, k := range Known {
		if k == d {
			return true
		}
	}
	return false
}

// DescriptorMap holds a candidate's descriptor values.
type DescriptorMap map[Descriptor]float64

// UnmarshalJSON decodes descriptor values. A null value is dropped so that
// it reads as absent rather than zero.
func (m *DescriptorMap) UnmarshalJSON(data []byte) error {
	var raw map[Descriptor]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}
	out := make(DescriptorMap, len(raw))
	for k, v := range raw {
		if v != nil {
			out[k] = *v
		}
	}
	*m = out
	return nil
}

// Candidate is one molecule under evaluation.
type Candidate struct {
	ID          string        `json:"id"`
	Source      string        `json:"source,omitempty"`
	Name        string        `json:"name,omitempty"`
	SMILES      string        `json:"smiles,omitempty"`
	Descriptors DescriptorMap `json:"descriptors"`
	Embedding   []float64     `json:"embedding,omitempty"`
}

// Value returns the descriptor value, or NaN when it is absent.
func (c *Candidate) Value(d Descriptor) float64 {
	if c.Descriptors == nil {
		return math.NaN()
	}
	v, ok := c.Descriptors[d]
	if !ok {
		return math.NaN()
	}
	return v
}

// Has reports whether the descriptor is present with a finite value.
func (c *Candidate) Has(d Descriptor) bool {
	v := c.Value(d)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Embeddings extracts the embedding coordinates of every candidate.
// All embeddings must be present, finite, and share one dimension.
func Embeddings(cands []Candidate) ([][]float64, error) {
	out := make([][]float64, len(cands))
	dim := -1
	for i := range cands {
		e := cands[i].Embedding
		if len(e) == 0 {
			return nil, ErrMissingEmbedding
		}
		if dim == -1 {
			dim = len(e)
		} else if len(e) != dim {
			return nil, ErrDimensionMismatch
		}
		for _, v := range e {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, ErrInvalidEmbedding
			}
		}
		out[i] = e
	}
	return out, nil
}
