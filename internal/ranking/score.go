package ranking

import (
	"github.com/onnwee/molrank/internal/candidate"
	"github.com/onnwee/molrank/internal/features"
)

// Sub-score names.
const (
	TermEfficacy          = "efficacy"
	TermSafety            = "safety"
	TermComplexityBalance = "complexity_balance"
	TermBinding           = "binding"
	TermToxicity          = "toxicity"
	TermSolubility        = "solubility"
	TermLipinski          = "lipinski"
	TermMolecularWeight   = "molecular_weight"
	TermLogP              = "log_p"
)

// ScorePrecision is the number of decimal places weighted scores are rounded to.
const ScorePrecision = 6

// SubScores maps each raw descriptor through its transform for the given
// model. Every value is in [0, 1]; missing descriptors score 0.
func SubScores(c *candidate.Candidate, model Model) map[string]float64 {
	if model == ModelProfile {
		lipinski := features.Clamp01(c.Value(candidate.Lipinski))
		if !c.Has(candidate.Lipinski) {
			if ratio, ok := features.LipinskiRatio(c); ok {
				lipinski = ratio
			}
		}
		return map[string]float64{
			TermBinding:         features.Clamp01(c.Value(candidate.Binding)),
			TermToxicity:        features.Inverse(c.Value(candidate.Toxicity)),
			TermSolubility:      features.Clamp01(c.Value(candidate.Solubility)),
			TermLipinski:        lipinski,
			TermMolecularWeight: features.MolecularWeightScore(c.Value(candidate.MolecularWeight)),
			TermLogP:            features.LogPScore(c.Value(candidate.LogP)),
		}
	}
	return map[string]float64{
		TermEfficacy:          features.Clamp01(c.Value(candidate.EfficacyIndex)),
		TermSafety:            features.Clamp01(c.Value(candidate.SafetyIndex)),
		TermComplexityBalance: features.Balance(c.Value(candidate.MolecularComplexity)),
	}
}

// combine applies normalized weights to sub-scores.
func combine(sub map[string]float64, normalized *Weights) float64 {
	var score float64
	for _, term := range normalized.Terms() {
		score += term.Value * sub[term.Name]
	}
	return features.Round(features.Clamp01(score), ScorePrecision)
}

// ComputeScore returns the weighted score of a candidate in [0, 1], rounded
// to six decimal places. Weights are normalized first; nil uses defaults.
func ComputeScore(c *candidate.Candidate, w *Weights) float64 {
	n := w.Normalized()
	return combine(SubScores(c, n.Model), n)
}

// ScoreCandidates scores every candidate and returns the results in input
// order with Rank and Probability unset. The input slice is not modified.
func ScoreCandidates(cands []candidate.Candidate, w *Weights) []ScoredCandidate {
	n := w.Normalized()
	out := make([]ScoredCandidate, len(cands))
	for i := range cands {
		sub := SubScores(&cands[i], n.Model)
		out[i] = ScoredCandidate{
			Candidate:     cands[i],
			SubScores:     sub,
			WeightedScore: combine(sub, n),
		}
	}
	return out
}
