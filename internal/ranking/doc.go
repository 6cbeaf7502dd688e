// Package ranking provides weighted candidate scoring, ranking, and softmax
// normalization with calibration support.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	weights, err := ranking.LoadCalibration("configs/scoring.calibration.json")
//	if err != nil {
//		log.Warn("using default weights", "error", err)
//	}
//
//	scored := ranking.ScoreCandidates(candidates, weights)
//	ranked, err := ranking.RankAndNormalize(scored, 1.0)
//
// Scoring Models:
//
// The drug model combines efficacy_index, safety_index, and a balance
// transform of molecular_complexity that peaks at 0.5. The profile model
// combines binding, inverse toxicity, solubility, Lipinski compliance, and
// distance-from-optimum fits for molecular weight (375 Da) and logP (2).
// Weights are normalized to sum to 1 before use; invalid weight sets fall
// back to the model defaults.
//
// Temperature:
//
// RankAndNormalize takes the softmax temperature as a required argument.
// Callers have historically used both T=1 and T=5; there is no default.
//
// Calibration:
//
// Calibration files (JSON, or TOML with a .toml extension) are merged over
// the defaults at startup. Zero coefficients in the file mean "keep the
// default". See configs/scoring.calibration.json.
package ranking
