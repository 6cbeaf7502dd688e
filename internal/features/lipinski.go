package features

import (
	"github.com/onnwee/molrank/internal/candidate"
)

// lipinskiCheck is one drug-likeness rule over a single descriptor.
type lipinskiCheck struct {
	desc candidate.Descriptor
	pass func(v float64) bool
}

var lipinskiChecks = []lipinskiCheck{
	{candidate.MolecularWeight, func(v float64) bool { return v <= 500 }},
	{candidate.LogP, func(v float64) bool { return v >= -0.5 && v <= 5.0 }},
	{candidate.HBondDonors, func(v float64) bool { return v <= 5 }},
	{candidate.HBondAcceptors, func(v float64) bool { return v <= 10 }},
	{candidate.RotatableBonds, func(v float64) bool { return v <= 10 }},
	{candidate.PolarArea, func(v float64) bool { return v <= 140 }},
}

// LipinskiRatio returns the fraction of checkable rule-of-five style rules
// the candidate satisfies. ok is false when none of the descriptors the
// rules depend on are present.
func LipinskiRatio(c *candidate.Candidate) (ratio float64, ok bool) {
	var checked, passed int
	for _, chk := range lipinskiChecks {
		if !c.Has(chk.desc) {
			continue
		}
		checked++
		if chk.pass(c.Value(chk.desc)) {
			passed++
		}
	}
	if checked == 0 {
		return 0, false
	}
	return float64(passed) / float64(checked), true
}
