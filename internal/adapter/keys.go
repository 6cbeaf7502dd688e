// Package adapter converts provider-specific records into canonical
// candidates. All descriptor field-name resolution lives here so the
// scoring engine only ever sees candidate.Descriptor keys.
package adapter

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/onnwee/molrank/internal/candidate"
)

// NormalizeKey converts a provider field name to lower snake_case.
// The input is NFKC-normalized first so full-width and compatibility
// characters compare equal to their ASCII forms. A word boundary is
// inserted between a lowercase letter or digit and a following uppercase
// letter; any run of other non-alphanumeric characters becomes one '_'.
//
//	NormalizeKey("MolecularWeight") == "molecular_weight"
//	NormalizeKey("XLogP")           == "xlog_p"
//	NormalizeKey("Polar Area (Å²)") == "polar_area_å2"
func NormalizeKey(s string) string {
	s = strings.TrimSpace(norm.NFKC.String(s))

	var b strings.Builder
	b.Grow(len(s) + 4)
	var prev rune
	pendingSep := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				pendingSep = true
			}
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingSep = true
		}
		prev = r
	}
	return b.String()
}

// descriptorAliases maps normalized provider field names to descriptors.
var descriptorAliases = map[string]candidate.Descriptor{
	"molecular_weight": candidate.MolecularWeight,
	"mw":               candidate.MolecularWeight,
	"mwt":              candidate.MolecularWeight,
	"mol_weight":       candidate.MolecularWeight,
	"molweight":        candidate.MolecularWeight,
	"full_mwt":         candidate.MolecularWeight,

	"log_p":    candidate.LogP,
	"logp":     candidate.LogP,
	"xlogp":    candidate.LogP,
	"xlog_p":   candidate.LogP,
	"xlogp3":   candidate.LogP,
	"alogp":    candidate.LogP,
	"alog_p":   candidate.LogP,
	"clogp":    candidate.LogP,
	"clog_p":   candidate.LogP,
	"cx_logp":  candidate.LogP,
	"cx_log_p": candidate.LogP,

	"h_bond_donors":           candidate.HBondDonors,
	"h_bond_donor_count":      candidate.HBondDonors,
	"hbond_donor_count":       candidate.HBondDonors,
	"number_of_h_bond_donors": candidate.HBondDonors,
	"num_h_donors":            candidate.HBondDonors,
	"hbd":                     candidate.HBondDonors,
	"hbd_lipinski":            candidate.HBondDonors,

	"h_bond_acceptors":           candidate.HBondAcceptors,
	"h_bond_acceptor_count":      candidate.HBondAcceptors,
	"hbond_acceptor_count":       candidate.HBondAcceptors,
	"number_of_h_bond_acceptors": candidate.HBondAcceptors,
	"num_h_acceptors":            candidate.HBondAcceptors,
	"hba":                        candidate.HBondAcceptors,
	"hba_lipinski":               candidate.HBondAcceptors,

	"rotatable_bonds":           candidate.RotatableBonds,
	"rotatable_bond_count":      candidate.RotatableBonds,
	"number_of_rotatable_bonds": candidate.RotatableBonds,
	"num_rotatable_bonds":       candidate.RotatableBonds,
	"rtb":                       candidate.RotatableBonds,

	"polar_area":         candidate.PolarArea,
	"polar_surface_area": candidate.PolarArea,
	"tpsa":               candidate.PolarArea,
	"psa":                candidate.PolarArea,

	"heavy_atoms":      candidate.HeavyAtoms,
	"heavy_atom_count": candidate.HeavyAtoms,
	"num_heavy_atoms":  candidate.HeavyAtoms,

	"complexity":           candidate.Complexity,
	"molecular_complexity": candidate.MolecularComplexity,

	"binding":          candidate.Binding,
	"binding_score":    candidate.Binding,
	"binding_affinity": candidate.Binding,

	"toxicity":       candidate.Toxicity,
	"toxicity_score": candidate.Toxicity,
	"tox":            candidate.Toxicity,

	"stability":       candidate.Stability,
	"stability_score": candidate.Stability,

	"solubility":       candidate.Solubility,
	"solubility_score": candidate.Solubility,

	"efficacy_index": candidate.EfficacyIndex,
	"safety_index":   candidate.SafetyIndex,

	"lipinski":       candidate.Lipinski,
	"lipinski_ratio": candidate.Lipinski,
	"lipinski_score": candidate.Lipinski,
}

// ResolveDescriptor maps a provider field name to a canonical descriptor.
func ResolveDescriptor(field string) (candidate.Descriptor, bool) {
	d, ok := descriptorAliases[NormalizeKey(field)]
	return d, ok
}
