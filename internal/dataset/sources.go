package dataset

import (
	"math"
	"strconv"
)

// Source dataset labels written to source_dataset.
const (
	SourcePubChem = "pubchem_antibiotic"
	SourceDelaney = "delaney_solubility"
	SourceQuantum = "quantum_candidates"
)

// Unknown fills missing text fields.
const Unknown = "unknown"

// Dataset column names used by the harmonization step.
const (
	colCompoundCID      = "compound_cid"
	colMoleculeID       = "molecule_id"
	colName             = "name"
	colSMILES           = "smiles"
	colMolecularWeight  = "molecular_weight"
	colPolarArea        = "polar_area"
	colComplexity       = "complexity"
	colXLogP            = "xlogp"
	colHeavyAtomCount   = "heavy_atom_count"
	colHBondDonorCount  = "h_bond_donor_count"
	colHBondAcceptorCnt = "h_bond_acceptor_count"
	colRotatableBondCnt = "rotatable_bond_count"
	colCharge           = "charge"
	colBindingScore     = "binding_score"
	colToxicity         = "toxicity"
	colStability        = "stability"
	colSolubility       = "solubility"
	colMeasuredLogSol   = "measured_log_solubility"
	colPredictedLogSol  = "predicted_log_solubility"
	colMinimumDegree    = "minimum_degree"
	colEfficacyIndex    = "efficacy_index"
	colSafetyIndex      = "safety_index"
	colMolecularComplex = "molecular_complexity"
	colDrugScore        = "drug_score"
	colPriorityRank     = "priority_rank"
	colCandidateID      = "candidate_id"
	colSourceDataset    = "source_dataset"
)

// numericColumns are coerced to numbers when present in any source.
var numericColumns = []string{
	colMolecularWeight, colPolarArea, colComplexity, colXLogP,
	colHeavyAtomCount, colHBondDonorCount, colHBondAcceptorCnt,
	colRotatableBondCnt, colCharge, colBindingScore, colToxicity,
	colStability, colSolubility, colMeasuredLogSol, colPredictedLogSol,
	colMinimumDegree,
}

var pubchemKeep = []string{
	colMolecularWeight, colPolarArea, colComplexity, colXLogP,
	colHeavyAtomCount, colHBondDonorCount, colHBondAcceptorCnt,
	colRotatableBondCnt, colCharge,
}

var delaneyRenames = map[string]string{
	"compound_id":                                     colName,
	"number_of_h_bond_donors":                         colHBondDonorCount,
	"number_of_rotatable_bonds":                       colRotatableBondCnt,
	"polar_surface_area":                              colPolarArea,
	"measured_log_solubility_in_mols_per_litre":       colMeasuredLogSol,
	"esol_predicted_log_solubility_in_mols_per_litre": colPredictedLogSol,
}

var delaneyKeep = []string{
	colMolecularWeight, colHBondDonorCount, colRotatableBondCnt,
	colPolarArea, colMeasuredLogSol, colPredictedLogSol, colMinimumDegree,
}

// quantumScores are clipped to [0, 1].
var quantumScores = []string{colBindingScore, colToxicity, colStability, colSolubility}

// record is one source row before harmonization. values holds NaN for a
// present column with a missing cell.
type record struct {
	id, source, name, smiles string
	values                   map[string]float64
}

// frame is a set of records plus the numeric columns they carry.
type frame struct {
	columns map[string]bool
	records []record
}

func newFrame() *frame {
	return &frame{columns: make(map[string]bool)}
}

// numericKept extracts the listed columns that exist in t. Fully numeric
// columns are winsorized unless skipped.
func numericKept(t *Table, keep []string, skip map[string]bool) map[string][]float64 {
	out := make(map[string][]float64, len(keep))
	for _, name := range keep {
		idx := t.Col(name)
		if idx < 0 {
			continue
		}
		vals := t.Floats(name)
		if !skip[name] && t.IsNumeric(idx) {
			Winsorize(vals)
		}
		out[name] = vals
	}
	return out
}

func (fr *frame) add(rec record, cols map[string][]float64, i int) {
	rec.values = make(map[string]float64, len(cols))
	for name, vals := range cols {
		rec.values[name] = vals[i]
		fr.columns[name] = true
	}
	fr.records = append(fr.records, rec)
}

func textOr(col []string, i int, fallback string) string {
	if col == nil || isMissing(col[i]) {
		return fallback
	}
	return col[i]
}

// preparePubChem deduplicates and winsorizes a PubChem antibiotic export.
// compound_cid is never winsorized and becomes the "pubchem_" identifier.
func preparePubChem(t *Table) *frame {
	fr := newFrame()
	if t == nil {
		return fr
	}
	index := t.DropDuplicates()
	cols := numericKept(t, pubchemKeep, map[string]bool{colCompoundCID: true})
	cids := t.Strings(colCompoundCID)
	names := t.Strings(colName)
	smiles := t.Strings(colSMILES)

	for i := range t.Rows {
		cid := textOr(cids, i, "")
		if cid == "" {
			cid = "row" + strconv.Itoa(index[i])
		}
		fr.add(record{
			id:     "pubchem_" + cid,
			source: SourcePubChem,
			name:   textOr(names, i, Unknown),
			smiles: textOr(smiles, i, Unknown),
		}, cols, i)
	}
	return fr
}

// prepareDelaney renames the Delaney (ESOL) columns to the shared schema,
// deduplicates, and winsorizes. Identifiers use the original row index.
func prepareDelaney(t *Table) *frame {
	fr := newFrame()
	if t == nil {
		return fr
	}
	t.Rename(delaneyRenames)
	index := t.DropDuplicates()
	cols := numericKept(t, delaneyKeep, nil)
	names := t.Strings(colName)
	smiles := t.Strings(colSMILES)

	for i := range t.Rows {
		fr.add(record{
			id:     "delaney_" + strconv.Itoa(index[i]),
			source: SourceDelaney,
			name:   textOr(names, i, Unknown),
			smiles: textOr(smiles, i, Unknown),
		}, cols, i)
	}
	return fr
}

// prepareQuantum deduplicates the quantum candidate table and clips its
// score columns to [0, 1]. Every numeric column is carried through.
func prepareQuantum(t *Table) *frame {
	fr := newFrame()
	if t == nil {
		return fr
	}
	t.DropDuplicates()

	cols := make(map[string][]float64)
	for i, name := range t.Columns {
		if t.IsNumeric(i) || contains(numericColumns, name) {
			cols[name] = t.Floats(name)
		}
	}
	for _, name := range quantumScores {
		if vals, ok := cols[name]; ok {
			clipAll(vals, 0, 1)
		}
	}
	delete(cols, colMoleculeID)
	ids := t.Strings(colMoleculeID)

	for i := range t.Rows {
		id := textOr(ids, i, strconv.Itoa(i))
		fr.add(record{
			id:     id,
			source: SourceQuantum,
			name:   textOr(ids, i, Unknown),
			smiles: Unknown,
		}, cols, i)
	}
	return fr
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// column returns one value per record, NaN where the record lacks it.
func (fr *frame) column(name string) []float64 {
	out := make([]float64, len(fr.records))
	for i, rec := range fr.records {
		v, ok := rec.values[name]
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}

func (fr *frame) setColumn(name string, vals []float64) {
	fr.columns[name] = true
	for i := range fr.records {
		fr.records[i].values[name] = vals[i]
	}
}
