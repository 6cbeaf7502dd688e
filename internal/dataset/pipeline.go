package dataset

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"

	"github.com/onnwee/molrank/internal/candidate"
	"github.com/onnwee/molrank/internal/features"
	"github.com/onnwee/molrank/internal/ranking"
)

// criticalNumeric columns are median-imputed after harmonization.
var criticalNumeric = []string{
	colMolecularWeight, colPolarArea, colHBondDonorCount, colHBondAcceptorCnt,
	colRotatableBondCnt, colBindingScore, colToxicity, colStability,
	colSolubility, colComplexity,
}

// lipinskiColumns pairs a dataset column with its drug-likeness rule.
var lipinskiColumns = []struct {
	col  string
	pass func(float64) bool
}{
	{colMolecularWeight, func(v float64) bool { return v <= 500 }},
	{colXLogP, func(v float64) bool { return v >= -0.5 && v <= 5.0 }},
	{colHBondDonorCount, func(v float64) bool { return v <= 5 }},
	{colHBondAcceptorCnt, func(v float64) bool { return v <= 10 }},
	{colRotatableBondCnt, func(v float64) bool { return v <= 10 }},
	{colPolarArea, func(v float64) bool { return v <= 140 }},
}

// LipinskiFallback is used when no rule column exists at all.
const LipinskiFallback = 0.5

// Row is one harmonized, scored candidate in the export schema.
type Row struct {
	CandidateID         string  `json:"candidate_id"`
	SourceDataset       string  `json:"source_dataset"`
	Name                string  `json:"name"`
	SMILES              string  `json:"smiles"`
	MolecularWeight     float64 `json:"molecular_weight"`
	PolarArea           float64 `json:"polar_area"`
	XLogP               float64 `json:"xlogp"`
	HBondDonorCount     float64 `json:"h_bond_donor_count"`
	HBondAcceptorCount  float64 `json:"h_bond_acceptor_count"`
	RotatableBondCount  float64 `json:"rotatable_bond_count"`
	BindingScore        float64 `json:"binding_score"`
	Toxicity            float64 `json:"toxicity"`
	Stability           float64 `json:"stability"`
	Solubility          float64 `json:"solubility"`
	EfficacyIndex       float64 `json:"efficacy_index"`
	SafetyIndex         float64 `json:"safety_index"`
	MolecularComplexity float64 `json:"molecular_complexity"`
	DrugScore           float64 `json:"drug_score"`
	PriorityRank        int     `json:"priority_rank"`
}

// Candidate converts the row into a canonical candidate. The embedding is
// (efficacy_index, safety_index, molecular_complexity).
func (r *Row) Candidate() candidate.Candidate {
	return candidate.Candidate{
		ID:     r.CandidateID,
		Source: r.SourceDataset,
		Name:   r.Name,
		SMILES: r.SMILES,
		Descriptors: map[candidate.Descriptor]float64{
			candidate.MolecularWeight:     r.MolecularWeight,
			candidate.PolarArea:           r.PolarArea,
			candidate.LogP:                r.XLogP,
			candidate.HBondDonors:         r.HBondDonorCount,
			candidate.HBondAcceptors:      r.HBondAcceptorCount,
			candidate.RotatableBonds:      r.RotatableBondCount,
			candidate.Binding:             r.BindingScore,
			candidate.Toxicity:            r.Toxicity,
			candidate.Stability:           r.Stability,
			candidate.Solubility:          r.Solubility,
			candidate.EfficacyIndex:       r.EfficacyIndex,
			candidate.SafetyIndex:         r.SafetyIndex,
			candidate.MolecularComplexity: r.MolecularComplexity,
		},
		Embedding: []float64{r.EfficacyIndex, r.SafetyIndex, r.MolecularComplexity},
	}
}

// Candidates converts rows in priority order.
func Candidates(rows []Row) []candidate.Candidate {
	out := make([]candidate.Candidate, len(rows))
	for i := range rows {
		out[i] = rows[i].Candidate()
	}
	return out
}

// Inputs holds the raw source CSVs. A nil reader is treated as an empty
// source.
type Inputs struct {
	PubChem io.Reader
	Delaney io.Reader
	Quantum io.Reader
}

// Result is the output of Prepare.
type Result struct {
	Rows     []Row
	Profiles []Profile
}

// Prepare loads, profiles, cleans, and harmonizes the three sources into
// one scored table sorted by drug_score.
func Prepare(in Inputs, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sources := []struct {
		name string
		r    io.Reader
	}{
		{"delaney", in.Delaney},
		{"pubchem", in.PubChem},
		{"quantum", in.Quantum},
	}
	tables := make(map[string]*Table, len(sources))
	res := &Result{}
	for _, src := range sources {
		if src.r == nil {
			res.Profiles = append(res.Profiles, Profile{Dataset: src.name})
			logger.Warn("dataset source missing", "dataset", src.name)
			continue
		}
		t, err := ReadCSV(src.name, src.r)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", src.name, err)
		}
		tables[src.name] = t
		p := ProfileTable(t)
		res.Profiles = append(res.Profiles, p)
		logger.Info("dataset source loaded",
			"dataset", src.name,
			"rows", p.Rows,
			"columns", p.Columns,
			"duplicates", p.DuplicateRows,
		)
	}

	res.Rows = harmonize(
		preparePubChem(tables["pubchem"]),
		prepareDelaney(tables["delaney"]),
		prepareQuantum(tables["quantum"]),
	)
	logger.Info("dataset prepared", "rows", len(res.Rows))
	return res, nil
}

// EstimateLogP is the structure-free logP heuristic:
// clamp(2 + (mw - 350)/250 - (pa - 50)/200, -2, 6). NaN inputs yield NaN.
func EstimateLogP(mw, pa float64) float64 {
	if math.IsNaN(mw) || math.IsNaN(pa) {
		return math.NaN()
	}
	est := 2.0 + (mw-350.0)/250.0 - (pa-50.0)/200.0
	return math.Min(math.Max(est, -2.0), 6.0)
}

func harmonize(frames ...*frame) []Row {
	all := newFrame()
	for _, fr := range frames {
		for c := range fr.columns {
			all.columns[c] = true
		}
		all.records = append(all.records, fr.records...)
	}
	n := len(all.records)

	mw, pa := make([]float64, n), make([]float64, n)
	if all.columns[colMolecularWeight] {
		mw = all.column(colMolecularWeight)
	}
	if all.columns[colPolarArea] {
		pa = all.column(colPolarArea)
	}
	xlogp := all.column(colXLogP)
	for i, v := range xlogp {
		if math.IsNaN(v) || v == 0 {
			xlogp[i] = EstimateLogP(mw[i], pa[i])
		}
	}
	all.setColumn(colXLogP, xlogp)

	for _, col := range criticalNumeric {
		vals := all.column(col)
		ImputeMedian(vals)
		all.setColumn(col, vals)
	}

	if all.columns[colMeasuredLogSol] {
		scaled := features.MinMax(all.column(colMeasuredLogSol))
		sol := all.column(colSolubility)
		for i, rec := range all.records {
			if rec.source == SourceDelaney {
				sol[i] = scaled[i]
			}
		}
		all.setColumn(colSolubility, sol)
	}

	lipinski := lipinskiRatios(all)

	binding := features.MinMax(all.column(colBindingScore))
	stability := features.MinMax(all.column(colStability))
	solubility := features.MinMax(all.column(colSolubility))
	toxicity := features.MinMax(all.column(colToxicity))
	complexity := features.MinMax(all.column(colComplexity))
	rotatable := features.MinMax(all.column(colRotatableBondCnt))
	heavy := make([]float64, n)
	if all.columns[colHeavyAtomCount] {
		heavy = features.MinMax(all.column(colHeavyAtomCount))
	}

	rows := make([]Row, n)
	for i, rec := range all.records {
		// A NaN term makes the whole index NaN, which Clamp01 reads as 0.
		efficacy := features.Clamp01(0.6*binding[i] + 0.2*stability[i] + 0.2*solubility[i])
		safety := features.Clamp01(0.7*(1-toxicity[i]) + 0.3*lipinski[i])
		molComplexity := features.Clamp01(0.5*complexity[i] + 0.3*heavy[i] + 0.2*rotatable[i])

		scored := candidate.Candidate{Descriptors: map[candidate.Descriptor]float64{
			candidate.EfficacyIndex:       efficacy,
			candidate.SafetyIndex:         safety,
			candidate.MolecularComplexity: molComplexity,
		}}

		v := rec.values
		rows[i] = Row{
			CandidateID:         rec.id,
			SourceDataset:       rec.source,
			Name:                rec.name,
			SMILES:              rec.smiles,
			MolecularWeight:     round(v[colMolecularWeight]),
			PolarArea:           round(v[colPolarArea]),
			XLogP:               round(v[colXLogP]),
			HBondDonorCount:     round(v[colHBondDonorCount]),
			HBondAcceptorCount:  round(v[colHBondAcceptorCnt]),
			RotatableBondCount:  round(v[colRotatableBondCnt]),
			BindingScore:        round(v[colBindingScore]),
			Toxicity:            round(v[colToxicity]),
			Stability:           round(v[colStability]),
			Solubility:          round(v[colSolubility]),
			EfficacyIndex:       round(efficacy),
			SafetyIndex:         round(safety),
			MolecularComplexity: round(molComplexity),
			DrugScore:           ranking.ComputeScore(&scored, nil),
		}
	}

	sort.SliceStable(rows, func(a, b int) bool {
		return rows[a].DrugScore > rows[b].DrugScore
	})
	for i := range rows {
		rows[i].PriorityRank = i + 1
	}
	return rows
}

// lipinskiRatios returns the fraction of rules each record passes over the
// rule columns present in the frame. A missing value fails its rule.
func lipinskiRatios(fr *frame) []float64 {
	out := make([]float64, len(fr.records))
	var checks int
	for _, rule := range lipinskiColumns {
		if !fr.columns[rule.col] {
			continue
		}
		checks++
		for i, v := range fr.column(rule.col) {
			if !math.IsNaN(v) && rule.pass(v) {
				out[i]++
			}
		}
	}
	for i := range out {
		if checks == 0 {
			out[i] = LipinskiFallback
			continue
		}
		out[i] /= float64(checks)
	}
	return out
}

// round applies the export precision; NaN becomes 0.
func round(v float64) float64 {
	return features.Round(v, ranking.ScorePrecision)
}
