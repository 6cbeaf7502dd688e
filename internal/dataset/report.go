package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Profile summarizes a raw source table.
type Profile struct {
	Dataset         string         `json:"dataset"`
	Rows            int            `json:"rows"`
	Columns         int            `json:"columns"`
	ColumnNames     []string       `json:"column_names"`
	MissingByColumn map[string]int `json:"missing_by_column"`
	TotalMissing    int            `json:"total_missing"`
	DuplicateRows   int            `json:"duplicate_rows"`
	OutliersIQR     map[string]int `json:"outliers_iqr"`
}

// ProfileTable computes missing counts, exact duplicates, and IQR outliers
// per numeric column. The table is not modified.
func ProfileTable(t *Table) Profile {
	p := Profile{
		Dataset:         t.Name,
		Rows:            len(t.Rows),
		Columns:         len(t.Columns),
		ColumnNames:     append([]string(nil), t.Columns...),
		MissingByColumn: make(map[string]int, len(t.Columns)),
		OutliersIQR:     make(map[string]int),
	}

	seen := make(map[string]struct{}, len(t.Rows))
	for _, row := range t.Rows {
		key := strings.Join(row, "\x1f")
		if _, dup := seen[key]; dup {
			p.DuplicateRows++
		}
		seen[key] = struct{}{}
		for i, cell := range row {
			if isMissing(strings.TrimSpace(cell)) {
				p.MissingByColumn[t.Columns[i]]++
				p.TotalMissing++
			}
		}
	}

	for i, col := range t.Columns {
		if t.IsNumeric(i) {
			p.OutliersIQR[col] = IQROutliers(t.Floats(col))
		}
	}
	return p
}

// ExportColumns is the column order of the CSV export.
var ExportColumns = []string{
	colCandidateID, colSourceDataset, colName, colSMILES,
	colMolecularWeight, colPolarArea, colXLogP, colHBondDonorCount,
	colHBondAcceptorCnt, colRotatableBondCnt, colBindingScore, colToxicity,
	colStability, colSolubility, colEfficacyIndex, colSafetyIndex,
	colMolecularComplex, colDrugScore, colPriorityRank,
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (r *Row) fields() []string {
	return []string{
		r.CandidateID, r.SourceDataset, r.Name, r.SMILES,
		formatFloat(r.MolecularWeight), formatFloat(r.PolarArea), formatFloat(r.XLogP),
		formatFloat(r.HBondDonorCount), formatFloat(r.HBondAcceptorCount), formatFloat(r.RotatableBondCount),
		formatFloat(r.BindingScore), formatFloat(r.Toxicity), formatFloat(r.Stability), formatFloat(r.Solubility),
		formatFloat(r.EfficacyIndex), formatFloat(r.SafetyIndex), formatFloat(r.MolecularComplexity),
		formatFloat(r.DrugScore), strconv.Itoa(r.PriorityRank),
	}
}

// WriteCSV writes rows with a header in ExportColumns order.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range rows {
		if err := cw.Write(rows[i].fields()); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes rows as a JSON array of records.
func WriteJSON(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(rows)
}

// criticalColumns must have no empty values in the export.
var criticalColumns = []string{
	colCandidateID, colSourceDataset, colDrugScore,
	colSafetyIndex, colEfficacyIndex, colPriorityRank,
}

// WriteQualityReport writes the plain-text data quality report.
func WriteQualityReport(w io.Writer, profiles []Profile, rows []Row) error {
	var b strings.Builder
	b.WriteString("Data Quality Report - Drug Candidate Exploration\n")
	b.WriteString(strings.Repeat("=", 70) + "\n\n")

	b.WriteString("Step 1: Dataset diagnostics\n")
	for _, p := range profiles {
		fmt.Fprintf(&b, "- %s: rows=%d, cols=%d, total_missing=%d, duplicates=%d\n",
			p.Dataset, p.Rows, p.Columns, p.TotalMissing, p.DuplicateRows)
		if len(p.OutliersIQR) > 0 {
			cols := make([]string, 0, len(p.OutliersIQR))
			for c := range p.OutliersIQR {
				cols = append(cols, c)
			}
			sort.Strings(cols)
			parts := make([]string, len(cols))
			for i, c := range cols {
				parts[i] = fmt.Sprintf("%s=%d", c, p.OutliersIQR[c])
			}
			fmt.Fprintf(&b, "  iqr outliers: %s\n", strings.Join(parts, ", "))
		}
	}

	b.WriteString("\nStep 2: Cleaning summary\n")
	b.WriteString("- Standardized all columns to snake_case.\n")
	b.WriteString("- Removed exact duplicates per source dataset.\n")
	b.WriteString("- Imputed critical numeric fields with column medians.\n")
	b.WriteString("- Winsorized numeric outliers at the 1st/99th percentile.\n")
	b.WriteString("- Harmonized source schemas into one candidate table.\n")

	b.WriteString("\nStep 3: Engineered features\n")
	b.WriteString("- efficacy_index, safety_index, molecular_complexity, drug_score, priority_rank\n")

	nulls := criticalNulls(rows)
	parts := make([]string, len(criticalColumns))
	for i, c := range criticalColumns {
		parts[i] = fmt.Sprintf("%s=%d", c, nulls[c])
	}
	b.WriteString("\nStep 4: Final dataset status\n")
	fmt.Fprintf(&b, "- Final rows: %d\n", len(rows))
	fmt.Fprintf(&b, "- Final columns: %d\n", len(ExportColumns))
	fmt.Fprintf(&b, "- Critical null counts: %s\n", strings.Join(parts, ", "))
	fmt.Fprintf(&b, "- Duplicate rows in final dataset: %d\n", duplicateRows(rows))

	_, err := io.WriteString(w, b.String())
	return err
}

func criticalNulls(rows []Row) map[string]int {
	out := make(map[string]int, len(criticalColumns))
	for _, r := range rows {
		if r.CandidateID == "" {
			out[colCandidateID]++
		}
		if r.SourceDataset == "" {
			out[colSourceDataset]++
		}
		if r.PriorityRank == 0 {
			out[colPriorityRank]++
		}
	}
	return out
}

func duplicateRows(rows []Row) int {
	seen := make(map[string]struct{}, len(rows))
	n := 0
	for i := range rows {
		f := rows[i].fields()
		key := strings.Join(f[:len(f)-1], "\x1f")
		if _, dup := seen[key]; dup {
			n++
		}
		seen[key] = struct{}{}
	}
	return n
}

// FeatureDescription documents the engineered columns.
const FeatureDescription = `Feature descriptions for drug candidate ranking

1) drug_score
   Composite score in [0,1]: efficacy_index (45%), safety_index (35%),
   and complexity balance (20%). Higher is better.

2) safety_index
   Safety proxy in [0,1] from inverse normalized toxicity (70%) and the
   Lipinski-style rule pass ratio (30%).

3) efficacy_index
   Efficacy proxy in [0,1] from normalized binding_score (60%), stability
   (20%), and solubility (20%).

4) molecular_complexity
   Structural complexity proxy in [0,1] from complexity (50%), heavy atom
   count (30%), and rotatable bond count (20%), each min-max normalized.

5) priority_rank
   Integer rank after sorting by drug_score descending. Rank 1 is highest.

Assumptions
- Sources have heterogeneous schemas; critical numeric fields are
  median-imputed.
- Numeric outliers are winsorized at the 1st/99th percentile.
- Delaney measured log solubility is min-max scaled onto the [0,1]
  solubility scale.
- logP missing or zero is estimated from molecular weight and polar area.
`
