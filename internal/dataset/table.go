// Package dataset prepares raw source CSVs into a harmonized, scored
// candidate table ready for the ranking engine.
//
// An engineered index that comes out NaN, for example molecular_complexity
// for a row with no heavy_atom_count, reads as 0. The row's drug_score is
// still computed from its remaining terms, so it is not zeroed.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/onnwee/molrank/internal/adapter"
)

// ErrEmptyTable is returned when a CSV has no header row.
var ErrEmptyTable = errors.New("csv has no header")

// Table is a loaded CSV with normalized snake_case column names.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// ReadCSV loads a CSV. Header names pass through adapter.NormalizeKey;
// short rows are padded with empty cells and blank rows are skipped.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyTable)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s csv header: %w", name, err)
	}

	t := &Table{Name: name, Columns: make([]string, len(header))}
	for i, h := range header {
		t.Columns[i] = adapter.NormalizeKey(h)
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read %s csv row %d: %w", name, line, err)
		}
		if blank(record) {
			continue
		}
		row := make([]string, len(t.Columns))
		copy(row, record)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Col returns the index of a column, or -1.
func (t *Table) Col(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Rename renames columns in place. Unknown source names are ignored.
func (t *Table) Rename(mapping map[string]string) {
	for i, c := range t.Columns {
		if to, ok := mapping[c]; ok {
			t.Columns[i] = to
		}
	}
}

// Floats returns a column parsed as numbers. Missing and unparsable
// cells are NaN. An unknown column yields nil.
func (t *Table) Floats(name string) []float64 {
	idx := t.Col(name)
	if idx < 0 {
		return nil
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = parseCell(row[idx])
	}
	return out
}

// Strings returns a column's raw cells. An unknown column yields nil.
func (t *Table) Strings(name string) []string {
	idx := t.Col(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = strings.TrimSpace(row[idx])
	}
	return out
}

// IsNumeric reports whether every non-missing cell of the column parses as
// a number and at least one does.
func (t *Table) IsNumeric(idx int) bool {
	seen := false
	for _, row := range t.Rows {
		cell := strings.TrimSpace(row[idx])
		if isMissing(cell) {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

// NumericColumns lists the numeric column names in header order.
func (t *Table) NumericColumns() []string {
	var out []string
	for i, c := range t.Columns {
		if t.IsNumeric(i) {
			out = append(out, c)
		}
	}
	return out
}

// SetFloats overwrites a numeric column. NaN is written as an empty cell.
func (t *Table) SetFloats(name string, values []float64) {
	idx := t.Col(name)
	if idx < 0 {
		return
	}
	for i, row := range t.Rows {
		if math.IsNaN(values[i]) {
			row[idx] = ""
			continue
		}
		row[idx] = strconv.FormatFloat(values[i], 'g', -1, 64)
	}
}

// DropDuplicates removes exact duplicate rows, keeping the first
// occurrence, and returns the original index of every kept row.
func (t *Table) DropDuplicates() []int {
	seen := make(map[string]struct{}, len(t.Rows))
	kept := t.Rows[:0]
	var index []int
	for i, row := range t.Rows {
		key := strings.Join(row, "\x1f")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
		index = append(index, i)
	}
	t.Rows = kept
	return index
}

// missingCells are the cell spellings read as missing.
var missingCells = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "nan": {}, "-nan": {}, "null": {}, "none": {}, "#n/a": {},
}

func isMissing(cell string) bool {
	_, ok := missingCells[strings.ToLower(cell)]
	return ok
}

func parseCell(cell string) float64 {
	cell = strings.TrimSpace(cell)
	if isMissing(cell) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}
