package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/onnwee/molrank/internal/candidate"
)

// Provider identifies the upstream shape of a record.
type Provider string

const (
	ProviderPubChem Provider = "pubchem"
	ProviderChEMBL  Provider = "chembl"
	ProviderDataset Provider = "dataset"
)

// Adapter errors.
var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingID       = errors.New("record has no identifier")
)

// ParseProvider converts a string to a Provider.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderPubChem, ProviderChEMBL, ProviderDataset:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// idFields lists candidate identifier fields per provider in priority order.
var idFields = map[Provider][]string{
	ProviderPubChem: {"cid", "compound_cid", "id"},
	ProviderChEMBL:  {"molecule_chembl_id", "chembl_id", "id"},
	ProviderDataset: {"candidate_id", "id", "molecule_id"},
}

var (
	nameFields   = []string{"name", "pref_name", "iupac_name", "title", "compound_id"}
	smilesFields = []string{"smiles", "canonical_smiles", "isomeric_smiles", "connectivity_smiles"}
	sourceFields = []string{"source_dataset", "source"}
)

// RecordError describes a record that could not be adapted.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// FromRecord converts one provider record into a canonical candidate.
//
// Nested objects are flattened with top-level fields taking precedence, so
// ChEMBL's molecule_properties and molecule_structures resolve directly.
// Numeric strings are parsed; null, empty, and unparsable values are
// omitted and therefore read as missing. PubChem identifiers are prefixed
// with "pubchem_" to keep them distinct from other sources.
func FromRecord(p Provider, record map[string]any) (candidate.Candidate, error) {
	fields, ok := idFields[p]
	if !ok {
		return candidate.Candidate{}, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}

	flat := make(map[string]any, len(record))
	flatten(record, flat)

	id := firstString(flat, fields)
	if id == "" {
		return candidate.Candidate{}, ErrMissingID
	}
	if p == ProviderPubChem && !strings.HasPrefix(id, "pubchem_") {
		id = "pubchem_" + id
	}

	c := candidate.Candidate{
		ID:          id,
		Source:      firstString(flat, sourceFields),
		Name:        firstString(flat, nameFields),
		SMILES:      firstString(flat, smilesFields),
		Descriptors: make(map[candidate.Descriptor]float64),
	}
	if c.Source == "" {
		c.Source = string(p)
	}

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// The canonical spelling wins; otherwise the first alias in key order.
	for _, key := range keys {
		d, ok := descriptorAliases[key]
		if !ok {
			continue
		}
		if _, seen := c.Descriptors[d]; seen && key != string(d) {
			continue
		}
		if v, ok := toFloat(flat[key]); ok {
			c.Descriptors[d] = v
		}
	}

	c.Embedding = embedding(flat)
	return c, nil
}

// FromRecords adapts a batch. Records that fail are reported individually
// and skipped; the rest are returned in input order.
func FromRecords(p Provider, records []map[string]any) ([]candidate.Candidate, []*RecordError) {
	out := make([]candidate.Candidate, 0, len(records))
	var errs []*RecordError
	for i, r := range records {
		c, err := FromRecord(p, r)
		if err != nil {
			errs = append(errs, &RecordError{Index: i, Err: err})
			continue
		}
		out = append(out, c)
	}
	return out, errs
}

// flatten copies leaf values into dst under normalized keys. Keys already
// present in dst are kept, and a map's own leaves are written before its
// nested maps are visited in key order.
func flatten(src map[string]any, dst map[string]any) {
	var nested []string
	for k, v := range src {
		if _, ok := v.(map[string]any); ok {
			nested = append(nested, k)
			continue
		}
		key := NormalizeKey(k)
		if _, exists := dst[key]; !exists {
			dst[key] = v
		}
	}
	sort.Strings(nested)
	for _, k := range nested {
		flatten(src[k].(map[string]any), dst)
	}
}

func firstString(flat map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := flat[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case json.Number:
			s = t.String()
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case int:
			s = strconv.Itoa(t)
		case int64:
			s = strconv.FormatInt(t, 10)
		default:
			s = fmt.Sprint(t)
		}
		s = strings.TrimSpace(s)
		if s != "" && !isNullString(s) {
			return s
		}
	}
	return ""
}

// toFloat parses a numeric field. Non-finite results are rejected.
func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		var err error
		if f, err = t.Float64(); err != nil {
			return 0, false
		}
	case string:
		s := strings.TrimSpace(t)
		if s == "" || isNullString(s) {
			return 0, false
		}
		var err error
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func isNullString(s string) bool {
	switch strings.ToLower(s) {
	case "nan", "null", "none", "n/a", "na", "unknown":
		return true
	}
	return false
}

// embedding reads an "embedding" array, or x/y[/z] coordinates. It returns
// nil when no complete, finite coordinate set is present.
func embedding(flat map[string]any) []float64 {
	if raw, ok := flat["embedding"].([]any); ok && len(raw) > 0 {
		out := make([]float64, 0, len(raw))
		for _, v := range raw {
			f, ok := toFloat(v)
			if !ok {
				return nil
			}
			out = append(out, f)
		}
		return out
	}

	x, okX := toFloat(flat["x"])
	y, okY := toFloat(flat["y"])
	if !okX || !okY {
		return nil
	}
	if z, ok := toFloat(flat["z"]); ok {
		return []float64{x, y, z}
	}
	return []float64{x, y}
}
