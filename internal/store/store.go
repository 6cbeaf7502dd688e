// Package store persists candidates grouped by dataset name.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"sync"

	"github.com/onnwee/molrank/internal/candidate"
)

// Store errors.
var (
	ErrInvalidDataset = errors.New("invalid dataset name")
	ErrMissingID      = errors.New("candidate has no id")
)

// datasetPattern restricts dataset names to URL- and key-safe characters.
var datasetPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,63}$`)

// ValidateDataset checks a dataset name.
func ValidateDataset(name string) error {
	if !datasetPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidDataset, name)
	}
	return nil
}

// Repository stores candidates per dataset. List returns candidates ordered
// by ID; limit <= 0 returns all of them.
type Repository interface {
	Upsert(ctx context.Context, dataset string, cands []candidate.Candidate) error
	List(ctx context.Context, dataset string, limit int) ([]candidate.Candidate, error)
	Datasets(ctx context.Context) ([]string, error)
}

func validateBatch(dataset string, cands []candidate.Candidate) error {
	if err := ValidateDataset(dataset); err != nil {
		return err
	}
	for i := range cands {
		if cands[i].ID == "" {
			return fmt.Errorf("candidate %d: %w", i, ErrMissingID)
		}
	}
	return nil
}

// encodeDescriptors drops non-finite values, which JSON cannot carry and
// which read back as missing anyway.
func encodeDescriptors(d map[candidate.Descriptor]float64) ([]byte, error) {
	clean := make(map[candidate.Descriptor]float64, len(d))
	for k, v := range d {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		clean[k] = v
	}
	return json.Marshal(clean)
}

func decodeDescriptors(raw []byte) (map[candidate.Descriptor]float64, error) {
	out := make(map[candidate.Descriptor]float64)
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode descriptors: %w", err)
	}
	return out, nil
}

// MemoryRepository is an in-memory Repository for tests and local serving.
type MemoryRepository struct {
	mu       sync.RWMutex
	datasets map[string]map[string]candidate.Candidate
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{datasets: make(map[string]map[string]candidate.Candidate)}
}

// Upsert inserts or replaces candidates by ID.
func (r *MemoryRepository) Upsert(_ context.Context, dataset string, cands []candidate.Candidate) error {
	if err := validateBatch(dataset, cands); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.datasets[dataset]
	if !ok {
		set = make(map[string]candidate.Candidate, len(cands))
		r.datasets[dataset] = set
	}
	for _, c := range cands {
		set[c.ID] = copyCandidate(c)
	}
	return nil
}

// List returns copies of the stored candidates ordered by ID.
func (r *MemoryRepository) List(_ context.Context, dataset string, limit int) ([]candidate.Candidate, error) {
	if err := ValidateDataset(dataset); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.datasets[dataset]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]candidate.Candidate, len(ids))
	for i, id := range ids {
		out[i] = copyCandidate(set[id])
	}
	return out, nil
}

// Datasets returns the names of non-empty datasets in sorted order.
func (r *MemoryRepository) Datasets(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.datasets))
	for name, set := range r.datasets {
		if len(set) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func copyCandidate(c candidate.Candidate) candidate.Candidate {
	out := c
	out.Descriptors = make(map[candidate.Descriptor]float64, len(c.Descriptors))
	for k, v := range c.Descriptors {
		out.Descriptors[k] = v
	}
	if c.Embedding != nil {
		out.Embedding = append([]float64(nil), c.Embedding...)
	}
	return out
}
