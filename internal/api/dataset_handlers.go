package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/molrank/internal/engine"
	"github.com/onnwee/molrank/internal/ranking"
	"github.com/onnwee/molrank/internal/snapshot"
	"github.com/onnwee/molrank/internal/store"
)

// MaxDatasetLimit caps the limit query parameter on dataset endpoints.
const MaxDatasetLimit = 10000

// SnapshotLookup returns a dataset's summary, computing it on a cache miss.
type SnapshotLookup interface {
	Lookup(ctx context.Context, dataset string) (*snapshot.Snapshot, error)
}

// DatasetListResponse is the body of GET /v1/datasets.
type DatasetListResponse struct {
	Datasets []string `json:"datasets"`
}

// DatasetHandlers serves stored datasets.
type DatasetHandlers struct {
	repo      store.Repository
	engine    *engine.Engine
	snapshots SnapshotLookup
	weights   *ranking.Weights
}

// NewDatasetHandlers creates dataset handlers. weights are the calibrated
// defaults used for dataset ranking; nil uses the built-in defaults.
func NewDatasetHandlers(repo store.Repository, eng *engine.Engine, snapshots SnapshotLookup, weights *ranking.Weights) *DatasetHandlers {
	return &DatasetHandlers{repo: repo, engine: eng, snapshots: snapshots, weights: weights}
}

// List handles GET /v1/datasets.
func (h *DatasetHandlers) List(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	names, err := h.repo.Datasets(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, r, http.StatusOK, DatasetListResponse{Datasets: names})
}

// ServeHTTP routes /v1/datasets/{name}, /v1/datasets/{name}/rank and
// /v1/datasets/{name}/summary.
func (h *DatasetHandlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1/datasets/"), "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Not found")
		return
	}
	name := parts[0]
	if err := store.ValidateDataset(name); err != nil {
		writeErr(w, r, err)
		return
	}

	if len(parts) == 1 {
		h.candidates(w, r, name)
		return
	}
	switch parts[1] {
	case "rank":
		h.rank(w, r, name)
	case "summary":
		h.summary(w, r, name)
	default:
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Not found")
	}
}

// candidates handles GET /v1/datasets/{name}?limit=.
func (h *DatasetHandlers) candidates(w http.ResponseWriter, r *http.Request, name string) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	cands, err := h.repo.List(r.Context(), name, limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if len(cands) == 0 {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Dataset not found")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"dataset": name, "candidates": cands})
}

// rank handles GET /v1/datasets/{name}/rank?temperature=&strategy=&limit=.
func (h *DatasetHandlers) rank(w http.ResponseWriter, r *http.Request, name string) {
	q := r.URL.Query()
	raw := q.Get("temperature")
	if raw == "" {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "temperature is required")
		return
	}
	temperature, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "temperature must be a number")
		return
	}
	if err := ranking.ValidateTemperature(temperature); err != nil {
		writeErr(w, r, err)
		return
	}
	strategy, err := engine.ParseStrategy(q.Get("strategy"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	cands, err := h.repo.List(r.Context(), name, limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if len(cands) == 0 {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Dataset not found")
		return
	}

	res, err := h.engine.Run(r.Context(), engine.Request{
		Candidates:  cands,
		Weights:     h.weights,
		Temperature: temperature,
		Strategy:    strategy,
		Diffusion:   engine.DefaultDiffusionOptions(),
		Boost:       engine.DefaultBoostOptions(),
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	slog.DebugContext(r.Context(), "dataset ranked", "dataset", name, "candidates", len(res.Candidates), "strategy", strategy)
	writeJSON(w, r, http.StatusOK, RankResponse{Result: res})
}

// summary handles GET /v1/datasets/{name}/summary.
func (h *DatasetHandlers) summary(w http.ResponseWriter, r *http.Request, name string) {
	if h.snapshots == nil {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Summaries are not enabled")
		return
	}
	s, err := h.snapshots.Lookup(r.Context(), name)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if s.Count == 0 {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Dataset not found")
		return
	}
	writeJSON(w, r, http.StatusOK, s)
}

var errInvalidLimit = errors.New("limit must be an integer between 1 and 10000")

// parseLimit reads the optional limit parameter; absent means all.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > MaxDatasetLimit {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, errInvalidLimit.Error())
		return 0, false
	}
	return limit, true
}
