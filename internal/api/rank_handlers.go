package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/onnwee/molrank/internal/adapter"
	"github.com/onnwee/molrank/internal/candidate"
	"github.com/onnwee/molrank/internal/engine"
	"github.com/onnwee/molrank/internal/ranking"
)

// DefaultMaxBodyBytes caps JSON request bodies.
const DefaultMaxBodyBytes = 8 << 20

var errRequired = errors.New("required field missing")

// RankRequest is the body of POST /v1/rank and the first message of the
// rank stream. Candidates may be given directly or as raw provider records,
// which are adapted before scoring.
type RankRequest struct {
	Candidates []candidate.Candidate `json:"candidates"`
	Provider   string                `json:"provider,omitempty"`
	Records    []map[string]any      `json:"records,omitempty"`

	Weights     *ranking.Weights        `json:"weights,omitempty"`
	Temperature *float64                `json:"temperature"`
	Strategy    string                  `json:"strategy"`
	Diffusion   engine.DiffusionOptions `json:"diffusion"`
	Boost       engine.BoostOptions     `json:"boost"`

	// FrameIntervalMS paces history frames on the stream endpoint.
	FrameIntervalMS int `json:"frame_interval_ms,omitempty"`
}

// newRankRequest returns a request pre-filled with the strategy defaults so
// that decoding only overrides the fields a client sends.
func newRankRequest() RankRequest {
	return RankRequest{
		Diffusion: engine.DefaultDiffusionOptions(),
		Boost:     engine.DefaultBoostOptions(),
	}
}

// RejectedRecord reports a provider record that could not be adapted.
type RejectedRecord struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// RankResponse is the body returned by the rank endpoints.
type RankResponse struct {
	*engine.Result
	Rejected []RejectedRecord `json:"rejected,omitempty"`
}

// engineRequest validates the wire request and converts it.
func (req *RankRequest) engineRequest() (engine.Request, []RejectedRecord, error) {
	if req.Temperature == nil {
		return engine.Request{}, nil, fmt.Errorf("%w: temperature", errRequired)
	}
	if err := ranking.ValidateTemperature(*req.Temperature); err != nil {
		return engine.Request{}, nil, err
	}
	strategy, err := engine.ParseStrategy(req.Strategy)
	if err != nil {
		return engine.Request{}, nil, err
	}

	cands := req.Candidates
	var rejected []RejectedRecord
	if len(req.Records) > 0 {
		provider, err := adapter.ParseProvider(req.Provider)
		if err != nil {
			return engine.Request{}, nil, err
		}
		adapted, errs := adapter.FromRecords(provider, req.Records)
		for _, e := range errs {
			rejected = append(rejected, RejectedRecord{Index: e.Index, Error: e.Err.Error()})
		}
		cands = append(append([]candidate.Candidate(nil), cands...), adapted...)
	}
	for i := range cands {
		if cands[i].ID == "" {
			return engine.Request{}, nil, fmt.Errorf("%w: candidate %d has no id", errRequired, i)
		}
	}

	return engine.Request{
		Candidates:  cands,
		Weights:     req.Weights,
		Temperature: *req.Temperature,
		Strategy:    strategy,
		Diffusion:   req.Diffusion,
		Boost:       req.Boost,
	}, rejected, nil
}

// RankHandlers serves the stateless ranking endpoints.
type RankHandlers struct {
	engine       *engine.Engine
	weights      *ranking.Weights
	maxBodyBytes int64
}

// NewRankHandlers creates rank handlers. defaults are the calibrated
// weights used when a request carries none; nil uses the built-in defaults.
func NewRankHandlers(eng *engine.Engine, defaults *ranking.Weights) *RankHandlers {
	return &RankHandlers{engine: eng, weights: defaults, maxBodyBytes: DefaultMaxBodyBytes}
}

// Rank handles POST /v1/rank.
func (h *RankHandlers) Rank(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodPost) {
		return
	}
	req := newRankRequest()
	if !decodeJSON(w, r, h.maxBodyBytes, &req) {
		return
	}

	resp, err := h.run(r, &req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *RankHandlers) run(r *http.Request, req *RankRequest) (*RankResponse, error) {
	ereq, rejected, err := req.engineRequest()
	if err != nil {
		return nil, err
	}
	if ereq.Weights == nil {
		ereq.Weights = h.weights
	}
	res, err := h.engine.Run(r.Context(), ereq)
	if err != nil {
		return nil, err
	}
	return &RankResponse{Result: res, Rejected: rejected}, nil
}
