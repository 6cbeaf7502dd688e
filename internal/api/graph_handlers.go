package api

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/onnwee/molrank/internal/engine"
	"github.com/onnwee/molrank/internal/graph"
)

// Graph encodings accepted by POST /v1/graph.
const (
	EncodingBase64 = "base64"
	EncodingCBOR   = "cbor"
)

// GraphRequest is the body of POST /v1/graph.
type GraphRequest struct {
	Embeddings [][]float64 `json:"embeddings"`
	K          int         `json:"k"`
	Encoding   string      `json:"encoding"`
}

// GraphResponse carries an encoded neighbor graph. For the cbor encoding
// the buffer holds standard base64 of the CBOR document.
type GraphResponse struct {
	N        int    `json:"n"`
	K        int    `json:"k"`
	Encoding string `json:"encoding"`
	Buffer   string `json:"buffer"`
}

// GraphHandlers builds similarity graphs for raw embeddings.
type GraphHandlers struct {
	engine       *engine.Engine
	maxBodyBytes int64
}

// NewGraphHandlers creates graph handlers.
func NewGraphHandlers(eng *engine.Engine) *GraphHandlers {
	return &GraphHandlers{engine: eng, maxBodyBytes: DefaultMaxBodyBytes}
}

// Build handles POST /v1/graph.
func (h *GraphHandlers) Build(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodPost) {
		return
	}
	var req GraphRequest
	if !decodeJSON(w, r, h.maxBodyBytes, &req) {
		return
	}
	if req.Encoding == "" {
		req.Encoding = EncodingBase64
	}
	if req.Encoding != EncodingBase64 && req.Encoding != EncodingCBOR {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation,
			fmt.Sprintf("encoding must be %s or %s", EncodingBase64, EncodingCBOR))
		return
	}
	if req.K == 0 {
		req.K = engine.DefaultDiffusionOptions().K
	}

	g, err := h.engine.BuildGraph(r.Context(), req.Embeddings, req.K)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	resp := GraphResponse{N: g.N(), K: g.K, Encoding: req.Encoding}
	switch req.Encoding {
	case EncodingCBOR:
		data, err := graph.EncodeCBOR(g)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		resp.Buffer = base64.StdEncoding.EncodeToString(data)
	default:
		resp.Buffer = graph.EncodeBuffer(g)
	}
	writeJSON(w, r, http.StatusOK, resp)
}
