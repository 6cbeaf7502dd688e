package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/molrank/internal/candidate"
	"github.com/onnwee/molrank/internal/engine"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(maxGraph int, policy engine.OversizePolicy) *engine.Engine {
	return engine.New(engine.Config{MaxGraphCandidates: maxGraph, OversizePolicy: policy, Logger: quietLogger()})
}

func testCandidate(id string, efficacy, safety float64, emb ...float64) candidate.Candidate {
	return candidate.Candidate{
		ID: id,
		Descriptors: map[candidate.Descriptor]float64{
			candidate.EfficacyIndex:       efficacy,
			candidate.SafetyIndex:         safety,
			candidate.MolecularComplexity: 0.5,
			candidate.MolecularWeight:     250 + 100*efficacy,
		},
		Embedding: emb,
	}
}

func testCandidates(n int) []candidate.Candidate {
	out := make([]candidate.Candidate, n)
	for i := range out {
		f := float64(i) / float64(n)
		out[i] = testCandidate(fmt.Sprintf("c%02d", i), f, 1-f/2, f, float64(i%3), 1-f)
	}
	return out
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return bytes.NewReader(data)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error body %q: %v", rr.Body.String(), err)
	}
	return resp.Error
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

func ptr[T any](v T) *T { return &v }
