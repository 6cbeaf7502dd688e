package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// testLogEntry represents a parsed JSON log entry for testing.
type testLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	ErrorCode string `json:"error_code"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func parseEntry(t *testing.T, buf *bytes.Buffer) testLogEntry {
	t.Helper()
	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_BasicFields(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/rank", nil))

	entry := parseEntry(t, buf)
	if entry.Msg != "request completed" || entry.Level != "INFO" {
		t.Errorf("unexpected entry header: %+v", entry)
	}
	if entry.Method != "POST" || entry.Path != "/v1/rank" || entry.Status != 200 {
		t.Errorf("unexpected request fields: %+v", entry)
	}
	if entry.Size != len(`{"candidates":[]}`) || entry.LatencyMS < 0 {
		t.Errorf("unexpected size/latency: %+v", entry)
	}
}

func TestLogging_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNoContent, "INFO"},
		{http.StatusBadRequest, "WARN"},
		{http.StatusTooManyRequests, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			buf := &bytes.Buffer{}
			handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/datasets/demo/rank", nil))

			if entry := parseEntry(t, buf); entry.Level != tt.level || entry.Status != tt.status {
				t.Errorf("expected %s/%d, got %s/%d", tt.level, tt.status, entry.Level, entry.Status)
			}
		})
	}
}

func TestLogging_WithRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := RequestID(Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if entry := parseEntry(t, buf); entry.RequestID != "req-42" {
		t.Errorf("expected request_id req-42, got %q", entry.RequestID)
	}
}

func TestLogging_ErrorCodeFromHandler(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetErrorCode(r.Context(), "validation_error")
		UpdateResponseContext(w, ctx)
		w.WriteHeader(http.StatusBadRequest)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/rank", nil))

	if entry := parseEntry(t, buf); entry.ErrorCode != "validation_error" {
		t.Errorf("expected error_code validation_error, got %q", entry.ErrorCode)
	}
}

func TestLogging_ErrorCodeThroughMetricsWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetErrorCode(r.Context(), "not_found"))
		w.WriteHeader(http.StatusNotFound)
	})
	handler := Logging(newTestLogger(buf))(HTTPMetrics(NewMetrics())(inner))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/datasets/missing/summary", nil))

	if entry := parseEntry(t, buf); entry.ErrorCode != "not_found" {
		t.Errorf("expected error_code not_found, got %q", entry.ErrorCode)
	}
}

func TestLogging_NoErrorCodeOnSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetErrorCode(r.Context(), "ignored"))
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Contains(buf.String(), "error_code") {
		t.Errorf("error_code should only be logged for error responses: %s", buf.String())
	}
}

func TestUpdateResponseContext_PlainWriter(t *testing.T) {
	// Must be a no-op on writers that cannot record codes.
	UpdateResponseContext(httptest.NewRecorder(), SetErrorCode(context.Background(), "x"))
	UpdateResponseContext(httptest.NewRecorder(), context.Background())
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := newResponseWriter(rr)
	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusTeapot)
	if rw.statusCode != http.StatusAccepted || rr.Code != http.StatusAccepted {
		t.Errorf("expected 202, got writer %d recorder %d", rw.statusCode, rr.Code)
	}
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("expected error when the underlying writer cannot hijack")
	}
}

func TestNewLogger(t *testing.T) {
	if _, ok := NewLogger("production").Handler().(*slog.JSONHandler); !ok {
		t.Error("production should use a JSON handler")
	}
	dev := NewLogger("development")
	if _, ok := dev.Handler().(*slog.TextHandler); !ok {
		t.Error("development should use a text handler")
	}
	if !dev.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("development logger should enable debug")
	}
}
