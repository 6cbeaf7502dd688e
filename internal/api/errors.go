// Package api provides the molrank HTTP handlers and standardized error
// responses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/molrank/internal/adapter"
	"github.com/onnwee/molrank/internal/candidate"
	"github.com/onnwee/molrank/internal/diffusion"
	"github.com/onnwee/molrank/internal/engine"
	"github.com/onnwee/molrank/internal/graph"
	"github.com/onnwee/molrank/internal/middleware"
	"github.com/onnwee/molrank/internal/ranking"
	"github.com/onnwee/molrank/internal/store"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodePayloadTooLarge indicates the request body exceeded the limit.
	ErrCodePayloadTooLarge = "payload_too_large"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// The code is recorded on the response writer so the logging middleware
// can report it:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Dataset not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, middleware.SetErrorCode(ctx, code))

	data, err := json.Marshal(ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// validationErrors are caller mistakes reported as validation_error.
var validationErrors = []error{
	ranking.ErrInvalidTemperature,
	engine.ErrInvalidStrategy,
	engine.ErrTooManyCandidates,
	candidate.ErrMissingEmbedding,
	candidate.ErrInvalidEmbedding,
	candidate.ErrDimensionMismatch,
	graph.ErrInvalidK,
	diffusion.ErrInvalidIterations,
	diffusion.ErrInvalidMixRate,
	diffusion.ErrInvalidProbabilities,
	diffusion.ErrSizeMismatch,
	diffusion.ErrInvalidAlpha,
	store.ErrInvalidDataset,
	store.ErrMissingID,
	adapter.ErrUnknownProvider,
	errRequired,
}

// classify maps an error to its API error code.
func classify(err error) string {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return ErrCodePayloadTooLarge
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return ErrCodeValidation
		}
	}
	return ErrCodeInternal
}

// writeErr classifies err and writes it. Internal errors are logged and
// their details withheld from the client.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	code := classify(err)
	message := err.Error()
	if code == ErrCodeInternal {
		slog.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path)
		message = "Internal server error"
	}
	WriteError(w, r.Context(), StatusCodeMapping(code), code, message)
}

// decodeJSON reads a JSON body no larger than limit into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if classify(err) == ErrCodePayloadTooLarge {
			WriteError(w, r.Context(), http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "Request body too large")
			return false
		}
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err, "path", r.URL.Path)
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) bool {
	if r.Method == allow {
		return false
	}
	w.Header().Set("Allow", allow)
	WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	return true
}
