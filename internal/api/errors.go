// Package api provides the HTTP handlers of the marketrank API and its
// standardized error envelope.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/marketrank/internal/middleware"
)

// Error codes carried in the envelope's "code" field.
const (
	ErrCodeValidation       = "validation_error"   // input failed validation
	ErrCodeBadRequest       = "bad_request"        // body is not valid JSON
	ErrCodeNotFound         = "not_found"          // unknown route or no cached location
	ErrCodeMethodNotAllowed = "method_not_allowed" // route exists, method does not
	ErrCodePayloadTooLarge  = "payload_too_large"  // body or product batch too big
	ErrCodeRateLimited      = "rate_limited"       // written by middleware.RateLimiter
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "service_unavailable" // a backing store is unreachable
)

var errorStatus = map[string]int{
	ErrCodeValidation:       http.StatusBadRequest,
	ErrCodeBadRequest:       http.StatusBadRequest,
	ErrCodeNotFound:         http.StatusNotFound,
	ErrCodeMethodNotAllowed: http.StatusMethodNotAllowed,
	ErrCodePayloadTooLarge:  http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:      http.StatusTooManyRequests,
	ErrCodeInternal:         http.StatusInternalServerError,
	ErrCodeUnavailable:      http.StatusServiceUnavailable,
}

// ErrorResponse is the body of every error: {"error":{"code":...,"message":...}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail holds a machine-readable code and a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes the error envelope with status. The error code stored on
// ctx with middleware.SetErrorCode is passed to the access log.
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Location not cached")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)
	writeBody(ctx, w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// StatusCodeMapping returns the HTTP status for an error code; unknown codes
// map to 500.
func StatusCodeMapping(code string) int {
	if status, ok := errorStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeCodedError tags the request context with code and writes the envelope
// with the code's status.
func writeCodedError(w http.ResponseWriter, r *http.Request, code, message string) {
	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, StatusCodeMapping(code), code, message)
}

// writeMethodNotAllowed answers 405 with the Allow header listing allowed.
func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeCodedError(w, r, ErrCodeMethodNotAllowed, "Method "+r.Method+" not allowed")
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	writeBody(r.Context(), w, status, v)
}

func writeBody(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to write response", "status", status, "error", err)
	}
}
