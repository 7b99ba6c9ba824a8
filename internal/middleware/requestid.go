package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type (
	requestIDKey struct{}
	sessionIDKey struct{}
)

const (
	// RequestIDHeader carries the request id, echoed on every response.
	RequestIDHeader = "X-Request-ID"

	// SessionIDHeader carries the client's session id. Viewer locations and
	// rate limits are keyed by it.
	SessionIDHeader = "X-Session-ID"

	// maxClientIDLength bounds request and session ids accepted from clients.
	maxClientIDLength = 128
)

// RequestID stores the request id and session id in the request context.
// A well-formed X-Request-ID from the client is reused, otherwise a UUID is
// generated. X-Session-ID is kept only when well formed.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := sanitizeClientID(r.Header.Get(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		if sessionID := sanitizeClientID(r.Header.Get(SessionIDHeader)); sessionID != "" {
			ctx = context.WithValue(ctx, sessionIDKey{}, sessionID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id stored by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// GetSessionID returns the session id stored by RequestID, or "".
func GetSessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

// sanitizeClientID trims raw and returns "" unless it is at most
// maxClientIDLength characters of [A-Za-z0-9._-]. Ids end up in log lines
// and Redis keys.
func sanitizeClientID(raw string) string {
	id := strings.TrimSpace(raw)
	if len(id) > maxClientIDLength {
		return ""
	}
	valid := strings.IndexFunc(id, func(c rune) bool {
		return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == '.')
	}) == -1
	if !valid {
		return ""
	}
	return id
}
