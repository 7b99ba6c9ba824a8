package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestID_GeneratesNewID(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rank", nil))

	if captured == "" {
		t.Fatal("expected generated request ID in context")
	}
	if len(captured) != 36 {
		t.Errorf("expected UUID length 36, got %d (%s)", len(captured), captured)
	}
	if got := rr.Header().Get(RequestIDHeader); got != captured {
		t.Errorf("expected response header %q, got %q", captured, got)
	}
}

func TestRequestID_UsesExistingHeader(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/rank", nil)
	req.Header.Set(RequestIDHeader, "existing-id")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if captured != "existing-id" {
		t.Errorf("expected existing-id, got %q", captured)
	}
	if got := rr.Header().Get(RequestIDHeader); got != "existing-id" {
		t.Errorf("expected response header existing-id, got %q", got)
	}
}

func TestRequestID_SessionID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"simple", "abc-123", "abc-123"},
		{"trimmed", "  abc.DEF_9  ", "abc.DEF_9"},
		{"absent", "", ""},
		{"invalid characters", "abc:123", ""},
		{"spaces inside", "abc 123", ""},
		{"too long", strings.Repeat("a", maxClientIDLength+1), ""},
		{"max length", strings.Repeat("a", maxClientIDLength), strings.Repeat("a", maxClientIDLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetSessionID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/location", nil)
			if tt.header != "" {
				req.Header.Set(SessionIDHeader, tt.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if captured != tt.want {
				t.Errorf("expected session %q, got %q", tt.want, captured)
			}
		})
	}
}

func TestRequestID_RejectsMalformedClientID(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/rank", nil)
	req.Header.Set(RequestIDHeader, "evil\nlevel=ERROR")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if captured == "" || strings.Contains(captured, "evil") {
		t.Errorf("expected a generated id, got %q", captured)
	}
	if rr.Header().Get(RequestIDHeader) != captured {
		t.Errorf("response header %q does not match context id %q", rr.Header().Get(RequestIDHeader), captured)
	}
}

func TestGetRequestID_EmptyContextReturnsEmptyString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := GetRequestID(req.Context()); id != "" {
		t.Errorf("expected empty request ID, got %q", id)
	}
	if id := GetSessionID(req.Context()); id != "" {
		t.Errorf("expected empty session ID, got %q", id)
	}
}
