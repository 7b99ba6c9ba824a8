// Package middleware holds the HTTP middleware chain of the marketrank API:
// tracing, request and session ids, access logging, metrics and rate limiting.
package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

type errorCodeKey struct{}

// SetErrorCode returns a copy of ctx carrying the API error code of the
// response being written.
func SetErrorCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode returns the error code stored by SetErrorCode, or "".
func GetErrorCode(ctx context.Context) string {
	if code, ok := ctx.Value(errorCodeKey{}).(string); ok {
		return code
	}
	return ""
}

// UpdateResponseContext hands the error code in ctx to the Logging middleware
// wrapped somewhere beneath w. Handlers derive their own contexts, so the
// code cannot travel back through r.Context(). No-op without Logging.
func UpdateResponseContext(w http.ResponseWriter, ctx context.Context) {
	code := GetErrorCode(ctx)
	if code == "" {
		return
	}
	for w != nil {
		if rw, ok := w.(*accessRecorder); ok {
			rw.errorCode = code
			return
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return
		}
		w = u.Unwrap()
	}
}

// accessRecorder wraps the handler's writer to capture what the access log
// reports: status, body size and the handler's error code.
type accessRecorder struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
	errorCode   string
}

func newAccessRecorder(w http.ResponseWriter) *accessRecorder {
	return &accessRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader records the first status only, as net/http does.
func (rw *accessRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *accessRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Unwrap returns the underlying writer for http.ResponseController.
func (rw *accessRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// NewLogger returns the service logger writing to out: JSON at info level in
// production, human-readable text at debug level elsewhere.
func NewLogger(env string, out io.Writer) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// levelForStatus logs server errors at error, client errors at warn.
func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Logging writes one "request completed" entry per request with method, path,
// normalized route, status, latency_ms and size, plus request_id, session_id,
// trace_id and error_code when known.
//
// A panicking handler produces no entry.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newAccessRecorder(w)
			next.ServeHTTP(rw, r)

			ctx := r.Context()
			attrs := make([]slog.Attr, 0, 10)
			attrs = append(attrs,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", normalizePath(r.URL.Path)),
				slog.Int("status", rw.statusCode),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
				slog.Int("size", rw.size),
			)
			for _, kv := range [...]struct{ key, value string }{
				{"request_id", GetRequestID(ctx)},
				{"session_id", GetSessionID(ctx)},
				{"trace_id", TraceID(ctx)},
			} {
				if kv.value != "" {
					attrs = append(attrs, slog.String(kv.key, kv.value))
				}
			}

			if rw.statusCode >= 400 {
				code := rw.errorCode
				if code == "" {
					code = GetErrorCode(ctx)
				}
				if code != "" {
					attrs = append(attrs, slog.String("error_code", code))
				}
			}

			logger.LogAttrs(ctx, levelForStatus(rw.statusCode), "request completed", attrs...)
		})
	}
}
