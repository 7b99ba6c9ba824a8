package middleware

import (
	"io"
	"net/http"
	"strconv"
	"time"
)

// knownRoutes lists the routes served by the API. Any other path is reported
// as "other" so scanners cannot blow up label cardinality.
var knownRoutes = map[string]bool{
	"/":                true,
	"/rank":            true,
	"/listings/search": true,
	"/location":        true,
	"/health":          true,
	"/ready":           true,
	"/metrics":         true,
}

// normalizePath converts a request path to a bounded route label. A single
// trailing slash is ignored.
func normalizePath(path string) string {
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// sizeRecorder captures status and response size for HTTPMetrics.
type sizeRecorder struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func (sr *sizeRecorder) WriteHeader(code int) {
	if sr.wroteHeader {
		return
	}
	sr.statusCode = code
	sr.wroteHeader = true
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *sizeRecorder) Write(b []byte) (int, error) {
	sr.wroteHeader = true
	n, err := sr.ResponseWriter.Write(b)
	sr.size += int64(n)
	return n, err
}

// Unwrap returns the underlying writer.
func (sr *sizeRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// countingBody counts request body bytes the handler actually reads, which
// is the only size available for chunked uploads.
type countingBody struct {
	io.ReadCloser
	n int64
}

func (cb *countingBody) Read(p []byte) (int, error) {
	n, err := cb.ReadCloser.Read(p)
	cb.n += int64(n)
	return n, err
}

// HTTPMetrics records latency, request count and body sizes per method,
// normalized route and status. Probes and scrapes are not recorded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOperationalPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sr := &sizeRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			var body *countingBody
			if r.Body != nil && r.Body != http.NoBody {
				body = &countingBody{ReadCloser: r.Body}
				r.Body = body
			}

			next.ServeHTTP(sr, r)

			requestSize := r.ContentLength
			if body != nil && body.n > requestSize {
				requestSize = body.n
			}
			if requestSize < 0 {
				requestSize = 0
			}

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(sr.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				sr.size,
			)
		})
	}
}
