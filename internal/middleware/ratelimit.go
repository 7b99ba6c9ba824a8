package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig is a fixed-window limit: at most RequestsPerWindow
// requests per key in each WindowDuration.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate reports a non-positive limit or window.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("rate limit: requests per window must be > 0 (got %d)", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("rate limit: window must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAfter is the time left in the key's current window.
	ResetAfter time.Duration
	// Degraded is set when the store could not be consulted and the request
	// was let through; Remaining and ResetAfter are then meaningless.
	Degraded bool
}

// RetryAfter rounds ResetAfter up to whole seconds, never below 1.
func (d Decision) RetryAfter() int {
	return secondsUntil(d.ResetAfter)
}

// RateLimitStore counts requests per key.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, config RateLimitConfig) Decision
}

type window struct {
	count int
	end   time.Time
}

// InMemoryRateLimitStore keeps fixed-window counters in process memory.
// Limits are per replica. Safe for concurrent use.
type InMemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewInMemoryRateLimitStore returns an empty store. Run StartCleanup to
// bound its memory.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow counts one request for key.
func (s *InMemoryRateLimitStore) Allow(_ context.Context, key string, config RateLimitConfig) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.end) {
		w = &window{end: now.Add(config.WindowDuration)}
		s.windows[key] = w
	}

	d := Decision{Limit: config.RequestsPerWindow, ResetAfter: w.end.Sub(now)}
	if w.count < config.RequestsPerWindow {
		w.count++
		d.Allowed = true
		d.Remaining = config.RequestsPerWindow - w.count
	}
	return d
}

// Cleanup drops counters whose window has ended.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.windows {
		if !now.Before(w.end) {
			delete(s.windows, key)
		}
	}
}

// StartCleanup runs Cleanup every interval until ctx is cancelled.
func (s *InMemoryRateLimitStore) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

func secondsUntil(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys requests by client IP: the first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote address.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}

// SessionKeyFunc keys requests by "session:<id>", falling back to
// "ip:<addr>" for clients without a session. RequestID must run first.
func SessionKeyFunc() KeyFunc {
	ipFunc := IPKeyFunc()
	return func(r *http.Request) string {
		if id := GetSessionID(r.Context()); id != "" {
			return "session:" + id
		}
		return "ip:" + ipFunc(r)
	}
}

// keyType returns the metric label for a rate limit key. Keys not built by
// SessionKeyFunc are "custom"; raw IPv6 addresses must not leak into labels.
func keyType(key string) string {
	if prefix, _, ok := strings.Cut(key, ":"); ok && (prefix == "session" || prefix == "ip") {
		return prefix
	}
	return "custom"
}

// rateLimitBody is the error envelope written for blocked requests.
type rateLimitBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeRateLimitHeaders sets X-RateLimit-Limit, and unless the store was
// unavailable, X-RateLimit-Remaining and X-RateLimit-Reset (Unix seconds).
func writeRateLimitHeaders(h http.Header, d Decision, now time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	if d.Degraded {
		return
	}
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(d.ResetAfter).Unix(), 10))
}

// RateLimiter rejects requests over config with 429 rate_limited and a
// Retry-After header. Probes and scrapes are never limited. metrics may be nil.
func RateLimiter(store RateLimitStore, config RateLimitConfig, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOperationalPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			d := store.Allow(r.Context(), key, config)
			if metrics != nil {
				metrics.ObserveRateLimit(normalizePath(r.URL.Path), keyType(key), d.Allowed)
			}
			writeRateLimitHeaders(w.Header(), d, time.Now())

			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			UpdateResponseContext(w, SetErrorCode(r.Context(), "rate_limited"))
			w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter()))

			var body rateLimitBody
			body.Error.Code = "rate_limited"
			body.Error.Message = "Too many requests, retry later"
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(body)
		})
	}
}
