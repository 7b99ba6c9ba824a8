// Package location caches the most recently resolved viewer location per
// session so repeat searches can rank by distance without asking the client to
// geolocate again.
package location

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/onnwee/marketrank/internal/geo"
)

var (
	// ErrNotFound is returned when a session has no cached location or the
	// entry has expired.
	ErrNotFound = errors.New("location not cached")

	// ErrInvalidCoordinates is returned when storing out-of-range coordinates.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrInvalidSession is returned for an empty session id.
	ErrInvalidSession = errors.New("session id is required")
)

// DefaultTTL is how long a resolved location stays fresh.
const DefaultTTL = 30 * time.Minute

// Entry is a cached viewer location.
type Entry struct {
	Coordinates geo.Coordinates `json:"coordinates"`
	// AccuracyMeters is the accuracy radius reported by the client, if any.
	AccuracyMeters float64   `json:"accuracy_meters,omitempty"`
	ResolvedAt     time.Time `json:"resolved_at"`
}

// Cache stores viewer locations keyed by session id.
type Cache interface {
	Get(ctx context.Context, sessionID string) (*Entry, error)
	Set(ctx context.Context, sessionID string, entry Entry) error
	Delete(ctx context.Context, sessionID string) error
}

func validate(sessionID string, entry Entry) error {
	if sessionID == "" {
		return ErrInvalidSession
	}
	if !entry.Coordinates.Valid() {
		return ErrInvalidCoordinates
	}
	return nil
}

// MemoryCache is an in-process Cache with per-entry expiry. Expired entries
// are evicted by a background janitor whether or not they are read again.
// Used for testing and single-instance deployments.
type MemoryCache struct {
	ttl   time.Duration
	items *cache.Cache
}

// NewMemoryCache creates a MemoryCache. A non-positive ttl uses DefaultTTL.
// Expired entries are swept every ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		ttl:   ttl,
		items: cache.New(ttl, ttl),
	}
}

// Get returns the session's location or ErrNotFound.
func (c *MemoryCache) Get(ctx context.Context, sessionID string) (*Entry, error) {
	v, ok := c.items.Get(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	entry := v.(Entry)
	return &entry, nil
}

// Set stores the session's location for the cache TTL.
func (c *MemoryCache) Set(ctx context.Context, sessionID string, entry Entry) error {
	if err := validate(sessionID, entry); err != nil {
		return err
	}
	if entry.ResolvedAt.IsZero() {
		entry.ResolvedAt = time.Now()
	}
	c.items.SetDefault(sessionID, entry)
	return nil
}

// Delete removes the session's location. Missing entries are not an error.
func (c *MemoryCache) Delete(ctx context.Context, sessionID string) error {
	c.items.Delete(sessionID)
	return nil
}
