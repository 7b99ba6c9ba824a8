package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/onnwee/marketrank/internal/ranking"
)

// DefaultAverageTTL is how long catalog-wide category averages are reused.
const DefaultAverageTTL = 5 * time.Minute

const averagesKey = "category_averages"

// AverageCache memoizes Repository.CategoryAverages for a TTL so each search
// does not rescan the catalog.
type AverageCache struct {
	repo   Repository
	cache  *cache.Cache
	logger *slog.Logger
}

// NewAverageCache wraps repo with a cache that expires entries after ttl.
// A non-positive ttl uses DefaultAverageTTL.
func NewAverageCache(repo Repository, ttl time.Duration, logger *slog.Logger) *AverageCache {
	if ttl <= 0 {
		ttl = DefaultAverageTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AverageCache{
		repo:   repo,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// Get returns the cached averages, loading them from the repository on a miss.
// Failed loads are not cached.
func (c *AverageCache) Get(ctx context.Context) (ranking.CategoryAverages, error) {
	if v, ok := c.cache.Get(averagesKey); ok {
		return v.(ranking.CategoryAverages), nil
	}

	averages, err := c.repo.CategoryAverages(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(averagesKey, averages)
	c.logger.DebugContext(ctx, "category averages refreshed", "categories", len(averages))
	return averages, nil
}

// Invalidate drops the cached averages so the next Get reloads them.
func (c *AverageCache) Invalidate() {
	c.cache.Delete(averagesKey)
}
