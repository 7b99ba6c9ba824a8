package middleware

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// rateLimitKeyPrefix namespaces rate limit counters in Redis.
const rateLimitKeyPrefix = "marketrank:ratelimit:"

// RedisRateLimitStore implements RateLimitStore with a fixed window counter
// in Redis, so limits are shared by every API replica.
//
// Redis failures fail open: the request is allowed, a warning is logged and
// rate_limit_store_errors_total{store="redis"} is incremented.
type RedisRateLimitStore struct {
	client  *redis.Client
	metrics *Metrics
	logger  *slog.Logger
}

// NewRedisRateLimitStore creates a Redis-backed store. metrics and logger may be nil.
func NewRedisRateLimitStore(client *redis.Client, metrics *Metrics, logger *slog.Logger) *RedisRateLimitStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRateLimitStore{client: client, metrics: metrics, logger: logger}
}

// Allow increments key's counter and reads its remaining TTL in one
// MULTI/EXEC round trip. A counter without a TTL (new, or one whose expiry
// was lost) gets a fresh window.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) Decision {
	redisKey := rateLimitKeyPrefix + key

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pttl = pipe.PTTL(ctx, redisKey)
		return nil
	}); err != nil {
		return s.failOpen(ctx, config, err)
	}

	ttl := pttl.Val()
	if ttl < 0 {
		if err := s.client.PExpire(ctx, redisKey, config.WindowDuration).Err(); err != nil {
			return s.failOpen(ctx, config, err)
		}
		ttl = config.WindowDuration
	}

	count := incr.Val()
	limit := int64(config.RequestsPerWindow)
	d := Decision{Limit: config.RequestsPerWindow, ResetAfter: ttl}
	if count <= limit {
		d.Allowed = true
		d.Remaining = int(limit - count)
	}
	return d
}

func (s *RedisRateLimitStore) failOpen(ctx context.Context, config RateLimitConfig, err error) Decision {
	if s.metrics != nil {
		s.metrics.IncRateLimitStoreError("redis")
	}
	s.logger.WarnContext(ctx, "rate limit store unavailable, allowing request", "error", err)
	return Decision{Allowed: true, Limit: config.RequestsPerWindow, Degraded: true}
}

var (
	_ RateLimitStore = (*InMemoryRateLimitStore)(nil)
	_ RateLimitStore = (*RedisRateLimitStore)(nil)
)
