package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces location entries in Redis.
const keyPrefix = "marketrank:location:"

// RedisCache stores viewer locations in Redis with a TTL so every API instance
// shares the same session view.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisCache creates a RedisCache. A non-positive ttl uses DefaultTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func redisKey(sessionID string) string {
	return keyPrefix + sessionID
}

// Get returns the session's location or ErrNotFound.
func (c *RedisCache) Get(ctx context.Context, sessionID string) (*Entry, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}

	data, err := c.client.Get(ctx, redisKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached location: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cached location: %w", err)
	}
	if !entry.Coordinates.Valid() {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// Set stores the session's location for the cache TTL.
func (c *RedisCache) Set(ctx context.Context, sessionID string, entry Entry) error {
	if err := validate(sessionID, entry); err != nil {
		return err
	}
	if entry.ResolvedAt.IsZero() {
		entry.ResolvedAt = c.now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode location: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(sessionID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache location: %w", err)
	}
	return nil
}

// Delete removes the session's location.
func (c *RedisCache) Delete(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, redisKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete cached location: %w", err)
	}
	return nil
}
