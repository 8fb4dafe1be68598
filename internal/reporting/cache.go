package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "campusops:reports:version"
	cacheTTL        = 5 * time.Minute
)

// Cache stores computed summaries in Redis under a shared version
// counter. Bumping the version orphans every cached summary at once,
// the stale entries then age out through their TTL.
type Cache struct {
	client *redis.Client
}

// NewCache constructs a report cache.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// GetSummary loads a cached summary into out. The boolean reports a hit.
func (c *Cache) GetSummary(ctx context.Context, key string, out any) (bool, error) {
	full, err := c.versionedKey(ctx, key)
	if err != nil {
		return false, err
	}
	raw, err := c.client.Get(ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// SetSummary stores a summary under the current cache version.
func (c *Cache) SetSummary(ctx context.Context, key string, value any) error {
	full, err := c.versionedKey(ctx, key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, full, raw, cacheTTL).Err()
}

// Invalidate bumps the version counter, detaching all cached summaries.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *Cache) versionedKey(ctx context.Context, key string) (string, error) {
	version, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("campusops:reports:%d:%s", version, key), nil
}
