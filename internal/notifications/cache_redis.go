package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares the preference cache across replicas. Misses and
// transport errors are reported as cache misses so the caller rebuilds
// from the store.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(tenantID string) string {
	return "notifications:preferences:" + tenantID
}

func (c *RedisCache) Get(ctx context.Context, tenantID string) ([]Preference, bool) {
	raw, err := c.client.Get(ctx, cacheKey(tenantID)).Bytes()
	if err != nil {
		return nil, false
	}
	var prefs []Preference
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return nil, false
	}
	return prefs, true
}

func (c *RedisCache) Set(ctx context.Context, tenantID string, prefs []Preference) {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(tenantID), raw, c.ttl)
}
