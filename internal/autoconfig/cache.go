package autoconfig

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fenilsonani/mailclient/internal/store"
)

// cacheTTL bounds how long a successful probe result is trusted before the
// next configuration run re-probes the network.
const cacheTTL = 7 * 24 * time.Hour

// Cache is a read-through store for successful autoconfig/autodiscover
// probe results, keyed by domain. It is an availability optimization only:
// a cache miss, or the absence of a cache entirely, falls back to the
// normal network probe order.
type Cache interface {
	Get(ctx context.Context, domain string) (store.LoginParam, bool)
	Set(ctx context.Context, domain string, p store.LoginParam)
}

// NoopCache is used when no Redis URL is configured; every lookup misses
// and every write is discarded.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (store.LoginParam, bool) {
	return store.LoginParam{}, false
}
func (NoopCache) Set(context.Context, string, store.LoginParam) {}

// RedisCache caches probe results in Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to redisURL and returns a Cache backed by it.
// Connectivity is not verified eagerly: a Redis outage degrades every Get
// to a miss and every Set to a silent no-op rather than failing the run.
func NewRedisCache(redisURL, prefix string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "autoconfig"
	}
	return &RedisCache{client: redis.NewClient(opts), prefix: prefix}, nil
}

func (c *RedisCache) key(domain string) string {
	return c.prefix + ":" + domain
}

// Get returns the cached LoginParam for domain, or ok=false on a miss or
// any Redis error.
func (c *RedisCache) Get(ctx context.Context, domain string) (store.LoginParam, bool) {
	raw, err := c.client.Get(ctx, c.key(domain)).Bytes()
	if err != nil {
		return store.LoginParam{}, false
	}
	var p store.LoginParam
	if err := json.Unmarshal(raw, &p); err != nil {
		return store.LoginParam{}, false
	}
	return p, true
}

// Set writes p under domain with cacheTTL. Errors are swallowed: caching is
// never allowed to fail the configuration run.
func (c *RedisCache) Set(ctx context.Context, domain string, p store.LoginParam) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(domain), raw, cacheTTL)
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
