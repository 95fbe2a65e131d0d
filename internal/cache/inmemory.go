package cache

import (
	"context"
	"time"

	goCache "github.com/patrickmn/go-cache"
	"github.com/voxagent/billing/internal/config"
)

const (
	DefaultExpiration      = 5 * time.Minute
	DefaultCleanupInterval = 10 * time.Minute
)

// InMemoryCache is a per-process cache. Every api and consumer instance keeps
// its own copy, so a settings change is visible everywhere after one ttl.
type InMemoryCache struct {
	cache   *goCache.Cache
	enabled bool
}

// NewInMemoryCache creates a cache honoring cache.enabled and cache.ttl
func NewInMemoryCache(cfg *config.Configuration) *InMemoryCache {
	ttl := cfg.Cache.TTL
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	return &InMemoryCache{
		cache:   goCache.New(ttl, DefaultCleanupInterval),
		enabled: cfg.Cache.Enabled,
	}
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, bool) {
	if !c.enabled {
		return nil, false
	}
	span := StartCacheSpan(ctx, "inmemory", "get", map[string]interface{}{"key": key})
	defer FinishSpan(span)

	value, found := c.cache.Get(key)
	SetSpanSuccess(span)
	return value, found
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) {
	if !c.enabled {
		return
	}
	if expiration == 0 {
		expiration = goCache.DefaultExpiration
	}
	c.cache.Set(key, value, expiration)
}

// Delete also works while disabled so a stale entry cannot survive re-enabling
func (c *InMemoryCache) Delete(_ context.Context, key string) {
	c.cache.Delete(key)
}
