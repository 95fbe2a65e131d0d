package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/voxagent/billing/internal/config"
)

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "settings:v1:pricing_rates_pag", GenerateKey(PrefixSettings, "pricing_rates_pag"))
	assert.Equal(t, "provider:v1:prov_1:2", GenerateKey(PrefixProvider, "prov_1", 2))
}

func TestInMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(&config.Configuration{Cache: config.CacheConfig{Enabled: true, TTL: time.Minute}})

	key := GenerateKey(PrefixSettings, "pricing_rates_pag")
	c.Set(ctx, key, "v1", 0)

	v, ok := Lookup[string](ctx, c, key)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	_, ok = Lookup[int](ctx, c, key)
	assert.False(t, ok, "a value of another type is a miss")

	c.Delete(ctx, key)
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
}

func TestInMemoryCacheDisabled(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(&config.Configuration{Cache: config.CacheConfig{Enabled: false}})

	c.Set(ctx, "k", "v", 0)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}
