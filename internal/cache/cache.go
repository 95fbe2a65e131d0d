package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Cache holds read-mostly pricing inputs: settings rows and provider rates.
// Ledger state is never cached.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	// Set stores value for expiration, zero means the configured ttl
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration)
	Delete(ctx context.Context, key string)
}

// Key prefixes, bump the version when the cached type changes shape
const (
	PrefixSettings = "settings:v1"
	PrefixProvider = "provider:v1"
)

// GenerateKey joins prefix and params with colons: settings:v1:pricing_rates_pag
func GenerateKey(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range params {
		b.WriteByte(':')
		b.WriteString(fmt.Sprint(p))
	}
	return b.String()
}

// Lookup is Get with a type assertion. A value of another type counts as a miss.
func Lookup[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var zero T
	cached, found := c.Get(ctx, key)
	if !found {
		return zero, false
	}
	value, ok := cached.(T)
	if !ok {
		return zero, false
	}
	return value, true
}
