package cache

import (
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/logger"
)

// Initialize builds the process cache used by the settings store and provider registry
func Initialize(cfg *config.Configuration, log *logger.Logger) Cache {
	log.Infow("initializing cache system",
		"enabled", cfg.Cache.Enabled,
		"ttl", cfg.Cache.TTL,
	)
	return NewInMemoryCache(cfg)
}
