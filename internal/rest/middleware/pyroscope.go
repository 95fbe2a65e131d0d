package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
	"github.com/voxagent/billing/internal/config"
)

// PyroscopeMiddleware tags profiles with the matched route so hot endpoints
// such as usage ingestion show up separately from admin traffic
func PyroscopeMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	if !cfg.Pyroscope.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		// workspace ids are left out, they would explode label cardinality
		labels := pyroscope.Labels(
			"http_method", c.Request.Method,
			"http_route", route,
			"run_mode", string(cfg.Deployment.Mode),
		)

		pyroscope.TagWrapper(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
