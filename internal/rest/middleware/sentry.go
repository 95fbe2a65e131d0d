package middleware

import (
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/types"
)

// SentryMiddleware captures panics and traces requests. Each request gets its
// own hub tagged with the request id, and the workspace header when present.
func SentryMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	if !cfg.Sentry.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	capture := sentrygin.New(sentrygin.Options{
		Repanic: true,
		Timeout: 2 * time.Second,
	})

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		// sentrygin reuses a hub already on the request context
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetTag("request_id", types.GetRequestID(ctx))
		if workspaceID := c.GetHeader(types.HeaderWorkspaceID); workspaceID != "" {
			hub.Scope().SetTag("workspace_id", workspaceID)
		}
		hub.Scope().SetTag("run_mode", string(cfg.Deployment.Mode))

		c.Request = c.Request.WithContext(sentry.SetHubOnContext(ctx, hub))
		capture(c)
	}
}
