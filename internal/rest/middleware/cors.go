package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/types"
)

// CORSMiddleware lets the dashboard call the API from the configured origins
func CORSMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	allowed := cfg.Server.AllowedOrigins

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowed) == 0:
			c.Header("Access-Control-Allow-Origin", "*")
		case lo.Contains(allowed, origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+types.HeaderRequestID+", "+types.HeaderWorkspaceID+", "+cfg.Auth.APIKey.Header)
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
