package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/voxagent/billing/internal/auth"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/rbac"
	"github.com/voxagent/billing/internal/types"
)

// AuthenticateMiddleware resolves the caller from either:
// 1. an API key in the configured header (internal callers, service role)
// 2. a bearer JWT in the Authorization header
// and stores it on the request context for handlers
func AuthenticateMiddleware(cfg *config.Configuration, provider auth.Provider, rbacService *rbac.RBACService, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey := c.GetHeader(cfg.Auth.APIKey.Header); apiKey != "" {
			userID, valid := auth.ValidateAPIKey(cfg, apiKey)
			if !valid {
				logger.Debugw("invalid api key")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
				return
			}

			caller := rbacService.Caller(userID, types.GlobalRoleService, nil)
			c.Request = c.Request.WithContext(types.SetCaller(c.Request.Context(), caller))
			c.Next()
			return
		}

		authHeader := c.GetHeader(types.HeaderAuthorization)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		claims, err := provider.ValidateToken(c.Request.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil || claims == nil || claims.UserID == "" {
			logger.Debugw("failed to validate token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		caller := rbacService.Caller(claims.UserID, claims.Role, claims.WorkspaceIDs)
		ctx := types.SetCaller(c.Request.Context(), caller)
		if workspaceID := c.GetHeader(types.HeaderWorkspaceID); workspaceID != "" {
			ctx = types.SetWorkspaceID(ctx, workspaceID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole rejects callers whose global role is not one of roles
func RequireRole(roles ...types.GlobalRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := types.GetCaller(c.Request.Context())
		if !lo.Contains(roles, caller.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}
