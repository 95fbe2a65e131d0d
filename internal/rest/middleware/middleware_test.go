package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxagent/billing/internal/auth"
	"github.com/voxagent/billing/internal/config"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/rbac"
	"github.com/voxagent/billing/internal/types"
)

func newTestEngine(cfg *config.Configuration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.NewNoopLogger()
	r := gin.New()
	r.Use(RequestIDMiddleware, ErrorHandler(log))
	r.Use(AuthenticateMiddleware(cfg, auth.NewJWTAuth(cfg), rbac.NewRBACService(), log))
	r.GET("/whoami", func(c *gin.Context) {
		caller := types.GetCaller(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": caller.UserID, "role": caller.Role})
	})
	r.GET("/cron", RequireRole(types.GlobalRoleService), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(ierr.NewError("balance too low").
			WithHint("Insufficient balance").
			WithReportableDetails(map[string]any{"error_kind": types.ErrorKindInsufficientBalance}).
			Mark(ierr.ErrInsufficientBalance))
	})
	return r
}

func testConfig() *config.Configuration {
	cfg := config.GetDefaultConfig()
	cfg.Auth.Secret = "test-secret"
	cfg.Auth.APIKey.Header = "x-api-key"
	cfg.Auth.APIKey.Keys = map[string]config.APIKeyDetails{
		auth.HashAPIKey("cron-key"): {UserID: "cron", IsActive: true},
	}
	return cfg
}

func TestAuthenticateMiddleware(t *testing.T) {
	cfg := testConfig()
	r := newTestEngine(cfg)

	token, err := auth.NewJWTAuth(cfg).GenerateToken("user_1", types.GlobalRoleMember, []string{"ws_1"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		path       string
		headers    map[string]string
		wantStatus int
	}{
		{name: "missing credentials", path: "/whoami", wantStatus: http.StatusUnauthorized},
		{name: "malformed header", path: "/whoami", headers: map[string]string{"Authorization": token}, wantStatus: http.StatusUnauthorized},
		{name: "valid token", path: "/whoami", headers: map[string]string{"Authorization": "Bearer " + token}, wantStatus: http.StatusOK},
		{name: "valid api key", path: "/whoami", headers: map[string]string{"x-api-key": "cron-key"}, wantStatus: http.StatusOK},
		{name: "invalid api key", path: "/whoami", headers: map[string]string{"x-api-key": "nope"}, wantStatus: http.StatusUnauthorized},
		{name: "member cannot reach cron", path: "/cron", headers: map[string]string{"Authorization": "Bearer " + token}, wantStatus: http.StatusForbidden},
		{name: "api key reaches cron", path: "/cron", headers: map[string]string{"x-api-key": "cron-key"}, wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotEmpty(t, w.Header().Get(types.HeaderRequestID))
		})
	}
}

func TestErrorHandlerRendersHintAndDetails(t *testing.T) {
	r := newTestEngine(testConfig())

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set("x-api-key", "cron-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.JSONEq(t, `{"error":"Insufficient balance","details":{"error_kind":"InsufficientBalance"}}`, w.Body.String())
}
