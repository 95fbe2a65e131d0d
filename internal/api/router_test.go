package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxagent/billing/internal/api/cron"
	"github.com/voxagent/billing/internal/api/dto"
	v1 "github.com/voxagent/billing/internal/api/v1"
	"github.com/voxagent/billing/internal/auth"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/domain/credit"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/rbac"
	"github.com/voxagent/billing/internal/service"
	"github.com/voxagent/billing/internal/types"
)

// stubs embed the service interfaces so only the methods a test needs are implemented

type stubCredit struct {
	service.CreditService
}

func (stubCredit) GetBalance(_ context.Context, caller types.Caller, workspaceID string) (*dto.CreditBalanceResponse, error) {
	if err := caller.RequireWorkspace(workspaceID); err != nil {
		return nil, err
	}
	acc := &credit.Account{ID: "cacc_1", WorkspaceID: workspaceID, CurrentBalance: decimal.RequireFromString("12.5")}
	return dto.NewCreditBalanceResponse(acc, 2), nil
}

type stubBilling struct {
	service.BillingReconciler
}

func (stubBilling) GenerateMonthlyBilling(context.Context, types.Caller, *dto.GenerateBillingRequest) (*dto.InvoiceResponse, error) {
	return nil, ierr.NewError("invoice exists").
		WithHint("An invoice already exists for this month").
		Mark(ierr.ErrAlreadyExists)
}

type stubMonitor struct {
	service.CreditMonitorService
	calls []*dto.MonitorRequest
}

func (m *stubMonitor) MonitorAllWorkspaces(_ context.Context, req *dto.MonitorRequest) (*dto.MonitorResult, error) {
	m.calls = append(m.calls, req)
	return &dto.MonitorResult{RunID: "run_1", Status: types.MonitorRunStatusCompleted}, nil
}

type stubUsage struct {
	service.UsageService
}

func routerConfig() *config.Configuration {
	cfg := config.GetDefaultConfig()
	cfg.Auth.Secret = "router-secret"
	cfg.Auth.APIKey.Header = "x-api-key"
	cfg.Auth.APIKey.Keys = map[string]config.APIKeyDetails{
		auth.HashAPIKey("cron-key"): {UserID: "scheduler", IsActive: true},
	}
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestRouter(t *testing.T, monitor *stubMonitor) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := routerConfig()
	log := logger.NewNoopLogger()
	jwtAuth := auth.NewJWTAuth(cfg)

	handlers := Handlers{
		Health:     v1.NewHealthHandler(nil, log),
		Credit:     v1.NewCreditHandler(stubCredit{}, log),
		Usage:      v1.NewUsageHandler(stubUsage{}, log),
		Billing:    v1.NewBillingHandler(stubBilling{}, log),
		Monitor:    v1.NewMonitorHandler(monitor, log),
		CronCredit: cron.NewCreditCronHandler(log, monitor, stubBilling{}),
	}

	token, err := jwtAuth.GenerateToken("user_1", types.GlobalRoleMember, []string{"ws_1"}, time.Hour)
	require.NoError(t, err)

	return NewRouter(handlers, cfg, log, jwtAuth, rbac.NewRBACService()), token
}

func TestRouter(t *testing.T) {
	monitor := &stubMonitor{}
	r, token := newTestRouter(t, monitor)
	bearer := map[string]string{"Authorization": "Bearer " + token}
	apiKey := map[string]string{"x-api-key": "cron-key"}

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		headers    map[string]string
		wantStatus int
		wantBody   string
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{name: "unauthenticated", method: http.MethodGet, path: "/v1/credits/balance?workspace_id=ws_1", wantStatus: http.StatusUnauthorized},
		{
			name:       "balance",
			method:     http.MethodGet,
			path:       "/v1/credits/balance?workspace_id=ws_1",
			headers:    bearer,
			wantStatus: http.StatusOK,
			wantBody:   `"display_balance":"12.50"`,
		},
		{
			name:       "balance of another workspace",
			method:     http.MethodGet,
			path:       "/v1/credits/balance?workspace_id=ws_2",
			headers:    bearer,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "balance without workspace",
			method:     http.MethodGet,
			path:       "/v1/credits/balance",
			headers:    bearer,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed usage event",
			method:     http.MethodPost,
			path:       "/v1/usage",
			body:       `{"event_id":`,
			headers:    bearer,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "existing invoice conflicts",
			method:     http.MethodPost,
			path:       "/v1/billing/monthly",
			body:       `{"year":2025,"month":4,"project_id":"ws_1"}`,
			headers:    bearer,
			wantStatus: http.StatusConflict,
			wantBody:   `"error":"An invoice already exists for this month"`,
		},
		{
			name:       "member cannot run the monitor",
			method:     http.MethodPost,
			path:       "/v1/credit/monitor",
			headers:    bearer,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "member cannot reach cron",
			method:     http.MethodPost,
			path:       "/v1/cron/credit/monitor",
			headers:    bearer,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "cron monitor",
			method:     http.MethodPost,
			path:       "/v1/cron/credit/monitor",
			body:       `{"force_run":true}`,
			headers:    apiKey,
			wantStatus: http.StatusOK,
			wantBody:   `"run_id":"run_1"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}

	require.Len(t, monitor.calls, 1)
	assert.True(t, monitor.calls[0].ForceRun)
}
