package cron

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/service"
	"github.com/voxagent/billing/internal/types"
)

// CreditCronHandler exposes the scheduled jobs. Routes are guarded by the
// service role so only API-key callers reach them.
type CreditCronHandler struct {
	logger  *logger.Logger
	monitor service.CreditMonitorService
	billing service.BillingReconciler
}

func NewCreditCronHandler(logger *logger.Logger, monitor service.CreditMonitorService, billing service.BillingReconciler) *CreditCronHandler {
	return &CreditCronHandler{
		logger:  logger,
		monitor: monitor,
		billing: billing,
	}
}

// MonitorCredits runs one monitor sweep, honoring the cool-down unless force_run is sent
func (h *CreditCronHandler) MonitorCredits(c *gin.Context) {
	h.logger.Infow("starting credit monitor cron job", "time", time.Now().UTC().Format(time.RFC3339))

	var req dto.MonitorRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(err)
			return
		}
	}

	result, err := h.monitor.MonitorAllWorkspaces(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorw("credit monitor cron job failed", "error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed credit monitor cron job",
		"run_id", result.RunID,
		"status", result.Status,
		"workspaces_checked", result.WorkspacesChecked,
		"suspensions", result.Suspensions,
	)
	c.JSON(http.StatusOK, result)
}

// GeneratePreviousMonth bills the calendar month before now for every workspace
func (h *CreditCronHandler) GeneratePreviousMonth(c *gin.Context) {
	now := time.Now().UTC()
	prev := now.AddDate(0, 0, -now.Day())
	req := &dto.GenerateBillingRequest{
		Year:       prev.Year(),
		Month:      int(prev.Month()),
		Regenerate: c.Query("regenerate") == "true",
	}

	h.logger.Infow("starting monthly billing cron job", "year", req.Year, "month", req.Month)

	resp, err := h.billing.GenerateMonthlyBilling(c.Request.Context(), types.SystemCaller(), req)
	if err != nil {
		h.logger.Errorw("monthly billing cron job failed", "year", req.Year, "month", req.Month, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
