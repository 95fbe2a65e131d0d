package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/service"
)

type AlertHandler struct {
	alertService service.CreditAlertService
	log          *logger.Logger
}

func NewAlertHandler(alertService service.CreditAlertService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{alertService: alertService, log: log}
}

// @Summary List credit alerts
// @Description Dismissed alerts are hidden unless include_dismissed is set
// @Tags Alerts
// @Produce json
// @Security BearerAuth
// @Param filter query dto.ListAlertsRequest true "Filter"
// @Success 200 {object} dto.ListAlertsResponse
// @Router /credits/alerts [get]
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	var req dto.ListAlertsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}

	resp, err := h.alertService.ListAlerts(c.Request.Context(), callerFrom(c), req.ToFilter())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Update a credit alert
// @Description Marks an alert as read or dismisses it
// @Tags Alerts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Param request body dto.UpdateAlertRequest true "Action"
// @Success 200 {object} credit.Alert
// @Router /credits/alerts/{id} [patch]
func (h *AlertHandler) UpdateAlert(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(requiredParam("id"))
		return
	}

	var req dto.UpdateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}
	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	alert, err := h.alertService.UpdateAlert(c.Request.Context(), callerFrom(c), id, req.Action)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, alert)
}
