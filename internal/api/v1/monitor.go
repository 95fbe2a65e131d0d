package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/service"
)

type MonitorHandler struct {
	monitor service.CreditMonitorService
	log     *logger.Logger
}

func NewMonitorHandler(monitor service.CreditMonitorService, log *logger.Logger) *MonitorHandler {
	return &MonitorHandler{monitor: monitor, log: log}
}

// @Summary Run the credit monitor
// @Description Sweeps account balances. Runs inside the cool-down are skipped unless force_run is set.
// @Tags Credits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.MonitorRequest false "Sweep options"
// @Success 200 {object} dto.MonitorResult
// @Router /credit/monitor [post]
func (h *MonitorHandler) RunMonitor(c *gin.Context) {
	if err := callerFrom(c).RequireCreditManagement(); err != nil {
		c.Error(err)
		return
	}

	var req dto.MonitorRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(invalidRequest(err))
			return
		}
	}

	resp, err := h.monitor.MonitorAllWorkspaces(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
