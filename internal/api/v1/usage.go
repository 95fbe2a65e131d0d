package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/service"
)

type UsageHandler struct {
	usageService service.UsageService
	log          *logger.Logger
}

func NewUsageHandler(usageService service.UsageService, log *logger.Logger) *UsageHandler {
	return &UsageHandler{usageService: usageService, log: log}
}

// @Summary Record usage
// @Description Prices one usage event and debits the workspace balance.
// @Description Replaying an event_id returns the original record.
// @Tags Usage
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.RecordUsageRequest true "Usage event"
// @Success 201 {object} dto.RecordUsageResponse
// @Success 200 {object} dto.RecordUsageResponse "duplicate event"
// @Failure 400 {object} ierr.ErrorResponse
// @Router /usage [post]
func (h *UsageHandler) RecordUsage(c *gin.Context) {
	var req dto.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}

	resp, err := h.usageService.RecordUsage(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		h.log.Errorw("failed to record usage", "event_id", req.EventID, "error", err)
		c.Error(err)
		return
	}

	if resp.Duplicate {
		c.JSON(http.StatusOK, resp)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
