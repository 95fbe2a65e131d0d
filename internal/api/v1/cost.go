package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/service"
)

type CostHandler struct {
	costService service.CostService
	log         *logger.Logger
}

func NewCostHandler(costService service.CostService, log *logger.Logger) *CostHandler {
	return &CostHandler{costService: costService, log: log}
}

// @Summary Calculate cost
// @Description Prices a usage window without touching the ledger.
// @Description calculation_type=advanced uses the mode of the active cost configuration.
// @Tags Cost
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CalculateCostRequest true "Calculation request"
// @Success 200 {object} dto.CostBreakdown
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /cost-calculation [post]
func (h *CostHandler) CalculateCost(c *gin.Context) {
	var req dto.CalculateCostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}

	if err := callerFrom(c).RequireWorkspace(req.WorkspaceID); err != nil {
		c.Error(err)
		return
	}

	resp, err := h.costService.CalculateCost(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
