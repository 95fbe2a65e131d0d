package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/domain/billable"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/service"
	"github.com/voxagent/billing/internal/types"
)

type CostAdminHandler struct {
	costAdminService service.CostAdminService
	log              *logger.Logger
}

func NewCostAdminHandler(costAdminService service.CostAdminService, log *logger.Logger) *CostAdminHandler {
	return &CostAdminHandler{costAdminService: costAdminService, log: log}
}

// serviceRef reads /services/:type/:id
func serviceRef(c *gin.Context) (billable.Ref, error) {
	ref := billable.Ref{Type: types.ServiceType(c.Param("type")), ID: c.Param("id")}
	if ref.ID == "" {
		return ref, requiredParam("service id")
	}
	if err := ref.Type.Validate(); err != nil {
		return ref, err
	}
	return ref, nil
}

// @Summary Get cost overrides
// @Tags Cost Administration
// @Produce json
// @Security BearerAuth
// @Param type path string true "Service type" Enums(agent, knowledge_base, workflow)
// @Param id path string true "Service ID"
// @Success 200 {object} dto.CostOverridesResponse
// @Router /services/{type}/{id}/cost-overrides [get]
func (h *CostAdminHandler) GetCostOverrides(c *gin.Context) {
	ref, err := serviceRef(c)
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.costAdminService.GetCostOverrides(c.Request.Context(), callerFrom(c), ref)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Replace cost overrides
// @Description The body replaces the stored overrides. Unknown keys are rejected.
// @Tags Cost Administration
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param type path string true "Service type"
// @Param id path string true "Service ID"
// @Param request body billable.CostOverrides true "Overrides"
// @Success 200 {object} dto.CostOverridesResponse
// @Router /services/{type}/{id}/cost-overrides [put]
func (h *CostAdminHandler) SetCostOverrides(c *gin.Context) {
	ref, err := serviceRef(c)
	if err != nil {
		c.Error(err)
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Could not read request body").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.costAdminService.SetCostOverrides(c.Request.Context(), callerFrom(c), ref, raw)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Reset cost overrides
// @Tags Cost Administration
// @Produce json
// @Security BearerAuth
// @Param type path string true "Service type"
// @Param id path string true "Service ID"
// @Success 200 {object} dto.CostOverridesResponse
// @Router /services/{type}/{id}/cost-overrides [delete]
func (h *CostAdminHandler) ResetCostOverrides(c *gin.Context) {
	ref, err := serviceRef(c)
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.costAdminService.ResetCostOverrides(c.Request.Context(), callerFrom(c), ref)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Create a cost configuration
// @Tags Cost Administration
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateCostConfigurationRequest true "Configuration"
// @Success 201 {object} costconfig.CostConfiguration
// @Router /cost-configurations [post]
func (h *CostAdminHandler) CreateCostConfiguration(c *gin.Context) {
	var req dto.CreateCostConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}

	cfg, err := h.costAdminService.CreateCostConfiguration(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		h.log.Errorw("failed to create cost configuration", "workspace_id", req.WorkspaceID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

// @Summary List cost configurations
// @Tags Cost Administration
// @Produce json
// @Security BearerAuth
// @Param filter query dto.ListCostConfigurationsRequest true "Filter"
// @Success 200 {object} dto.ListCostConfigurationsResponse
// @Router /cost-configurations [get]
func (h *CostAdminHandler) ListCostConfigurations(c *gin.Context) {
	var req dto.ListCostConfigurationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}

	resp, err := h.costAdminService.ListCostConfigurations(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Deactivate a cost configuration
// @Tags Cost Administration
// @Produce json
// @Security BearerAuth
// @Param id path string true "Configuration ID"
// @Success 200 {object} dto.SuccessResponse
// @Router /cost-configurations/{id} [delete]
func (h *CostAdminHandler) DeactivateCostConfiguration(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(requiredParam("id"))
		return
	}

	if err := h.costAdminService.DeactivateCostConfiguration(c.Request.Context(), callerFrom(c), id); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "cost configuration deactivated"})
}
