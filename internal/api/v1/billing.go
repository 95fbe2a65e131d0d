package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/service"
)

type BillingHandler struct {
	billing service.BillingReconciler
	log     *logger.Logger
}

func NewBillingHandler(billing service.BillingReconciler, log *logger.Logger) *BillingHandler {
	return &BillingHandler{billing: billing, log: log}
}

// @Summary Generate monthly billing
// @Description Prorates every service active in the month. An existing invoice is only
// @Description replaced when regenerate is set; the old one is kept as superseded.
// @Tags Billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.GenerateBillingRequest true "Billing month"
// @Success 201 {object} dto.InvoiceResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /billing/monthly [post]
func (h *BillingHandler) GenerateMonthlyBilling(c *gin.Context) {
	var req dto.GenerateBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}

	resp, err := h.billing.GenerateMonthlyBilling(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary List monthly billing
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Param filter query dto.ListMonthlyBillingRequest false "Filter"
// @Success 200 {object} dto.ListInvoicesResponse
// @Router /billing/monthly [get]
func (h *BillingHandler) ListMonthlyBilling(c *gin.Context) {
	var req dto.ListMonthlyBillingRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}

	resp, err := h.billing.ListMonthlyBilling(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
