package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/service"
	"github.com/voxagent/billing/internal/types"
)

type CreditHandler struct {
	creditService service.CreditService
	log           *logger.Logger
}

func NewCreditHandler(creditService service.CreditService, log *logger.Logger) *CreditHandler {
	return &CreditHandler{
		creditService: creditService,
		log:           log,
	}
}

// @Summary Get credit balance
// @Description Get the credit account of a workspace
// @Tags Credits
// @Produce json
// @Security BearerAuth
// @Param workspace_id query string true "Workspace ID"
// @Success 200 {object} dto.CreditBalanceResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 403 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /credits/balance [get]
func (h *CreditHandler) GetBalance(c *gin.Context) {
	workspaceID := c.Query("workspace_id")
	if workspaceID == "" {
		workspaceID = types.GetWorkspaceID(c.Request.Context())
	}
	if workspaceID == "" {
		c.Error(requiredParam("workspace_id"))
		return
	}

	resp, err := h.creditService.GetBalance(c.Request.Context(), callerFrom(c), workspaceID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Recharge credits
// @Description Add credits to a workspace after a completed payment
// @Tags Credits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.RechargeRequest true "Recharge request"
// @Success 200 {object} dto.LedgerResult
// @Failure 400 {object} ierr.ErrorResponse
// @Router /credits/recharge [post]
func (h *CreditHandler) Recharge(c *gin.Context) {
	var req dto.RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}

	resp, err := h.creditService.Recharge(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		h.log.Errorw("failed to recharge credits", "workspace_id", req.WorkspaceID, "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Adjust balance
// @Description Apply a signed manual adjustment. Requires credit management.
// @Tags Credits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.AdjustBalanceRequest true "Adjustment request"
// @Success 200 {object} dto.LedgerResult
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 403 {object} ierr.ErrorResponse
// @Router /credits/adjust [post]
func (h *CreditHandler) AdjustBalance(c *gin.Context) {
	var req dto.AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}

	resp, err := h.creditService.AdjustBalance(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Refund credits
// @Tags Credits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.RefundRequest true "Refund request"
// @Success 200 {object} dto.LedgerResult
// @Router /credits/refund [post]
func (h *CreditHandler) Refund(c *gin.Context) {
	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}

	resp, err := h.creditService.Refund(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Suspend a workspace
// @Tags Credits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.SuspensionRequest true "Suspension request"
// @Success 200 {object} dto.SuspensionResult
// @Router /credits/suspend [post]
func (h *CreditHandler) Suspend(c *gin.Context) {
	var req dto.SuspensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}
	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	resp, err := h.creditService.Suspend(c.Request.Context(), callerFrom(c), req.WorkspaceID, req.Reason, types.AlertTypeServiceSuspended)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Resume a suspended workspace
// @Tags Credits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.SuspensionRequest true "Suspension request"
// @Success 200 {object} dto.SuspensionResult
// @Router /credits/unsuspend [post]
func (h *CreditHandler) Unsuspend(c *gin.Context) {
	var req dto.SuspensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}
	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	resp, err := h.creditService.Unsuspend(c.Request.Context(), callerFrom(c), req.WorkspaceID, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List credit transactions
// @Description Newest first, paginated with limit and offset
// @Tags Credits
// @Produce json
// @Security BearerAuth
// @Param filter query dto.ListTransactionsRequest true "Filter"
// @Success 200 {object} dto.ListTransactionsResponse
// @Router /credits/transactions [get]
func (h *CreditHandler) ListTransactions(c *gin.Context) {
	var req dto.ListTransactionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(invalidRequest(err))
		return
	}

	resp, err := h.creditService.ListTransactions(c.Request.Context(), callerFrom(c), req.ToFilter())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Verify ledger
// @Description Replays the ledger of a workspace and compares it with the stored balance
// @Tags Credits
// @Produce json
// @Security BearerAuth
// @Param workspace_id query string true "Workspace ID"
// @Success 200 {object} dto.LedgerVerification
// @Router /credits/verify [get]
func (h *CreditHandler) VerifyLedger(c *gin.Context) {
	workspaceID := c.Query("workspace_id")
	if workspaceID == "" {
		c.Error(requiredParam("workspace_id"))
		return
	}

	resp, err := h.creditService.VerifyLedger(c.Request.Context(), callerFrom(c), workspaceID)
	if err != nil {
		c.Error(err)
		return
	}

	if !resp.Consistent {
		h.log.Warnw("ledger drift detected",
			"workspace_id", workspaceID,
			"difference", resp.Difference.String(),
		)
	}

	c.JSON(http.StatusOK, resp)
}

// Deactivate closes the credit account of a workspace
func (h *CreditHandler) Deactivate(c *gin.Context) {
	workspaceID := c.Param("workspace_id")
	if workspaceID == "" {
		c.Error(requiredParam("workspace_id"))
		return
	}

	if err := h.creditService.Deactivate(c.Request.Context(), callerFrom(c), workspaceID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "credit account deactivated"})
}
