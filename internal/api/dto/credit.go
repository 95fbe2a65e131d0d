package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/domain/credit"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
	"github.com/voxagent/billing/internal/validator"
)

// RechargeRequest adds prepaid credit to a workspace
type RechargeRequest struct {
	WorkspaceID string          `json:"workspace_id" binding:"required" validate:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description,omitempty"`
	// PaymentID references the payment that funded the recharge, if any
	PaymentID string `json:"payment_id,omitempty"`
}

func (r *RechargeRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return validatePositiveAmount(r.Amount, "amount")
}

// DebitRequest charges usage against a workspace balance
type DebitRequest struct {
	WorkspaceID   string          `json:"workspace_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
}

func (r *DebitRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return validatePositiveAmount(r.Amount, "amount")
}

// AdjustBalanceRequest is an admin correction. The amount is signed and may cross zero.
type AdjustBalanceRequest struct {
	AccountID   string          `json:"account_id,omitempty" validate:"required_without=WorkspaceID"`
	WorkspaceID string          `json:"workspace_id,omitempty" validate:"required_without=AccountID"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description" binding:"required" validate:"required"`
}

func (r *AdjustBalanceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Amount.IsZero() {
		return ierr.NewError("adjustment amount must not be zero").
			WithHint("Adjustment amount must not be zero").
			WithReportableDetails(map[string]any{"error_kind": types.ErrorKindInvalidAmount}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// RefundRequest returns credit to a workspace
type RefundRequest struct {
	WorkspaceID string          `json:"workspace_id" binding:"required" validate:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description,omitempty"`
	ReferenceID string          `json:"reference_id,omitempty"`
}

func (r *RefundRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return validatePositiveAmount(r.Amount, "amount")
}

// SuspensionRequest suspends or resumes a workspace account
type SuspensionRequest struct {
	WorkspaceID string `json:"workspace_id" binding:"required" validate:"required"`
	Reason      string `json:"reason,omitempty"`
}

func (r *SuspensionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// LedgerResult is returned by every balance mutation
type LedgerResult struct {
	TransactionID   string          `json:"transaction_id"`
	AccountID       string          `json:"account_id"`
	WorkspaceID     string          `json:"workspace_id"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	IsSuspended     bool            `json:"is_suspended"`
	// Resumed is set when a recharge lifted an automatic suspension
	Resumed bool `json:"resumed,omitempty"`
}

// SuspensionResult reports whether a suspend or unsuspend changed anything
type SuspensionResult struct {
	AccountID   string `json:"account_id"`
	WorkspaceID string `json:"workspace_id"`
	IsSuspended bool   `json:"is_suspended"`
	Changed     bool   `json:"changed"`
}

// CreditBalanceResponse is the balance view of an account
type CreditBalanceResponse struct {
	*credit.Account
	DisplayBalance string `json:"display_balance"`
}

func NewCreditBalanceResponse(acc *credit.Account, places int32) *CreditBalanceResponse {
	return &CreditBalanceResponse{
		Account:        acc,
		DisplayBalance: DisplayAmount(acc.CurrentBalance, places),
	}
}

// ListTransactionsRequest is the query of the transactions endpoint
type ListTransactionsRequest struct {
	WorkspaceID      string                  `form:"workspace_id" binding:"required" validate:"required"`
	TransactionTypes []types.TransactionType `form:"transaction_types"`
	StartTime        *time.Time              `form:"start_time" time_format:"2006-01-02T15:04:05Z07:00"`
	EndTime          *time.Time              `form:"end_time" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit            *int                    `form:"limit"`
	Offset           *int                    `form:"offset"`
}

// ToFilter converts the query into a repository filter
func (r *ListTransactionsRequest) ToFilter() *credit.TransactionFilter {
	filter := credit.NewTransactionFilter()
	filter.WorkspaceID = r.WorkspaceID
	filter.TransactionTypes = r.TransactionTypes
	if r.Limit != nil {
		filter.Limit = r.Limit
	}
	if r.Offset != nil {
		filter.Offset = r.Offset
	}
	if r.StartTime != nil || r.EndTime != nil {
		filter.TimeRangeFilter = &types.TimeRangeFilter{StartTime: r.StartTime, EndTime: r.EndTime}
	}
	return filter
}

type ListTransactionsResponse = types.ListResponse[*credit.Transaction]

// LedgerVerification compares the stored balance with a replay of the ledger
type LedgerVerification struct {
	AccountID        string          `json:"account_id"`
	WorkspaceID      string          `json:"workspace_id"`
	StoredBalance    decimal.Decimal `json:"stored_balance"`
	ComputedBalance  decimal.Decimal `json:"computed_balance"`
	Difference       decimal.Decimal `json:"difference"`
	TransactionCount int             `json:"transaction_count"`
	Consistent       bool            `json:"consistent"`
	// BrokenChainAt is the first row whose balance_before does not match its predecessor
	BrokenChainAt *string `json:"broken_chain_at,omitempty"`
}

// ListAlertsRequest is the query of the alerts endpoint
type ListAlertsRequest struct {
	WorkspaceID      string          `form:"workspace_id" binding:"required" validate:"required"`
	AlertType        types.AlertType `form:"alert_type"`
	IncludeDismissed bool            `form:"include_dismissed"`
	UnreadOnly       bool            `form:"unread_only"`
	Limit            *int            `form:"limit"`
	Offset           *int            `form:"offset"`
}

func (r *ListAlertsRequest) ToFilter() *credit.AlertFilter {
	filter := credit.NewAlertFilter()
	filter.WorkspaceID = r.WorkspaceID
	filter.AlertType = r.AlertType
	filter.IncludeDismissed = r.IncludeDismissed
	filter.UnreadOnly = r.UnreadOnly
	if r.Limit != nil {
		filter.Limit = r.Limit
	}
	if r.Offset != nil {
		filter.Offset = r.Offset
	}
	return filter
}

type ListAlertsResponse = types.ListResponse[*credit.Alert]

// UpdateAlertRequest applies a caller action to an alert
type UpdateAlertRequest struct {
	Action types.AlertAction `json:"action" binding:"required"`
}

func (r *UpdateAlertRequest) Validate() error {
	return r.Action.Validate()
}

// CreateAlertRequest writes an alert for an account, used by internal flows
type CreateAlertRequest struct {
	WorkspaceID string              `json:"workspace_id" validate:"required"`
	AlertType   types.AlertType     `json:"alert_type" validate:"required"`
	Severity    types.AlertSeverity `json:"severity" validate:"required"`
	Title       string              `json:"title" validate:"required"`
	Message     string              `json:"message"`
	Threshold   *decimal.Decimal    `json:"threshold,omitempty"`
	// Dedupe skips creation when an undismissed alert of the same type exists
	// within the configured alert period
	Dedupe bool `json:"dedupe"`
}

func (r *CreateAlertRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.AlertType.Validate()
}

// MonitorRequest triggers a credit monitor sweep
type MonitorRequest struct {
	ForceRun     bool     `json:"force_run"`
	WorkspaceIDs []string `json:"workspace_ids,omitempty"`
}

// MonitorResult summarizes one sweep
type MonitorResult struct {
	RunID                string                 `json:"run_id,omitempty"`
	Status               types.MonitorRunStatus `json:"status"`
	Skipped              bool                   `json:"skipped"`
	LastRunAt            *time.Time             `json:"last_run_at,omitempty"`
	NextRunAfter         *time.Time             `json:"next_run_after,omitempty"`
	WorkspacesChecked    int                    `json:"workspaces_checked"`
	LowBalanceAlerts     int                    `json:"low_balance_alerts"`
	CriticalAlerts       int                    `json:"critical_alerts"`
	Suspensions          int                    `json:"suspensions"`
	AutoRecharges        int                    `json:"auto_recharges"`
	AutoRechargeFailures int                    `json:"auto_recharge_failures"`
	Errors               int                    `json:"errors"`
	DurationMs           int64                  `json:"duration_ms"`
}

// NewMonitorResult copies the counters of a finished run
func NewMonitorResult(log *credit.MonitoringLog) *MonitorResult {
	return &MonitorResult{
		RunID:                log.ID,
		Status:               log.Status,
		LastRunAt:            &log.StartedAt,
		WorkspacesChecked:    log.WorkspacesChecked,
		LowBalanceAlerts:     log.LowBalanceAlerts,
		CriticalAlerts:       log.CriticalAlerts,
		Suspensions:          log.Suspensions,
		AutoRecharges:        log.AutoRecharges,
		AutoRechargeFailures: log.AutoRechargeFailure,
		Errors:               log.Errors,
		DurationMs:           log.DurationMs,
	}
}
