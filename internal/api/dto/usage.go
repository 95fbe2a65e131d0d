package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/domain/billable"
	"github.com/voxagent/billing/internal/domain/usage"
	"github.com/voxagent/billing/internal/types"
	"github.com/voxagent/billing/internal/validator"
)

// RecordUsageRequest is one usage event, priced and debited on ingestion.
// EventID makes retries of the same event safe.
type RecordUsageRequest struct {
	EventID         string            `json:"event_id" binding:"required" validate:"required"`
	WorkspaceID     string            `json:"workspace_id" binding:"required" validate:"required"`
	ServiceType     types.ServiceType `json:"service_type" binding:"required" validate:"required"`
	ServiceID       string            `json:"service_id" binding:"required" validate:"required"`
	CalculationType string            `json:"calculation_type,omitempty"`
	Usage           usage.Metrics     `json:"usage"`
	OccurredAt      *time.Time        `json:"occurred_at,omitempty"`
}

func (r *RecordUsageRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.ServiceType.Validate(); err != nil {
		return err
	}
	return r.Usage.Validate()
}

func (r *RecordUsageRequest) Ref() billable.Ref {
	return billable.Ref{Type: r.ServiceType, ID: r.ServiceID}
}

// ToCalculateCostRequest prices the event at the time it occurred
func (r *RecordUsageRequest) ToCalculateCostRequest(at time.Time) *CalculateCostRequest {
	return &CalculateCostRequest{
		CalculationType: r.CalculationType,
		WorkspaceID:     r.WorkspaceID,
		ServiceType:     r.ServiceType,
		ServiceID:       r.ServiceID,
		Usage:           r.Usage,
		At:              &at,
	}
}

// RecordUsageResponse reports the priced event and whether it was charged
type RecordUsageResponse struct {
	RecordID      string           `json:"record_id"`
	EventID       string           `json:"event_id"`
	TotalCost     decimal.Decimal  `json:"total_cost"`
	DisplayTotal  string           `json:"display_total"`
	Billed        bool             `json:"billed"`
	Duplicate     bool             `json:"duplicate"`
	TransactionID *string          `json:"transaction_id,omitempty"`
	Balance       *decimal.Decimal `json:"balance,omitempty"`
	Suspended     bool             `json:"suspended"`
	Costs         *CostBreakdown   `json:"costs,omitempty"`
}

func NewRecordUsageResponse(rec *usage.Record, places int32) *RecordUsageResponse {
	return &RecordUsageResponse{
		RecordID:      rec.ID,
		EventID:       rec.EventID,
		TotalCost:     rec.TotalCost,
		DisplayTotal:  DisplayAmount(rec.TotalCost, places),
		Billed:        rec.Billed,
		TransactionID: rec.TransactionID,
	}
}
