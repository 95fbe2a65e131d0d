package dto

import (
	"github.com/voxagent/billing/internal/domain/invoice"
	"github.com/voxagent/billing/internal/types"
	"github.com/voxagent/billing/internal/validator"
)

// GenerateBillingRequest runs the monthly reconciler for one month.
// An empty ProjectID covers every workspace.
type GenerateBillingRequest struct {
	Year       int    `json:"year" binding:"required" validate:"required,min=2000,max=9999"`
	Month      int    `json:"month" binding:"required" validate:"required,min=1,max=12"`
	ProjectID  string `json:"project_id,omitempty"`
	Regenerate bool   `json:"regenerate,omitempty"`
}

func (r *GenerateBillingRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ListMonthlyBillingRequest is the query of the monthly billing endpoint
type ListMonthlyBillingRequest struct {
	Year              int    `form:"year" validate:"omitempty,min=2000,max=9999"`
	Month             int    `form:"month" validate:"omitempty,min=1,max=12"`
	ProjectID         string `form:"project_id"`
	IncludeSuperseded bool   `form:"include_superseded"`
	Limit             *int   `form:"limit"`
	Offset            *int   `form:"offset"`
}

func (r *ListMonthlyBillingRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *ListMonthlyBillingRequest) ToFilter() *invoice.Filter {
	filter := &invoice.Filter{
		QueryFilter:     types.NewDefaultQueryFilter(),
		Year:            r.Year,
		Month:           r.Month,
		WorkspaceID:     r.ProjectID,
		IncludeHistoric: r.IncludeSuperseded,
	}
	if r.Limit != nil {
		filter.Limit = r.Limit
	}
	if r.Offset != nil {
		filter.Offset = r.Offset
	}
	return filter
}

// InvoiceResponse is a monthly invoice with its line items
type InvoiceResponse struct {
	*invoice.Invoice
	DisplayTotal string `json:"display_total"`
}

func NewInvoiceResponse(inv *invoice.Invoice, places int32) *InvoiceResponse {
	return &InvoiceResponse{
		Invoice:      inv,
		DisplayTotal: DisplayAmount(inv.TotalAmount, places),
	}
}

type ListInvoicesResponse = types.ListResponse[*InvoiceResponse]
