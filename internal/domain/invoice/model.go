package invoice

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/types"
)

// Invoice is the monthly billing header for one workspace, or for all
// workspaces when WorkspaceID is empty. Regeneration supersedes the current
// version instead of mutating it.
type Invoice struct {
	ID               string              `db:"id" json:"id"`
	InvoiceNumber    string              `db:"invoice_number" json:"invoice_number"`
	WorkspaceID      string              `db:"workspace_id" json:"workspace_id,omitempty"`
	Year             int                 `db:"year" json:"year"`
	Month            int                 `db:"month" json:"month"`
	Currency         string              `db:"currency" json:"currency"`
	TotalAmount      decimal.Decimal     `db:"total_amount" json:"total_amount"`
	LedgerDebitTotal decimal.NullDecimal `db:"ledger_debit_total" json:"ledger_debit_total"`
	Status           types.InvoiceStatus `db:"status" json:"status"`
	Version          int                 `db:"version" json:"version"`
	GeneratedAt      time.Time           `db:"generated_at" json:"generated_at"`
	GeneratedBy      string              `db:"generated_by" json:"generated_by"`
	SupersededAt     *time.Time          `db:"superseded_at" json:"superseded_at,omitempty"`

	LineItems []*LineItem `db:"-" json:"line_items"`
}

// LineItem is the prorated charge of one service for the month
type LineItem struct {
	ID           string                                       `db:"id" json:"id"`
	InvoiceID    string                                       `db:"invoice_id" json:"invoice_id"`
	WorkspaceID  string                                       `db:"workspace_id" json:"workspace_id"`
	ServiceType  types.ServiceType                            `db:"service_type" json:"service_type"`
	ServiceID    string                                       `db:"service_id" json:"service_id"`
	ServiceName  string                                       `db:"service_name" json:"service_name"`
	PlatformMode types.PlatformMode                           `db:"platform_mode" json:"platform_mode"`
	Amount       decimal.Decimal                              `db:"amount" json:"amount"`
	Prorata      decimal.Decimal                              `db:"prorata" json:"prorata"`
	ActiveDays   int                                          `db:"active_days" json:"active_days"`
	DaysInMonth  int                                          `db:"days_in_month" json:"days_in_month"`
	Breakdown    types.JSONColumn[map[string]decimal.Decimal] `db:"cost_breakdown" json:"cost_breakdown"`
	CreatedAt    time.Time                                    `db:"created_at" json:"created_at"`
}

// NewInvoice builds the next version of an invoice for the scope
func NewInvoice(workspaceID string, year, month int, currency, generatedBy string, version int) *Invoice {
	return &Invoice{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		InvoiceNumber: types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_INVOICE),
		WorkspaceID:   workspaceID,
		Year:          year,
		Month:         month,
		Currency:      currency,
		TotalAmount:   decimal.Zero,
		Status:        types.InvoiceStatusGenerated,
		Version:       version,
		GeneratedAt:   time.Now().UTC(),
		GeneratedBy:   generatedBy,
	}
}

// AddLineItem attaches a line item and accumulates the total
func (inv *Invoice) AddLineItem(item *LineItem) {
	item.InvoiceID = inv.ID
	inv.LineItems = append(inv.LineItems, item)
	inv.TotalAmount = inv.TotalAmount.Add(item.Amount)
}

// Filter scopes invoice listing
type Filter struct {
	*types.QueryFilter
	Year            int    `json:"year,omitempty" form:"year"`
	Month           int    `json:"month,omitempty" form:"month"`
	WorkspaceID     string `json:"project_id,omitempty" form:"project_id"`
	IncludeHistoric bool   `json:"include_superseded,omitempty" form:"include_superseded"`
	// WorkspaceIDs restricts results for callers without global visibility
	WorkspaceIDs []string `json:"-" form:"-"`
}
