package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/voxagent/billing/internal/domain/invoice"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/postgres"
	"github.com/voxagent/billing/internal/types"
)

const invoiceColumns = `id, invoice_number, workspace_id, year, month, currency, total_amount,
	ledger_debit_total, status, version, generated_at, generated_by, superseded_at`

const lineItemColumns = `id, invoice_id, workspace_id, service_type, service_id, service_name,
	platform_mode, amount, prorata, active_days, days_in_month, cost_breakdown, created_at`

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger}
}

func (r *invoiceRepository) GetCurrent(ctx context.Context, workspaceID string, year, month int) (*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM monthly_invoices
		WHERE workspace_id = $1 AND year = $2 AND month = $3 AND status = $4`

	var inv invoice.Invoice
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &inv, query, workspaceID, year, month, types.InvoiceStatusGenerated); err != nil {
		return nil, mapError(err, "Invoice", map[string]any{"workspace_id": workspaceID, "year": year, "month": month})
	}
	if err := r.loadLineItems(ctx, []*invoice.Invoice{&inv}); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Create writes the header and line items. Callers wrap it in a transaction
// so a failed line item leaves no partial invoice behind.
func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		INSERT INTO monthly_invoices (` + invoiceColumns + `)
		VALUES (:id, :invoice_number, :workspace_id, :year, :month, :currency, :total_amount,
			:ledger_debit_total, :status, :version, :generated_at, :generated_by, :superseded_at)`

	r.logger.Debugw("creating invoice",
		"invoice_id", inv.ID,
		"workspace_id", inv.WorkspaceID,
		"version", inv.Version,
		"line_items", len(inv.LineItems),
	)

	q := r.db.GetQuerier(ctx)
	if _, err := q.NamedExecContext(ctx, query, inv); err != nil {
		return mapError(err, "Invoice", map[string]any{"workspace_id": inv.WorkspaceID, "year": inv.Year, "month": inv.Month})
	}

	itemQuery := `
		INSERT INTO monthly_invoice_line_items (` + lineItemColumns + `)
		VALUES (:id, :invoice_id, :workspace_id, :service_type, :service_id, :service_name,
			:platform_mode, :amount, :prorata, :active_days, :days_in_month, :cost_breakdown, :created_at)`
	for _, item := range inv.LineItems {
		if _, err := q.NamedExecContext(ctx, itemQuery, item); err != nil {
			return mapError(err, "Invoice line item", map[string]any{"service_id": item.ServiceID})
		}
	}
	return nil
}

func (r *invoiceRepository) MarkSuperseded(ctx context.Context, id string) error {
	query := `UPDATE monthly_invoices SET status = $1, superseded_at = $2 WHERE id = $3 AND status = $4`

	res, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		types.InvoiceStatusSuperseded, time.Now().UTC(), id, types.InvoiceStatusGenerated)
	if err != nil {
		return mapError(err, "Invoice", map[string]any{"invoice_id": id})
	}
	return requireAffected(res, "Invoice", map[string]any{"invoice_id": id})
}

func (r *invoiceRepository) List(ctx context.Context, filter *invoice.Filter) ([]*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM monthly_invoices WHERE 1=1`
	args := []interface{}{}

	if filter.Year > 0 {
		args = append(args, filter.Year)
		query += ` AND year = $` + itoa(len(args))
	}
	if filter.Month > 0 {
		args = append(args, filter.Month)
		query += ` AND month = $` + itoa(len(args))
	}
	if filter.WorkspaceID != "" {
		args = append(args, filter.WorkspaceID)
		query += ` AND workspace_id = $` + itoa(len(args))
	}
	if filter.WorkspaceIDs != nil {
		args = append(args, pq.Array(filter.WorkspaceIDs))
		query += ` AND workspace_id = ANY($` + itoa(len(args)) + `)`
	}
	if !filter.IncludeHistoric {
		args = append(args, types.InvoiceStatusGenerated)
		query += ` AND status = $` + itoa(len(args))
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	query, args = paginate(query, args, "generated_at", filter.GetOrder(), filter.GetLimit(), filter.GetOffset())

	var invoices []*invoice.Invoice
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, mapError(err, "Invoices", nil)
	}
	if err := r.loadLineItems(ctx, invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *invoiceRepository) loadLineItems(ctx context.Context, invoices []*invoice.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}

	ids := lo.Map(invoices, func(inv *invoice.Invoice, _ int) string { return inv.ID })
	query := `SELECT ` + lineItemColumns + ` FROM monthly_invoice_line_items
		WHERE invoice_id = ANY($1) ORDER BY service_type, service_id`

	var items []*invoice.LineItem
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &items, query, pq.Array(ids)); err != nil {
		return mapError(err, "Invoice line items", nil)
	}

	byInvoice := lo.GroupBy(items, func(item *invoice.LineItem) string { return item.InvoiceID })
	for _, inv := range invoices {
		inv.LineItems = byInvoice[inv.ID]
	}
	return nil
}
