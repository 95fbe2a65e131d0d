package postgres

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/domain/usage"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/postgres"
	"github.com/voxagent/billing/internal/types"
)

const usageColumns = `id, event_id, workspace_id, service_type, service_id, cost_mode, metrics,
	cost_breakdown, total_cost, billed, transaction_id, occurred_at, created_at`

type usageRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewUsageRepository(db *postgres.DB, logger *logger.Logger) usage.Repository {
	return &usageRepository{db: db, logger: logger}
}

func (r *usageRepository) Create(ctx context.Context, rec *usage.Record) error {
	query := `
		INSERT INTO usage_records (` + usageColumns + `)
		VALUES (:id, :event_id, :workspace_id, :service_type, :service_id, :cost_mode, :metrics,
			:cost_breakdown, :total_cost, :billed, :transaction_id, :occurred_at, :created_at)`

	r.logger.Debugw("creating usage record",
		"event_id", rec.EventID,
		"workspace_id", rec.WorkspaceID,
		"total_cost", rec.TotalCost,
	)

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, rec); err != nil {
		return mapError(err, "Usage record", map[string]any{"event_id": rec.EventID})
	}
	return nil
}

func (r *usageRepository) GetByEventID(ctx context.Context, eventID string) (*usage.Record, error) {
	var rec usage.Record
	query := `SELECT ` + usageColumns + ` FROM usage_records WHERE event_id = $1`
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &rec, query, eventID); err != nil {
		return nil, mapError(err, "Usage record", map[string]any{"event_id": eventID})
	}
	return &rec, nil
}

func (r *usageRepository) SumTotalCost(ctx context.Context, workspaceID, serviceID string, from, to time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(total_cost), 0) FROM usage_records
		WHERE workspace_id = $1 AND service_id = $2 AND occurred_at >= $3 AND occurred_at < $4`

	var sum decimal.Decimal
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &sum, query, workspaceID, serviceID, from, to); err != nil {
		return decimal.Zero, mapError(err, "Usage records", map[string]any{"service_id": serviceID})
	}
	return sum, nil
}

func (r *usageRepository) GetAllowanceConsumed(ctx context.Context, serviceID string, res types.Resource, periodStart time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(consumed), 0) FROM usage_allowance_counters
		WHERE service_id = $1 AND resource = $2 AND period_start = $3`

	var consumed decimal.Decimal
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &consumed, query, serviceID, res, periodStart); err != nil {
		return decimal.Zero, mapError(err, "Allowance counter", map[string]any{"service_id": serviceID})
	}
	return consumed, nil
}

func (r *usageRepository) AddAllowanceConsumed(ctx context.Context, c *usage.AllowanceCounter) error {
	query := `
		INSERT INTO usage_allowance_counters (workspace_id, service_id, resource, period_start, consumed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (service_id, resource, period_start) DO UPDATE
		SET consumed = usage_allowance_counters.consumed + EXCLUDED.consumed`

	if _, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		c.WorkspaceID, c.ServiceID, c.Resource, c.PeriodStart, c.Consumed); err != nil {
		return mapError(err, "Allowance counter", map[string]any{"service_id": c.ServiceID})
	}
	return nil
}
