package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/voxagent/billing/internal/domain/billable"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/postgres"
	"github.com/voxagent/billing/internal/types"
)

const serviceColumns = `id, workspace_id, service_type, name, agent_type, platform_mode, cost_overrides,
	is_active, created_at, updated_at, deactivated_at`

type billableRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewBillableRepository(db *postgres.DB, logger *logger.Logger) billable.Repository {
	return &billableRepository{db: db, logger: logger}
}

func (r *billableRepository) Create(ctx context.Context, svc *billable.Service) error {
	query := `
		INSERT INTO billable_services (` + serviceColumns + `)
		VALUES (:id, :workspace_id, :service_type, :name, :agent_type, :platform_mode, :cost_overrides,
			:is_active, :created_at, :updated_at, :deactivated_at)`

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, svc); err != nil {
		return mapError(err, "Service", map[string]any{"service_id": svc.ID})
	}
	return nil
}

func (r *billableRepository) Get(ctx context.Context, ref billable.Ref) (*billable.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM billable_services WHERE id = $1 AND service_type = $2`

	var svc billable.Service
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &svc, query, ref.ID, ref.Type); err != nil {
		return nil, mapError(err, "Service", map[string]any{"service_id": ref.ID, "service_type": ref.Type})
	}
	return &svc, nil
}

func (r *billableRepository) ListActiveInPeriod(ctx context.Context, filter *billable.ServiceFilter) ([]*billable.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM billable_services
		WHERE created_at < $1 AND (deactivated_at IS NULL OR deactivated_at >= $2)`
	args := []interface{}{filter.ActiveTo, filter.ActiveFrom}

	if filter.WorkspaceID != "" {
		args = append(args, filter.WorkspaceID)
		query += ` AND workspace_id = $` + itoa(len(args))
	}
	if len(filter.ServiceTypes) > 0 {
		args = append(args, pq.Array(lo.Map(filter.ServiceTypes, func(t types.ServiceType, _ int) string {
			return string(t)
		})))
		query += ` AND service_type = ANY($` + itoa(len(args)) + `)`
	}
	query += ` ORDER BY workspace_id, created_at, id`

	var services []*billable.Service
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &services, query, args...); err != nil {
		return nil, mapError(err, "Services", map[string]any{"workspace_id": filter.WorkspaceID})
	}
	return services, nil
}

func (r *billableRepository) UpdateCostOverrides(ctx context.Context, ref billable.Ref, overrides billable.CostOverrides) error {
	query := `UPDATE billable_services SET cost_overrides = $1, updated_at = $2 WHERE id = $3 AND service_type = $4`

	res, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		types.NewJSONColumn(overrides), time.Now().UTC(), ref.ID, ref.Type)
	if err != nil {
		return mapError(err, "Service", map[string]any{"service_id": ref.ID})
	}
	return requireAffected(res, "Service", map[string]any{"service_id": ref.ID})
}
