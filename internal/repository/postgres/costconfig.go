package postgres

import (
	"context"
	"time"

	"github.com/voxagent/billing/internal/domain/costconfig"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/postgres"
	"github.com/voxagent/billing/internal/types"
)

const costConfigColumns = `id, workspace_id, service_type, service_id, cost_mode, priority, effective_from,
	effective_until, is_active, injection_config, fixed_cost_config, dynamic_cost_config, hybrid_config,
	usage_limits, cost_caps, created_by, created_at, updated_at`

type costConfigRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewCostConfigRepository(db *postgres.DB, logger *logger.Logger) costconfig.Repository {
	return &costConfigRepository{db: db, logger: logger}
}

func (r *costConfigRepository) Create(ctx context.Context, cfg *costconfig.CostConfiguration) error {
	query := `
		INSERT INTO cost_configurations (` + costConfigColumns + `)
		VALUES (:id, :workspace_id, :service_type, :service_id, :cost_mode, :priority, :effective_from,
			:effective_until, :is_active, :injection_config, :fixed_cost_config, :dynamic_cost_config, :hybrid_config,
			:usage_limits, :cost_caps, :created_by, :created_at, :updated_at)`

	r.logger.Debugw("creating cost configuration",
		"config_id", cfg.ID,
		"workspace_id", cfg.WorkspaceID,
		"cost_mode", cfg.CostMode,
	)

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, cfg); err != nil {
		return mapError(err, "Cost configuration", map[string]any{"workspace_id": cfg.WorkspaceID})
	}
	return nil
}

func (r *costConfigRepository) Get(ctx context.Context, id string) (*costconfig.CostConfiguration, error) {
	var cfg costconfig.CostConfiguration
	query := `SELECT ` + costConfigColumns + ` FROM cost_configurations WHERE id = $1`
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &cfg, query, id); err != nil {
		return nil, mapError(err, "Cost configuration", map[string]any{"config_id": id})
	}
	return &cfg, nil
}

func (r *costConfigRepository) ListForService(ctx context.Context, workspaceID string, serviceType types.ServiceType, serviceID string) ([]*costconfig.CostConfiguration, error) {
	query := `SELECT ` + costConfigColumns + ` FROM cost_configurations
		WHERE workspace_id = $1 AND service_type = $2 AND is_active = true
		AND (service_id = $3 OR service_id IS NULL)`

	var configs []*costconfig.CostConfiguration
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &configs, query, workspaceID, serviceType, serviceID); err != nil {
		return nil, mapError(err, "Cost configurations", map[string]any{"service_id": serviceID})
	}
	return configs, nil
}

func (r *costConfigRepository) List(ctx context.Context, filter *costconfig.Filter) ([]*costconfig.CostConfiguration, error) {
	query := `SELECT ` + costConfigColumns + ` FROM cost_configurations WHERE workspace_id = $1`
	args := []interface{}{filter.WorkspaceID}

	if filter.ServiceType != "" {
		args = append(args, filter.ServiceType)
		query += ` AND service_type = $` + itoa(len(args))
	}
	if filter.ServiceID != "" {
		args = append(args, filter.ServiceID)
		query += ` AND service_id = $` + itoa(len(args))
	}
	if filter.ActiveOnly {
		query += ` AND is_active = true`
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	query, args = paginate(query, args, "created_at", filter.GetOrder(), filter.GetLimit(), filter.GetOffset())

	var configs []*costconfig.CostConfiguration
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &configs, query, args...); err != nil {
		return nil, mapError(err, "Cost configurations", map[string]any{"workspace_id": filter.WorkspaceID})
	}
	return configs, nil
}

func (r *costConfigRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE cost_configurations SET is_active = false, updated_at = $1 WHERE id = $2`

	res, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return mapError(err, "Cost configuration", map[string]any{"config_id": id})
	}
	return requireAffected(res, "Cost configuration", map[string]any{"config_id": id})
}
