package postgres

import (
	"context"

	"github.com/voxagent/billing/internal/domain/credit"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/postgres"
)

type monitoringLogRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewMonitoringLogRepository(db *postgres.DB, logger *logger.Logger) credit.MonitoringLogRepository {
	return &monitoringLogRepository{db: db, logger: logger}
}

func (r *monitoringLogRepository) Create(ctx context.Context, log *credit.MonitoringLog) error {
	query := `
		INSERT INTO credit_monitoring_logs (id, status, forced, workspaces_checked, low_balance_alerts,
			critical_alerts, suspensions, auto_recharges, auto_recharge_failures, errors,
			started_at, completed_at, duration_ms)
		VALUES (:id, :status, :forced, :workspaces_checked, :low_balance_alerts,
			:critical_alerts, :suspensions, :auto_recharges, :auto_recharge_failures, :errors,
			:started_at, :completed_at, :duration_ms)`

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, log); err != nil {
		return mapError(err, "Monitoring log", nil)
	}
	return nil
}

// GetLatest returns the most recent non-skipped run
func (r *monitoringLogRepository) GetLatest(ctx context.Context) (*credit.MonitoringLog, error) {
	query := `
		SELECT id, status, forced, workspaces_checked, low_balance_alerts, critical_alerts,
			suspensions, auto_recharges, auto_recharge_failures, errors, started_at, completed_at, duration_ms
		FROM credit_monitoring_logs
		WHERE status <> 'skipped'
		ORDER BY started_at DESC
		LIMIT 1`

	var log credit.MonitoringLog
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &log, query); err != nil {
		return nil, mapError(err, "Monitoring log", nil)
	}
	return &log, nil
}
