package postgres

import (
	"context"
	"time"

	"github.com/voxagent/billing/internal/domain/credit"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/postgres"
	"github.com/voxagent/billing/internal/types"
)

const alertColumns = `id, account_id, workspace_id, alert_type, severity, title, message, balance,
	threshold, is_read, is_dismissed, read_at, dismissed_at, created_at`

type alertRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewAlertRepository(db *postgres.DB, logger *logger.Logger) credit.AlertRepository {
	return &alertRepository{db: db, logger: logger}
}

func (r *alertRepository) Create(ctx context.Context, alert *credit.Alert) error {
	query := `
		INSERT INTO credit_alerts (` + alertColumns + `)
		VALUES (:id, :account_id, :workspace_id, :alert_type, :severity, :title, :message, :balance,
			:threshold, :is_read, :is_dismissed, :read_at, :dismissed_at, :created_at)`

	r.logger.Debugw("creating credit alert",
		"alert_id", alert.ID,
		"workspace_id", alert.WorkspaceID,
		"alert_type", alert.AlertType,
	)

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, alert); err != nil {
		return mapError(err, "Credit alert", map[string]any{"workspace_id": alert.WorkspaceID})
	}
	return nil
}

func (r *alertRepository) Get(ctx context.Context, id string) (*credit.Alert, error) {
	var alert credit.Alert
	query := `SELECT ` + alertColumns + ` FROM credit_alerts WHERE id = $1`
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &alert, query, id); err != nil {
		return nil, mapError(err, "Credit alert", map[string]any{"alert_id": id})
	}
	return &alert, nil
}

func (r *alertRepository) where(filter *credit.AlertFilter) (string, []interface{}) {
	where := ` WHERE 1=1`
	args := []interface{}{}

	if filter.WorkspaceID != "" {
		args = append(args, filter.WorkspaceID)
		where += ` AND workspace_id = $` + itoa(len(args))
	}
	if filter.AlertType != "" {
		args = append(args, filter.AlertType)
		where += ` AND alert_type = $` + itoa(len(args))
	}
	if !filter.IncludeDismissed {
		where += ` AND is_dismissed = false`
	}
	if filter.UnreadOnly {
		where += ` AND is_read = false`
	}
	return where, args
}

func (r *alertRepository) List(ctx context.Context, filter *credit.AlertFilter) ([]*credit.Alert, error) {
	where, args := r.where(filter)
	query, args := paginate(`SELECT `+alertColumns+` FROM credit_alerts`+where, args,
		"created_at", filter.GetOrder(), filter.GetLimit(), filter.GetOffset())

	var alerts []*credit.Alert
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, mapError(err, "Credit alerts", map[string]any{"workspace_id": filter.WorkspaceID})
	}
	return alerts, nil
}

func (r *alertRepository) Count(ctx context.Context, filter *credit.AlertFilter) (int, error) {
	where, args := r.where(filter)

	var count int
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &count, `SELECT COUNT(*) FROM credit_alerts`+where, args...); err != nil {
		return 0, mapError(err, "Credit alerts", map[string]any{"workspace_id": filter.WorkspaceID})
	}
	return count, nil
}

func (r *alertRepository) Update(ctx context.Context, alert *credit.Alert) error {
	query := `
		UPDATE credit_alerts
		SET is_read = $1, is_dismissed = $2, read_at = $3, dismissed_at = $4
		WHERE id = $5`

	res, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		alert.IsRead, alert.IsDismissed, alert.ReadAt, alert.DismissedAt, alert.ID)
	if err != nil {
		return mapError(err, "Credit alert", map[string]any{"alert_id": alert.ID})
	}
	return requireAffected(res, "Credit alert", map[string]any{"alert_id": alert.ID})
}

func (r *alertRepository) HasUndismissedSince(ctx context.Context, workspaceID string, alertType types.AlertType, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM credit_alerts
			WHERE workspace_id = $1 AND alert_type = $2 AND is_dismissed = false AND created_at >= $3
		)`

	var exists bool
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &exists, query, workspaceID, alertType, since); err != nil {
		return false, mapError(err, "Credit alerts", map[string]any{"workspace_id": workspaceID})
	}
	return exists, nil
}
