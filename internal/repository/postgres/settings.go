package postgres

import (
	"context"

	"github.com/voxagent/billing/internal/domain/settings"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/postgres"
)

type settingsRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSettingsRepository(db *postgres.DB, logger *logger.Logger) settings.Repository {
	return &settingsRepository{db: db, logger: logger}
}

func (r *settingsRepository) Get(ctx context.Context, key string) (*settings.Setting, error) {
	query := `SELECT key, value, updated_by, updated_at FROM settings_global WHERE key = $1`

	var s settings.Setting
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &s, query, key); err != nil {
		return nil, mapError(err, "Setting", map[string]any{"key": key})
	}
	return &s, nil
}

func (r *settingsRepository) Upsert(ctx context.Context, s *settings.Setting) error {
	query := `
		INSERT INTO settings_global (key, value, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, s.Key, []byte(s.Value), s.UpdatedBy, s.UpdatedAt); err != nil {
		return mapError(err, "Setting", map[string]any{"key": s.Key})
	}
	return nil
}
