package postgres

import (
	"context"

	"github.com/voxagent/billing/internal/domain/provider"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/postgres"
)

const providerColumns = `id, name, type, unit, cost_per_unit, is_active, created_at, updated_at`

type providerRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewProviderRepository(db *postgres.DB, logger *logger.Logger) provider.Repository {
	return &providerRepository{db: db, logger: logger}
}

func (r *providerRepository) Get(ctx context.Context, id string) (*provider.Provider, error) {
	var p provider.Provider
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &p, query, id); err != nil {
		return nil, mapError(err, "Provider", map[string]any{"provider_id": id})
	}
	return &p, nil
}

func (r *providerRepository) List(ctx context.Context, activeOnly bool) ([]*provider.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name`

	var providers []*provider.Provider
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &providers, query); err != nil {
		return nil, mapError(err, "Providers", nil)
	}
	return providers, nil
}
