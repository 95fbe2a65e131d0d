package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// Provider is an external STT, TTS or LLM vendor with its own unit price
type Provider struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Type        types.Resource  `db:"type" json:"type"`
	Unit        types.PriceUnit `db:"unit" json:"unit"`
	CostPerUnit decimal.Decimal `db:"cost_per_unit" json:"cost_per_unit"`
	IsActive    bool            `db:"is_active" json:"is_active"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// ValidateFor checks that the provider may price the resource
func (p *Provider) ValidateFor(r types.Resource) error {
	if !p.IsActive {
		return ierr.NewErrorf("provider %s is inactive", p.ID).
			WithHintf("Provider %s is not active", p.Name).
			WithReportableDetails(map[string]any{"provider_id": p.ID}).
			Mark(ierr.ErrConfiguration)
	}
	if p.Type != r {
		return ierr.NewErrorf("provider %s prices %s, not %s", p.ID, p.Type, r).
			WithHintf("Provider %s cannot price %s", p.Name, r).
			WithReportableDetails(map[string]any{"provider_id": p.ID, "resource": r}).
			Mark(ierr.ErrConfiguration)
	}
	if p.CostPerUnit.IsNegative() {
		return ierr.NewErrorf("provider %s has a negative cost", p.ID).
			WithHint("Provider cost must not be negative").
			Mark(ierr.ErrConfiguration)
	}
	return types.ValidateUnitForResource(r, p.Unit)
}

type Repository interface {
	Get(ctx context.Context, id string) (*Provider, error)
	List(ctx context.Context, activeOnly bool) ([]*Provider, error)
}
