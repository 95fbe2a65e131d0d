package billable

import (
	"context"
)

// Repository reads billable services and maintains their cost overrides
type Repository interface {
	Create(ctx context.Context, svc *Service) error
	Get(ctx context.Context, ref Ref) (*Service, error)
	// ListActiveInPeriod returns services created before filter.ActiveTo and
	// not deactivated before filter.ActiveFrom
	ListActiveInPeriod(ctx context.Context, filter *ServiceFilter) ([]*Service, error)
	UpdateCostOverrides(ctx context.Context, ref Ref, overrides CostOverrides) error
}
