package costconfig

import (
	"context"

	"github.com/voxagent/billing/internal/types"
)

type Repository interface {
	Create(ctx context.Context, cfg *CostConfiguration) error
	Get(ctx context.Context, id string) (*CostConfiguration, error)
	// ListForService returns active rows for the service plus workspace-level rows
	// of the same service type
	ListForService(ctx context.Context, workspaceID string, serviceType types.ServiceType, serviceID string) ([]*CostConfiguration, error)
	List(ctx context.Context, filter *Filter) ([]*CostConfiguration, error)
	Deactivate(ctx context.Context, id string) error
}
