package service

import (
	"context"

	"github.com/voxagent/billing/internal/cache"
	"github.com/voxagent/billing/internal/domain/provider"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// ProviderService looks up external vendors referenced by cost overrides
type ProviderService interface {
	// GetProviderFor returns a provider that may price the resource
	GetProviderFor(ctx context.Context, id string, resource types.Resource) (*provider.Provider, error)
	ListProviders(ctx context.Context, activeOnly bool) ([]*provider.Provider, error)
}

type providerService struct {
	ServiceParams
}

func NewProviderService(params ServiceParams) ProviderService {
	return &providerService{ServiceParams: params}
}

func (s *providerService) GetProviderFor(ctx context.Context, id string, resource types.Resource) (*provider.Provider, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.ValidateFor(resource); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *providerService) get(ctx context.Context, id string) (*provider.Provider, error) {
	cacheKey := cache.GenerateKey(cache.PrefixProvider, id)
	if p, ok := cache.Lookup[*provider.Provider](ctx, s.Cache, cacheKey); ok {
		return p, nil
	}

	p, err := s.ProviderRepo.Get(ctx, id)
	if err != nil {
		// a dangling reference is a pricing defect, not a missing resource of the caller
		if ierr.IsNotFound(err) {
			return nil, ierr.NewErrorf("provider %s referenced by cost overrides does not exist", id).
				WithHintf("Provider %s is not registered", id).
				WithReportableDetails(map[string]any{"provider_id": id}).
				Mark(ierr.ErrConfiguration)
		}
		return nil, ierr.WithError(err).
			WithHint("Provider registry is temporarily unavailable").
			WithReportableDetails(map[string]any{"provider_id": id}).
			Mark(ierr.ErrExternalDependency)
	}

	s.Cache.Set(ctx, cacheKey, p, s.Config.Cache.TTL)
	return p, nil
}

func (s *providerService) ListProviders(ctx context.Context, activeOnly bool) ([]*provider.Provider, error) {
	providers, err := s.ProviderRepo.List(ctx, activeOnly)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Provider registry is temporarily unavailable").
			Mark(ierr.ErrExternalDependency)
	}
	return providers, nil
}
