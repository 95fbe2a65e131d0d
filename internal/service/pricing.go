package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/domain/billable"
	"github.com/voxagent/billing/internal/domain/costconfig"
	"github.com/voxagent/billing/internal/domain/settings"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// Hard defaults are the last level of the resolution chain
var defaultRates = map[types.Resource]settings.RateEntry{
	types.ResourceSTT:       {Rate: decimal.RequireFromString("0.02"), Unit: types.PriceUnitMinute},
	types.ResourceTTS:       {Rate: decimal.RequireFromString("0.000015"), Unit: types.PriceUnitCharacter},
	types.ResourceLLM:       {Rate: decimal.RequireFromString("0.00002"), Unit: types.PriceUnitToken},
	types.ResourceEmbedding: {Rate: decimal.RequireFromString("0.0001"), Unit: types.PriceUnitToken},
	types.ResourceStorage:   {Rate: decimal.RequireFromString("0.023"), Unit: types.PriceUnitGB},
}

var defaultMonthlyRates = settings.MonthlyRates{
	"voice_agent_monthly":    decimal.NewFromInt(300),
	"text_agent_monthly":     decimal.NewFromInt(150),
	"knowledge_base_monthly": decimal.NewFromInt(50),
	"workflow_monthly":       decimal.NewFromInt(100),
}

// ResolvedPrice is a unit price together with the level that produced it
type ResolvedPrice struct {
	Resource   types.Resource    `json:"resource"`
	UnitPrice  decimal.Decimal   `json:"unit_price"`
	Unit       types.PriceUnit   `json:"unit"`
	Source     types.PriceSource `json:"source"`
	ProviderID string            `json:"provider_id,omitempty"`
}

// DedicatedRate is the flat monthly fee of a service
type DedicatedRate struct {
	Key    string            `json:"key"`
	Amount decimal.Decimal   `json:"amount"`
	Source types.PriceSource `json:"source"`
}

// PricingService resolves unit prices through overrides, configuration, settings and defaults
type PricingService interface {
	ResolvePrice(ctx context.Context, ref billable.Ref, resource types.Resource) (*ResolvedPrice, error)
	ResolveDedicatedRate(ctx context.Context, ref billable.Ref) (*DedicatedRate, error)

	// ResolvePriceFor resolves against an already loaded service and its active configuration
	ResolvePriceFor(ctx context.Context, svc *billable.Service, active *costconfig.CostConfiguration, resource types.Resource) (*ResolvedPrice, error)
	DedicatedRateFor(ctx context.Context, svc *billable.Service) (*DedicatedRate, error)
	// ActiveConfiguration returns the configuration in force at a point in time, nil when none is
	ActiveConfiguration(ctx context.Context, svc *billable.Service, at time.Time) (*costconfig.CostConfiguration, error)
}

type pricingService struct {
	ServiceParams
	settings  SettingsService
	providers ProviderService
}

func NewPricingService(params ServiceParams, settingsService SettingsService, providerService ProviderService) PricingService {
	return &pricingService{
		ServiceParams: params,
		settings:      settingsService,
		providers:     providerService,
	}
}

func (s *pricingService) ResolvePrice(ctx context.Context, ref billable.Ref, resource types.Resource) (*ResolvedPrice, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if err := resource.Validate(); err != nil {
		return nil, err
	}

	svc, err := s.BillableRepo.Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	active, err := s.ActiveConfiguration(ctx, svc, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return s.ResolvePriceFor(ctx, svc, active, resource)
}

func (s *pricingService) ResolvePriceFor(ctx context.Context, svc *billable.Service, active *costconfig.CostConfiguration, resource types.Resource) (*ResolvedPrice, error) {
	override := svc.Overrides().ForResource(resource)

	if override.ProviderID != nil {
		p, err := s.providers.GetProviderFor(ctx, *override.ProviderID, resource)
		if err != nil {
			return nil, err
		}
		return &ResolvedPrice{
			Resource:   resource,
			UnitPrice:  p.CostPerUnit,
			Unit:       p.Unit,
			Source:     types.PriceSourceProvider,
			ProviderID: p.ID,
		}, nil
	}

	if override.Cost != nil {
		unit := defaultRates[resource].Unit
		if override.Unit != nil {
			unit = *override.Unit
		}
		// overrides are validated on write, but rows may predate the allow-list
		if err := types.ValidateUnitForResource(resource, unit); err != nil {
			return nil, err
		}
		return &ResolvedPrice{
			Resource:  resource,
			UnitPrice: *override.Cost,
			Unit:      unit,
			Source:    types.PriceSourceOverride,
		}, nil
	}

	if active != nil && active.CostMode == types.CostModeFixed && active.Fixed.Data != nil {
		if spec, ok := active.Fixed.Data.OverageRates[resource]; ok {
			if err := types.ValidateUnitForResource(resource, spec.Unit); err != nil {
				return nil, err
			}
			return &ResolvedPrice{
				Resource:  resource,
				UnitPrice: spec.Rate,
				Unit:      spec.Unit,
				Source:    types.PriceSourceCostConfiguration,
			}, nil
		}
	}

	global, err := s.globalPrice(ctx, resource)
	if err != nil {
		return nil, err
	}
	if global != nil {
		return global, nil
	}

	def := defaultRates[resource]
	return &ResolvedPrice{
		Resource:  resource,
		UnitPrice: def.Rate,
		Unit:      def.Unit,
		Source:    types.PriceSourceDefault,
	}, nil
}

// globalPrice returns nil when settings carry no entry for the resource
func (s *pricingService) globalPrice(ctx context.Context, resource types.Resource) (*ResolvedPrice, error) {
	if resource == types.ResourceStorage {
		rates, err := s.settings.GetS3Rates(ctx)
		if err != nil {
			return nil, err
		}
		if rates.StorageCostPerGB == nil {
			return nil, nil
		}
		return &ResolvedPrice{
			Resource:  resource,
			UnitPrice: *rates.StorageCostPerGB,
			Unit:      types.PriceUnitGB,
			Source:    types.PriceSourceGlobal,
		}, nil
	}

	rates, err := s.settings.GetPAGRates(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := rates[resource]
	if !ok {
		return nil, nil
	}
	return &ResolvedPrice{
		Resource:  resource,
		UnitPrice: entry.Rate,
		Unit:      entry.Unit,
		Source:    types.PriceSourceGlobal,
	}, nil
}

func (s *pricingService) ResolveDedicatedRate(ctx context.Context, ref billable.Ref) (*DedicatedRate, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	svc, err := s.BillableRepo.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.DedicatedRateFor(ctx, svc)
}

func (s *pricingService) DedicatedRateFor(ctx context.Context, svc *billable.Service) (*DedicatedRate, error) {
	key := svc.DedicatedRateKey()

	if cost := svc.Overrides().DedicatedMonthlyCost; cost != nil {
		return &DedicatedRate{Key: key, Amount: *cost, Source: types.PriceSourceOverride}, nil
	}

	for _, settingKey := range []string{settings.KeyPricingRatesDedicated, settings.KeySubscriptionCosts} {
		rates, err := s.settings.GetMonthlyRates(ctx, settingKey)
		if err != nil {
			return nil, err
		}
		if amount, ok := rates[key]; ok {
			return &DedicatedRate{Key: key, Amount: amount, Source: types.PriceSourceGlobal}, nil
		}
	}

	amount, ok := defaultMonthlyRates[key]
	if !ok {
		return nil, ierr.NewErrorf("no default monthly rate for %s", key).
			WithHint("No monthly rate is configured for this service").
			WithReportableDetails(map[string]any{"key": key}).
			Mark(ierr.ErrConfiguration)
	}
	return &DedicatedRate{Key: key, Amount: amount, Source: types.PriceSourceDefault}, nil
}

func (s *pricingService) ActiveConfiguration(ctx context.Context, svc *billable.Service, at time.Time) (*costconfig.CostConfiguration, error) {
	configs, err := s.CostConfigRepo.ListForService(ctx, svc.WorkspaceID, svc.ServiceType, svc.ID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Cost configurations are temporarily unavailable").
			Mark(ierr.ErrExternalDependency)
	}

	// service-level rows shadow workspace-level ones
	serviceLevel := make([]*costconfig.CostConfiguration, 0, len(configs))
	workspaceLevel := make([]*costconfig.CostConfiguration, 0, len(configs))
	for _, c := range configs {
		if c.ServiceID != nil && *c.ServiceID == svc.ID {
			serviceLevel = append(serviceLevel, c)
		} else if c.ServiceID == nil {
			workspaceLevel = append(workspaceLevel, c)
		}
	}
	if active := costconfig.SelectActive(serviceLevel, at); active != nil {
		return active, nil
	}
	return costconfig.SelectActive(workspaceLevel, at), nil
}
