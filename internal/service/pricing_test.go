package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/voxagent/billing/internal/domain/billable"
	"github.com/voxagent/billing/internal/domain/costconfig"
	"github.com/voxagent/billing/internal/domain/provider"
	"github.com/voxagent/billing/internal/domain/settings"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

type PricingServiceSuite struct {
	ServiceTestSuite
	svc *billable.Service
}

func TestPricingService(t *testing.T) {
	suite.Run(t, new(PricingServiceSuite))
}

func (s *PricingServiceSuite) SetupTest() {
	s.ServiceTestSuite.SetupTest()
	s.svc = s.CreateService("ws_1", types.ServiceTypeAgent, types.PlatformModePAG, s.GetNow().AddDate(0, -1, 0))

	s.GetStores().ProviderRepo.Add(&provider.Provider{
		ID:          "prov_deepgram",
		Name:        "Deepgram",
		Type:        types.ResourceSTT,
		Unit:        types.PriceUnitSecond,
		CostPerUnit: decimal.RequireFromString("0.0002"),
		IsActive:    true,
	})
	s.GetStores().ProviderRepo.Add(&provider.Provider{
		ID:          "prov_retired",
		Name:        "Retired",
		Type:        types.ResourceSTT,
		Unit:        types.PriceUnitMinute,
		CostPerUnit: decimal.RequireFromString("0.01"),
	})
	s.GetStores().ProviderRepo.Add(&provider.Provider{
		ID:          "prov_voice",
		Name:        "Voice",
		Type:        types.ResourceTTS,
		Unit:        types.PriceUnitCharacter,
		CostPerUnit: decimal.RequireFromString("0.00001"),
		IsActive:    true,
	})
}

func (s *PricingServiceSuite) setOverrides(o billable.CostOverrides) {
	s.Require().NoError(s.GetStores().BillableRepo.UpdateCostOverrides(s.GetContext(), s.svc.Ref(), o))
}

func (s *PricingServiceSuite) addFixedConfig(overage map[types.Resource]costconfig.RateSpec) {
	s.Require().NoError(s.GetStores().CostConfigRepo.Create(s.GetContext(), &costconfig.CostConfiguration{
		ID:            s.GetUUID(),
		WorkspaceID:   s.svc.WorkspaceID,
		ServiceType:   s.svc.ServiceType,
		ServiceID:     lo.ToPtr(s.svc.ID),
		CostMode:      types.CostModeFixed,
		EffectiveFrom: s.GetNow().AddDate(0, 0, -7),
		IsActive:      true,
		Fixed: types.NewJSONColumn(&costconfig.FixedCostConfig{
			PeriodCost:   decimal.NewFromInt(100),
			OverageRates: overage,
		}),
		CreatedAt: s.GetNow(),
		UpdatedAt: s.GetNow(),
	}))
}

func (s *PricingServiceSuite) TestResolutionFallsThroughEachLevel() {
	ctx := s.GetContext()
	ref := s.svc.Ref()

	price, err := s.pricing.ResolvePrice(ctx, ref, types.ResourceSTT)
	s.NoError(err)
	s.Equal(types.PriceSourceDefault, price.Source)
	s.True(decimal.RequireFromString("0.02").Equal(price.UnitPrice))
	s.Equal(types.PriceUnitMinute, price.Unit)

	s.SetSetting(settings.KeyPricingRatesPAG, settings.PAGRates{
		types.ResourceSTT: {Rate: decimal.RequireFromString("0.015"), Unit: types.PriceUnitMinute},
	})
	price, err = s.pricing.ResolvePrice(ctx, ref, types.ResourceSTT)
	s.NoError(err)
	s.Equal(types.PriceSourceGlobal, price.Source)
	s.True(decimal.RequireFromString("0.015").Equal(price.UnitPrice))

	s.addFixedConfig(map[types.Resource]costconfig.RateSpec{
		types.ResourceSTT: {Rate: decimal.RequireFromString("0.0003"), Unit: types.PriceUnitSecond},
	})
	price, err = s.pricing.ResolvePrice(ctx, ref, types.ResourceSTT)
	s.NoError(err)
	s.Equal(types.PriceSourceCostConfiguration, price.Source)
	s.Equal(types.PriceUnitSecond, price.Unit)

	s.setOverrides(billable.CostOverrides{BuiltinSTTCost: lo.ToPtr(decimal.RequireFromString("0.012"))})
	price, err = s.pricing.ResolvePrice(ctx, ref, types.ResourceSTT)
	s.NoError(err)
	s.Equal(types.PriceSourceOverride, price.Source)
	s.True(decimal.RequireFromString("0.012").Equal(price.UnitPrice))
	s.Equal(types.PriceUnitMinute, price.Unit, "an override without a unit keeps the default unit")

	s.setOverrides(billable.CostOverrides{
		BuiltinSTTCost:      lo.ToPtr(decimal.RequireFromString("0.012")),
		ExternalSTTProvider: lo.ToPtr("prov_deepgram"),
	})
	price, err = s.pricing.ResolvePrice(ctx, ref, types.ResourceSTT)
	s.NoError(err)
	s.Equal(types.PriceSourceProvider, price.Source)
	s.Equal("prov_deepgram", price.ProviderID)
	s.Equal(types.PriceUnitSecond, price.Unit)
	s.True(decimal.RequireFromString("0.0002").Equal(price.UnitPrice))
}

func (s *PricingServiceSuite) TestStorageReadsS3Rates() {
	price, err := s.pricing.ResolvePrice(s.GetContext(), s.svc.Ref(), types.ResourceStorage)
	s.NoError(err)
	s.Equal(types.PriceSourceDefault, price.Source)
	s.True(decimal.RequireFromString("0.023").Equal(price.UnitPrice))

	// pag rates never price storage
	s.SetSetting(settings.KeyPricingRatesPAG, settings.PAGRates{
		types.ResourceSTT: {Rate: decimal.RequireFromString("0.015"), Unit: types.PriceUnitMinute},
	})
	s.SetSetting(settings.KeyS3Rates, settings.S3Rates{StorageCostPerGB: lo.ToPtr(decimal.RequireFromString("0.03"))})

	price, err = s.pricing.ResolvePrice(s.GetContext(), s.svc.Ref(), types.ResourceStorage)
	s.NoError(err)
	s.Equal(types.PriceSourceGlobal, price.Source)
	s.Equal(types.PriceUnitGB, price.Unit)
	s.True(decimal.RequireFromString("0.03").Equal(price.UnitPrice))
}

func (s *PricingServiceSuite) TestProviderMisconfiguration() {
	tests := []struct {
		name       string
		overrides  billable.CostOverrides
		resource   types.Resource
		assertFunc func(error) bool
	}{
		{
			name:       "inactive provider",
			overrides:  billable.CostOverrides{ExternalSTTProvider: lo.ToPtr("prov_retired")},
			resource:   types.ResourceSTT,
			assertFunc: ierr.IsConfiguration,
		},
		{
			name:       "provider of another resource",
			overrides:  billable.CostOverrides{ExternalSTTProvider: lo.ToPtr("prov_voice")},
			resource:   types.ResourceSTT,
			assertFunc: ierr.IsConfiguration,
		},
		{
			name:       "unknown provider",
			overrides:  billable.CostOverrides{ExternalLLMProvider: lo.ToPtr("prov_missing")},
			resource:   types.ResourceLLM,
			assertFunc: ierr.IsConfiguration,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.setOverrides(tt.overrides)
			_, err := s.pricing.ResolvePrice(s.GetContext(), s.svc.Ref(), tt.resource)
			s.Error(err)
			s.True(tt.assertFunc(err), "unexpected error: %v", err)
		})
	}
}

func (s *PricingServiceSuite) TestUnknownServiceIsNotFound() {
	_, err := s.pricing.ResolvePrice(s.GetContext(), billable.Ref{Type: types.ServiceTypeAgent, ID: "svc_missing"}, types.ResourceSTT)
	s.True(ierr.IsNotFound(err))

	_, err = s.pricing.ResolvePrice(s.GetContext(), billable.Ref{Type: types.ServiceTypeAgent}, types.ResourceSTT)
	s.True(ierr.IsValidation(err))
}

func (s *PricingServiceSuite) TestDedicatedRateOrder() {
	ctx := s.GetContext()
	text := s.CreateService("ws_1", types.ServiceTypeAgent, types.PlatformModeDedicated, s.GetNow())
	text.AgentType = lo.ToPtr(types.AgentTypeText)

	rate, err := s.pricing.DedicatedRateFor(ctx, text)
	s.NoError(err)
	s.Equal("text_agent_monthly", rate.Key)
	s.Equal(types.PriceSourceDefault, rate.Source)
	s.True(decimal.NewFromInt(150).Equal(rate.Amount))

	s.SetSetting(settings.KeySubscriptionCosts, settings.MonthlyRates{"voice_agent_monthly": decimal.NewFromInt(250)})
	rate, err = s.pricing.ResolveDedicatedRate(ctx, s.svc.Ref())
	s.NoError(err)
	s.Equal(types.PriceSourceGlobal, rate.Source)
	s.True(decimal.NewFromInt(250).Equal(rate.Amount))

	s.SetSetting(settings.KeyPricingRatesDedicated, settings.MonthlyRates{"voice_agent_monthly": decimal.NewFromInt(275)})
	rate, err = s.pricing.ResolveDedicatedRate(ctx, s.svc.Ref())
	s.NoError(err)
	s.True(decimal.NewFromInt(275).Equal(rate.Amount), "dedicated rates win over subscription costs")

	s.setOverrides(billable.CostOverrides{DedicatedMonthlyCost: lo.ToPtr(decimal.NewFromInt(199))})
	rate, err = s.pricing.ResolveDedicatedRate(ctx, s.svc.Ref())
	s.NoError(err)
	s.Equal(types.PriceSourceOverride, rate.Source)
	s.True(decimal.NewFromInt(199).Equal(rate.Amount))
}

func (s *PricingServiceSuite) TestServiceLevelConfigurationShadowsWorkspace() {
	ctx := s.GetContext()
	now := s.GetNow()

	workspaceWide := &costconfig.CostConfiguration{
		ID:            "cfg_ws",
		WorkspaceID:   s.svc.WorkspaceID,
		ServiceType:   s.svc.ServiceType,
		CostMode:      types.CostModePAG,
		Priority:      100,
		EffectiveFrom: now.Add(-time.Hour),
		IsActive:      true,
		CreatedAt:     now,
	}
	serviceLow := &costconfig.CostConfiguration{
		ID:            "cfg_svc_low",
		WorkspaceID:   s.svc.WorkspaceID,
		ServiceType:   s.svc.ServiceType,
		ServiceID:     lo.ToPtr(s.svc.ID),
		CostMode:      types.CostModeDedicated,
		Priority:      1,
		EffectiveFrom: now.Add(-time.Hour),
		IsActive:      true,
		CreatedAt:     now.Add(-time.Minute),
	}
	serviceNewer := &costconfig.CostConfiguration{
		ID:            "cfg_svc_new",
		WorkspaceID:   s.svc.WorkspaceID,
		ServiceType:   s.svc.ServiceType,
		ServiceID:     lo.ToPtr(s.svc.ID),
		CostMode:      types.CostModeHybrid,
		Priority:      1,
		EffectiveFrom: now.Add(-time.Hour),
		IsActive:      true,
		CreatedAt:     now,
	}
	expired := &costconfig.CostConfiguration{
		ID:             "cfg_svc_expired",
		WorkspaceID:    s.svc.WorkspaceID,
		ServiceType:    s.svc.ServiceType,
		ServiceID:      lo.ToPtr(s.svc.ID),
		CostMode:       types.CostModePAG,
		Priority:       50,
		EffectiveFrom:  now.Add(-48 * time.Hour),
		EffectiveUntil: lo.ToPtr(now.Add(-24 * time.Hour)),
		IsActive:       true,
		CreatedAt:      now,
	}
	for _, c := range []*costconfig.CostConfiguration{workspaceWide, serviceLow, serviceNewer, expired} {
		s.Require().NoError(s.GetStores().CostConfigRepo.Create(ctx, c))
	}

	active, err := s.pricing.ActiveConfiguration(ctx, s.svc, now)
	s.NoError(err)
	s.Require().NotNil(active)
	s.Equal("cfg_svc_new", active.ID)

	other := s.CreateService("ws_1", types.ServiceTypeAgent, types.PlatformModePAG, now)
	active, err = s.pricing.ActiveConfiguration(ctx, other, now)
	s.NoError(err)
	s.Require().NotNil(active)
	s.Equal("cfg_ws", active.ID)

	kb := s.CreateService("ws_1", types.ServiceTypeKnowledgeBase, types.PlatformModePAG, now)
	active, err = s.pricing.ActiveConfiguration(ctx, kb, now)
	s.NoError(err)
	s.Nil(active)
}
