package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/domain/billable"
	"github.com/voxagent/billing/internal/domain/costconfig"
	"github.com/voxagent/billing/internal/domain/usage"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

type CostServiceSuite struct {
	ServiceTestSuite
	svc *billable.Service
}

func TestCostService(t *testing.T) {
	suite.Run(t, new(CostServiceSuite))
}

func (s *CostServiceSuite) SetupTest() {
	s.ServiceTestSuite.SetupTest()
	s.svc = s.CreateService("ws_1", types.ServiceTypeAgent, types.PlatformModePAG,
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
}

func dec(v string) *decimal.Decimal {
	return lo.ToPtr(decimal.RequireFromString(v))
}

func (s *CostServiceSuite) request(mode string, m usage.Metrics) *dto.CalculateCostRequest {
	return &dto.CalculateCostRequest{
		CalculationType: mode,
		WorkspaceID:     s.svc.WorkspaceID,
		ServiceType:     s.svc.ServiceType,
		ServiceID:       s.svc.ID,
		Usage:           m,
	}
}

// addConfig stores a service-level configuration effective since an hour ago
func (s *CostServiceSuite) addConfig(cfg *costconfig.CostConfiguration) {
	cfg.ID = s.GetUUID()
	cfg.WorkspaceID = s.svc.WorkspaceID
	cfg.ServiceType = s.svc.ServiceType
	cfg.ServiceID = lo.ToPtr(s.svc.ID)
	cfg.EffectiveFrom = s.GetNow().Add(-time.Hour)
	cfg.IsActive = true
	cfg.CreatedAt = s.GetNow()
	cfg.UpdatedAt = s.GetNow()
	s.Require().NoError(s.GetStores().CostConfigRepo.Create(s.GetContext(), cfg))
}

func (s *CostServiceSuite) TestPayAsYouGoUsesDefaults() {
	result, err := s.cost.CalculateCost(s.GetContext(), s.request("pag", usage.Metrics{
		STTSeconds:    dec("120"),
		TTSCharacters: dec("1000"),
		LLMTokens:     dec("5000"),
	}))
	s.NoError(err)
	s.Equal(types.CostModePAG, result.Mode)
	s.True(dec("0.04").Equal(result.Costs.STTCost), "2 minutes at 0.02: %s", result.Costs.STTCost)
	s.True(dec("0.015").Equal(result.Costs.TTSCost))
	s.True(dec("0.1").Equal(result.Costs.LLMCost))
	s.True(dec("0.155").Equal(result.Costs.TotalCost))
	s.Len(result.Breakdown, 3)
	s.Nil(result.ConfigID)
}

func (s *CostServiceSuite) TestAdvancedFallsBackToPayAsYouGo() {
	result, err := s.cost.CalculateCost(s.GetContext(), s.request(dto.CalculationTypeAdvanced, usage.Metrics{
		EmbeddingTokens: dec("1000"),
	}))
	s.NoError(err)
	s.Equal(types.CostModePAG, result.Mode)
	s.True(dec("0.1").Equal(result.Costs.EmbeddingCost))
}

func (s *CostServiceSuite) TestDynamicTiers() {
	s.addConfig(&costconfig.CostConfiguration{
		CostMode: types.CostModeDynamic,
		Dynamic: types.NewJSONColumn(&costconfig.DynamicCostConfig{
			Resource: types.ResourceLLM,
			Unit:     types.PriceUnitToken,
			Tiers: []costconfig.Tier{
				{UpTo: dec("1000"), Rate: decimal.RequireFromString("0.01")},
				{Rate: decimal.RequireFromString("0.005")},
			},
		}),
	})

	result, err := s.cost.CalculateCost(s.GetContext(), s.request(dto.CalculationTypeAdvanced, usage.Metrics{
		LLMTokens: dec("1500"),
	}))
	s.NoError(err)
	s.Equal(types.CostModeDynamic, result.Mode)
	s.NotNil(result.ConfigID)
	s.True(dec("12.5").Equal(result.Costs.TotalCost), "got %s", result.Costs.TotalCost)
	s.True(dec("12.5").Equal(result.Costs.LLMCost))
}

func TestTieredCost(t *testing.T) {
	tiers := []costconfig.Tier{
		{UpTo: dec("1000"), Rate: decimal.RequireFromString("0.01")},
		{UpTo: dec("5000"), Rate: decimal.RequireFromString("0.005")},
		{Rate: decimal.RequireFromString("0.001")},
	}

	tests := []struct {
		name  string
		qty   string
		tiers []costconfig.Tier
		want  string
	}{
		{name: "zero", qty: "0", tiers: tiers, want: "0"},
		{name: "inside first tier", qty: "500", tiers: tiers, want: "5"},
		{name: "first boundary", qty: "1000", tiers: tiers, want: "10"},
		{name: "second tier", qty: "1500", tiers: tiers, want: "12.5"},
		{name: "unbounded tail", qty: "6000", tiers: tiers, want: "31"},
		{
			name: "bounded last tier keeps its rate",
			qty:  "3000",
			tiers: []costconfig.Tier{
				{UpTo: dec("1000"), Rate: decimal.RequireFromString("0.01")},
				{UpTo: dec("2000"), Rate: decimal.RequireFromString("0.002")},
			},
			want: "14",
		},
		{name: "no tiers", qty: "100", tiers: nil, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TieredCost(decimal.RequireFromString(tt.qty), tt.tiers)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func (s *CostServiceSuite) TestDedicatedIsProrated() {
	ws := "ws_prorata"
	svc := s.CreateService(ws, types.ServiceTypeAgent, types.PlatformModeDedicated,
		time.Date(2025, time.April, 15, 9, 30, 0, 0, time.UTC))

	periodStart := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	at := time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)
	result, err := s.cost.CalculateCost(s.GetContext(), &dto.CalculateCostRequest{
		CalculationType: string(types.CostModeDedicated),
		WorkspaceID:     ws,
		ServiceType:     svc.ServiceType,
		ServiceID:       svc.ID,
		Usage:           usage.Metrics{PeriodStart: &periodStart},
		At:              &at,
	})
	s.NoError(err)
	s.True(decimal.NewFromInt(160).Equal(result.Costs.DedicatedCost), "got %s", result.Costs.DedicatedCost)
	s.True(decimal.NewFromInt(160).Equal(result.Costs.TotalCost))
	s.Require().NotNil(result.Prorata)
	s.True(decimal.NewFromInt(16).Div(decimal.NewFromInt(30)).Equal(*result.Prorata))
}

func (s *CostServiceSuite) TestDedicatedRequiresPeriodStart() {
	_, err := s.cost.CalculateCost(s.GetContext(), s.request(string(types.CostModeDedicated), usage.Metrics{}))
	s.True(ierr.IsValidation(err))
	s.Equal(types.ErrorKindMissingUsageData, ierr.Kind(err))
}

func (s *CostServiceSuite) TestHybridAveragesModes() {
	periodStart := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	at := time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)
	req := s.request(string(types.CostModeHybrid), usage.Metrics{
		STTSeconds:  dec("120"),
		PeriodStart: &periodStart,
	})
	req.At = &at

	result, err := s.cost.CalculateCost(s.GetContext(), req)
	s.NoError(err)
	// (0.04 + 300) / 2
	s.True(dec("150.02").Equal(result.Costs.TotalCost), "got %s", result.Costs.TotalCost)
	s.True(dec("150").Equal(result.Costs.DedicatedCost))
	s.True(dec("0.02").Equal(result.Costs.STTCost))
}

func (s *CostServiceSuite) TestInjectionMultipliesBaseMode() {
	target := types.ServiceTypeWorkflow
	s.addConfig(&costconfig.CostConfiguration{
		CostMode: types.CostModeInjection,
		Injection: types.NewJSONColumn(&costconfig.InjectionConfig{
			Multiplier:        decimal.RequireFromString("1.5"),
			BaseMode:          types.CostModePAG,
			TargetServiceType: &target,
		}),
	})

	result, err := s.cost.CalculateCost(s.GetContext(), s.request(dto.CalculationTypeAdvanced, usage.Metrics{
		LLMTokens: dec("1000"),
	}))
	s.NoError(err)
	s.Equal(types.CostModeInjection, result.Mode)
	s.True(dec("0.03").Equal(result.Costs.TotalCost), "got %s", result.Costs.TotalCost)
	s.True(dec("0.01").Equal(result.Costs.InjectionCost))
	s.Require().NotNil(result.InjectionTarget)
	s.Equal(&target, result.InjectionTarget.ServiceType)
}

func (s *CostServiceSuite) TestFixedAllowanceAndOverage() {
	s.addConfig(&costconfig.CostConfiguration{
		CostMode: types.CostModeFixed,
		Fixed: types.NewJSONColumn(&costconfig.FixedCostConfig{
			PeriodCost: decimal.NewFromInt(100),
			Allowances: map[types.Resource]decimal.Decimal{types.ResourceSTT: decimal.NewFromInt(10)},
			OverageRates: map[types.Resource]costconfig.RateSpec{
				types.ResourceSTT: {Rate: decimal.RequireFromString("0.05"), Unit: types.PriceUnitMinute},
			},
		}),
	})

	result, err := s.cost.CalculateCost(s.GetContext(), s.request("", usage.Metrics{STTSeconds: dec("900")}))
	s.NoError(err)
	s.Equal(types.CostModeFixed, result.Mode)
	s.True(decimal.NewFromInt(100).Equal(result.Costs.FixedCost))
	s.True(dec("0.25").Equal(result.Costs.OverageCost), "5 minutes over: %s", result.Costs.OverageCost)
	s.True(dec("100.25").Equal(result.Costs.TotalCost))
	s.True(decimal.NewFromInt(10).Equal(result.AllowanceUsed[types.ResourceSTT]))

	periodStart := time.Date(s.GetNow().Year(), s.GetNow().Month(), 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.GetStores().UsageRepo.AddAllowanceConsumed(s.GetContext(), &usage.AllowanceCounter{
		WorkspaceID: s.svc.WorkspaceID,
		ServiceID:   s.svc.ID,
		Resource:    types.ResourceSTT,
		PeriodStart: periodStart,
		Consumed:    decimal.NewFromInt(8),
	}))

	result, err = s.cost.CalculateCost(s.GetContext(), s.request("", usage.Metrics{STTSeconds: dec("900")}))
	s.NoError(err)
	s.True(dec("0.65").Equal(result.Costs.OverageCost), "13 minutes over: %s", result.Costs.OverageCost)
	s.True(decimal.NewFromInt(2).Equal(result.AllowanceUsed[types.ResourceSTT]))
}

func (s *CostServiceSuite) TestExplicitModeNeedsConfiguration() {
	for _, mode := range []types.CostMode{types.CostModeInjection, types.CostModeFixed, types.CostModeDynamic} {
		s.Run(string(mode), func() {
			_, err := s.cost.CalculateCost(s.GetContext(), s.request(string(mode), usage.Metrics{LLMTokens: dec("10")}))
			s.True(ierr.IsValidation(err), "unexpected error: %v", err)
		})
	}
}

func (s *CostServiceSuite) TestUsageLimitExceeded() {
	s.addConfig(&costconfig.CostConfiguration{
		CostMode:    types.CostModePAG,
		UsageLimits: types.NewJSONColumn(costconfig.UsageLimits{types.ResourceSTT: decimal.NewFromInt(5)}),
	})

	_, err := s.cost.CalculateCost(s.GetContext(), s.request("", usage.Metrics{STTSeconds: dec("600")}))
	s.True(ierr.IsValidation(err))
	s.Equal(types.ErrorKindUsageLimitExceeded, ierr.Kind(err))

	result, err := s.cost.CalculateCost(s.GetContext(), s.request("", usage.Metrics{STTSeconds: dec("300")}))
	s.NoError(err)
	s.True(dec("0.1").Equal(result.Costs.TotalCost))
}

func (s *CostServiceSuite) TestCostCapClampsTotal() {
	s.addConfig(&costconfig.CostConfiguration{
		CostMode: types.CostModePAG,
		CostCaps: types.NewJSONColumn(&costconfig.CostCaps{MaxTotal: dec("1")}),
	})

	result, err := s.cost.CalculateCost(s.GetContext(), s.request("", usage.Metrics{LLMTokens: dec("100000")}))
	s.NoError(err)
	s.True(result.Capped)
	s.True(decimal.NewFromInt(1).Equal(result.Costs.TotalCost))
	s.True(dec("2").Equal(result.Costs.LLMCost), "components keep full cost")
}

func (s *CostServiceSuite) TestMissingUsageData() {
	tests := []struct {
		name    string
		metrics usage.Metrics
	}{
		{name: "empty usage", metrics: usage.Metrics{}},
		{name: "unit without source field", metrics: usage.Metrics{TTSWords: dec("10")}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.cost.CalculateCost(s.GetContext(), s.request("pag", tt.metrics))
			s.True(ierr.IsValidation(err))
			s.Equal(types.ErrorKindMissingUsageData, ierr.Kind(err))
		})
	}
}

func (s *CostServiceSuite) TestMeasuredStorage() {
	s.GetStorageReader().Set(s.svc.WorkspaceID, decimal.NewFromInt(2*1024*1024*1024))

	result, err := s.cost.CalculateCost(s.GetContext(), s.request("pag", usage.Metrics{MeasureStorage: true}))
	s.NoError(err)
	s.True(dec("0.046").Equal(result.Costs.S3Cost), "got %s", result.Costs.S3Cost)

	s.GetStorageReader().Reset()
	_, err = s.cost.CalculateCost(s.GetContext(), s.request("pag", usage.Metrics{MeasureStorage: true}))
	s.True(ierr.IsExternalDependency(err))
}

func (s *CostServiceSuite) TestRequestValidation() {
	tests := []struct {
		name       string
		mutate     func(*dto.CalculateCostRequest)
		assertFunc func(error) bool
	}{
		{
			name:       "other workspace",
			mutate:     func(r *dto.CalculateCostRequest) { r.WorkspaceID = "ws_other" },
			assertFunc: ierr.IsNotFound,
		},
		{
			name:       "unknown mode",
			mutate:     func(r *dto.CalculateCostRequest) { r.CalculationType = "barter" },
			assertFunc: ierr.IsValidation,
		},
		{
			name:       "negative usage",
			mutate:     func(r *dto.CalculateCostRequest) { r.Usage.LLMTokens = dec("-1") },
			assertFunc: ierr.IsValidation,
		},
		{
			name:       "unknown service",
			mutate:     func(r *dto.CalculateCostRequest) { r.ServiceID = "svc_missing" },
			assertFunc: ierr.IsNotFound,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := s.request("pag", usage.Metrics{LLMTokens: dec("10")})
			tt.mutate(req)
			_, err := s.cost.CalculateCost(s.GetContext(), req)
			s.Error(err)
			s.True(tt.assertFunc(err), "unexpected error: %v", err)
		})
	}
}
