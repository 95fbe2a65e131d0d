package costconfig

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

func TestSelectActive(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	older := now.Add(-48 * time.Hour)

	low := &CostConfiguration{ID: "low", IsActive: true, Priority: 1, EffectiveFrom: older, CreatedAt: older}
	high := &CostConfiguration{ID: "high", IsActive: true, Priority: 5, EffectiveFrom: older, CreatedAt: older}
	highNewer := &CostConfiguration{ID: "high_newer", IsActive: true, Priority: 5, EffectiveFrom: older, CreatedAt: now}
	expired := &CostConfiguration{ID: "expired", IsActive: true, Priority: 9, EffectiveFrom: older, EffectiveUntil: lo.ToPtr(now), CreatedAt: now}
	future := &CostConfiguration{ID: "future", IsActive: true, Priority: 9, EffectiveFrom: now.Add(time.Hour), CreatedAt: now}
	inactive := &CostConfiguration{ID: "inactive", IsActive: false, Priority: 10, EffectiveFrom: older, CreatedAt: now}

	tests := []struct {
		name    string
		configs []*CostConfiguration
		want    string
	}{
		{"empty", nil, ""},
		{"highest priority wins", []*CostConfiguration{low, high}, "high"},
		{"newest wins on tie", []*CostConfiguration{high, highNewer}, "high_newer"},
		{"until is exclusive", []*CostConfiguration{low, expired}, "low"},
		{"future ignored", []*CostConfiguration{low, future}, "low"},
		{"inactive ignored", []*CostConfiguration{inactive}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectActive(tt.configs, now)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestCostConfiguration_Validate(t *testing.T) {
	base := func(mode types.CostMode) *CostConfiguration {
		return &CostConfiguration{
			ServiceType:   types.ServiceTypeAgent,
			CostMode:      mode,
			EffectiveFrom: time.Now(),
			IsActive:      true,
		}
	}

	t.Run("injection requires positive multiplier", func(t *testing.T) {
		c := base(types.CostModeInjection)
		c.Injection.Data = &InjectionConfig{Multiplier: decimal.Zero, BaseMode: types.CostModePAG}
		err := c.Validate()
		require.Error(t, err)
		assert.Equal(t, types.ErrorKindInvalidAmount, ierr.Kind(err))
	})

	t.Run("injection missing block", func(t *testing.T) {
		err := base(types.CostModeInjection).Validate()
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("dynamic tiers ascending", func(t *testing.T) {
		c := base(types.CostModeDynamic)
		c.Dynamic.Data = &DynamicCostConfig{
			Resource: types.ResourceLLM,
			Tiers: []Tier{
				{UpTo: lo.ToPtr(decimal.NewFromInt(1000)), Rate: decimal.RequireFromString("0.01")},
				{UpTo: lo.ToPtr(decimal.NewFromInt(500)), Rate: decimal.RequireFromString("0.005")},
			},
		}
		assert.Error(t, c.Validate())
	})

	t.Run("dynamic unbounded only last", func(t *testing.T) {
		c := base(types.CostModeDynamic)
		c.Dynamic.Data = &DynamicCostConfig{
			Resource: types.ResourceLLM,
			Tiers: []Tier{
				{Rate: decimal.RequireFromString("0.01")},
				{UpTo: lo.ToPtr(decimal.NewFromInt(500)), Rate: decimal.RequireFromString("0.005")},
			},
		}
		assert.Error(t, c.Validate())
	})

	t.Run("fixed overage unit checked", func(t *testing.T) {
		c := base(types.CostModeFixed)
		c.Fixed.Data = &FixedCostConfig{
			PeriodCost: decimal.NewFromInt(100),
			OverageRates: map[types.Resource]RateSpec{
				types.ResourceSTT: {Rate: decimal.RequireFromString("0.03"), Unit: types.PriceUnitToken},
			},
		}
		err := c.Validate()
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
		assert.Equal(t, types.ErrorKindInvalidUnit, ierr.Kind(err))
	})

	t.Run("valid fixed", func(t *testing.T) {
		c := base(types.CostModeFixed)
		c.Fixed.Data = &FixedCostConfig{
			PeriodCost: decimal.NewFromInt(100),
			Allowances: map[types.Resource]decimal.Decimal{types.ResourceSTT: decimal.NewFromInt(1000)},
			OverageRates: map[types.Resource]RateSpec{
				types.ResourceSTT: {Rate: decimal.RequireFromString("0.03"), Unit: types.PriceUnitMinute},
			},
		}
		assert.NoError(t, c.Validate())
	})

	t.Run("invalid mode", func(t *testing.T) {
		assert.Error(t, base(types.CostMode("bogus")).Validate())
	})
}
