package costconfig

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// CostConfiguration is an advanced per-service (or workspace-wide) pricing policy.
// Only the config block matching CostMode is meaningful.
type CostConfiguration struct {
	ID          string            `db:"id" json:"id"`
	WorkspaceID string            `db:"workspace_id" json:"workspace_id"`
	ServiceType types.ServiceType `db:"service_type" json:"service_type"`
	// ServiceID is nil for workspace-level configurations
	ServiceID      *string                              `db:"service_id" json:"service_id,omitempty"`
	CostMode       types.CostMode                       `db:"cost_mode" json:"cost_mode"`
	Priority       int                                  `db:"priority" json:"priority"`
	EffectiveFrom  time.Time                            `db:"effective_from" json:"effective_from"`
	EffectiveUntil *time.Time                           `db:"effective_until" json:"effective_until,omitempty"`
	IsActive       bool                                 `db:"is_active" json:"is_active"`
	Injection      types.JSONColumn[*InjectionConfig]   `db:"injection_config" json:"injection_config"`
	Fixed          types.JSONColumn[*FixedCostConfig]   `db:"fixed_cost_config" json:"fixed_cost_config"`
	Dynamic        types.JSONColumn[*DynamicCostConfig] `db:"dynamic_cost_config" json:"dynamic_cost_config"`
	Hybrid         types.JSONColumn[*HybridConfig]      `db:"hybrid_config" json:"hybrid_config"`
	UsageLimits    types.JSONColumn[UsageLimits]        `db:"usage_limits" json:"usage_limits"`
	CostCaps       types.JSONColumn[*CostCaps]          `db:"cost_caps" json:"cost_caps"`
	CreatedBy      string                               `db:"created_by" json:"created_by"`
	CreatedAt      time.Time                            `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time                            `db:"updated_at" json:"updated_at"`
}

// InjectionConfig multiplies a base-mode cost, typically to pass platform cost on to a target
type InjectionConfig struct {
	Multiplier        decimal.Decimal    `json:"multiplier"`
	BaseMode          types.CostMode     `json:"base_mode"`
	TargetServiceType *types.ServiceType `json:"target_service_type,omitempty"`
	TargetServiceID   *string            `json:"target_service_id,omitempty"`
}

// RateSpec is a unit price with its unit
type RateSpec struct {
	Rate decimal.Decimal `json:"rate"`
	Unit types.PriceUnit `json:"unit"`
}

// FixedCostConfig is a flat period fee with included allowances and overage pricing
type FixedCostConfig struct {
	PeriodCost   decimal.Decimal                    `json:"period_cost"`
	Allowances   map[types.Resource]decimal.Decimal `json:"allowances,omitempty"`
	OverageRates map[types.Resource]RateSpec        `json:"overage_rates,omitempty"`
}

// Tier is one band of a progressive price schedule. A nil UpTo is unbounded.
type Tier struct {
	UpTo *decimal.Decimal `json:"up_to,omitempty"`
	Rate decimal.Decimal  `json:"rate"`
}

// DynamicCostConfig prices one resource with progressive tiers
type DynamicCostConfig struct {
	Resource types.Resource  `json:"resource"`
	Unit     types.PriceUnit `json:"unit,omitempty"`
	Tiers    []Tier          `json:"tiers"`
}

// HybridConfig is carried for per-provider weighting. The current hybrid policy
// is an unweighted average and does not read it.
type HybridConfig struct {
	ProviderConfig map[string]decimal.Decimal `json:"provider_config,omitempty"`
}

// UsageLimits caps the quantity per resource in price units
type UsageLimits map[types.Resource]decimal.Decimal

// CostCaps clamps the total of one calculation
type CostCaps struct {
	MaxTotal *decimal.Decimal `json:"max_total,omitempty"`
}

// IsEffectiveAt reports whether at falls in [EffectiveFrom, EffectiveUntil)
func (c *CostConfiguration) IsEffectiveAt(at time.Time) bool {
	if !c.IsActive {
		return false
	}
	if at.Before(c.EffectiveFrom) {
		return false
	}
	return c.EffectiveUntil == nil || at.Before(*c.EffectiveUntil)
}

// SelectActive picks the configuration in force at a point in time:
// highest priority first, then the most recently created.
func SelectActive(configs []*CostConfiguration, at time.Time) *CostConfiguration {
	candidates := make([]*CostConfiguration, 0, len(configs))
	for _, c := range configs {
		if c.IsEffectiveAt(at) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	return candidates[0]
}

// Validate checks that the configuration carries a well-formed block for its mode
func (c *CostConfiguration) Validate() error {
	if err := c.CostMode.Validate(); err != nil {
		return err
	}
	if err := c.ServiceType.Validate(); err != nil {
		return err
	}
	if c.EffectiveUntil != nil && !c.EffectiveUntil.After(c.EffectiveFrom) {
		return ierr.NewError("effective_until must be after effective_from").
			WithHint("Effective period is empty").
			Mark(ierr.ErrValidation)
	}

	switch c.CostMode {
	case types.CostModeInjection:
		if err := c.Injection.Data.validate(); err != nil {
			return err
		}
	case types.CostModeFixed:
		if err := c.Fixed.Data.validate(); err != nil {
			return err
		}
	case types.CostModeDynamic:
		if err := c.Dynamic.Data.validate(); err != nil {
			return err
		}
	}

	for r, max := range c.UsageLimits.Data {
		if err := r.Validate(); err != nil {
			return err
		}
		if max.IsNegative() {
			return invalidAmount("usage limit for %s must not be negative", r)
		}
	}
	if caps := c.CostCaps.Data; caps != nil && caps.MaxTotal != nil && caps.MaxTotal.IsNegative() {
		return invalidAmount("cost cap must not be negative")
	}
	return nil
}

func (i *InjectionConfig) validate() error {
	if i == nil {
		return missingConfig("injection_config")
	}
	if !i.Multiplier.GreaterThan(decimal.Zero) {
		return invalidAmount("injection multiplier must be greater than 0")
	}
	if i.BaseMode != types.CostModePAG && i.BaseMode != types.CostModeDedicated {
		return ierr.NewErrorf("invalid injection base mode: %s", i.BaseMode).
			WithHint("Injection base mode must be pag or dedicated").
			Mark(ierr.ErrValidation)
	}
	if i.TargetServiceType != nil {
		if err := i.TargetServiceType.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (f *FixedCostConfig) validate() error {
	if f == nil {
		return missingConfig("fixed_cost_config")
	}
	if f.PeriodCost.IsNegative() {
		return invalidAmount("period cost must not be negative")
	}
	for r, qty := range f.Allowances {
		if err := r.Validate(); err != nil {
			return err
		}
		if qty.IsNegative() {
			return invalidAmount("allowance for %s must not be negative", r)
		}
	}
	for r, spec := range f.OverageRates {
		if err := r.Validate(); err != nil {
			return err
		}
		if spec.Rate.IsNegative() {
			return invalidAmount("overage rate for %s must not be negative", r)
		}
		if !types.IsUnitAllowed(r, spec.Unit) {
			return types.NewInvalidUnitError(r, spec.Unit, ierr.ErrValidation)
		}
	}
	return nil
}

func (d *DynamicCostConfig) validate() error {
	if d == nil {
		return missingConfig("dynamic_cost_config")
	}
	if err := d.Resource.Validate(); err != nil {
		return err
	}
	if d.Unit != "" {
		if !types.IsUnitAllowed(d.Resource, d.Unit) {
			return types.NewInvalidUnitError(d.Resource, d.Unit, ierr.ErrValidation)
		}
	}
	if len(d.Tiers) == 0 {
		return ierr.NewError("dynamic pricing requires at least one tier").
			WithHint("At least one tier is required").
			Mark(ierr.ErrValidation)
	}

	prev := decimal.Zero
	for i, tier := range d.Tiers {
		if tier.Rate.IsNegative() {
			return invalidAmount("tier %d rate must not be negative", i)
		}
		if tier.UpTo == nil {
			if i != len(d.Tiers)-1 {
				return ierr.NewError("only the last tier may be unbounded").
					WithHint("Only the last tier may omit up_to").
					Mark(ierr.ErrValidation)
			}
			continue
		}
		if !tier.UpTo.GreaterThan(prev) {
			return ierr.NewError("tier thresholds must be strictly ascending").
				WithHint("Tier thresholds must be strictly ascending").
				Mark(ierr.ErrValidation)
		}
		prev = *tier.UpTo
	}
	return nil
}

func missingConfig(name string) error {
	return ierr.NewErrorf("%s is required for this cost mode", name).
		WithHintf("%s is required for this cost mode", name).
		Mark(ierr.ErrValidation)
}

func invalidAmount(format string, args ...any) error {
	return ierr.NewErrorf(format, args...).
		WithHintf(format, args...).
		WithReportableDetails(map[string]any{"error_kind": types.ErrorKindInvalidAmount}).
		Mark(ierr.ErrValidation)
}

// Filter scopes configuration listing
type Filter struct {
	*types.QueryFilter
	WorkspaceID string            `json:"workspace_id" form:"workspace_id"`
	ServiceType types.ServiceType `json:"service_type,omitempty" form:"service_type"`
	ServiceID   string            `json:"service_id,omitempty" form:"service_id"`
	ActiveOnly  bool              `json:"active_only" form:"active_only"`
}
