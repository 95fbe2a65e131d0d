package dto

import (
	"encoding/json"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/domain/billable"
	"github.com/voxagent/billing/internal/domain/costconfig"
	"github.com/voxagent/billing/internal/domain/usage"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
	"github.com/voxagent/billing/internal/validator"
)

// CalculationTypeAdvanced prices with whatever configuration is active for the service
const CalculationTypeAdvanced = "advanced"

// CalculateCostRequest prices a usage window for one service
type CalculateCostRequest struct {
	// CalculationType is "advanced" or an explicit cost mode
	CalculationType string            `json:"calculation_type,omitempty"`
	WorkspaceID     string            `json:"workspace_id" binding:"required" validate:"required"`
	ServiceType     types.ServiceType `json:"service_type" binding:"required" validate:"required"`
	ServiceID       string            `json:"service_id" binding:"required" validate:"required"`
	Usage           usage.Metrics     `json:"usage"`
	// At selects the configuration in force, defaults to now
	At *time.Time `json:"at,omitempty"`
}

func (r *CalculateCostRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.ServiceType.Validate(); err != nil {
		return err
	}
	if mode := r.Mode(); mode != "" {
		if err := mode.Validate(); err != nil {
			return err
		}
	}
	return r.Usage.Validate()
}

// Mode returns the explicit cost mode, empty when the active configuration decides
func (r *CalculateCostRequest) Mode() types.CostMode {
	if r.CalculationType == "" || r.CalculationType == CalculationTypeAdvanced {
		return ""
	}
	return types.CostMode(r.CalculationType)
}

func (r *CalculateCostRequest) Ref() billable.Ref {
	return billable.Ref{Type: r.ServiceType, ID: r.ServiceID}
}

// CostComponents holds full precision per-component totals
type CostComponents struct {
	STTCost       decimal.Decimal `json:"stt_cost"`
	TTSCost       decimal.Decimal `json:"tts_cost"`
	LLMCost       decimal.Decimal `json:"llm_cost"`
	EmbeddingCost decimal.Decimal `json:"embedding_cost"`
	S3Cost        decimal.Decimal `json:"s3_cost"`
	DedicatedCost decimal.Decimal `json:"dedicated_cost"`
	FixedCost     decimal.Decimal `json:"fixed_cost"`
	OverageCost   decimal.Decimal `json:"overage_cost"`
	InjectionCost decimal.Decimal `json:"injection_cost"`
	TotalCost     decimal.Decimal `json:"total_cost"`
}

// AddResource accumulates a per-resource cost into its component
func (c *CostComponents) AddResource(r types.Resource, cost decimal.Decimal) {
	switch r {
	case types.ResourceSTT:
		c.STTCost = c.STTCost.Add(cost)
	case types.ResourceTTS:
		c.TTSCost = c.TTSCost.Add(cost)
	case types.ResourceLLM:
		c.LLMCost = c.LLMCost.Add(cost)
	case types.ResourceEmbedding:
		c.EmbeddingCost = c.EmbeddingCost.Add(cost)
	case types.ResourceStorage:
		c.S3Cost = c.S3Cost.Add(cost)
	}
}

// AsMap flattens the components for persistence on usage records and line items
func (c *CostComponents) AsMap() map[string]decimal.Decimal {
	m := map[string]decimal.Decimal{
		"stt_cost":       c.STTCost,
		"tts_cost":       c.TTSCost,
		"llm_cost":       c.LLMCost,
		"embedding_cost": c.EmbeddingCost,
		"s3_cost":        c.S3Cost,
		"dedicated_cost": c.DedicatedCost,
		"fixed_cost":     c.FixedCost,
		"overage_cost":   c.OverageCost,
		"injection_cost": c.InjectionCost,
		"total_cost":     c.TotalCost,
	}
	return lo.PickBy(m, func(_ string, v decimal.Decimal) bool { return !v.IsZero() })
}

// MeteredCost is the part of the total driven by usage. Flat fees (the fixed
// period cost, the dedicated rate and any injection scaled from it) recur
// monthly regardless of usage and are left to invoicing.
func (c CostComponents) MeteredCost() decimal.Decimal {
	metered := c.STTCost.Add(c.TTSCost).Add(c.LLMCost).Add(c.EmbeddingCost).Add(c.S3Cost).Add(c.OverageCost)
	if c.DedicatedCost.IsZero() {
		metered = metered.Add(c.InjectionCost)
	}
	// caps clamp the total, never the other way round
	return decimal.Max(decimal.Min(metered, c.TotalCost), decimal.Zero)
}

// Scale multiplies every component, used to blend modes
func (c CostComponents) Scale(factor decimal.Decimal) CostComponents {
	return CostComponents{
		STTCost:       c.STTCost.Mul(factor),
		TTSCost:       c.TTSCost.Mul(factor),
		LLMCost:       c.LLMCost.Mul(factor),
		EmbeddingCost: c.EmbeddingCost.Mul(factor),
		S3Cost:        c.S3Cost.Mul(factor),
		DedicatedCost: c.DedicatedCost.Mul(factor),
		FixedCost:     c.FixedCost.Mul(factor),
		OverageCost:   c.OverageCost.Mul(factor),
		InjectionCost: c.InjectionCost.Mul(factor),
		TotalCost:     c.TotalCost.Mul(factor),
	}
}

// Plus adds two component sets
func (c CostComponents) Plus(o CostComponents) CostComponents {
	return CostComponents{
		STTCost:       c.STTCost.Add(o.STTCost),
		TTSCost:       c.TTSCost.Add(o.TTSCost),
		LLMCost:       c.LLMCost.Add(o.LLMCost),
		EmbeddingCost: c.EmbeddingCost.Add(o.EmbeddingCost),
		S3Cost:        c.S3Cost.Add(o.S3Cost),
		DedicatedCost: c.DedicatedCost.Add(o.DedicatedCost),
		FixedCost:     c.FixedCost.Add(o.FixedCost),
		OverageCost:   c.OverageCost.Add(o.OverageCost),
		InjectionCost: c.InjectionCost.Add(o.InjectionCost),
		TotalCost:     c.TotalCost.Add(o.TotalCost),
	}
}

// BreakdownLine explains how one component was priced
type BreakdownLine struct {
	Resource   types.Resource    `json:"resource,omitempty"`
	Component  string            `json:"component"`
	Quantity   decimal.Decimal   `json:"quantity"`
	Unit       types.PriceUnit   `json:"unit,omitempty"`
	UnitPrice  decimal.Decimal   `json:"unit_price"`
	Source     types.PriceSource `json:"source,omitempty"`
	ProviderID string            `json:"provider_id,omitempty"`
	Cost       decimal.Decimal   `json:"cost"`
}

// InjectionTarget records where an injected cost is attributed
type InjectionTarget struct {
	ServiceType *types.ServiceType `json:"service_type,omitempty"`
	ServiceID   *string            `json:"service_id,omitempty"`
}

// CostBreakdown is the result of a cost calculation. Totals keep full precision,
// DisplayTotal is rounded for presentation only.
type CostBreakdown struct {
	Mode            types.CostMode   `json:"mode"`
	ConfigID        *string          `json:"config_id,omitempty"`
	Costs           CostComponents   `json:"costs"`
	DisplayTotal    string           `json:"display_total"`
	Breakdown       []BreakdownLine  `json:"breakdown"`
	Prorata         *decimal.Decimal `json:"prorata,omitempty"`
	Capped          bool             `json:"capped"`
	InjectionTarget *InjectionTarget `json:"injection_target,omitempty"`
	// AllowanceUsed is the included quantity consumed by this calculation under fixed pricing
	AllowanceUsed map[types.Resource]decimal.Decimal `json:"allowance_used,omitempty"`
	CalculatedAt  time.Time                          `json:"calculated_at"`
}

// CostOverridesResponse is the typed override blob of a service
type CostOverridesResponse struct {
	ServiceType   types.ServiceType      `json:"service_type"`
	ServiceID     string                 `json:"service_id"`
	CostOverrides billable.CostOverrides `json:"cost_overrides"`
}

// CreateCostConfigurationRequest creates an advanced pricing policy.
// Mode blocks are decoded strictly so unknown keys are rejected.
type CreateCostConfigurationRequest struct {
	WorkspaceID       string            `json:"workspace_id" binding:"required" validate:"required"`
	ServiceType       types.ServiceType `json:"service_type" binding:"required" validate:"required,enum"`
	ServiceID         *string           `json:"service_id,omitempty"`
	CostMode          types.CostMode    `json:"cost_mode" binding:"required" validate:"required,enum"`
	Priority          int               `json:"priority"`
	EffectiveFrom     *time.Time        `json:"effective_from,omitempty"`
	EffectiveUntil    *time.Time        `json:"effective_until,omitempty"`
	InjectionConfig   json.RawMessage   `json:"injection_config,omitempty"`
	FixedCostConfig   json.RawMessage   `json:"fixed_cost_config,omitempty"`
	DynamicCostConfig json.RawMessage   `json:"dynamic_cost_config,omitempty"`
	HybridConfig      json.RawMessage   `json:"hybrid_config,omitempty"`
	UsageLimits       json.RawMessage   `json:"usage_limits,omitempty"`
	CostCaps          json.RawMessage   `json:"cost_caps,omitempty"`
}

func (r *CreateCostConfigurationRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ToCostConfiguration decodes and validates the request into a new active configuration
func (r *CreateCostConfigurationRequest) ToCostConfiguration(createdBy string) (*costconfig.CostConfiguration, error) {
	now := time.Now().UTC()
	cfg := &costconfig.CostConfiguration{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COST_CONFIGURATION),
		WorkspaceID:    r.WorkspaceID,
		ServiceType:    r.ServiceType,
		ServiceID:      r.ServiceID,
		CostMode:       r.CostMode,
		Priority:       r.Priority,
		EffectiveFrom:  lo.FromPtrOr(r.EffectiveFrom, now),
		EffectiveUntil: r.EffectiveUntil,
		IsActive:       true,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	blocks := []struct {
		name string
		raw  json.RawMessage
		out  interface{}
	}{
		{"injection_config", r.InjectionConfig, &cfg.Injection.Data},
		{"fixed_cost_config", r.FixedCostConfig, &cfg.Fixed.Data},
		{"dynamic_cost_config", r.DynamicCostConfig, &cfg.Dynamic.Data},
		{"hybrid_config", r.HybridConfig, &cfg.Hybrid.Data},
		{"usage_limits", r.UsageLimits, &cfg.UsageLimits.Data},
		{"cost_caps", r.CostCaps, &cfg.CostCaps.Data},
	}
	for _, b := range blocks {
		if len(b.raw) == 0 || string(b.raw) == "null" {
			continue
		}
		if err := types.DecodeStrict(b.raw, b.out); err != nil {
			return nil, ierr.WithError(err).
				WithHintf("Invalid %s", b.name).
				WithReportableDetails(map[string]any{"field": b.name}).
				Mark(ierr.ErrValidation)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListCostConfigurationsRequest is the query of the configurations endpoint
type ListCostConfigurationsRequest struct {
	WorkspaceID string            `form:"workspace_id" binding:"required" validate:"required"`
	ServiceType types.ServiceType `form:"service_type"`
	ServiceID   string            `form:"service_id"`
	ActiveOnly  bool              `form:"active_only"`
	Limit       *int              `form:"limit"`
	Offset      *int              `form:"offset"`
}

func (r *ListCostConfigurationsRequest) ToFilter() *costconfig.Filter {
	filter := &costconfig.Filter{
		QueryFilter: types.NewDefaultQueryFilter(),
		WorkspaceID: r.WorkspaceID,
		ServiceType: r.ServiceType,
		ServiceID:   r.ServiceID,
		ActiveOnly:  r.ActiveOnly,
	}
	if r.Limit != nil {
		filter.Limit = r.Limit
	}
	if r.Offset != nil {
		filter.Offset = r.Offset
	}
	return filter
}

type ListCostConfigurationsResponse = types.ListResponse[*costconfig.CostConfiguration]
