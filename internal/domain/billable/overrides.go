package billable

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// CostOverrides is the typed form of a service's cost_overrides blob.
// A nil field means the level falls through to settings and then defaults.
type CostOverrides struct {
	BuiltinSTTCost      *decimal.Decimal `json:"builtin_stt_cost,omitempty"`
	STTUnit             *types.PriceUnit `json:"stt_unit,omitempty"`
	ExternalSTTProvider *string          `json:"external_stt_provider,omitempty"`

	BuiltinTTSCost      *decimal.Decimal `json:"builtin_tts_cost,omitempty"`
	TTSUnit             *types.PriceUnit `json:"tts_unit,omitempty"`
	ExternalTTSProvider *string          `json:"external_tts_provider,omitempty"`

	BuiltinLLMCost      *decimal.Decimal `json:"builtin_llm_cost,omitempty"`
	LLMUnit             *types.PriceUnit `json:"llm_unit,omitempty"`
	ExternalLLMProvider *string          `json:"external_llm_provider,omitempty"`

	EmbeddingCostPerToken *decimal.Decimal `json:"embedding_cost_per_token,omitempty"`
	S3StorageCostPerGB    *decimal.Decimal `json:"s3_storage_cost_per_gb,omitempty"`

	DedicatedMonthlyCost *decimal.Decimal `json:"dedicated_monthly_cost,omitempty"`
}

// ResourceOverride is the override entry for one resource
type ResourceOverride struct {
	Cost       *decimal.Decimal
	Unit       *types.PriceUnit
	ProviderID *string
}

// IsSet reports whether the override supplies a price at all
func (o ResourceOverride) IsSet() bool {
	return o.Cost != nil || o.ProviderID != nil
}

// ParseCostOverrides decodes a raw blob, rejecting keys the resolver does not know
func ParseCostOverrides(raw []byte) (*CostOverrides, error) {
	var o CostOverrides
	if len(raw) == 0 {
		return &o, nil
	}
	if err := types.DecodeStrict(raw, &o); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Cost overrides contain unknown keys or invalid values").
			Mark(ierr.ErrValidation)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

// ForResource returns the override for a resource
func (o *CostOverrides) ForResource(r types.Resource) ResourceOverride {
	if o == nil {
		return ResourceOverride{}
	}
	switch r {
	case types.ResourceSTT:
		return ResourceOverride{Cost: o.BuiltinSTTCost, Unit: o.STTUnit, ProviderID: o.ExternalSTTProvider}
	case types.ResourceTTS:
		return ResourceOverride{Cost: o.BuiltinTTSCost, Unit: o.TTSUnit, ProviderID: o.ExternalTTSProvider}
	case types.ResourceLLM:
		return ResourceOverride{Cost: o.BuiltinLLMCost, Unit: o.LLMUnit, ProviderID: o.ExternalLLMProvider}
	case types.ResourceEmbedding:
		return ResourceOverride{Cost: o.EmbeddingCostPerToken, Unit: lo.ToPtr(types.PriceUnitToken)}
	case types.ResourceStorage:
		return ResourceOverride{Cost: o.S3StorageCostPerGB, Unit: lo.ToPtr(types.PriceUnitGB)}
	}
	return ResourceOverride{}
}

// IsEmpty reports whether no override is set
func (o *CostOverrides) IsEmpty() bool {
	if o == nil {
		return true
	}
	for _, r := range types.Resources {
		if o.ForResource(r).IsSet() {
			return false
		}
	}
	return o.DedicatedMonthlyCost == nil
}

// Validate checks sign and unit rules for every set override
func (o *CostOverrides) Validate() error {
	if o == nil {
		return nil
	}

	for _, r := range types.Resources {
		ov := o.ForResource(r)
		if ov.Cost != nil && ov.Cost.IsNegative() {
			return ierr.NewErrorf("override cost for %s must not be negative", r).
				WithHintf("Override cost for %s must not be negative", r).
				WithReportableDetails(map[string]any{
					"error_kind": types.ErrorKindInvalidAmount,
					"resource":   r,
				}).
				Mark(ierr.ErrValidation)
		}
		if ov.Unit != nil && !types.IsUnitAllowed(r, *ov.Unit) {
			return types.NewInvalidUnitError(r, *ov.Unit, ierr.ErrValidation)
		}
		if ov.ProviderID != nil && *ov.ProviderID == "" {
			return ierr.NewErrorf("external provider for %s must not be empty", r).
				WithHint("Provider id must not be empty").
				Mark(ierr.ErrValidation)
		}
	}

	if o.DedicatedMonthlyCost != nil && o.DedicatedMonthlyCost.IsNegative() {
		return ierr.NewError("dedicated monthly cost must not be negative").
			WithHint("Dedicated monthly cost must not be negative").
			WithReportableDetails(map[string]any{
				"error_kind": types.ErrorKindInvalidAmount,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
