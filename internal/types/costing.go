package types

import (
	"fmt"

	"github.com/samber/lo"
	ierr "github.com/voxagent/billing/internal/errors"
)

// ServiceType is the kind of billable service a cost is attributed to
type ServiceType string

const (
	ServiceTypeAgent         ServiceType = "agent"
	ServiceTypeKnowledgeBase ServiceType = "knowledge_base"
	ServiceTypeWorkflow      ServiceType = "workflow"
)

func (s ServiceType) Validate() error {
	allowed := []ServiceType{ServiceTypeAgent, ServiceTypeKnowledgeBase, ServiceTypeWorkflow}
	if !lo.Contains(allowed, s) {
		return ierr.NewErrorf("invalid service type: %s", s).
			WithHintf("Service type must be one of: %v", allowed).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// AgentType selects the dedicated rate key for agents
type AgentType string

const (
	AgentTypeVoice AgentType = "voice"
	AgentTypeText  AgentType = "text"
)

// PlatformMode is the coarse billing mode used by the monthly reconciler
type PlatformMode string

const (
	PlatformModeDedicated PlatformMode = "dedicated"
	PlatformModePAG       PlatformMode = "pag"
	PlatformModeHybrid    PlatformMode = "hybrid"
)

func (m PlatformMode) Validate() error {
	switch m {
	case PlatformModeDedicated, PlatformModePAG, PlatformModeHybrid:
		return nil
	}
	return ierr.NewErrorf("invalid platform mode: %s", m).
		WithHint("Platform mode must be one of: dedicated, pag, hybrid").
		Mark(ierr.ErrValidation)
}

// CostMode selects the calculator used to price usage
type CostMode string

const (
	CostModePAG       CostMode = "pag"
	CostModeDedicated CostMode = "dedicated"
	CostModeInjection CostMode = "injection"
	CostModeFixed     CostMode = "fixed"
	CostModeDynamic   CostMode = "dynamic"
	CostModeHybrid    CostMode = "hybrid"
)

var CostModes = []CostMode{
	CostModePAG, CostModeDedicated, CostModeInjection,
	CostModeFixed, CostModeDynamic, CostModeHybrid,
}

func (m CostMode) Validate() error {
	if !lo.Contains(CostModes, m) {
		return ierr.NewErrorf("invalid cost mode: %s", m).
			WithHintf("Cost mode must be one of: %v", CostModes).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Resource is a metered resource that has a unit price
type Resource string

const (
	ResourceSTT       Resource = "stt"
	ResourceTTS       Resource = "tts"
	ResourceLLM       Resource = "llm"
	ResourceEmbedding Resource = "embedding"
	ResourceStorage   Resource = "storage"
)

var Resources = []Resource{ResourceSTT, ResourceTTS, ResourceLLM, ResourceEmbedding, ResourceStorage}

func (r Resource) Validate() error {
	if !lo.Contains(Resources, r) {
		return ierr.NewErrorf("invalid resource: %s", r).
			WithHintf("Resource must be one of: %v", Resources).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PriceUnit is the quantity unit a unit price is expressed in
type PriceUnit string

const (
	PriceUnitMinute    PriceUnit = "minute"
	PriceUnitSecond    PriceUnit = "second"
	PriceUnitWord      PriceUnit = "word"
	PriceUnitCharacter PriceUnit = "character"
	PriceUnitToken     PriceUnit = "token"
	PriceUnitGB        PriceUnit = "gb"
)

var allowedUnits = map[Resource][]PriceUnit{
	ResourceSTT:       {PriceUnitMinute, PriceUnitSecond},
	ResourceTTS:       {PriceUnitWord, PriceUnitCharacter},
	ResourceLLM:       {PriceUnitToken, PriceUnitWord},
	ResourceEmbedding: {PriceUnitToken},
	ResourceStorage:   {PriceUnitGB},
}

// AllowedUnits returns the unit allow-list for a resource
func AllowedUnits(r Resource) []PriceUnit {
	return allowedUnits[r]
}

// IsUnitAllowed reports whether unit is on the allow-list of the resource
func IsUnitAllowed(r Resource, unit PriceUnit) bool {
	return lo.Contains(allowedUnits[r], unit)
}

// ValidateUnitForResource checks a configured unit against the resource allow-list.
// An unknown unit is a configuration defect, never silently replaced by a default.
func ValidateUnitForResource(r Resource, unit PriceUnit) error {
	if IsUnitAllowed(r, unit) {
		return nil
	}
	return NewInvalidUnitError(r, unit, ierr.ErrConfiguration)
}

// NewInvalidUnitError builds an InvalidUnit error marked with the given sentinel:
// ErrValidation for caller input, ErrConfiguration for stored pricing.
func NewInvalidUnitError(r Resource, unit PriceUnit, mark error) error {
	return ierr.NewError(fmt.Sprintf("unit %q is not valid for resource %s", unit, r)).
		WithHintf("Invalid unit %q for %s pricing, allowed units: %v", unit, r, allowedUnits[r]).
		WithReportableDetails(map[string]any{
			"error_kind": ErrorKindInvalidUnit,
			"resource":   r,
			"unit":       unit,
		}).
		Mark(mark)
}

// PriceSource records which level of the resolution chain produced a price
type PriceSource string

const (
	PriceSourceOverride          PriceSource = "override"
	PriceSourceProvider          PriceSource = "provider"
	PriceSourceCostConfiguration PriceSource = "cost_configuration"
	PriceSourceGlobal            PriceSource = "global"
	PriceSourceDefault           PriceSource = "default"
)

// Error kinds reported in error details so callers can branch without parsing messages
const (
	ErrorKindInvalidAmount       = "InvalidAmount"
	ErrorKindInvalidUnit         = "InvalidUnit"
	ErrorKindInsufficientBalance = "InsufficientBalance"
	ErrorKindMissingUsageData    = "MissingUsageData"
	ErrorKindUsageLimitExceeded  = "UsageLimitExceeded"
)

// InvoiceStatus is the lifecycle of a monthly invoice
type InvoiceStatus string

const (
	InvoiceStatusGenerated  InvoiceStatus = "generated"
	InvoiceStatusSuperseded InvoiceStatus = "superseded"
)
