package usage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// bytesPerGB is the binary gigabyte used for storage pricing
var bytesPerGB = decimal.NewFromInt(1024 * 1024 * 1024)

var secondsPerMinute = decimal.NewFromInt(60)

// Metrics is the raw usage of one event or calculation window. Absent fields are nil.
type Metrics struct {
	STTSeconds      *decimal.Decimal `json:"stt_seconds,omitempty"`
	TTSCharacters   *decimal.Decimal `json:"tts_characters,omitempty"`
	TTSWords        *decimal.Decimal `json:"tts_words,omitempty"`
	LLMTokens       *decimal.Decimal `json:"llm_tokens,omitempty"`
	LLMWords        *decimal.Decimal `json:"llm_words,omitempty"`
	EmbeddingTokens *decimal.Decimal `json:"embedding_tokens,omitempty"`
	StorageBytes    *decimal.Decimal `json:"storage_bytes,omitempty"`
	// MeasureStorage asks the calculator to read storage from the storage collaborator
	MeasureStorage bool `json:"measure_storage,omitempty"`
	// PeriodStart anchors flat-fee modes to a month
	PeriodStart *time.Time `json:"period_start,omitempty"`
}

// HasResource reports whether any quantity for the resource is present
func (m *Metrics) HasResource(r types.Resource) bool {
	switch r {
	case types.ResourceSTT:
		return m.STTSeconds != nil
	case types.ResourceTTS:
		return m.TTSCharacters != nil || m.TTSWords != nil
	case types.ResourceLLM:
		return m.LLMTokens != nil || m.LLMWords != nil
	case types.ResourceEmbedding:
		return m.EmbeddingTokens != nil
	case types.ResourceStorage:
		return m.StorageBytes != nil
	}
	return false
}

// IsEmpty reports whether no resource quantity is present
func (m *Metrics) IsEmpty() bool {
	for _, r := range types.Resources {
		if m.HasResource(r) {
			return false
		}
	}
	return true
}

// QuantityIn converts the raw quantity of a resource into the given price unit.
// A unit whose source field is absent is MissingUsageData.
func (m *Metrics) QuantityIn(r types.Resource, unit types.PriceUnit) (decimal.Decimal, error) {
	var q *decimal.Decimal
	switch unit {
	case types.PriceUnitMinute:
		if m.STTSeconds != nil && r == types.ResourceSTT {
			q = ptr(m.STTSeconds.Div(secondsPerMinute))
		}
	case types.PriceUnitSecond:
		if r == types.ResourceSTT {
			q = m.STTSeconds
		}
	case types.PriceUnitCharacter:
		if r == types.ResourceTTS {
			q = m.TTSCharacters
		}
	case types.PriceUnitWord:
		switch r {
		case types.ResourceTTS:
			q = m.TTSWords
		case types.ResourceLLM:
			q = m.LLMWords
		}
	case types.PriceUnitToken:
		switch r {
		case types.ResourceLLM:
			q = m.LLMTokens
		case types.ResourceEmbedding:
			q = m.EmbeddingTokens
		}
	case types.PriceUnitGB:
		if m.StorageBytes != nil && r == types.ResourceStorage {
			q = ptr(m.StorageBytes.Div(bytesPerGB))
		}
	}

	if q == nil {
		return decimal.Zero, ierr.NewErrorf("usage for %s has no quantity in %s", r, unit).
			WithHintf("Usage data for %s must be provided in %s", r, unit).
			WithReportableDetails(map[string]any{
				"error_kind": types.ErrorKindMissingUsageData,
				"resource":   r,
				"unit":       unit,
			}).
			Mark(ierr.ErrValidation)
	}
	return *q, nil
}

// Validate rejects negative quantities
func (m *Metrics) Validate() error {
	for name, v := range map[string]*decimal.Decimal{
		"stt_seconds":      m.STTSeconds,
		"tts_characters":   m.TTSCharacters,
		"tts_words":        m.TTSWords,
		"llm_tokens":       m.LLMTokens,
		"llm_words":        m.LLMWords,
		"embedding_tokens": m.EmbeddingTokens,
		"storage_bytes":    m.StorageBytes,
	} {
		if v != nil && v.IsNegative() {
			return ierr.NewErrorf("%s must not be negative", name).
				WithHintf("%s must not be negative", name).
				WithReportableDetails(map[string]any{"error_kind": types.ErrorKindInvalidAmount, "field": name}).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// Record is one priced usage event. EventID makes ingestion idempotent.
type Record struct {
	ID            string                                       `db:"id" json:"id"`
	EventID       string                                       `db:"event_id" json:"event_id"`
	WorkspaceID   string                                       `db:"workspace_id" json:"workspace_id"`
	ServiceType   types.ServiceType                            `db:"service_type" json:"service_type"`
	ServiceID     string                                       `db:"service_id" json:"service_id"`
	CostMode      types.CostMode                               `db:"cost_mode" json:"cost_mode"`
	Metrics       types.JSONColumn[Metrics]                    `db:"metrics" json:"metrics"`
	Breakdown     types.JSONColumn[map[string]decimal.Decimal] `db:"cost_breakdown" json:"cost_breakdown"`
	// TotalCost is the metered amount charged for the event. Flat fees appear
	// only in Breakdown.
	TotalCost     decimal.Decimal                              `db:"total_cost" json:"total_cost"`
	Billed        bool                                         `db:"billed" json:"billed"`
	TransactionID *string                                      `db:"transaction_id" json:"transaction_id,omitempty"`
	OccurredAt    time.Time                                    `db:"occurred_at" json:"occurred_at"`
	CreatedAt     time.Time                                    `db:"created_at" json:"created_at"`
}

// AllowanceCounter tracks included quantity consumed in a month under fixed pricing
type AllowanceCounter struct {
	WorkspaceID string          `db:"workspace_id" json:"workspace_id"`
	ServiceID   string          `db:"service_id" json:"service_id"`
	Resource    types.Resource  `db:"resource" json:"resource"`
	PeriodStart time.Time       `db:"period_start" json:"period_start"`
	Consumed    decimal.Decimal `db:"consumed" json:"consumed"`
}

// Repository persists usage records and allowance counters
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	GetByEventID(ctx context.Context, eventID string) (*Record, error)
	// SumTotalCost sums total_cost of a service's records in [from, to)
	SumTotalCost(ctx context.Context, workspaceID, serviceID string, from, to time.Time) (decimal.Decimal, error)
	GetAllowanceConsumed(ctx context.Context, serviceID string, r types.Resource, periodStart time.Time) (decimal.Decimal, error)
	AddAllowanceConsumed(ctx context.Context, counter *AllowanceCounter) error
}
