package settings

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// Keys of the settings_global rows the pricing resolver reads
const (
	KeyPricingRatesPAG       = "pricing_rates_pag"
	KeyPricingRatesDedicated = "pricing_rates_dedicated"
	KeySubscriptionCosts     = "subscription_costs"
	KeyS3Rates               = "s3_rates"
)

// Setting is one settings_global row. Value is decoded into a typed table on read.
type Setting struct {
	Key       string          `db:"key" json:"key"`
	Value     json.RawMessage `db:"value" json:"value"`
	UpdatedBy string          `db:"updated_by" json:"updated_by"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// RateEntry is a unit price as stored in settings
type RateEntry struct {
	Rate decimal.Decimal `json:"rate"`
	Unit types.PriceUnit `json:"unit"`
}

// PAGRates is the pricing_rates_pag table, keyed by resource
type PAGRates map[types.Resource]RateEntry

// MonthlyRates is the pricing_rates_dedicated and subscription_costs table
type MonthlyRates map[string]decimal.Decimal

// S3Rates is the s3_rates table
type S3Rates struct {
	StorageCostPerGB *decimal.Decimal `json:"storage_cost_per_gb,omitempty"`
}

// Decode parses the row value into out
func (s *Setting) Decode(out interface{}) error {
	if len(s.Value) == 0 {
		return nil
	}
	if err := types.DecodeStrict(s.Value, out); err != nil {
		return ierr.WithError(err).
			WithHintf("Setting %s has an invalid value", s.Key).
			WithReportableDetails(map[string]any{"key": s.Key}).
			Mark(ierr.ErrConfiguration)
	}
	return nil
}

// Validate checks units of a PAG table against the allow-lists
func (r PAGRates) Validate() error {
	for res, entry := range r {
		if err := res.Validate(); err != nil {
			return ierr.WithError(err).Mark(ierr.ErrConfiguration)
		}
		if err := types.ValidateUnitForResource(res, entry.Unit); err != nil {
			return err
		}
		if entry.Rate.IsNegative() {
			return ierr.NewErrorf("negative %s rate in %s", res, KeyPricingRatesPAG).
				WithHint("Global pricing contains a negative rate").
				Mark(ierr.ErrConfiguration)
		}
	}
	return nil
}
