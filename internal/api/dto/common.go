package dto

import (
	"github.com/shopspring/decimal"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// DisplayAmount rounds a full precision amount for presentation only
func DisplayAmount(amount decimal.Decimal, places int32) string {
	return amount.StringFixed(places)
}

func validatePositiveAmount(amount decimal.Decimal, field string) error {
	if !amount.GreaterThan(decimal.Zero) {
		return ierr.NewErrorf("%s must be greater than 0", field).
			WithHintf("%s must be greater than 0", field).
			WithReportableDetails(map[string]any{
				"error_kind": types.ErrorKindInvalidAmount,
				"amount":     amount.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
