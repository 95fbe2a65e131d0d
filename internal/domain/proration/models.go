package proration

import (
	"time"

	"github.com/shopspring/decimal"
)

// Params describes one service's lifetime relative to a calendar month.
type Params struct {
	Year  int
	Month time.Month
	// ActiveFrom is when the service was created
	ActiveFrom time.Time
	// ActiveUntil is when the service was deactivated, nil while it is still live
	ActiveUntil *time.Time
	// Now caps the active window for services that are still live
	Now time.Time
	// Location defines day boundaries, UTC when nil
	Location *time.Location
}

// Result holds the prorata of a service for a month.
type Result struct {
	ActiveDays int             `json:"active_days"`
	TotalDays  int             `json:"total_days"`
	Ratio      decimal.Decimal `json:"ratio"`
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
}

// Apply scales a monthly amount by the prorata. Multiplying before dividing keeps
// whole-cent results exact, e.g. 300 × 16 / 30 = 160.
func (r *Result) Apply(amount decimal.Decimal) decimal.Decimal {
	if r.TotalDays == 0 || r.ActiveDays == 0 {
		return decimal.Zero
	}
	if r.ActiveDays == r.TotalDays {
		return amount
	}
	return amount.
		Mul(decimal.NewFromInt(int64(r.ActiveDays))).
		Div(decimal.NewFromInt(int64(r.TotalDays)))
}

// IsFullMonth reports whether the service was active every day of the month
func (r *Result) IsFullMonth() bool {
	return r.ActiveDays == r.TotalDays
}
