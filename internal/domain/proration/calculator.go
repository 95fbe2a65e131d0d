package proration

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/voxagent/billing/internal/errors"
)

// Calculator computes the fraction of a month a service was active
type Calculator interface {
	Calculate(ctx context.Context, params Params) (*Result, error)
}

// NewCalculator returns the day-based prorata calculator used for monthly billing
func NewCalculator() Calculator {
	return &dayBasedCalculator{}
}

type dayBasedCalculator struct{}

// Calculate counts active days inclusively from max(created, first of month)
// to min(deactivated or now, last of month) over the days in the month.
func (c *dayBasedCalculator) Calculate(ctx context.Context, params Params) (*Result, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}

	monthStart, monthEnd := MonthBounds(params.Year, params.Month, loc)
	totalDays := DaysInMonth(params.Year, params.Month)

	until := params.Now
	if params.ActiveUntil != nil && params.ActiveUntil.Before(until) {
		until = *params.ActiveUntil
	}

	from := startOfDay(params.ActiveFrom.In(loc))
	if from.Before(monthStart) {
		from = monthStart
	}
	to := startOfDay(until.In(loc))
	if to.After(monthEnd) {
		to = monthEnd
	}

	activeDays := 0
	if !to.Before(from) {
		activeDays = daysInDurationWithDST(from, to, loc) + 1
	}

	return &Result{
		ActiveDays: activeDays,
		TotalDays:  totalDays,
		Ratio:      decimal.NewFromInt(int64(activeDays)).Div(decimal.NewFromInt(int64(totalDays))),
		From:       from,
		To:         to,
	}, nil
}

// MonthBounds returns midnight of the first and of the last day of the month
func MonthBounds(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := time.Date(year, month, DaysInMonth(year, month), 0, 0, 0, 0, loc)
	return first, last
}

// MonthRange returns the half-open interval [first of month, first of next month)
func MonthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// DaysInMonth returns the number of calendar days in the month
func DaysInMonth(year int, month time.Month) int {
	// day 0 of the next month normalizes to the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysInDurationWithDST counts calendar days between two points in time,
// using loc for day boundaries so 23 and 25 hour days still count as one.
func daysInDurationWithDST(start, end time.Time, loc *time.Location) int {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)

	days := 0
	current := startDay
	for current.Before(endDay) {
		days++
		next := current.Add(24 * time.Hour)
		current = time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, loc)
	}

	return days
}

func validateParams(params Params) error {
	if params.Month < time.January || params.Month > time.December {
		return ierr.NewErrorf("invalid month %d", params.Month).
			WithHint("Month must be between 1 and 12").
			Mark(ierr.ErrValidation)
	}
	if params.Year < 2000 || params.Year > 9999 {
		return ierr.NewErrorf("invalid year %d", params.Year).
			WithHint("Year is out of range").
			Mark(ierr.ErrValidation)
	}
	if params.ActiveFrom.IsZero() {
		return ierr.NewError("active_from is required").
			WithHint("Service creation time is required for proration").
			Mark(ierr.ErrValidation)
	}
	if params.Now.IsZero() {
		return ierr.NewError("now is required").
			WithHint("Evaluation time is required for proration").
			Mark(ierr.ErrValidation)
	}
	return nil
}
