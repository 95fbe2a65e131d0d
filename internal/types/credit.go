package types

import (
	"strings"
	"time"

	ierr "github.com/voxagent/billing/internal/errors"
)

// TransactionType is the kind of balance mutation recorded in the credit ledger
type TransactionType string

const (
	TransactionTypeRecharge   TransactionType = "recharge"
	TransactionTypeDebit      TransactionType = "debit"
	TransactionTypeAdjustment TransactionType = "adjustment"
	TransactionTypeRefund     TransactionType = "refund"
)

func (t TransactionType) Validate() error {
	switch t {
	case TransactionTypeRecharge, TransactionTypeDebit, TransactionTypeAdjustment, TransactionTypeRefund:
		return nil
	}
	return ierr.NewErrorf("invalid transaction type: %s", t).
		WithHint("Invalid transaction type").
		Mark(ierr.ErrValidation)
}

// AlertType identifies the threshold breach or state change an alert records
type AlertType string

const (
	AlertTypeLowBalance       AlertType = "low_balance"
	AlertTypeCriticalBalance  AlertType = "critical_balance"
	AlertTypeServiceSuspended AlertType = "service_suspended"
	AlertTypeServiceResumed   AlertType = "service_resumed"
	AlertTypeAutoSuspension   AlertType = "auto_suspension"
	AlertTypeRecharge         AlertType = "recharge"
	AlertTypeReactivation     AlertType = "reactivation"
)

func (t AlertType) Validate() error {
	switch t {
	case AlertTypeLowBalance, AlertTypeCriticalBalance, AlertTypeServiceSuspended,
		AlertTypeServiceResumed, AlertTypeAutoSuspension, AlertTypeRecharge, AlertTypeReactivation:
		return nil
	}
	return ierr.NewErrorf("invalid alert type: %s", t).
		WithHint("Invalid alert type").
		Mark(ierr.ErrValidation)
}

type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertAction is the caller-side mutation permitted on an alert
type AlertAction string

const (
	AlertActionRead    AlertAction = "read"
	AlertActionDismiss AlertAction = "dismiss"
)

func (a AlertAction) Validate() error {
	switch a {
	case AlertActionRead, AlertActionDismiss:
		return nil
	}
	return ierr.NewErrorf("invalid alert action: %s", a).
		WithHint("Action must be one of: read, dismiss").
		Mark(ierr.ErrValidation)
}

// AlertPeriod is the window within which an undismissed alert of the same
// type suppresses a new one
type AlertPeriod string

const (
	AlertPeriodDay   AlertPeriod = "day"
	AlertPeriodWeek  AlertPeriod = "week"
	AlertPeriodMonth AlertPeriod = "month"
)

func (p AlertPeriod) Validate() error {
	switch p {
	case AlertPeriodDay, AlertPeriodWeek, AlertPeriodMonth:
		return nil
	}
	return ierr.NewErrorf("invalid alert period: %s", p).
		WithHint("Alert period must be one of: day, week, month").
		Mark(ierr.ErrValidation)
}

// Start returns the beginning of the period containing now, in UTC.
// Weeks start on Monday. An empty period is a calendar month.
func (p AlertPeriod) Start(now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case AlertPeriodDay:
		return day
	case AlertPeriodWeek:
		return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	default:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

// AutoSuspensionPrefix marks suspension reasons set by the system rather than an operator.
// Only these suspensions are lifted automatically by a recharge.
const AutoSuspensionPrefix = "auto:"

const (
	SuspensionReasonBalanceDepleted = "auto: balance depleted"
	SuspensionReasonUsageRejected   = "auto: insufficient balance for usage"
)

// IsAutoSuspension reports whether the suspension reason was set by the system
func IsAutoSuspension(reason string) bool {
	return strings.HasPrefix(strings.TrimSpace(reason), AutoSuspensionPrefix)
}

// MonitorRunStatus is the outcome recorded on a credit monitoring log row
type MonitorRunStatus string

const (
	MonitorRunStatusCompleted MonitorRunStatus = "completed"
	MonitorRunStatusPartial   MonitorRunStatus = "partial"
	MonitorRunStatusSkipped   MonitorRunStatus = "skipped"
)
