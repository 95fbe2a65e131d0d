package credit

import (
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// Alert is a persisted notice about a threshold breach or state change.
// Alerts are marked read or dismissed, never deleted.
type Alert struct {
	ID          string              `db:"id" json:"id"`
	AccountID   string              `db:"account_id" json:"account_id"`
	WorkspaceID string              `db:"workspace_id" json:"workspace_id"`
	AlertType   types.AlertType     `db:"alert_type" json:"alert_type"`
	Severity    types.AlertSeverity `db:"severity" json:"severity"`
	Title       string              `db:"title" json:"title"`
	Message     string              `db:"message" json:"message"`
	Balance     decimal.Decimal     `db:"balance" json:"balance"`
	Threshold   decimal.NullDecimal `db:"threshold" json:"threshold"`
	IsRead      bool                `db:"is_read" json:"is_read"`
	IsDismissed bool                `db:"is_dismissed" json:"is_dismissed"`
	ReadAt      *time.Time          `db:"read_at" json:"read_at,omitempty"`
	DismissedAt *time.Time          `db:"dismissed_at" json:"dismissed_at,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
}

// NewAlert builds an unread alert for an account
func NewAlert(acc *Account, alertType types.AlertType, severity types.AlertSeverity, title, message string) *Alert {
	return &Alert{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CREDIT_ALERT),
		AccountID:   acc.ID,
		WorkspaceID: acc.WorkspaceID,
		AlertType:   alertType,
		Severity:    severity,
		Title:       title,
		Message:     message,
		Balance:     acc.CurrentBalance,
		CreatedAt:   time.Now().UTC(),
	}
}

// WithThreshold records the threshold that was crossed
func (a *Alert) WithThreshold(threshold decimal.Decimal) *Alert {
	a.Threshold = decimal.NewNullDecimal(threshold)
	return a
}

// Apply performs a caller action on the alert
func (a *Alert) Apply(action types.AlertAction, at time.Time) error {
	if err := action.Validate(); err != nil {
		return err
	}
	switch action {
	case types.AlertActionRead:
		if !a.IsRead {
			a.IsRead = true
			a.ReadAt = &at
		}
	case types.AlertActionDismiss:
		if !a.IsDismissed {
			a.IsDismissed = true
			a.DismissedAt = &at
		}
	}
	return nil
}

func (a *Alert) Validate() error {
	if a.WorkspaceID == "" || a.AccountID == "" {
		return ierr.NewError("alert must reference an account").
			WithHint("Alert account is required").
			Mark(ierr.ErrValidation)
	}
	return a.AlertType.Validate()
}

// AlertFilter scopes alert listing
type AlertFilter struct {
	*types.QueryFilter
	WorkspaceID      string          `json:"workspace_id" form:"workspace_id"`
	AlertType        types.AlertType `json:"alert_type,omitempty" form:"alert_type"`
	IncludeDismissed bool            `json:"include_dismissed" form:"include_dismissed"`
	UnreadOnly       bool            `json:"unread_only" form:"unread_only"`
}

func NewAlertFilter() *AlertFilter {
	return &AlertFilter{QueryFilter: types.NewDefaultQueryFilter()}
}

func (f *AlertFilter) Validate() error {
	if f.QueryFilter == nil {
		f.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := f.QueryFilter.Validate(); err != nil {
		return ierr.WithError(err).WithHint("Invalid pagination").Mark(ierr.ErrValidation)
	}
	if f.AlertType != "" {
		return f.AlertType.Validate()
	}
	return nil
}
