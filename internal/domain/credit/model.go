package credit

import (
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// Account is the prepaid balance of one workspace
type Account struct {
	ID                    string          `db:"id" json:"id"`
	WorkspaceID           string          `db:"workspace_id" json:"workspace_id"`
	UserID                string          `db:"user_id" json:"user_id"`
	CurrentBalance        decimal.Decimal `db:"current_balance" json:"current_balance"`
	Currency              string          `db:"currency" json:"currency"`
	// CreditLimit is reported to billing tooling only. Non-admin debits never
	// take the balance below zero.
	CreditLimit           decimal.Decimal `db:"credit_limit" json:"credit_limit"`
	LowBalanceThreshold   decimal.Decimal `db:"low_balance_threshold" json:"low_balance_threshold"`
	AutoRechargeEnabled   bool            `db:"auto_recharge_enabled" json:"auto_recharge_enabled"`
	AutoRechargeAmount    decimal.Decimal `db:"auto_recharge_amount" json:"auto_recharge_amount"`
	AutoRechargeThreshold decimal.Decimal `db:"auto_recharge_threshold" json:"auto_recharge_threshold"`
	IsActive              bool            `db:"is_active" json:"is_active"`
	IsSuspended           bool            `db:"is_suspended" json:"is_suspended"`
	SuspensionReason      *string         `db:"suspension_reason" json:"suspension_reason,omitempty"`
	SuspendedAt           *time.Time      `db:"suspended_at" json:"suspended_at,omitempty"`
	PaymentCustomerID     *string         `db:"payment_customer_id" json:"payment_customer_id,omitempty"`
	PaymentMethodID       *string         `db:"payment_method_id" json:"payment_method_id,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

// Default thresholds applied when an account is created implicitly
var (
	DefaultLowBalanceThreshold   = decimal.NewFromInt(10)
	DefaultAutoRechargeThreshold = decimal.NewFromInt(5)
	DefaultAutoRechargeAmount    = decimal.NewFromInt(50)
)

// NewAccount builds an active, unsuspended account with a zero balance
func NewAccount(workspaceID, userID, currency string) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:                    types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CREDIT_ACCOUNT),
		WorkspaceID:           workspaceID,
		UserID:                userID,
		CurrentBalance:        decimal.Zero,
		Currency:              currency,
		CreditLimit:           decimal.Zero,
		LowBalanceThreshold:   DefaultLowBalanceThreshold,
		AutoRechargeAmount:    DefaultAutoRechargeAmount,
		AutoRechargeThreshold: DefaultAutoRechargeThreshold,
		IsActive:              true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// SuspensionReasonValue returns the reason or an empty string
func (a *Account) SuspensionReasonValue() string {
	if a.SuspensionReason == nil {
		return ""
	}
	return *a.SuspensionReason
}

// CanAutoResume reports whether a recharge should lift the current suspension
func (a *Account) CanAutoResume() bool {
	return a.IsSuspended && types.IsAutoSuspension(a.SuspensionReasonValue()) &&
		a.CurrentBalance.GreaterThan(decimal.Zero)
}

// CriticalThreshold is the balance below which the account is auto-suspended
func (a *Account) CriticalThreshold() decimal.Decimal {
	return decimal.Zero
}

// NeedsAutoRecharge reports whether the monitor should attempt an auto-recharge
func (a *Account) NeedsAutoRecharge() bool {
	return a.AutoRechargeEnabled &&
		a.AutoRechargeAmount.GreaterThan(decimal.Zero) &&
		a.CurrentBalance.LessThanOrEqual(a.AutoRechargeThreshold)
}

// Transaction is one append-only ledger row
type Transaction struct {
	ID              string                `db:"id" json:"id"`
	AccountID       string                `db:"account_id" json:"account_id"`
	WorkspaceID     string                `db:"workspace_id" json:"workspace_id"`
	UserID          string                `db:"user_id" json:"user_id"`
	TransactionType types.TransactionType `db:"transaction_type" json:"transaction_type"`
	Amount          decimal.Decimal       `db:"amount" json:"amount"`
	BalanceBefore   decimal.Decimal       `db:"balance_before" json:"balance_before"`
	BalanceAfter    decimal.Decimal       `db:"balance_after" json:"balance_after"`
	Description     string                `db:"description" json:"description"`
	ReferenceType   *string               `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID     *string               `db:"reference_id" json:"reference_id,omitempty"`
	// Seq breaks created_at ties when replaying
	Seq       int64     `db:"seq" json:"seq"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Validate enforces the per-type sign rules of a ledger row. Amounts are
// signed: debits are negative, recharges and refunds positive.
func (t *Transaction) Validate() error {
	if err := t.TransactionType.Validate(); err != nil {
		return err
	}

	switch t.TransactionType {
	case types.TransactionTypeRecharge, types.TransactionTypeRefund:
		if !t.Amount.IsPositive() {
			return invalidTransactionAmount(t, "%s amount must be greater than 0")
		}
	case types.TransactionTypeDebit:
		if !t.Amount.IsNegative() {
			return invalidTransactionAmount(t, "%s amount must be stored negative")
		}
	case types.TransactionTypeAdjustment:
		if t.Amount.IsZero() {
			return invalidTransactionAmount(t, "%s amount must not be zero")
		}
	}

	if !t.BalanceBefore.Add(t.Amount).Equal(t.BalanceAfter) {
		return ierr.NewError("balance_after does not follow from balance_before and amount").
			WithHint("Ledger row is inconsistent").
			Mark(ierr.ErrSystem)
	}
	return nil
}

func invalidTransactionAmount(t *Transaction, format string) error {
	return ierr.NewErrorf(format, t.TransactionType).
		WithHint("Transaction amount is invalid").
		WithReportableDetails(map[string]any{
			"error_kind": types.ErrorKindInvalidAmount,
			"amount":     t.Amount.String(),
		}).
		Mark(ierr.ErrValidation)
}

// TransactionFilter scopes ledger reads
type TransactionFilter struct {
	*types.QueryFilter
	*types.TimeRangeFilter
	WorkspaceID      string                  `json:"workspace_id" form:"workspace_id"`
	AccountID        string                  `json:"account_id,omitempty" form:"account_id"`
	TransactionTypes []types.TransactionType `json:"transaction_types,omitempty" form:"transaction_types"`
}

func NewTransactionFilter() *TransactionFilter {
	return &TransactionFilter{QueryFilter: types.NewDefaultQueryFilter()}
}

func (f *TransactionFilter) Validate() error {
	if f.QueryFilter == nil {
		f.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := f.QueryFilter.Validate(); err != nil {
		return ierr.WithError(err).WithHint("Invalid pagination").Mark(ierr.ErrValidation)
	}
	if f.TimeRangeFilter != nil {
		if err := f.TimeRangeFilter.Validate(); err != nil {
			return ierr.WithError(err).WithHint("Invalid time range").Mark(ierr.ErrValidation)
		}
	}
	for _, t := range f.TransactionTypes {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// AccountFilter scopes account listing for the monitor sweep
type AccountFilter struct {
	WorkspaceIDs []string
	OnlyActive   bool
}
