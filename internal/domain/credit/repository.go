package credit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/types"
)

// Repository persists accounts and their ledger rows
type Repository interface {
	// Account operations
	CreateAccount(ctx context.Context, acc *Account) error
	GetAccountByID(ctx context.Context, id string) (*Account, error)
	GetAccountByWorkspaceID(ctx context.Context, workspaceID string) (*Account, error)
	// Lock* take a row lock held until the enclosing transaction ends
	LockAccountByID(ctx context.Context, id string) (*Account, error)
	LockAccountByWorkspaceID(ctx context.Context, workspaceID string) (*Account, error)
	UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal) error
	UpdateSuspension(ctx context.Context, id string, suspended bool, reason *string, at *time.Time) error
	UpdateAccountStatus(ctx context.Context, id string, isActive bool) error
	ListAccounts(ctx context.Context, filter *AccountFilter) ([]*Account, error)

	// Transaction operations
	CreateTransaction(ctx context.Context, txn *Transaction) error
	ListTransactions(ctx context.Context, filter *TransactionFilter) ([]*Transaction, error)
	CountTransactions(ctx context.Context, filter *TransactionFilter) (int, error)
	// ListAllTransactions returns every row of an account in replay order
	ListAllTransactions(ctx context.Context, accountID string) ([]*Transaction, error)
	SumTransactions(ctx context.Context, workspaceID string, txnType types.TransactionType, from, to time.Time) (decimal.Decimal, error)
	// HasReference reports whether any transaction already points at the reference
	HasReference(ctx context.Context, referenceType, referenceID string) (bool, error)
}

// AlertRepository persists credit alerts
type AlertRepository interface {
	Create(ctx context.Context, alert *Alert) error
	Get(ctx context.Context, id string) (*Alert, error)
	List(ctx context.Context, filter *AlertFilter) ([]*Alert, error)
	Count(ctx context.Context, filter *AlertFilter) (int, error)
	Update(ctx context.Context, alert *Alert) error
	// HasUndismissedSince backs alert deduplication
	HasUndismissedSince(ctx context.Context, workspaceID string, alertType types.AlertType, since time.Time) (bool, error)
}

// MonitoringLogRepository persists credit monitor runs
type MonitoringLogRepository interface {
	Create(ctx context.Context, log *MonitoringLog) error
	GetLatest(ctx context.Context) (*MonitoringLog, error)
}
