package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/domain/credit"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// InMemoryCreditStore implements credit.Repository. Row locks are emulated by
// the serialized MockPostgresClient, so Lock* behave like plain reads here.
type InMemoryCreditStore struct {
	accounts *InMemoryStore[*credit.Account]

	mu           sync.RWMutex
	transactions []*credit.Transaction
	seq          int64
}

var _ credit.Repository = (*InMemoryCreditStore)(nil)

func NewInMemoryCreditStore() *InMemoryCreditStore {
	return &InMemoryCreditStore{
		accounts: NewInMemoryStore[*credit.Account](),
	}
}

func (s *InMemoryCreditStore) CreateAccount(ctx context.Context, acc *credit.Account) error {
	if _, err := s.GetAccountByWorkspaceID(ctx, acc.WorkspaceID); err == nil {
		return alreadyExists(acc.WorkspaceID)
	}
	return s.accounts.Create(ctx, acc.ID, clone(acc))
}

func (s *InMemoryCreditStore) GetAccountByID(ctx context.Context, id string) (*credit.Account, error) {
	acc, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return clone(acc), nil
}

func (s *InMemoryCreditStore) GetAccountByWorkspaceID(ctx context.Context, workspaceID string) (*credit.Account, error) {
	accounts, err := s.accounts.List(ctx, workspaceID, func(_ context.Context, acc *credit.Account, f interface{}) bool {
		return acc.WorkspaceID == f.(string)
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, notFound(workspaceID)
	}
	return clone(accounts[0]), nil
}

func (s *InMemoryCreditStore) LockAccountByID(ctx context.Context, id string) (*credit.Account, error) {
	return s.GetAccountByID(ctx, id)
}

func (s *InMemoryCreditStore) LockAccountByWorkspaceID(ctx context.Context, workspaceID string) (*credit.Account, error) {
	return s.GetAccountByWorkspaceID(ctx, workspaceID)
}

func (s *InMemoryCreditStore) update(ctx context.Context, id string, fn func(acc *credit.Account)) error {
	acc, err := s.GetAccountByID(ctx, id)
	if err != nil {
		return err
	}
	fn(acc)
	acc.UpdatedAt = time.Now().UTC()
	return s.accounts.Update(ctx, id, acc)
}

func (s *InMemoryCreditStore) UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	return s.update(ctx, id, func(acc *credit.Account) {
		acc.CurrentBalance = balance
	})
}

func (s *InMemoryCreditStore) UpdateSuspension(ctx context.Context, id string, suspended bool, reason *string, at *time.Time) error {
	return s.update(ctx, id, func(acc *credit.Account) {
		acc.IsSuspended = suspended
		acc.SuspensionReason = reason
		acc.SuspendedAt = at
	})
}

func (s *InMemoryCreditStore) UpdateAccountStatus(ctx context.Context, id string, isActive bool) error {
	return s.update(ctx, id, func(acc *credit.Account) {
		acc.IsActive = isActive
	})
}

// SetAccount overwrites an account, used to arrange fixtures
func (s *InMemoryCreditStore) SetAccount(acc *credit.Account) {
	s.accounts.mu.Lock()
	defer s.accounts.mu.Unlock()
	s.accounts.items[acc.ID] = clone(acc)
}

func (s *InMemoryCreditStore) ListAccounts(ctx context.Context, filter *credit.AccountFilter) ([]*credit.Account, error) {
	accounts, err := s.accounts.List(ctx, filter, func(_ context.Context, acc *credit.Account, f interface{}) bool {
		filter := f.(*credit.AccountFilter)
		if filter == nil {
			return true
		}
		if filter.OnlyActive && !acc.IsActive {
			return false
		}
		return len(filter.WorkspaceIDs) == 0 || lo.Contains(filter.WorkspaceIDs, acc.WorkspaceID)
	}, func(i, j *credit.Account) bool {
		return i.WorkspaceID < j.WorkspaceID
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(accounts, func(acc *credit.Account, _ int) *credit.Account { return clone(acc) }), nil
}

func (s *InMemoryCreditStore) CreateTransaction(ctx context.Context, txn *credit.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.transactions {
		if existing.ID == txn.ID {
			return alreadyExists(txn.ID)
		}
	}
	s.seq++
	txn.Seq = s.seq
	s.transactions = append(s.transactions, clone(txn))
	return nil
}

func (s *InMemoryCreditStore) matching(filter *credit.TransactionFilter) []*credit.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := lo.Filter(s.transactions, func(txn *credit.Transaction, _ int) bool {
		if filter.WorkspaceID != "" && txn.WorkspaceID != filter.WorkspaceID {
			return false
		}
		if filter.AccountID != "" && txn.AccountID != filter.AccountID {
			return false
		}
		if len(filter.TransactionTypes) > 0 && !lo.Contains(filter.TransactionTypes, txn.TransactionType) {
			return false
		}
		if filter.TimeRangeFilter != nil {
			if filter.StartTime != nil && txn.CreatedAt.Before(*filter.StartTime) {
				return false
			}
			if filter.EndTime != nil && !txn.CreatedAt.Before(*filter.EndTime) {
				return false
			}
		}
		return true
	})
	return lo.Map(result, func(txn *credit.Transaction, _ int) *credit.Transaction { return clone(txn) })
}

func (s *InMemoryCreditStore) ListTransactions(ctx context.Context, filter *credit.TransactionFilter) ([]*credit.Transaction, error) {
	result := s.matching(filter)
	desc := filter.QueryFilter == nil || filter.GetOrder() == types.OrderDesc
	sort.SliceStable(result, func(i, j int) bool {
		if desc {
			return result[i].Seq > result[j].Seq
		}
		return result[i].Seq < result[j].Seq
	})

	if filter.QueryFilter == nil || filter.IsUnlimited() {
		return result, nil
	}
	start := lo.Min([]int{filter.GetOffset(), len(result)})
	end := lo.Min([]int{start + filter.GetLimit(), len(result)})
	return result[start:end], nil
}

func (s *InMemoryCreditStore) CountTransactions(ctx context.Context, filter *credit.TransactionFilter) (int, error) {
	return len(s.matching(filter)), nil
}

func (s *InMemoryCreditStore) ListAllTransactions(ctx context.Context, accountID string) ([]*credit.Transaction, error) {
	result := s.matching(&credit.TransactionFilter{AccountID: accountID})
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

func (s *InMemoryCreditStore) SumTransactions(ctx context.Context, workspaceID string, txnType types.TransactionType, from, to time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, txn := range s.matching(&credit.TransactionFilter{WorkspaceID: workspaceID}) {
		if txn.TransactionType != txnType || txn.CreatedAt.Before(from) || !txn.CreatedAt.Before(to) {
			continue
		}
		sum = sum.Add(txn.Amount)
	}
	return sum, nil
}

func (s *InMemoryCreditStore) HasReference(ctx context.Context, referenceType, referenceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, txn := range s.transactions {
		if lo.FromPtr(txn.ReferenceType) == referenceType && lo.FromPtr(txn.ReferenceID) == referenceID {
			return true, nil
		}
	}
	return false, nil
}

// AddTransaction appends a raw ledger row, used to arrange corrupted ledgers
func (s *InMemoryCreditStore) AddTransaction(txn *credit.Transaction) {
	_ = s.CreateTransaction(context.Background(), txn)
}

func (s *InMemoryCreditStore) Clear() {
	s.accounts.Clear()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = nil
	s.seq = 0
}

// InMemoryAlertStore implements credit.AlertRepository
type InMemoryAlertStore struct {
	*InMemoryStore[*credit.Alert]
}

var _ credit.AlertRepository = (*InMemoryAlertStore)(nil)

func NewInMemoryAlertStore() *InMemoryAlertStore {
	return &InMemoryAlertStore{InMemoryStore: NewInMemoryStore[*credit.Alert]()}
}

func (s *InMemoryAlertStore) Create(ctx context.Context, alert *credit.Alert) error {
	return s.InMemoryStore.Create(ctx, alert.ID, clone(alert))
}

func (s *InMemoryAlertStore) Get(ctx context.Context, id string) (*credit.Alert, error) {
	alert, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return clone(alert), nil
}

func alertFilterFn(_ context.Context, alert *credit.Alert, f interface{}) bool {
	filter := f.(*credit.AlertFilter)
	if filter.WorkspaceID != "" && alert.WorkspaceID != filter.WorkspaceID {
		return false
	}
	if filter.AlertType != "" && alert.AlertType != filter.AlertType {
		return false
	}
	if !filter.IncludeDismissed && alert.IsDismissed {
		return false
	}
	return !filter.UnreadOnly || !alert.IsRead
}

func (s *InMemoryAlertStore) List(ctx context.Context, filter *credit.AlertFilter) ([]*credit.Alert, error) {
	return s.InMemoryStore.List(ctx, filter, alertFilterFn, func(i, j *credit.Alert) bool {
		return i.CreatedAt.After(j.CreatedAt)
	})
}

func (s *InMemoryAlertStore) Count(ctx context.Context, filter *credit.AlertFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, alertFilterFn)
}

func (s *InMemoryAlertStore) Update(ctx context.Context, alert *credit.Alert) error {
	return s.InMemoryStore.Update(ctx, alert.ID, clone(alert))
}

func (s *InMemoryAlertStore) HasUndismissedSince(ctx context.Context, workspaceID string, alertType types.AlertType, since time.Time) (bool, error) {
	count, err := s.InMemoryStore.Count(ctx, nil, func(_ context.Context, alert *credit.Alert, _ interface{}) bool {
		return alert.WorkspaceID == workspaceID &&
			alert.AlertType == alertType &&
			!alert.IsDismissed &&
			!alert.CreatedAt.Before(since)
	})
	return count > 0, err
}

// ListByWorkspace returns every alert of a workspace, oldest first
func (s *InMemoryAlertStore) ListByWorkspace(workspaceID string) []*credit.Alert {
	alerts, _ := s.InMemoryStore.List(context.Background(), nil, func(_ context.Context, alert *credit.Alert, _ interface{}) bool {
		return alert.WorkspaceID == workspaceID
	}, func(i, j *credit.Alert) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})
	return alerts
}

// InMemoryMonitoringLogStore implements credit.MonitoringLogRepository
type InMemoryMonitoringLogStore struct {
	*InMemoryStore[*credit.MonitoringLog]
}

var _ credit.MonitoringLogRepository = (*InMemoryMonitoringLogStore)(nil)

func NewInMemoryMonitoringLogStore() *InMemoryMonitoringLogStore {
	return &InMemoryMonitoringLogStore{InMemoryStore: NewInMemoryStore[*credit.MonitoringLog]()}
}

func (s *InMemoryMonitoringLogStore) Create(ctx context.Context, log *credit.MonitoringLog) error {
	return s.InMemoryStore.Create(ctx, log.ID, clone(log))
}

func (s *InMemoryMonitoringLogStore) GetLatest(ctx context.Context) (*credit.MonitoringLog, error) {
	logs, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, log *credit.MonitoringLog, _ interface{}) bool {
		return log.Status != types.MonitorRunStatusSkipped
	}, func(i, j *credit.MonitoringLog) bool {
		return i.StartedAt.After(j.StartedAt)
	})
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, ierr.NewError("no monitoring run recorded").
			WithHint("Monitoring log not found").
			Mark(ierr.ErrNotFound)
	}
	return clone(logs[0]), nil
}

// All returns every recorded run including skipped ones
func (s *InMemoryMonitoringLogStore) All() []*credit.MonitoringLog {
	logs, _ := s.InMemoryStore.List(context.Background(), nil, nil, func(i, j *credit.MonitoringLog) bool {
		return i.StartedAt.Before(j.StartedAt)
	})
	return logs
}
