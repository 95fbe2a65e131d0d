package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/domain/credit"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/postgres"
	"github.com/voxagent/billing/internal/types"
)

const accountColumns = `id, workspace_id, user_id, current_balance, currency, credit_limit,
	low_balance_threshold, auto_recharge_enabled, auto_recharge_amount, auto_recharge_threshold,
	is_active, is_suspended, suspension_reason, suspended_at, payment_customer_id,
	payment_method_id, created_at, updated_at`

const transactionColumns = `id, account_id, workspace_id, user_id, transaction_type, amount,
	balance_before, balance_after, description, reference_type, reference_id, seq,
	created_by, created_at`

type creditRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewCreditRepository creates the sqlx-backed credit ledger repository
func NewCreditRepository(db *postgres.DB, logger *logger.Logger) credit.Repository {
	return &creditRepository{
		db:     db,
		logger: logger,
	}
}

func (r *creditRepository) CreateAccount(ctx context.Context, acc *credit.Account) error {
	query := `
		INSERT INTO credit_accounts (` + accountColumns + `)
		VALUES (:id, :workspace_id, :user_id, :current_balance, :currency, :credit_limit,
			:low_balance_threshold, :auto_recharge_enabled, :auto_recharge_amount, :auto_recharge_threshold,
			:is_active, :is_suspended, :suspension_reason, :suspended_at, :payment_customer_id,
			:payment_method_id, :created_at, :updated_at)`

	r.logger.Debugw("creating credit account",
		"account_id", acc.ID,
		"workspace_id", acc.WorkspaceID,
	)

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, acc); err != nil {
		return mapError(err, "Credit account", map[string]any{"workspace_id": acc.WorkspaceID})
	}
	return nil
}

func (r *creditRepository) GetAccountByID(ctx context.Context, id string) (*credit.Account, error) {
	return r.getAccount(ctx, `SELECT `+accountColumns+` FROM credit_accounts WHERE id = $1`, id)
}

func (r *creditRepository) GetAccountByWorkspaceID(ctx context.Context, workspaceID string) (*credit.Account, error) {
	return r.getAccount(ctx, `SELECT `+accountColumns+` FROM credit_accounts WHERE workspace_id = $1`, workspaceID)
}

func (r *creditRepository) LockAccountByID(ctx context.Context, id string) (*credit.Account, error) {
	r.warnIfNoTx(ctx, id)
	return r.getAccount(ctx, `SELECT `+accountColumns+` FROM credit_accounts WHERE id = $1 FOR UPDATE`, id)
}

func (r *creditRepository) LockAccountByWorkspaceID(ctx context.Context, workspaceID string) (*credit.Account, error) {
	r.warnIfNoTx(ctx, workspaceID)
	return r.getAccount(ctx, `SELECT `+accountColumns+` FROM credit_accounts WHERE workspace_id = $1 FOR UPDATE`, workspaceID)
}

func (r *creditRepository) warnIfNoTx(ctx context.Context, key string) {
	if !postgres.InTx(ctx) {
		r.logger.Warnw("row lock requested outside a transaction, lock is released immediately", "key", key)
	}
}

func (r *creditRepository) getAccount(ctx context.Context, query string, arg string) (*credit.Account, error) {
	var acc credit.Account
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &acc, query, arg); err != nil {
		return nil, mapError(err, "Credit account", map[string]any{"key": arg})
	}
	return &acc, nil
}

func (r *creditRepository) UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	query := `UPDATE credit_accounts SET current_balance = $1, updated_at = $2 WHERE id = $3`

	res, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, balance, time.Now().UTC(), id)
	if err != nil {
		return mapError(err, "Credit account", map[string]any{"account_id": id})
	}
	return requireAffected(res, "Credit account", map[string]any{"account_id": id})
}

func (r *creditRepository) UpdateSuspension(ctx context.Context, id string, suspended bool, reason *string, at *time.Time) error {
	query := `
		UPDATE credit_accounts
		SET is_suspended = $1, suspension_reason = $2, suspended_at = $3, updated_at = $4
		WHERE id = $5`

	res, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, suspended, reason, at, time.Now().UTC(), id)
	if err != nil {
		return mapError(err, "Credit account", map[string]any{"account_id": id})
	}
	return requireAffected(res, "Credit account", map[string]any{"account_id": id})
}

func (r *creditRepository) UpdateAccountStatus(ctx context.Context, id string, isActive bool) error {
	query := `UPDATE credit_accounts SET is_active = $1, updated_at = $2 WHERE id = $3`

	res, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, isActive, time.Now().UTC(), id)
	if err != nil {
		return mapError(err, "Credit account", map[string]any{"account_id": id})
	}
	return requireAffected(res, "Credit account", map[string]any{"account_id": id})
}

func (r *creditRepository) ListAccounts(ctx context.Context, filter *credit.AccountFilter) ([]*credit.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM credit_accounts WHERE 1=1`
	args := []interface{}{}

	if filter != nil {
		if filter.OnlyActive {
			query += ` AND is_active = true`
		}
		if len(filter.WorkspaceIDs) > 0 {
			args = append(args, pq.Array(filter.WorkspaceIDs))
			query += ` AND workspace_id = ANY($1)`
		}
	}
	query += ` ORDER BY workspace_id`

	var accounts []*credit.Account
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &accounts, query, args...); err != nil {
		return nil, mapError(err, "Credit accounts", nil)
	}
	return accounts, nil
}

// CreateTransaction appends a ledger row. seq is assigned by the database sequence.
func (r *creditRepository) CreateTransaction(ctx context.Context, txn *credit.Transaction) error {
	query := `
		INSERT INTO credit_transactions (id, account_id, workspace_id, user_id, transaction_type,
			amount, balance_before, balance_after, description, reference_type, reference_id,
			created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING seq`

	r.logger.Debugw("creating credit transaction",
		"transaction_id", txn.ID,
		"workspace_id", txn.WorkspaceID,
		"type", txn.TransactionType,
		"amount", txn.Amount,
	)

	err := r.db.GetQuerier(ctx).QueryRowxContext(ctx, query,
		txn.ID, txn.AccountID, txn.WorkspaceID, txn.UserID, txn.TransactionType,
		txn.Amount, txn.BalanceBefore, txn.BalanceAfter, txn.Description, txn.ReferenceType, txn.ReferenceID,
		txn.CreatedBy, txn.CreatedAt,
	).Scan(&txn.Seq)
	if err != nil {
		return mapError(err, "Credit transaction", map[string]any{"account_id": txn.AccountID})
	}
	return nil
}

func (r *creditRepository) transactionWhere(filter *credit.TransactionFilter) (string, []interface{}) {
	where := ` WHERE 1=1`
	args := []interface{}{}

	if filter.WorkspaceID != "" {
		args = append(args, filter.WorkspaceID)
		where += ` AND workspace_id = $` + itoa(len(args))
	}
	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		where += ` AND account_id = $` + itoa(len(args))
	}
	if len(filter.TransactionTypes) > 0 {
		args = append(args, pq.Array(lo.Map(filter.TransactionTypes, func(t types.TransactionType, _ int) string { return string(t) })))
		where += ` AND transaction_type = ANY($` + itoa(len(args)) + `)`
	}
	if filter.TimeRangeFilter != nil {
		if filter.StartTime != nil {
			args = append(args, *filter.StartTime)
			where += ` AND created_at >= $` + itoa(len(args))
		}
		if filter.EndTime != nil {
			args = append(args, *filter.EndTime)
			where += ` AND created_at < $` + itoa(len(args))
		}
	}
	return where, args
}

func (r *creditRepository) ListTransactions(ctx context.Context, filter *credit.TransactionFilter) ([]*credit.Transaction, error) {
	where, args := r.transactionWhere(filter)
	query, args := paginate(`SELECT `+transactionColumns+` FROM credit_transactions`+where, args,
		"created_at "+filter.GetOrder()+", seq", filter.GetOrder(), filter.GetLimit(), filter.GetOffset())

	var txns []*credit.Transaction
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &txns, query, args...); err != nil {
		return nil, mapError(err, "Credit transactions", map[string]any{"workspace_id": filter.WorkspaceID})
	}
	return txns, nil
}

func (r *creditRepository) CountTransactions(ctx context.Context, filter *credit.TransactionFilter) (int, error) {
	where, args := r.transactionWhere(filter)

	var count int
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &count, `SELECT COUNT(*) FROM credit_transactions`+where, args...); err != nil {
		return 0, mapError(err, "Credit transactions", map[string]any{"workspace_id": filter.WorkspaceID})
	}
	return count, nil
}

func (r *creditRepository) ListAllTransactions(ctx context.Context, accountID string) ([]*credit.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM credit_transactions
		WHERE account_id = $1 ORDER BY created_at ASC, seq ASC`

	var txns []*credit.Transaction
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &txns, query, accountID); err != nil {
		return nil, mapError(err, "Credit transactions", map[string]any{"account_id": accountID})
	}
	return txns, nil
}

func (r *creditRepository) SumTransactions(ctx context.Context, workspaceID string, txnType types.TransactionType, from, to time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0) FROM credit_transactions
		WHERE workspace_id = $1 AND transaction_type = $2 AND created_at >= $3 AND created_at < $4`

	var sum decimal.Decimal
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &sum, query, workspaceID, txnType, from, to); err != nil {
		return decimal.Zero, mapError(err, "Credit transactions", map[string]any{"workspace_id": workspaceID})
	}
	return sum, nil
}

func (r *creditRepository) HasReference(ctx context.Context, referenceType, referenceID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM credit_transactions WHERE reference_type = $1 AND reference_id = $2
		)`

	var exists bool
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &exists, query, referenceType, referenceID); err != nil {
		return false, mapError(err, "Credit transactions", map[string]any{"reference_id": referenceID})
	}
	return exists, nil
}
