package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/voxagent/billing/internal/domain/credit"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/postgres"
	"github.com/voxagent/billing/internal/types"
)

type CreditRepositorySuite struct {
	suite.Suite
	ctx  context.Context
	mock sqlmock.Sqlmock
	db   *postgres.DB
	repo credit.Repository
}

func TestCreditRepository(t *testing.T) {
	suite.Run(t, new(CreditRepositorySuite))
}

func (s *CreditRepositorySuite) SetupTest() {
	sqlDB, mock, err := sqlmock.New()
	s.Require().NoError(err)

	log := logger.NewNoopLogger()
	s.ctx = context.Background()
	s.mock = mock
	s.db = postgres.NewFromSQLX(sqlx.NewDb(sqlDB, "postgres"), log)
	s.repo = NewCreditRepository(s.db, log)
}

func (s *CreditRepositorySuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func accountRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "workspace_id", "user_id", "current_balance", "currency", "credit_limit",
		"low_balance_threshold", "auto_recharge_enabled", "auto_recharge_amount", "auto_recharge_threshold",
		"is_active", "is_suspended", "suspension_reason", "suspended_at", "payment_customer_id",
		"payment_method_id", "created_at", "updated_at",
	}).AddRow(
		"cacc_1", "ws_1", "user_1", "100.50", "USD", "0",
		"10", false, "50", "5",
		true, false, nil, nil, nil,
		nil, now, now,
	)
}

func (s *CreditRepositorySuite) TestLockAccountByWorkspaceID_UsesRowLock() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`(?s)SELECT .* FROM credit_accounts WHERE workspace_id = \$1 FOR UPDATE`).
		WithArgs("ws_1").
		WillReturnRows(accountRows())
	s.mock.ExpectCommit()

	err := s.db.WithTx(s.ctx, func(ctx context.Context) error {
		acc, err := s.repo.LockAccountByWorkspaceID(ctx, "ws_1")
		s.Require().NoError(err)
		s.Equal("cacc_1", acc.ID)
		s.True(decimal.RequireFromString("100.50").Equal(acc.CurrentBalance))
		return nil
	})
	s.NoError(err)
}

func (s *CreditRepositorySuite) TestGetAccountByWorkspaceID_NotFound() {
	s.mock.ExpectQuery(`(?s)SELECT .* FROM credit_accounts WHERE workspace_id = \$1`).
		WithArgs("ws_missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.repo.GetAccountByWorkspaceID(s.ctx, "ws_missing")
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *CreditRepositorySuite) TestCreateTransaction_ReturnsSeq() {
	txn := &credit.Transaction{
		ID:              "ctxn_1",
		AccountID:       "cacc_1",
		WorkspaceID:     "ws_1",
		UserID:          "user_1",
		TransactionType: types.TransactionTypeDebit,
		Amount:          decimal.NewFromInt(-30),
		BalanceBefore:   decimal.NewFromInt(100),
		BalanceAfter:    decimal.NewFromInt(70),
		Description:     "usage",
		CreatedBy:       "system",
		CreatedAt:       time.Now().UTC(),
	}

	s.mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO credit_transactions`)).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(42)))

	s.Require().NoError(s.repo.CreateTransaction(s.ctx, txn))
	s.Equal(int64(42), txn.Seq)
}

func (s *CreditRepositorySuite) TestUpdateAccountBalance_NoRows() {
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE credit_accounts SET current_balance = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.repo.UpdateAccountBalance(s.ctx, "cacc_missing", decimal.NewFromInt(1))
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *CreditRepositorySuite) TestSumTransactions() {
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(amount), 0) FROM credit_transactions`)).
		WithArgs("ws_1", string(types.TransactionTypeDebit), from, to).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("-123.4567"))

	sum, err := s.repo.SumTransactions(s.ctx, "ws_1", types.TransactionTypeDebit, from, to)
	s.Require().NoError(err)
	s.Equal("-123.4567", sum.String())
}

func (s *CreditRepositorySuite) TestHasReference() {
	s.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("payment", "pi_1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	used, err := s.repo.HasReference(s.ctx, "payment", "pi_1")
	s.Require().NoError(err)
	s.True(used)
}

func TestPaginate(t *testing.T) {
	query, args := paginate("SELECT 1 WHERE a = $1", []interface{}{"x"}, "created_at", "asc", 10, 20)
	assert.Equal(t, "SELECT 1 WHERE a = $1 ORDER BY created_at asc LIMIT $2 OFFSET $3", query)
	require.Len(t, args, 3)

	query, args = paginate("SELECT 1", nil, "created_at", "bogus", 0, 0)
	assert.Equal(t, "SELECT 1 ORDER BY created_at desc", query)
	assert.Empty(t, args)
}
