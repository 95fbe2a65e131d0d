package service

import (
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/domain/credit"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/payment"
	"github.com/voxagent/billing/internal/testutil"
	"github.com/voxagent/billing/internal/types"
)

type CreditServiceSuite struct {
	ServiceTestSuite
}

func TestCreditService(t *testing.T) {
	suite.Run(t, new(CreditServiceSuite))
}

func (s *CreditServiceSuite) balanceOf(workspaceID string) decimal.Decimal {
	acc, err := s.GetStores().CreditRepo.GetAccountByWorkspaceID(s.GetContext(), workspaceID)
	s.Require().NoError(err)
	return acc.CurrentBalance
}

func (s *CreditServiceSuite) TestLedgerScenario() {
	acc := s.CreateAccount("ws_1", decimal.NewFromInt(100))
	system := types.SystemCaller()

	res, err := s.credit.Debit(s.GetContext(), system, &dto.DebitRequest{
		WorkspaceID: "ws_1",
		Amount:      decimal.NewFromInt(30),
		Description: "usage",
	})
	s.Require().NoError(err)
	s.True(res.NewBalance.Equal(decimal.NewFromInt(70)))

	res, err = s.credit.Recharge(s.GetContext(), system, &dto.RechargeRequest{
		WorkspaceID: "ws_1",
		Amount:      decimal.NewFromInt(50),
	})
	s.Require().NoError(err)
	s.True(res.NewBalance.Equal(decimal.NewFromInt(120)))

	_, err = s.credit.Debit(s.GetContext(), system, &dto.DebitRequest{
		WorkspaceID: "ws_1",
		Amount:      decimal.NewFromInt(200),
	})
	s.Require().Error(err)
	s.True(ierr.IsInsufficientBalance(err))
	s.Equal(types.ErrorKindInsufficientBalance, ierr.Kind(err))

	stored, err := s.GetStores().CreditRepo.GetAccountByID(s.GetContext(), acc.ID)
	s.Require().NoError(err)
	s.True(stored.CurrentBalance.Equal(decimal.NewFromInt(120)))

	txns, err := s.GetStores().CreditRepo.ListAllTransactions(s.GetContext(), acc.ID)
	s.Require().NoError(err)
	s.Require().Len(txns, 2)

	debit := txns[0]
	s.Equal(types.TransactionTypeDebit, debit.TransactionType)
	s.True(debit.Amount.Equal(decimal.NewFromInt(-30)))
	s.True(debit.BalanceBefore.Equal(decimal.NewFromInt(100)))
	s.True(debit.BalanceAfter.Equal(decimal.NewFromInt(70)))

	recharge := txns[1]
	s.Equal(types.TransactionTypeRecharge, recharge.TransactionType)
	s.True(recharge.BalanceBefore.Equal(debit.BalanceAfter))

	verification, err := s.credit.VerifyLedger(s.GetContext(), system, "ws_1")
	s.Require().NoError(err)
	s.False(verification.Consistent, "seeded opening balance has no ledger row")
}

func (s *CreditServiceSuite) TestVerifyLedger() {
	s.CreateAccount("ws_1", decimal.Zero)
	system := types.SystemCaller()

	for _, amount := range []int64{40, 25} {
		_, err := s.credit.Recharge(s.GetContext(), system, &dto.RechargeRequest{
			WorkspaceID: "ws_1",
			Amount:      decimal.NewFromInt(amount),
		})
		s.Require().NoError(err)
	}
	_, err := s.credit.Debit(s.GetContext(), system, &dto.DebitRequest{
		WorkspaceID: "ws_1",
		Amount:      decimal.NewFromInt(15),
	})
	s.Require().NoError(err)

	result, err := s.credit.VerifyLedger(s.GetContext(), system, "ws_1")
	s.Require().NoError(err)
	s.True(result.Consistent)
	s.Equal(3, result.TransactionCount)
	s.True(result.ComputedBalance.Equal(decimal.NewFromInt(50)))
	s.Nil(result.BrokenChainAt)

	// a row written outside the ledger breaks the chain
	acc, err := s.GetStores().CreditRepo.GetAccountByWorkspaceID(s.GetContext(), "ws_1")
	s.Require().NoError(err)
	s.GetStores().CreditRepo.AddTransaction(&credit.Transaction{
		ID:              "ctxn_rogue",
		AccountID:       acc.ID,
		WorkspaceID:     "ws_1",
		TransactionType: types.TransactionTypeAdjustment,
		Amount:          decimal.NewFromInt(5),
		BalanceBefore:   decimal.NewFromInt(999),
		BalanceAfter:    decimal.NewFromInt(1004),
		CreatedAt:       s.GetNow().AddDate(0, 0, 1),
	})

	result, err = s.credit.VerifyLedger(s.GetContext(), system, "ws_1")
	s.Require().NoError(err)
	s.False(result.Consistent)
	s.Equal("ctxn_rogue", lo.FromPtr(result.BrokenChainAt))
	s.True(result.Difference.Equal(decimal.NewFromInt(-5)))
}

func (s *CreditServiceSuite) TestValidationAndAuthorization() {
	s.CreateAccount("ws_1", decimal.NewFromInt(10))
	member := testutil.MemberOf("user_1", "ws_1")

	tests := []struct {
		name  string
		run   func() error
		check func(error) bool
	}{
		{
			name: "negative recharge",
			run: func() error {
				_, err := s.credit.Recharge(s.GetContext(), member, &dto.RechargeRequest{
					WorkspaceID: "ws_1",
					Amount:      decimal.NewFromInt(-5),
				})
				return err
			},
			check: ierr.IsValidation,
		},
		{
			name: "recharge of another workspace",
			run: func() error {
				_, err := s.credit.Recharge(s.GetContext(), member, &dto.RechargeRequest{
					WorkspaceID: "ws_2",
					Amount:      decimal.NewFromInt(5),
				})
				return err
			},
			check: ierr.IsPermissionDenied,
		},
		{
			name: "member adjustment",
			run: func() error {
				_, err := s.credit.AdjustBalance(s.GetContext(), member, &dto.AdjustBalanceRequest{
					WorkspaceID: "ws_1",
					Amount:      decimal.NewFromInt(5),
					Description: "goodwill",
				})
				return err
			},
			check: ierr.IsPermissionDenied,
		},
		{
			name: "unknown account",
			run: func() error {
				_, err := s.credit.Debit(s.GetContext(), types.SystemCaller(), &dto.DebitRequest{
					WorkspaceID: "ws_missing",
					Amount:      decimal.NewFromInt(1),
				})
				return err
			},
			check: ierr.IsNotFound,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := tt.run()
			s.Require().Error(err)
			s.True(tt.check(err), "unexpected error: %v", err)
		})
	}
}

func (s *CreditServiceSuite) TestAdjustmentMayOverdraw() {
	s.CreateAccount("ws_1", decimal.NewFromInt(10))

	res, err := s.credit.AdjustBalance(s.GetContext(), testutil.Admin("admin_1"), &dto.AdjustBalanceRequest{
		WorkspaceID: "ws_1",
		Amount:      decimal.NewFromInt(-25),
		Description: "chargeback",
	})
	s.Require().NoError(err)
	s.True(res.NewBalance.Equal(decimal.NewFromInt(-15)))
}

func (s *CreditServiceSuite) TestDebitNeverOverdrawsDespiteCreditLimit() {
	acc := s.CreateAccount("ws_1", decimal.NewFromInt(10))
	acc.CreditLimit = decimal.NewFromInt(20)
	s.GetStores().CreditRepo.SetAccount(acc)

	_, err := s.credit.Debit(s.GetContext(), types.SystemCaller(), &dto.DebitRequest{
		WorkspaceID: "ws_1",
		Amount:      decimal.NewFromInt(30),
	})
	s.True(ierr.IsInsufficientBalance(err))

	res, err := s.credit.Debit(s.GetContext(), types.SystemCaller(), &dto.DebitRequest{
		WorkspaceID: "ws_1",
		Amount:      decimal.NewFromInt(10),
	})
	s.Require().NoError(err)
	s.True(res.NewBalance.IsZero())

	// admin adjustments may still cross zero
	adj, err := s.credit.AdjustBalance(s.GetContext(), testutil.Admin("user_admin"), &dto.AdjustBalanceRequest{
		AccountID:   acc.ID,
		Amount:      decimal.NewFromInt(-5),
		Description: "manual correction",
	})
	s.Require().NoError(err)
	s.True(adj.NewBalance.Equal(decimal.NewFromInt(-5)))
}

func (s *CreditServiceSuite) TestMemberRechargeRequiresSettledPayment() {
	s.CreateAccount("ws_1", decimal.NewFromInt(10))
	member := testutil.MemberOf("user_1", "ws_1")

	gw := s.GetGateway()
	gw.AddPayment(&payment.Payment{ID: "pi_ok", Status: "succeeded", Amount: decimal.NewFromInt(25), Currency: "USD", Succeeded: true})
	gw.AddPayment(&payment.Payment{ID: "pi_pending", Status: "processing", Amount: decimal.NewFromInt(25), Currency: "USD"})
	gw.AddPayment(&payment.Payment{ID: "pi_eur", Status: "succeeded", Amount: decimal.NewFromInt(25), Currency: "EUR", Succeeded: true})

	recharge := func(paymentID string, amount int64) error {
		_, err := s.credit.Recharge(s.GetContext(), member, &dto.RechargeRequest{
			WorkspaceID: "ws_1",
			Amount:      decimal.NewFromInt(amount),
			PaymentID:   paymentID,
		})
		return err
	}

	tests := []struct {
		name      string
		paymentID string
		amount    int64
		check     func(error) bool
	}{
		{name: "no payment reference", amount: 5, check: ierr.IsPermissionDenied},
		{name: "unknown payment", paymentID: "pi_missing", amount: 5, check: ierr.IsNotFound},
		{name: "payment not settled", paymentID: "pi_pending", amount: 5, check: ierr.IsInvalidOperation},
		{name: "more than was paid", paymentID: "pi_ok", amount: 30, check: ierr.IsValidation},
		{name: "other currency", paymentID: "pi_eur", amount: 5, check: ierr.IsValidation},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := recharge(tt.paymentID, tt.amount)
			s.Error(err)
			s.True(tt.check(err), "unexpected error: %v", err)
		})
	}
	s.True(decimal.NewFromInt(10).Equal(s.balanceOf("ws_1")))

	s.Require().NoError(recharge("pi_ok", 25))
	s.True(decimal.NewFromInt(35).Equal(s.balanceOf("ws_1")))

	err := recharge("pi_ok", 25)
	s.True(ierr.IsAlreadyExists(err), "a payment funds one recharge, got %v", err)
	s.True(decimal.NewFromInt(35).Equal(s.balanceOf("ws_1")))
}

func (s *CreditServiceSuite) TestSuspendIsIdempotent() {
	s.CreateAccount("ws_1", decimal.Zero)
	system := types.SystemCaller()

	first, err := s.credit.Suspend(s.GetContext(), system, "ws_1", types.SuspensionReasonBalanceDepleted, types.AlertTypeAutoSuspension)
	s.Require().NoError(err)
	s.True(first.Changed)

	second, err := s.credit.Suspend(s.GetContext(), system, "ws_1", types.SuspensionReasonBalanceDepleted, types.AlertTypeAutoSuspension)
	s.Require().NoError(err)
	s.False(second.Changed)
	s.True(second.IsSuspended)

	alerts := s.GetStores().AlertRepo.ListByWorkspace("ws_1")
	s.Len(alerts, 1)
	s.Equal(types.AlertTypeAutoSuspension, alerts[0].AlertType)
	s.Len(s.WebhookEvents(types.WebhookEventCreditAccountSuspended), 1)
}

func (s *CreditServiceSuite) TestRechargeResumesAutoSuspension() {
	s.CreateAccount("ws_1", decimal.Zero)
	system := types.SystemCaller()

	_, err := s.credit.Suspend(s.GetContext(), system, "ws_1", types.SuspensionReasonBalanceDepleted, types.AlertTypeAutoSuspension)
	s.Require().NoError(err)

	res, err := s.credit.Recharge(s.GetContext(), system, &dto.RechargeRequest{
		WorkspaceID: "ws_1",
		Amount:      decimal.NewFromInt(20),
	})
	s.Require().NoError(err)
	s.True(res.Resumed)
	s.False(res.IsSuspended)

	alertTypes := lo.Map(s.GetStores().AlertRepo.ListByWorkspace("ws_1"), func(a *credit.Alert, _ int) types.AlertType {
		return a.AlertType
	})
	s.Contains(alertTypes, types.AlertTypeServiceResumed)
	s.Contains(alertTypes, types.AlertTypeReactivation)
	s.Len(s.WebhookEvents(types.WebhookEventCreditAccountResumed), 1)
	s.Len(s.WebhookEvents(types.WebhookEventCreditRecharged), 1)
}

func (s *CreditServiceSuite) TestRechargeKeepsManualSuspension() {
	s.CreateAccount("ws_1", decimal.Zero)
	system := types.SystemCaller()

	_, err := s.credit.Suspend(s.GetContext(), system, "ws_1", "fraud review", "")
	s.Require().NoError(err)

	res, err := s.credit.Recharge(s.GetContext(), system, &dto.RechargeRequest{
		WorkspaceID: "ws_1",
		Amount:      decimal.NewFromInt(20),
	})
	s.Require().NoError(err)
	s.False(res.Resumed)
	s.True(res.IsSuspended)
}

func (s *CreditServiceSuite) TestDeactivatedAccountRejectsMutations() {
	s.CreateAccount("ws_1", decimal.NewFromInt(50))
	admin := testutil.Admin("admin_1")
	s.Require().NoError(s.credit.Deactivate(s.GetContext(), admin, "ws_1"))

	_, err := s.credit.Recharge(s.GetContext(), admin, &dto.RechargeRequest{
		WorkspaceID: "ws_1",
		Amount:      decimal.NewFromInt(5),
	})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))

	_, err = s.credit.AdjustBalance(s.GetContext(), admin, &dto.AdjustBalanceRequest{
		WorkspaceID: "ws_1",
		Amount:      decimal.NewFromInt(-50),
		Description: "close out",
	})
	s.NoError(err)
}

func (s *CreditServiceSuite) TestConcurrentDebitsNeverOverdraw() {
	acc := s.CreateAccount("ws_1", decimal.NewFromInt(100))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.credit.Debit(s.GetContext(), types.SystemCaller(), &dto.DebitRequest{
				WorkspaceID: "ws_1",
				Amount:      decimal.NewFromInt(10),
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(10, accepted)
	stored, err := s.GetStores().CreditRepo.GetAccountByID(s.GetContext(), acc.ID)
	s.Require().NoError(err)
	s.True(stored.CurrentBalance.IsZero())

	txns, err := s.GetStores().CreditRepo.ListAllTransactions(s.GetContext(), acc.ID)
	s.Require().NoError(err)
	s.Len(txns, 10)
}

func (s *CreditServiceSuite) TestListTransactions() {
	s.CreateAccount("ws_1", decimal.Zero)
	system := types.SystemCaller()
	for i := 1; i <= 3; i++ {
		_, err := s.credit.Recharge(s.GetContext(), system, &dto.RechargeRequest{
			WorkspaceID: "ws_1",
			Amount:      decimal.NewFromInt(int64(i)),
		})
		s.Require().NoError(err)
	}

	req := &dto.ListTransactionsRequest{WorkspaceID: "ws_1", Limit: lo.ToPtr(2)}
	resp, err := s.credit.ListTransactions(s.GetContext(), testutil.MemberOf("user_1", "ws_1"), req.ToFilter())
	s.Require().NoError(err)
	s.Len(resp.Items, 2)
	s.Equal(3, resp.Pagination.Total)
	s.True(resp.Items[0].Amount.Equal(decimal.NewFromInt(3)), "newest first")

	_, err = s.credit.ListTransactions(s.GetContext(), testutil.MemberOf("user_2", "ws_2"), req.ToFilter())
	s.True(ierr.IsPermissionDenied(err))
}
