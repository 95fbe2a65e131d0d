package service

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/domain/credit"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/metrics"
	"github.com/voxagent/billing/internal/postgres"
	"github.com/voxagent/billing/internal/types"
)

// postgres error codes worth retrying a whole ledger transaction for
var retryableLedgerCodes = []pq.ErrorCode{
	"40001", // serialization_failure
	"40P01", // deadlock_detected
	"55P03", // lock_not_available
}

const notifyTimeout = 5 * time.Second

// CreditService is the credit ledger. Every balance change writes exactly one
// transaction row in the same database transaction as the balance update.
type CreditService interface {
	EnsureAccount(ctx context.Context, workspaceID, userID, currency string) (*credit.Account, error)
	GetBalance(ctx context.Context, caller types.Caller, workspaceID string) (*dto.CreditBalanceResponse, error)

	Debit(ctx context.Context, caller types.Caller, req *dto.DebitRequest) (*dto.LedgerResult, error)
	Recharge(ctx context.Context, caller types.Caller, req *dto.RechargeRequest) (*dto.LedgerResult, error)
	AdjustBalance(ctx context.Context, caller types.Caller, req *dto.AdjustBalanceRequest) (*dto.LedgerResult, error)
	Refund(ctx context.Context, caller types.Caller, req *dto.RefundRequest) (*dto.LedgerResult, error)

	Suspend(ctx context.Context, caller types.Caller, workspaceID, reason string, alertType types.AlertType) (*dto.SuspensionResult, error)
	Unsuspend(ctx context.Context, caller types.Caller, workspaceID, reason string) (*dto.SuspensionResult, error)
	Deactivate(ctx context.Context, caller types.Caller, workspaceID string) error

	ListTransactions(ctx context.Context, caller types.Caller, filter *credit.TransactionFilter) (*dto.ListTransactionsResponse, error)
	VerifyLedger(ctx context.Context, caller types.Caller, workspaceID string) (*dto.LedgerVerification, error)
}

type creditService struct {
	ServiceParams
}

func NewCreditService(params ServiceParams) CreditService {
	return &creditService{ServiceParams: params}
}

// creditOperation describes one balance mutation
type creditOperation struct {
	WorkspaceID   string
	AccountID     string
	Type          types.TransactionType
	Amount        decimal.Decimal
	Description   string
	ReferenceType string
	ReferenceID   string
	// Overdraft lets admin adjustments take the balance below zero
	Overdraft bool
	// AfterUpdate runs inside the transaction once the new balance is applied
	AfterUpdate func(ctx context.Context, acc *credit.Account, n *notifications) error
}

// creditEvent is the webhook payload of credit notifications
type creditEvent struct {
	WorkspaceID string           `json:"workspace_id"`
	AccountID   string           `json:"account_id"`
	Balance     decimal.Decimal  `json:"balance"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Threshold   *decimal.Decimal `json:"threshold,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	AlertID     string           `json:"alert_id,omitempty"`
}

type notification struct {
	workspaceID string
	event       string
	payload     creditEvent
}

// notifications are collected inside a transaction and sent after it commits
type notifications []notification

func (n *notifications) add(acc *credit.Account, event string, alert *credit.Alert, amount *decimal.Decimal) {
	payload := creditEvent{
		WorkspaceID: acc.WorkspaceID,
		AccountID:   acc.ID,
		Balance:     acc.CurrentBalance,
		Amount:      amount,
		Reason:      acc.SuspensionReasonValue(),
	}
	if alert != nil {
		payload.AlertID = alert.ID
		if alert.Threshold.Valid {
			payload.Threshold = lo.ToPtr(alert.Threshold.Decimal)
		}
	}
	*n = append(*n, notification{workspaceID: acc.WorkspaceID, event: event, payload: payload})
}

func (s *creditService) EnsureAccount(ctx context.Context, workspaceID, userID, currency string) (*credit.Account, error) {
	acc, err := s.CreditRepo.GetAccountByWorkspaceID(ctx, workspaceID)
	if err == nil {
		return acc, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	if currency == "" {
		currency = s.Config.Billing.DefaultCurrency
	}
	acc = credit.NewAccount(workspaceID, userID, currency)
	if err := s.CreditRepo.CreateAccount(ctx, acc); err != nil {
		// another request created it first
		if ierr.IsAlreadyExists(err) {
			return s.CreditRepo.GetAccountByWorkspaceID(ctx, workspaceID)
		}
		return nil, err
	}

	s.Logger.Infow("created credit account",
		"account_id", acc.ID,
		"workspace_id", workspaceID,
	)
	return acc, nil
}

func (s *creditService) GetBalance(ctx context.Context, caller types.Caller, workspaceID string) (*dto.CreditBalanceResponse, error) {
	if err := caller.RequireWorkspace(workspaceID); err != nil {
		return nil, err
	}
	acc, err := s.CreditRepo.GetAccountByWorkspaceID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return dto.NewCreditBalanceResponse(acc, s.Config.Billing.DisplayPrecision), nil
}

func (s *creditService) Debit(ctx context.Context, caller types.Caller, req *dto.DebitRequest) (*dto.LedgerResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := caller.RequireCreditManagement(); err != nil {
		return nil, err
	}

	return s.processCreditOperation(ctx, caller, &creditOperation{
		WorkspaceID:   req.WorkspaceID,
		Type:          types.TransactionTypeDebit,
		Amount:        req.Amount,
		Description:   req.Description,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
	})
}

const referenceTypePayment = "payment"

// verifyRechargePayment checks that a self-service recharge is backed by a
// settled payment of at least the recharged amount that funded nothing else
func (s *creditService) verifyRechargePayment(ctx context.Context, req *dto.RechargeRequest) error {
	if req.PaymentID == "" {
		return ierr.NewError("recharge without payment reference").
			WithHint("A payment_id is required to recharge credits").
			Mark(ierr.ErrPermissionDenied)
	}

	acc, err := s.CreditRepo.GetAccountByWorkspaceID(ctx, req.WorkspaceID)
	if err != nil {
		return err
	}

	used, err := s.CreditRepo.HasReference(ctx, referenceTypePayment, req.PaymentID)
	if err != nil {
		return err
	}
	if used {
		return ierr.NewErrorf("payment %s already funded a recharge", req.PaymentID).
			WithHint("This payment was already credited").
			WithReportableDetails(map[string]any{"payment_id": req.PaymentID}).
			Mark(ierr.ErrAlreadyExists)
	}

	p, err := s.PaymentGateway.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return err
	}
	details := map[string]any{
		"payment_id":     p.ID,
		"payment_status": p.Status,
		"paid_amount":    p.Amount.String(),
		"paid_currency":  p.Currency,
	}
	if !p.Succeeded {
		return ierr.NewErrorf("payment %s has status %s", p.ID, p.Status).
			WithHint("The payment has not succeeded yet").
			WithReportableDetails(details).
			Mark(ierr.ErrInvalidOperation)
	}
	if !strings.EqualFold(p.Currency, acc.Currency) || req.Amount.GreaterThan(p.Amount) {
		return ierr.NewErrorf("payment %s does not cover %s %s", p.ID, req.Amount, acc.Currency).
			WithHint("Recharge amount must not exceed the payment").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Recharge adds credit. A recharge that brings an automatically suspended
// account back above zero lifts the suspension in the same transaction.
func (s *creditService) Recharge(ctx context.Context, caller types.Caller, req *dto.RechargeRequest) (*dto.LedgerResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := caller.RequireWorkspace(req.WorkspaceID); err != nil {
		return nil, err
	}
	if !caller.CanManageCredits {
		if err := s.verifyRechargePayment(ctx, req); err != nil {
			return nil, err
		}
	}

	var resumed bool
	op := &creditOperation{
		WorkspaceID: req.WorkspaceID,
		Type:        types.TransactionTypeRecharge,
		Amount:      req.Amount,
		Description: lo.Ternary(req.Description != "", req.Description, "Credit recharge"),
	}
	if req.PaymentID != "" {
		op.ReferenceType = referenceTypePayment
		op.ReferenceID = req.PaymentID
	}
	op.AfterUpdate = func(ctx context.Context, acc *credit.Account, n *notifications) error {
		resumed = false
		alert := credit.NewAlert(acc, types.AlertTypeRecharge, types.AlertSeverityInfo,
			"Credits recharged",
			"Your credit balance was recharged by "+dto.DisplayAmount(req.Amount, s.Config.Billing.DisplayPrecision)+" "+acc.Currency)
		if err := s.AlertRepo.Create(ctx, alert); err != nil {
			return err
		}
		n.add(acc, types.WebhookEventCreditRecharged, alert, lo.ToPtr(req.Amount))

		if !acc.CanAutoResume() {
			return nil
		}
		if _, err := s.unsuspendLocked(ctx, acc, "auto: balance restored by recharge", n); err != nil {
			return err
		}
		reactivation := credit.NewAlert(acc, types.AlertTypeReactivation, types.AlertSeverityInfo,
			"Service reactivated",
			"Your services were reactivated after a recharge")
		if err := s.AlertRepo.Create(ctx, reactivation); err != nil {
			return err
		}
		resumed = true
		return nil
	}

	result, err := s.processCreditOperation(ctx, caller, op)
	if err != nil {
		return nil, err
	}
	result.Resumed = resumed
	return result, nil
}

func (s *creditService) AdjustBalance(ctx context.Context, caller types.Caller, req *dto.AdjustBalanceRequest) (*dto.LedgerResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := caller.RequireCreditManagement(); err != nil {
		return nil, err
	}

	return s.processCreditOperation(ctx, caller, &creditOperation{
		AccountID:   req.AccountID,
		WorkspaceID: req.WorkspaceID,
		Type:        types.TransactionTypeAdjustment,
		Amount:      req.Amount,
		Description: req.Description,
		Overdraft:   true,
	})
}

func (s *creditService) Refund(ctx context.Context, caller types.Caller, req *dto.RefundRequest) (*dto.LedgerResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := caller.RequireCreditManagement(); err != nil {
		return nil, err
	}

	op := &creditOperation{
		WorkspaceID: req.WorkspaceID,
		Type:        types.TransactionTypeRefund,
		Amount:      req.Amount,
		Description: lo.Ternary(req.Description != "", req.Description, "Credit refund"),
	}
	if req.ReferenceID != "" {
		op.ReferenceType = "refund"
		op.ReferenceID = req.ReferenceID
	}
	return s.processCreditOperation(ctx, caller, op)
}

func (s *creditService) processCreditOperation(ctx context.Context, caller types.Caller, op *creditOperation) (*dto.LedgerResult, error) {
	s.Logger.Debugw("processing credit operation",
		"workspace_id", op.WorkspaceID,
		"account_id", op.AccountID,
		"type", op.Type,
		"amount", op.Amount,
	)

	var (
		result  *dto.LedgerResult
		pending notifications
	)
	err := s.withLedgerTx(ctx, func(ctx context.Context) error {
		// closures may run more than once when the transaction is retried
		result = nil
		pending = nil

		acc, err := s.lockAccount(ctx, op.AccountID, op.WorkspaceID)
		if err != nil {
			return err
		}
		if !acc.IsActive && op.Type != types.TransactionTypeAdjustment {
			return ierr.NewErrorf("credit account %s is deactivated", acc.ID).
				WithHint("Credit account is deactivated").
				WithReportableDetails(map[string]any{"workspace_id": acc.WorkspaceID}).
				Mark(ierr.ErrInvalidOperation)
		}

		txn := &credit.Transaction{
			ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CREDIT_TRANSACTION),
			AccountID:       acc.ID,
			WorkspaceID:     acc.WorkspaceID,
			UserID:          acc.UserID,
			TransactionType: op.Type,
			Amount:          lo.Ternary(op.Type == types.TransactionTypeDebit, op.Amount.Neg(), op.Amount),
			BalanceBefore:   acc.CurrentBalance,
			Description:     op.Description,
			CreatedBy:       caller.UserID,
			CreatedAt:       time.Now().UTC(),
		}
		if op.ReferenceType != "" {
			txn.ReferenceType = lo.ToPtr(op.ReferenceType)
			txn.ReferenceID = lo.ToPtr(op.ReferenceID)
		}
		txn.BalanceAfter = txn.BalanceBefore.Add(txn.Amount)

		if err := txn.Validate(); err != nil {
			return err
		}
		if !op.Overdraft && txn.BalanceAfter.IsNegative() {
			return insufficientBalance(acc, op.Amount)
		}

		if err := s.CreditRepo.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		if err := s.CreditRepo.UpdateAccountBalance(ctx, acc.ID, txn.BalanceAfter); err != nil {
			return err
		}
		acc.CurrentBalance = txn.BalanceAfter

		if op.AfterUpdate != nil {
			if err := op.AfterUpdate(ctx, acc, &pending); err != nil {
				return err
			}
		}

		result = &dto.LedgerResult{
			TransactionID:   txn.ID,
			AccountID:       acc.ID,
			WorkspaceID:     acc.WorkspaceID,
			PreviousBalance: txn.BalanceBefore,
			NewBalance:      txn.BalanceAfter,
			IsSuspended:     acc.IsSuspended,
		}
		return nil
	})

	metrics.LedgerMutationsTotal.WithLabelValues(string(op.Type), ledgerOutcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("credit operation completed",
		"workspace_id", result.WorkspaceID,
		"transaction_id", result.TransactionID,
		"type", op.Type,
		"previous_balance", result.PreviousBalance,
		"new_balance", result.NewBalance,
	)

	s.sendNotifications(ctx, pending)
	return result, nil
}

// Suspend is idempotent: an already suspended account is left untouched
func (s *creditService) Suspend(ctx context.Context, caller types.Caller, workspaceID, reason string, alertType types.AlertType) (*dto.SuspensionResult, error) {
	if err := caller.RequireCreditManagement(); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "suspended by administrator"
	}
	if alertType == "" {
		alertType = types.AlertTypeServiceSuspended
	}
	if err := alertType.Validate(); err != nil {
		return nil, err
	}

	var (
		result  *dto.SuspensionResult
		pending notifications
	)
	err := s.withLedgerTx(ctx, func(ctx context.Context) error {
		pending = nil
		acc, err := s.CreditRepo.LockAccountByWorkspaceID(ctx, workspaceID)
		if err != nil {
			return err
		}
		changed, err := s.suspendLocked(ctx, acc, reason, alertType, &pending)
		if err != nil {
			return err
		}
		result = &dto.SuspensionResult{
			AccountID:   acc.ID,
			WorkspaceID: acc.WorkspaceID,
			IsSuspended: true,
			Changed:     changed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendNotifications(ctx, pending)
	return result, nil
}

func (s *creditService) Unsuspend(ctx context.Context, caller types.Caller, workspaceID, reason string) (*dto.SuspensionResult, error) {
	if err := caller.RequireCreditManagement(); err != nil {
		return nil, err
	}

	var (
		result  *dto.SuspensionResult
		pending notifications
	)
	err := s.withLedgerTx(ctx, func(ctx context.Context) error {
		pending = nil
		acc, err := s.CreditRepo.LockAccountByWorkspaceID(ctx, workspaceID)
		if err != nil {
			return err
		}
		changed, err := s.unsuspendLocked(ctx, acc, reason, &pending)
		if err != nil {
			return err
		}
		result = &dto.SuspensionResult{
			AccountID:   acc.ID,
			WorkspaceID: acc.WorkspaceID,
			IsSuspended: false,
			Changed:     changed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendNotifications(ctx, pending)
	return result, nil
}

// suspendLocked expects the account row to be locked by the caller
func (s *creditService) suspendLocked(ctx context.Context, acc *credit.Account, reason string, alertType types.AlertType, n *notifications) (bool, error) {
	if acc.IsSuspended {
		return false, nil
	}

	now := time.Now().UTC()
	if err := s.CreditRepo.UpdateSuspension(ctx, acc.ID, true, &reason, &now); err != nil {
		return false, err
	}
	acc.IsSuspended = true
	acc.SuspensionReason = &reason
	acc.SuspendedAt = &now

	alert := credit.NewAlert(acc, alertType, types.AlertSeverityCritical, "Service suspended",
		"Your services were suspended: "+reason)
	if err := s.AlertRepo.Create(ctx, alert); err != nil {
		return false, err
	}
	n.add(acc, types.WebhookEventCreditAccountSuspended, alert, nil)

	s.Logger.Infow("suspended credit account",
		"workspace_id", acc.WorkspaceID,
		"reason", reason,
	)
	return true, nil
}

func (s *creditService) unsuspendLocked(ctx context.Context, acc *credit.Account, reason string, n *notifications) (bool, error) {
	if !acc.IsSuspended {
		return false, nil
	}

	if err := s.CreditRepo.UpdateSuspension(ctx, acc.ID, false, nil, nil); err != nil {
		return false, err
	}
	previous := acc.SuspensionReasonValue()
	acc.IsSuspended = false
	acc.SuspensionReason = nil
	acc.SuspendedAt = nil

	message := "Your services were resumed"
	if reason != "" {
		message += ": " + reason
	}
	alert := credit.NewAlert(acc, types.AlertTypeServiceResumed, types.AlertSeverityInfo, "Service resumed", message)
	if err := s.AlertRepo.Create(ctx, alert); err != nil {
		return false, err
	}
	n.add(acc, types.WebhookEventCreditAccountResumed, alert, nil)

	s.Logger.Infow("resumed credit account",
		"workspace_id", acc.WorkspaceID,
		"previous_reason", previous,
	)
	return true, nil
}

func (s *creditService) Deactivate(ctx context.Context, caller types.Caller, workspaceID string) error {
	if err := caller.RequireCreditManagement(); err != nil {
		return err
	}

	return s.withLedgerTx(ctx, func(ctx context.Context) error {
		acc, err := s.CreditRepo.LockAccountByWorkspaceID(ctx, workspaceID)
		if err != nil {
			return err
		}
		if !acc.IsActive {
			return nil
		}
		return s.CreditRepo.UpdateAccountStatus(ctx, acc.ID, false)
	})
}

func (s *creditService) ListTransactions(ctx context.Context, caller types.Caller, filter *credit.TransactionFilter) (*dto.ListTransactionsResponse, error) {
	if filter == nil {
		filter = credit.NewTransactionFilter()
	}
	if err := caller.RequireWorkspace(filter.WorkspaceID); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	txns, err := s.CreditRepo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.CreditRepo.CountTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}

	response := types.NewListResponse(txns, total, filter.GetLimit(), filter.GetOffset())
	return &response, nil
}

// VerifyLedger replays every transaction of the account and compares the result
// with the stored balance
func (s *creditService) VerifyLedger(ctx context.Context, caller types.Caller, workspaceID string) (*dto.LedgerVerification, error) {
	if err := caller.RequireCreditManagement(); err != nil {
		return nil, err
	}

	acc, err := s.CreditRepo.GetAccountByWorkspaceID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	txns, err := s.CreditRepo.ListAllTransactions(ctx, acc.ID)
	if err != nil {
		return nil, err
	}

	result := &dto.LedgerVerification{
		AccountID:        acc.ID,
		WorkspaceID:      acc.WorkspaceID,
		StoredBalance:    acc.CurrentBalance,
		TransactionCount: len(txns),
	}

	running := decimal.Zero
	for _, txn := range txns {
		if result.BrokenChainAt == nil && !txn.BalanceBefore.Equal(running) {
			result.BrokenChainAt = lo.ToPtr(txn.ID)
		}
		running = running.Add(txn.Amount)
	}

	result.ComputedBalance = running
	result.Difference = acc.CurrentBalance.Sub(running)
	result.Consistent = result.Difference.IsZero() && result.BrokenChainAt == nil

	if !result.Consistent {
		s.Logger.Errorw("credit ledger is inconsistent",
			"workspace_id", acc.WorkspaceID,
			"stored_balance", acc.CurrentBalance,
			"computed_balance", running,
			"broken_chain_at", lo.FromPtr(result.BrokenChainAt),
		)
	}
	return result, nil
}

func (s *creditService) lockAccount(ctx context.Context, accountID, workspaceID string) (*credit.Account, error) {
	if accountID != "" {
		return s.CreditRepo.LockAccountByID(ctx, accountID)
	}
	return s.CreditRepo.LockAccountByWorkspaceID(ctx, workspaceID)
}

// withLedgerTx runs fn in a transaction, retrying the whole transaction on
// serialization failures, deadlocks and lock timeouts. Nested calls join the
// outer transaction and leave retries to its owner.
func (s *creditService) withLedgerTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if postgres.InTx(ctx) {
		return s.DB.WithTx(ctx, fn)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := s.DB.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if isRetryableLedgerError(err) {
			s.Logger.Warnw("retrying ledger transaction",
				"attempt", attempt,
				"error", err,
			)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, s.Config.Billing.LedgerMaxRetries), ctx))
}

func isRetryableLedgerError(err error) bool {
	var pqErr *pq.Error
	if !ierr.As(err, &pqErr) {
		return false
	}
	return lo.Contains(retryableLedgerCodes, pqErr.Code)
}

func insufficientBalance(acc *credit.Account, amount decimal.Decimal) error {
	return ierr.NewErrorf("debit of %s exceeds balance %s of account %s", amount, acc.CurrentBalance, acc.ID).
		WithHint("Insufficient balance").
		WithReportableDetails(map[string]any{
			"error_kind": types.ErrorKindInsufficientBalance,
			"balance":    acc.CurrentBalance.String(),
			"amount":     amount.String(),
		}).
		Mark(ierr.ErrInsufficientBalance)
}

func ledgerOutcome(err error) string {
	if ierr.IsInsufficientBalance(err) {
		return metrics.OutcomeRejected
	}
	return metrics.Outcome(err)
}

// sendNotifications is fire-and-forget: delivery retries belong to the notifier
func (s *creditService) sendNotifications(ctx context.Context, pending notifications) {
	if len(pending) == 0 {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	for _, n := range pending {
		if err := s.WebhookPublisher.Notify(notifyCtx, n.workspaceID, n.event, n.payload); err != nil {
			s.Logger.Errorw("failed to publish credit notification",
				"workspace_id", n.workspaceID,
				"event", n.event,
				"error", err,
			)
		}
	}
}
