package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/domain/credit"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/metrics"
	"github.com/voxagent/billing/internal/payment"
	"github.com/voxagent/billing/internal/types"
)

const (
	defaultMonitorCooldown    = 5 * time.Minute
	defaultMonitorConcurrency = 8
)

// CreditMonitorService sweeps every account for low balances, depletion and auto-recharge
type CreditMonitorService interface {
	MonitorAllWorkspaces(ctx context.Context, req *dto.MonitorRequest) (*dto.MonitorResult, error)
}

type creditMonitorService struct {
	ServiceParams
	credits CreditService
	alerts  CreditAlertService
}

func NewCreditMonitorService(params ServiceParams, creditService CreditService, alertService CreditAlertService) CreditMonitorService {
	return &creditMonitorService{
		ServiceParams: params,
		credits:       creditService,
		alerts:        alertService,
	}
}

// workspaceOutcome is what one workspace contributed to a sweep
type workspaceOutcome struct {
	lowBalanceAlert     bool
	criticalAlert       bool
	suspended           bool
	autoRecharged       bool
	autoRechargeFailure bool
	failed              bool
}

func (s *creditMonitorService) MonitorAllWorkspaces(ctx context.Context, req *dto.MonitorRequest) (*dto.MonitorResult, error) {
	if req == nil {
		req = &dto.MonitorRequest{}
	}
	startedAt := time.Now().UTC()

	if !req.ForceRun {
		skipped, err := s.checkCooldown(ctx, startedAt)
		if err != nil {
			return nil, err
		}
		if skipped != nil {
			s.recordSkippedRun(ctx, skipped, startedAt)
			metrics.CreditMonitorRunsTotal.WithLabelValues(string(types.MonitorRunStatusSkipped)).Inc()
			return skipped, nil
		}
	}

	accounts, err := s.CreditRepo.ListAccounts(ctx, &credit.AccountFilter{
		WorkspaceIDs: req.WorkspaceIDs,
		OnlyActive:   true,
	})
	if err != nil {
		return nil, err
	}

	concurrency := s.Config.Billing.MonitorConcurrency
	if concurrency <= 0 {
		concurrency = defaultMonitorConcurrency
	}

	p := pool.NewWithResults[workspaceOutcome]().WithMaxGoroutines(concurrency)
	for _, acc := range accounts {
		p.Go(func() workspaceOutcome {
			return s.evaluateWorkspace(ctx, acc)
		})
	}
	outcomes := p.Wait()

	log := credit.NewMonitoringLog(startedAt, req.ForceRun)
	log.WorkspacesChecked = len(accounts)
	for _, o := range outcomes {
		log.LowBalanceAlerts += lo.Ternary(o.lowBalanceAlert, 1, 0)
		log.CriticalAlerts += lo.Ternary(o.criticalAlert, 1, 0)
		log.Suspensions += lo.Ternary(o.suspended, 1, 0)
		log.AutoRecharges += lo.Ternary(o.autoRecharged, 1, 0)
		log.AutoRechargeFailure += lo.Ternary(o.autoRechargeFailure, 1, 0)
		log.Errors += lo.Ternary(o.failed, 1, 0)
	}
	log.Complete(time.Now().UTC())

	if err := s.MonitoringLogRepo.Create(ctx, log); err != nil {
		// the sweep already happened, only the cool-down anchor is lost
		s.Logger.Errorw("failed to record credit monitor run", "run_id", log.ID, "error", err)
	}

	metrics.CreditMonitorRunsTotal.WithLabelValues(string(log.Status)).Inc()
	metrics.CreditMonitorDuration.Observe(time.Duration(log.DurationMs * int64(time.Millisecond)).Seconds())

	s.Logger.Infow("credit monitor run completed",
		"run_id", log.ID,
		"forced", req.ForceRun,
		"workspaces_checked", log.WorkspacesChecked,
		"low_balance_alerts", log.LowBalanceAlerts,
		"critical_alerts", log.CriticalAlerts,
		"suspensions", log.Suspensions,
		"auto_recharges", log.AutoRecharges,
		"errors", log.Errors,
		"duration_ms", log.DurationMs,
	)
	return dto.NewMonitorResult(log), nil
}

// checkCooldown returns a skipped result when the last run is too recent
func (s *creditMonitorService) checkCooldown(ctx context.Context, now time.Time) (*dto.MonitorResult, error) {
	latest, err := s.MonitoringLogRepo.GetLatest(ctx)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	cooldown := s.Config.Billing.MonitorCooldown
	if cooldown <= 0 {
		cooldown = defaultMonitorCooldown
	}
	nextRun := latest.CompletedAt.Add(cooldown)
	if !now.Before(nextRun) {
		return nil, nil
	}

	s.Logger.Debugw("skipping credit monitor run inside cool-down",
		"last_run_id", latest.ID,
		"next_run_after", nextRun,
	)
	return &dto.MonitorResult{
		Status:       types.MonitorRunStatusSkipped,
		Skipped:      true,
		LastRunAt:    lo.ToPtr(latest.StartedAt),
		NextRunAfter: &nextRun,
	}, nil
}

// recordSkippedRun keeps skipped triggers in the audit log. The cool-down
// anchor ignores them.
func (s *creditMonitorService) recordSkippedRun(ctx context.Context, result *dto.MonitorResult, startedAt time.Time) {
	log := credit.NewMonitoringLog(startedAt, false)
	log.Complete(time.Now().UTC())
	log.Status = types.MonitorRunStatusSkipped
	if err := s.MonitoringLogRepo.Create(ctx, log); err != nil {
		s.Logger.Errorw("failed to record skipped credit monitor run", "error", err)
		return
	}
	result.RunID = log.ID
}

// evaluateWorkspace never returns an error: failures are counted so one
// workspace cannot abort the sweep
func (s *creditMonitorService) evaluateWorkspace(ctx context.Context, acc *credit.Account) workspaceOutcome {
	var outcome workspaceOutcome
	system := types.SystemCaller()
	log := s.Logger.With("workspace_id", acc.WorkspaceID, "account_id", acc.ID)

	fail := func(step string, err error) workspaceOutcome {
		log.Errorw("credit monitor step failed", "step", step, "error", err)
		s.Sentry.CaptureException(err)
		outcome.failed = true
		return outcome
	}

	if acc.CurrentBalance.LessThanOrEqual(acc.LowBalanceThreshold) {
		alert, err := s.alerts.CreateAlert(ctx, &dto.CreateAlertRequest{
			WorkspaceID: acc.WorkspaceID,
			AlertType:   types.AlertTypeLowBalance,
			Severity:    types.AlertSeverityWarning,
			Title:       "Low credit balance",
			Message:     "Your credit balance is at or below your low balance threshold",
			Threshold:   lo.ToPtr(acc.LowBalanceThreshold),
			Dedupe:      true,
		})
		if err != nil {
			return fail("low_balance", err)
		}
		if alert != nil {
			outcome.lowBalanceAlert = true
			s.notify(ctx, acc, types.WebhookEventCreditBalanceLow, alert)
		}
	}

	if !acc.CurrentBalance.GreaterThan(acc.CriticalThreshold()) {
		alert, err := s.alerts.CreateAlert(ctx, &dto.CreateAlertRequest{
			WorkspaceID: acc.WorkspaceID,
			AlertType:   types.AlertTypeCriticalBalance,
			Severity:    types.AlertSeverityCritical,
			Title:       "Credit balance depleted",
			Message:     "Your credit balance is depleted, services will be suspended",
			Threshold:   lo.ToPtr(acc.CriticalThreshold()),
			Dedupe:      true,
		})
		if err != nil {
			return fail("critical_balance", err)
		}
		if alert != nil {
			outcome.criticalAlert = true
			s.notify(ctx, acc, types.WebhookEventCreditBalanceCritical, alert)
		}

		if !acc.IsSuspended {
			res, err := s.credits.Suspend(ctx, system, acc.WorkspaceID, types.SuspensionReasonBalanceDepleted, types.AlertTypeAutoSuspension)
			if err != nil {
				return fail("auto_suspension", err)
			}
			outcome.suspended = res.Changed
		}
	}

	if acc.NeedsAutoRecharge() {
		if err := s.autoRecharge(ctx, acc); err != nil {
			log.Warnw("auto-recharge failed", "error", err)
			outcome.autoRechargeFailure = true
			if err := s.recordAutoRechargeFailure(ctx, acc, err); err != nil {
				return fail("auto_recharge_alert", err)
			}
		} else {
			outcome.autoRecharged = true
		}
	}

	return outcome
}

func (s *creditMonitorService) autoRecharge(ctx context.Context, acc *credit.Account) error {
	if acc.PaymentMethodID == nil || acc.PaymentCustomerID == nil {
		return ierr.NewError("no saved payment method").
			WithHint("Auto-recharge requires a saved payment method").
			Mark(ierr.ErrInvalidOperation)
	}

	charge, err := s.PaymentGateway.Charge(ctx, payment.ChargeRequest{
		WorkspaceID:     acc.WorkspaceID,
		AccountID:       acc.ID,
		CustomerID:      *acc.PaymentCustomerID,
		PaymentMethodID: *acc.PaymentMethodID,
		Amount:          acc.AutoRechargeAmount,
		Currency:        acc.Currency,
	})
	if err != nil {
		return err
	}

	_, err = s.credits.Recharge(ctx, types.SystemCaller(), &dto.RechargeRequest{
		WorkspaceID: acc.WorkspaceID,
		Amount:      acc.AutoRechargeAmount,
		Description: "Automatic recharge",
		PaymentID:   charge.PaymentID,
	})
	if err != nil {
		// the customer was charged, so this needs an operator
		s.Logger.Errorw("auto-recharge charged but ledger recharge failed",
			"workspace_id", acc.WorkspaceID,
			"payment_id", charge.PaymentID,
			"error", err,
		)
		s.Sentry.CaptureException(err)
		return err
	}
	return nil
}

func (s *creditMonitorService) recordAutoRechargeFailure(ctx context.Context, acc *credit.Account, cause error) error {
	alert, err := s.alerts.CreateAlert(ctx, &dto.CreateAlertRequest{
		WorkspaceID: acc.WorkspaceID,
		AlertType:   types.AlertTypeRecharge,
		Severity:    types.AlertSeverityCritical,
		Title:       "Automatic recharge failed",
		Message:     "Automatic recharge failed: " + ierr.DisplayMessage(cause),
		Threshold:   lo.ToPtr(acc.AutoRechargeThreshold),
	})
	if err != nil {
		return err
	}
	s.notify(ctx, acc, types.WebhookEventAutoRechargeFailed, alert)
	return nil
}

func (s *creditMonitorService) notify(ctx context.Context, acc *credit.Account, event string, alert *credit.Alert) {
	payload := creditEvent{
		WorkspaceID: acc.WorkspaceID,
		AccountID:   acc.ID,
		Balance:     acc.CurrentBalance,
		Reason:      acc.SuspensionReasonValue(),
	}
	if alert != nil {
		payload.AlertID = alert.ID
		if alert.Threshold.Valid {
			payload.Threshold = lo.ToPtr(alert.Threshold.Decimal)
		}
	}
	if event == types.WebhookEventAutoRechargeFailed {
		payload.Amount = lo.ToPtr(acc.AutoRechargeAmount)
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.WebhookPublisher.Notify(notifyCtx, acc.WorkspaceID, event, payload); err != nil {
		s.Logger.Errorw("failed to publish credit notification",
			"workspace_id", acc.WorkspaceID,
			"event", event,
			"error", err,
		)
	}
}
