package service

import (
	"testing"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/domain/credit"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/testutil"
	"github.com/voxagent/billing/internal/types"
)

type CreditMonitorServiceSuite struct {
	ServiceTestSuite
}

func TestCreditMonitorService(t *testing.T) {
	suite.Run(t, new(CreditMonitorServiceSuite))
}

func (s *CreditMonitorServiceSuite) forced() *dto.MonitorRequest {
	return &dto.MonitorRequest{ForceRun: true}
}

// withAutoRecharge saves a payment method and enables auto-recharge of 50 below 5
func (s *CreditMonitorServiceSuite) withAutoRecharge(acc *credit.Account) {
	acc.AutoRechargeEnabled = true
	acc.AutoRechargeAmount = decimal.NewFromInt(50)
	acc.AutoRechargeThreshold = decimal.NewFromInt(5)
	acc.PaymentCustomerID = lo.ToPtr("cus_123")
	acc.PaymentMethodID = lo.ToPtr("pm_123")
	s.GetStores().CreditRepo.SetAccount(acc)
}

func (s *CreditMonitorServiceSuite) alertsOf(ws string, alertType types.AlertType) []*credit.Alert {
	return lo.Filter(s.GetStores().AlertRepo.ListByWorkspace(ws), func(a *credit.Alert, _ int) bool {
		return a.AlertType == alertType
	})
}

func (s *CreditMonitorServiceSuite) TestHealthyAccountsProduceNothing() {
	for i := 0; i < 10; i++ {
		s.CreateAccount(s.GetUUID(), decimal.NewFromInt(100))
	}

	result, err := s.monitor.MonitorAllWorkspaces(s.GetContext(), s.forced())
	s.NoError(err)
	s.Equal(types.MonitorRunStatusCompleted, result.Status)
	s.False(result.Skipped)
	s.Equal(10, result.WorkspacesChecked)
	s.Zero(result.LowBalanceAlerts)
	s.Zero(result.CriticalAlerts)
	s.Zero(result.Suspensions)
	s.NotEmpty(result.RunID)
	s.Len(s.GetStores().MonitoringLogRepo.All(), 1)
}

func (s *CreditMonitorServiceSuite) TestCooldownSkipsUnforcedRuns() {
	s.CreateAccount("ws_1", decimal.NewFromInt(100))

	first, err := s.monitor.MonitorAllWorkspaces(s.GetContext(), nil)
	s.NoError(err)
	s.False(first.Skipped)

	second, err := s.monitor.MonitorAllWorkspaces(s.GetContext(), &dto.MonitorRequest{})
	s.NoError(err)
	s.True(second.Skipped)
	s.Equal(types.MonitorRunStatusSkipped, second.Status)
	s.NotEmpty(second.RunID)
	s.Require().NotNil(second.NextRunAfter)
	s.Zero(second.WorkspacesChecked)

	// skipped rows never move the cool-down anchor
	latest, err := s.GetStores().MonitoringLogRepo.GetLatest(s.GetContext())
	s.NoError(err)
	s.Equal(first.RunID, latest.ID)

	forced, err := s.monitor.MonitorAllWorkspaces(s.GetContext(), s.forced())
	s.NoError(err)
	s.False(forced.Skipped)
	s.Equal(1, forced.WorkspacesChecked)

	logs := s.GetStores().MonitoringLogRepo.All()
	s.Len(logs, 3)
	skipped := lo.Filter(logs, func(l *credit.MonitoringLog, _ int) bool {
		return l.Status == types.MonitorRunStatusSkipped
	})
	s.Len(skipped, 1)
}

func (s *CreditMonitorServiceSuite) TestLowBalanceAlertIsDeduplicated() {
	s.CreateAccount("ws_low", decimal.NewFromInt(5))

	result, err := s.monitor.MonitorAllWorkspaces(s.GetContext(), s.forced())
	s.NoError(err)
	s.Equal(1, result.LowBalanceAlerts)
	s.Zero(result.CriticalAlerts)
	s.Len(s.WebhookEvents(types.WebhookEventCreditBalanceLow), 1)

	result, err = s.monitor.MonitorAllWorkspaces(s.GetContext(), s.forced())
	s.NoError(err)
	s.Zero(result.LowBalanceAlerts)
	s.Len(s.alertsOf("ws_low", types.AlertTypeLowBalance), 1)
	s.Len(s.WebhookEvents(types.WebhookEventCreditBalanceLow), 1)

	// a dismissed alert no longer blocks a new one
	alert := s.alertsOf("ws_low", types.AlertTypeLowBalance)[0]
	_, err = s.alert.Dismiss(s.GetContext(), testutil.MemberOf("user_1", "ws_low"), alert.ID)
	s.NoError(err)

	result, err = s.monitor.MonitorAllWorkspaces(s.GetContext(), s.forced())
	s.NoError(err)
	s.Equal(1, result.LowBalanceAlerts)
}

func (s *CreditMonitorServiceSuite) TestDepletedAccountIsSuspended() {
	s.CreateAccount("ws_empty", decimal.Zero)

	result, err := s.monitor.MonitorAllWorkspaces(s.GetContext(), s.forced())
	s.NoError(err)
	s.Equal(1, result.LowBalanceAlerts)
	s.Equal(1, result.CriticalAlerts)
	s.Equal(1, result.Suspensions)

	acc, err := s.GetStores().CreditRepo.GetAccountByWorkspaceID(s.GetContext(), "ws_empty")
	s.NoError(err)
	s.True(acc.IsSuspended)
	s.Equal(types.SuspensionReasonBalanceDepleted, acc.SuspensionReasonValue())
	s.NotNil(acc.SuspendedAt)

	s.Len(s.alertsOf("ws_empty", types.AlertTypeAutoSuspension), 1)
	s.Len(s.WebhookEvents(types.WebhookEventCreditBalanceCritical), 1)
	s.Len(s.WebhookEvents(types.WebhookEventCreditAccountSuspended), 1)

	// already suspended accounts are not suspended twice
	result, err = s.monitor.MonitorAllWorkspaces(s.GetContext(), s.forced())
	s.NoError(err)
	s.Zero(result.Suspensions)
	s.Zero(result.CriticalAlerts)
	s.Len(s.WebhookEvents(types.WebhookEventCreditAccountSuspended), 1)
}

func (s *CreditMonitorServiceSuite) TestAutoRechargeCharges() {
	acc := s.CreateAccount("ws_auto", decimal.NewFromInt(3))
	s.withAutoRecharge(acc)

	result, err := s.monitor.MonitorAllWorkspaces(s.GetContext(), s.forced())
	s.NoError(err)
	s.Equal(1, result.AutoRecharges)
	s.Zero(result.AutoRechargeFailures)
	s.Equal(1, s.GetGateway().Count())
	s.Equal("pm_123", s.GetGateway().Charges[0].PaymentMethodID)
	s.True(decimal.NewFromInt(50).Equal(s.GetGateway().Charges[0].Amount))

	got, err := s.GetStores().CreditRepo.GetAccountByWorkspaceID(s.GetContext(), "ws_auto")
	s.NoError(err)
	s.True(decimal.NewFromInt(53).Equal(got.CurrentBalance))
	s.Len(s.WebhookEvents(types.WebhookEventCreditRecharged), 1)

	txns, err := s.credit.ListTransactions(s.GetContext(), types.SystemCaller(), &credit.TransactionFilter{
		QueryFilter: types.NewDefaultQueryFilter(),
		WorkspaceID: "ws_auto",
	})
	s.NoError(err)
	s.Require().Len(txns.Items, 1)
	s.Equal(types.TransactionTypeRecharge, txns.Items[0].TransactionType)
}

func (s *CreditMonitorServiceSuite) TestAutoRechargeDeclined() {
	acc := s.CreateAccount("ws_declined", decimal.NewFromInt(3))
	s.withAutoRecharge(acc)
	s.GetGateway().Declined()

	result, err := s.monitor.MonitorAllWorkspaces(s.GetContext(), s.forced())
	s.NoError(err)
	s.Zero(result.AutoRecharges)
	s.Equal(1, result.AutoRechargeFailures)
	s.Zero(result.Errors, "a declined card is not a monitor error")

	got, err := s.GetStores().CreditRepo.GetAccountByWorkspaceID(s.GetContext(), "ws_declined")
	s.NoError(err)
	s.True(decimal.NewFromInt(3).Equal(got.CurrentBalance))

	alerts := s.alertsOf("ws_declined", types.AlertTypeRecharge)
	s.Require().Len(alerts, 1)
	s.Equal(types.AlertSeverityCritical, alerts[0].Severity)
	s.Contains(alerts[0].Message, "declined")
	s.Len(s.WebhookEvents(types.WebhookEventAutoRechargeFailed), 1)
}

func (s *CreditMonitorServiceSuite) TestAutoRechargeWithoutPaymentMethod() {
	acc := s.CreateAccount("ws_nopm", decimal.NewFromInt(3))
	acc.AutoRechargeEnabled = true
	s.GetStores().CreditRepo.SetAccount(acc)

	result, err := s.monitor.MonitorAllWorkspaces(s.GetContext(), s.forced())
	s.NoError(err)
	s.Equal(1, result.AutoRechargeFailures)
	s.Zero(s.GetGateway().Count())
}

func (s *CreditMonitorServiceSuite) TestScopesAndSkipsInactive() {
	s.CreateAccount("ws_a", decimal.NewFromInt(5))
	s.CreateAccount("ws_b", decimal.NewFromInt(5))
	inactive := s.CreateAccount("ws_c", decimal.NewFromInt(5))
	inactive.IsActive = false
	s.GetStores().CreditRepo.SetAccount(inactive)

	result, err := s.monitor.MonitorAllWorkspaces(s.GetContext(), &dto.MonitorRequest{
		ForceRun:     true,
		WorkspaceIDs: []string{"ws_a", "ws_c"},
	})
	s.NoError(err)
	s.Equal(1, result.WorkspacesChecked)
	s.Equal(1, result.LowBalanceAlerts)
	s.Empty(s.alertsOf("ws_b", types.AlertTypeLowBalance))
}

func (s *CreditMonitorServiceSuite) TestAlertLifecycle() {
	s.CreateAccount("ws_1", decimal.NewFromInt(5))
	_, err := s.monitor.MonitorAllWorkspaces(s.GetContext(), s.forced())
	s.NoError(err)

	member := testutil.MemberOf("user_1", "ws_1")
	filter := credit.NewAlertFilter()
	filter.WorkspaceID = "ws_1"
	filter.UnreadOnly = true

	list, err := s.alert.ListAlerts(s.GetContext(), member, filter)
	s.NoError(err)
	s.Require().Len(list.Items, 1)
	id := list.Items[0].ID

	_, err = s.alert.MarkRead(s.GetContext(), testutil.MemberOf("user_2", "ws_2"), id)
	s.True(ierr.IsPermissionDenied(err))

	read, err := s.alert.MarkRead(s.GetContext(), member, id)
	s.NoError(err)
	s.True(read.IsRead)
	s.NotNil(read.ReadAt)

	list, err = s.alert.ListAlerts(s.GetContext(), member, filter)
	s.NoError(err)
	s.Empty(list.Items)

	dismissed, err := s.alert.Dismiss(s.GetContext(), member, id)
	s.NoError(err)
	s.True(dismissed.IsDismissed)

	filter.UnreadOnly = false
	list, err = s.alert.ListAlerts(s.GetContext(), member, filter)
	s.NoError(err)
	s.Empty(list.Items, "dismissed alerts are hidden by default")

	filter.IncludeDismissed = true
	list, err = s.alert.ListAlerts(s.GetContext(), member, filter)
	s.NoError(err)
	s.Len(list.Items, 1)

	_, err = s.alert.UpdateAlert(s.GetContext(), member, id, types.AlertAction("archive"))
	s.True(ierr.IsValidation(err))
}
