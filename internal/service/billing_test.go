package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/domain/billable"
	"github.com/voxagent/billing/internal/domain/costconfig"
	"github.com/voxagent/billing/internal/domain/credit"
	"github.com/voxagent/billing/internal/domain/invoice"
	"github.com/voxagent/billing/internal/domain/usage"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/testutil"
	"github.com/voxagent/billing/internal/types"
)

type BillingReconcilerSuite struct {
	ServiceTestSuite

	admin     types.Caller
	member    types.Caller
	dedicated *billable.Service
	pag       *billable.Service
	hybrid    *billable.Service
}

func TestBillingReconciler(t *testing.T) {
	suite.Run(t, new(BillingReconcilerSuite))
}

func april(day int) time.Time {
	return time.Date(2025, time.April, day, 9, 30, 0, 0, time.UTC)
}

func (s *BillingReconcilerSuite) SetupTest() {
	s.ServiceTestSuite.SetupTest()
	s.admin = testutil.Admin("user_admin")
	s.member = testutil.MemberOf("user_1", "ws_1")

	s.dedicated = s.CreateService("ws_1", types.ServiceTypeAgent, types.PlatformModeDedicated, april(15))
	s.pag = s.CreateService("ws_1", types.ServiceTypeAgent, types.PlatformModePAG, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	s.hybrid = s.CreateService("ws_1", types.ServiceTypeKnowledgeBase, types.PlatformModeHybrid, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))

	// outside April on both ends
	s.CreateService("ws_1", types.ServiceTypeWorkflow, types.PlatformModeDedicated, time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC))
	gone := &billable.Service{
		ID:            "svc_gone",
		WorkspaceID:   "ws_1",
		ServiceType:   types.ServiceTypeWorkflow,
		Name:          "retired workflow",
		PlatformMode:  types.PlatformModeDedicated,
		CreatedAt:     time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC),
		DeactivatedAt: lo.ToPtr(time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)),
	}
	s.Require().NoError(s.GetStores().BillableRepo.Create(s.GetContext(), gone))

	s.addUsage(s.pag, "12.34", april(3))
	s.addUsage(s.pag, "99", time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC))
	s.addUsage(s.hybrid, "10", april(20))

	s.GetStores().CreditRepo.AddTransaction(&credit.Transaction{
		ID:              "ctxn_april",
		WorkspaceID:     "ws_1",
		TransactionType: types.TransactionTypeDebit,
		Amount:          decimal.NewFromInt(-30),
		BalanceBefore:   decimal.NewFromInt(100),
		BalanceAfter:    decimal.NewFromInt(70),
		CreatedAt:       april(10),
	})
}

func (s *BillingReconcilerSuite) addUsage(svc *billable.Service, cost string, at time.Time) {
	s.Require().NoError(s.GetStores().UsageRepo.Create(s.GetContext(), &usage.Record{
		ID:          s.GetUUID(),
		EventID:     s.GetUUID(),
		WorkspaceID: svc.WorkspaceID,
		ServiceType: svc.ServiceType,
		ServiceID:   svc.ID,
		CostMode:    types.CostModePAG,
		TotalCost:   decimal.RequireFromString(cost),
		Billed:      true,
		OccurredAt:  at,
		CreatedAt:   at,
	}))
}

func (s *BillingReconcilerSuite) generate(caller types.Caller, projectID string, regenerate bool) (*dto.InvoiceResponse, error) {
	return s.billing.GenerateMonthlyBilling(s.GetContext(), caller, &dto.GenerateBillingRequest{
		Year:       2025,
		Month:      4,
		ProjectID:  projectID,
		Regenerate: regenerate,
	})
}

func (s *BillingReconcilerSuite) TestGenerateProratesEachService() {
	inv, err := s.generate(s.member, "ws_1", false)
	s.NoError(err)
	s.Equal(1, inv.Version)
	s.Equal(types.InvoiceStatusGenerated, inv.Status)
	s.Require().Len(inv.LineItems, 3)

	items := lo.KeyBy(inv.LineItems, func(item *invoice.LineItem) string { return item.ServiceID })

	ded := items[s.dedicated.ID]
	s.True(decimal.NewFromInt(160).Equal(ded.Amount), "got %s", ded.Amount)
	s.Equal(16, ded.ActiveDays)
	s.Equal(30, ded.DaysInMonth)

	s.True(decimal.RequireFromString("12.34").Equal(items[s.pag.ID].Amount))
	s.True(decimal.NewFromInt(1).Equal(items[s.pag.ID].Prorata))

	hyb := items[s.hybrid.ID]
	s.True(decimal.NewFromInt(30).Equal(hyb.Amount), "(50 + 10) / 2, got %s", hyb.Amount)
	s.True(decimal.NewFromInt(50).Equal(hyb.Breakdown.Data["dedicated_cost"]))
	s.True(decimal.NewFromInt(10).Equal(hyb.Breakdown.Data["usage_cost"]))

	s.True(decimal.RequireFromString("202.34").Equal(inv.TotalAmount), "got %s", inv.TotalAmount)
	s.Equal("202.3400", inv.DisplayTotal)
	s.True(inv.LedgerDebitTotal.Valid)
	s.True(decimal.NewFromInt(30).Equal(inv.LedgerDebitTotal.Decimal))

	events := s.WebhookEvents(types.WebhookEventInvoiceGenerated)
	s.Len(events, 1)
}

func (s *BillingReconcilerSuite) TestFixedFeeLandsOnInvoice() {
	s.Require().NoError(s.GetStores().CostConfigRepo.Create(s.GetContext(), &costconfig.CostConfiguration{
		ID:            "cfg_fixed",
		WorkspaceID:   "ws_1",
		ServiceType:   types.ServiceTypeAgent,
		ServiceID:     lo.ToPtr(s.pag.ID),
		CostMode:      types.CostModeFixed,
		EffectiveFrom: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		IsActive:      true,
		Fixed:         types.NewJSONColumn(&costconfig.FixedCostConfig{PeriodCost: decimal.NewFromInt(100)}),
		CreatedAt:     time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}))

	inv, err := s.generate(s.member, "ws_1", false)
	s.NoError(err)

	item, ok := lo.Find(inv.LineItems, func(item *invoice.LineItem) bool { return item.ServiceID == s.pag.ID })
	s.Require().True(ok)
	s.True(decimal.RequireFromString("112.34").Equal(item.Amount), "got %s", item.Amount)
	s.True(decimal.NewFromInt(100).Equal(item.Breakdown.Data["fixed_cost"]))
}

func (s *BillingReconcilerSuite) TestFixedFeeIsInvoicedOnceWithRecordedUsage() {
	s.CreateAccount("ws_1", decimal.NewFromInt(50))
	s.Require().NoError(s.GetStores().CostConfigRepo.Create(s.GetContext(), &costconfig.CostConfiguration{
		ID:            "cfg_fixed",
		WorkspaceID:   "ws_1",
		ServiceType:   types.ServiceTypeAgent,
		ServiceID:     lo.ToPtr(s.pag.ID),
		CostMode:      types.CostModeFixed,
		EffectiveFrom: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		IsActive:      true,
		Fixed:         types.NewJSONColumn(&costconfig.FixedCostConfig{PeriodCost: decimal.NewFromInt(100)}),
		CreatedAt:     time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}))

	for day := 5; day <= 7; day++ {
		resp, err := s.usage.RecordUsage(s.GetContext(), s.member, &dto.RecordUsageRequest{
			EventID:     s.GetUUID(),
			WorkspaceID: "ws_1",
			ServiceType: s.pag.ServiceType,
			ServiceID:   s.pag.ID,
			Usage:       usage.Metrics{LLMTokens: lo.ToPtr(decimal.NewFromInt(5000))},
			OccurredAt:  lo.ToPtr(april(day)),
		})
		s.Require().NoError(err)
		s.True(decimal.RequireFromString("0.1").Equal(resp.TotalCost), "got %s", resp.TotalCost)
		s.True(decimal.NewFromInt(100).Equal(resp.Costs.Costs.FixedCost))
	}

	inv, err := s.generate(s.member, "ws_1", false)
	s.NoError(err)

	item, ok := lo.Find(inv.LineItems, func(item *invoice.LineItem) bool { return item.ServiceID == s.pag.ID })
	s.Require().True(ok)
	s.True(decimal.RequireFromString("12.64").Equal(item.Breakdown.Data["usage_cost"]), "got %s", item.Breakdown.Data["usage_cost"])
	s.True(decimal.NewFromInt(100).Equal(item.Breakdown.Data["fixed_cost"]))
	s.True(decimal.RequireFromString("112.64").Equal(item.Amount), "got %s", item.Amount)
}

func (s *BillingReconcilerSuite) TestRegenerationSupersedes() {
	first, err := s.generate(s.member, "ws_1", false)
	s.NoError(err)

	_, err = s.generate(s.member, "ws_1", false)
	s.True(ierr.IsAlreadyExists(err))

	second, err := s.generate(s.member, "ws_1", true)
	s.NoError(err)
	s.Equal(2, second.Version)
	s.NotEqual(first.ID, second.ID)

	current, err := s.billing.ListMonthlyBilling(s.GetContext(), s.member, &dto.ListMonthlyBillingRequest{
		Year:      2025,
		Month:     4,
		ProjectID: "ws_1",
	})
	s.NoError(err)
	s.Require().Len(current.Items, 1)
	s.Equal(second.ID, current.Items[0].ID)

	all, err := s.billing.ListMonthlyBilling(s.GetContext(), s.member, &dto.ListMonthlyBillingRequest{
		ProjectID:         "ws_1",
		IncludeSuperseded: true,
	})
	s.NoError(err)
	s.Require().Len(all.Items, 2)
	superseded, ok := lo.Find(all.Items, func(inv *dto.InvoiceResponse) bool { return inv.ID == first.ID })
	s.Require().True(ok)
	s.Equal(types.InvoiceStatusSuperseded, superseded.Status)
	s.NotNil(superseded.SupersededAt)

	s.Len(s.WebhookEvents(types.WebhookEventInvoiceGenerated), 2)
}

func (s *BillingReconcilerSuite) TestRejectsMonthsThatHaveNotStarted() {
	next := time.Now().UTC().AddDate(0, 1, 0)
	_, err := s.billing.GenerateMonthlyBilling(s.GetContext(), s.admin, &dto.GenerateBillingRequest{
		Year:      next.Year(),
		Month:     int(next.Month()),
		ProjectID: "ws_1",
	})
	s.True(ierr.IsValidation(err))

	_, err = s.billing.GenerateMonthlyBilling(s.GetContext(), s.admin, &dto.GenerateBillingRequest{Year: 2025, Month: 13})
	s.True(ierr.IsValidation(err))
}

func (s *BillingReconcilerSuite) TestAuthorization() {
	_, err := s.generate(testutil.MemberOf("user_2", "ws_2"), "ws_1", false)
	s.True(ierr.IsPermissionDenied(err))

	_, err = s.generate(s.member, "", false)
	s.True(ierr.IsPermissionDenied(err), "platform-wide runs need credit management")

	_, err = s.billing.ListMonthlyBilling(s.GetContext(), types.Caller{}, &dto.ListMonthlyBillingRequest{})
	s.True(ierr.IsUnauthenticated(err))
}

func (s *BillingReconcilerSuite) TestPlatformWideInvoice() {
	other := s.CreateService("ws_2", types.ServiceTypeWorkflow, types.PlatformModeDedicated, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))

	inv, err := s.generate(s.admin, "", false)
	s.NoError(err)
	s.Empty(inv.WorkspaceID)
	s.Len(inv.LineItems, 4)
	s.True(lo.ContainsBy(inv.LineItems, func(item *invoice.LineItem) bool { return item.ServiceID == other.ID }))
	s.False(inv.LedgerDebitTotal.Valid)
	s.Empty(s.WebhookEvents(types.WebhookEventInvoiceGenerated))
}

func (s *BillingReconcilerSuite) TestInvoiceCurrency() {
	acc := credit.NewAccount("ws_1", types.DefaultUserID, "EUR")
	s.Require().NoError(s.GetStores().CreditRepo.CreateAccount(s.GetContext(), acc))

	scoped, err := s.generate(s.admin, "ws_1", false)
	s.Require().NoError(err)
	s.Equal("EUR", scoped.Currency)

	platform, err := s.generate(s.admin, "", false)
	s.Require().NoError(err)
	s.Equal(s.GetConfig().Billing.DefaultCurrency, platform.Currency)
}

func (s *BillingReconcilerSuite) TestInvoiceCurrencyWithoutAccount() {
	inv, err := s.generate(s.admin, "ws_2", false)
	s.Require().NoError(err)
	s.Equal(s.GetConfig().Billing.DefaultCurrency, inv.Currency)
}

func (s *BillingReconcilerSuite) TestListVisibility() {
	s.CreateService("ws_2", types.ServiceTypeWorkflow, types.PlatformModeDedicated, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	_, err := s.generate(s.member, "ws_1", false)
	s.NoError(err)
	_, err = s.generate(testutil.MemberOf("user_2", "ws_2"), "ws_2", false)
	s.NoError(err)

	mine, err := s.billing.ListMonthlyBilling(s.GetContext(), s.member, &dto.ListMonthlyBillingRequest{})
	s.NoError(err)
	s.Require().Len(mine.Items, 1)
	s.Equal("ws_1", mine.Items[0].WorkspaceID)

	everything, err := s.billing.ListMonthlyBilling(s.GetContext(), s.admin, &dto.ListMonthlyBillingRequest{})
	s.NoError(err)
	s.Len(everything.Items, 2)

	_, err = s.billing.ListMonthlyBilling(s.GetContext(), s.member, &dto.ListMonthlyBillingRequest{ProjectID: "ws_2"})
	s.True(ierr.IsPermissionDenied(err))
}
