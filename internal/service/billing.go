package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/domain/billable"
	"github.com/voxagent/billing/internal/domain/invoice"
	"github.com/voxagent/billing/internal/domain/proration"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/metrics"
	"github.com/voxagent/billing/internal/types"
)

// BillingReconciler produces monthly invoices from the services alive in a month
type BillingReconciler interface {
	GenerateMonthlyBilling(ctx context.Context, caller types.Caller, req *dto.GenerateBillingRequest) (*dto.InvoiceResponse, error)
	ListMonthlyBilling(ctx context.Context, caller types.Caller, req *dto.ListMonthlyBillingRequest) (*dto.ListInvoicesResponse, error)
}

type billingReconciler struct {
	ServiceParams
	pricing PricingService
}

func NewBillingReconciler(params ServiceParams, pricing PricingService) BillingReconciler {
	return &billingReconciler{
		ServiceParams: params,
		pricing:       pricing,
	}
}

// invoiceEvent is the payload of billing.invoice.generated
type invoiceEvent struct {
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Year          int             `json:"year"`
	Month         int             `json:"month"`
	Version       int             `json:"version"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	LineItems     int             `json:"line_items"`
}

func (s *billingReconciler) GenerateMonthlyBilling(ctx context.Context, caller types.Caller, req *dto.GenerateBillingRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.authorizeScope(caller, req.ProjectID); err != nil {
		return nil, err
	}

	month := time.Month(req.Month)
	from, to := proration.MonthRange(req.Year, month, nil)
	now := time.Now().UTC()
	if !from.Before(now) {
		return nil, ierr.NewErrorf("billing period %04d-%02d has not started", req.Year, req.Month).
			WithHint("Billing can only be generated for a month that has started").
			Mark(ierr.ErrValidation)
	}

	var inv *invoice.Invoice
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		inv = nil
		version := 1

		current, err := s.InvoiceRepo.GetCurrent(ctx, req.ProjectID, req.Year, req.Month)
		switch {
		case err == nil:
			if !req.Regenerate {
				return ierr.NewErrorf("invoice %s already exists for %04d-%02d", current.ID, req.Year, req.Month).
					WithHint("Billing for this month was already generated, set regenerate to replace it").
					WithReportableDetails(map[string]any{
						"invoice_id": current.ID,
						"version":    current.Version,
					}).
					Mark(ierr.ErrAlreadyExists)
			}
			if err := s.InvoiceRepo.MarkSuperseded(ctx, current.ID); err != nil {
				return err
			}
			version = current.Version + 1
		case ierr.IsNotFound(err):
		default:
			return err
		}

		services, err := s.BillableRepo.ListActiveInPeriod(ctx, &billable.ServiceFilter{
			WorkspaceID: req.ProjectID,
			ActiveFrom:  from,
			ActiveTo:    to,
		})
		if err != nil {
			return err
		}

		currency, err := s.invoiceCurrency(ctx, req.ProjectID)
		if err != nil {
			return err
		}

		inv = invoice.NewInvoice(req.ProjectID, req.Year, req.Month, currency, caller.UserID, version)
		for _, svc := range services {
			item, err := s.lineItem(ctx, svc, req.Year, month, now)
			if err != nil {
				return err
			}
			if item != nil {
				inv.AddLineItem(item)
			}
		}

		if req.ProjectID != "" {
			debits, err := s.CreditRepo.SumTransactions(ctx, req.ProjectID, types.TransactionTypeDebit, from, to)
			if err != nil {
				return err
			}
			// debit rows are stored negative
			inv.LedgerDebitTotal = decimal.NewNullDecimal(debits.Neg())
		}

		return s.InvoiceRepo.Create(ctx, inv)
	})
	metrics.InvoiceGenerationTotal.WithLabelValues(invoiceOutcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("generated monthly invoice",
		"invoice_id", inv.ID,
		"project_id", req.ProjectID,
		"year", req.Year,
		"month", req.Month,
		"version", inv.Version,
		"line_items", len(inv.LineItems),
		"total_amount", inv.TotalAmount,
	)
	s.notifyInvoice(ctx, inv)
	return dto.NewInvoiceResponse(inv, s.Config.Billing.DisplayPrecision), nil
}

// lineItem prices one service for the month. Services with no active day
// produce no line.
func (s *billingReconciler) lineItem(ctx context.Context, svc *billable.Service, year int, month time.Month, now time.Time) (*invoice.LineItem, error) {
	prorata, err := s.Proration.Calculate(ctx, proration.Params{
		Year:        year,
		Month:       month,
		ActiveFrom:  svc.CreatedAt,
		ActiveUntil: svc.DeactivatedAt,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	if prorata.ActiveDays == 0 {
		return nil, nil
	}

	breakdown := map[string]decimal.Decimal{}
	mode := lo.Ternary(svc.PlatformMode != "", svc.PlatformMode, types.PlatformModeDedicated)

	var dedicated, pag decimal.Decimal
	if mode == types.PlatformModeDedicated || mode == types.PlatformModeHybrid {
		rate, err := s.pricing.DedicatedRateFor(ctx, svc)
		if err != nil {
			return nil, err
		}
		dedicated = prorata.Apply(rate.Amount)
		breakdown["dedicated_cost"] = dedicated
	}
	if mode == types.PlatformModePAG || mode == types.PlatformModeHybrid {
		from, to := proration.MonthRange(year, month, nil)
		pag, err = s.UsageRepo.SumTotalCost(ctx, svc.WorkspaceID, svc.ID, from, to)
		if err != nil {
			return nil, err
		}
		breakdown["usage_cost"] = pag
	}

	var amount decimal.Decimal
	switch mode {
	case types.PlatformModeDedicated:
		amount = dedicated
	case types.PlatformModePAG:
		amount = pag
	case types.PlatformModeHybrid:
		amount = dedicated.Add(pag).Div(decimal.NewFromInt(2))
	default:
		return nil, ierr.NewErrorf("service %s has unknown platform mode %s", svc.ID, svc.PlatformMode).
			WithHint("Service platform mode is invalid").
			Mark(ierr.ErrConfiguration)
	}

	// fixed fees are not debited per event, so the invoice is where they land
	fixed, err := s.fixedFee(ctx, svc, year, month, prorata)
	if err != nil {
		return nil, err
	}
	if fixed.IsPositive() {
		breakdown["fixed_cost"] = fixed
		amount = amount.Add(fixed)
	}

	return &invoice.LineItem{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_LINE_ITEM),
		WorkspaceID:  svc.WorkspaceID,
		ServiceType:  svc.ServiceType,
		ServiceID:    svc.ID,
		ServiceName:  svc.Name,
		PlatformMode: mode,
		Amount:       amount,
		Prorata:      prorata.Ratio,
		ActiveDays:   prorata.ActiveDays,
		DaysInMonth:  prorata.TotalDays,
		Breakdown:    types.NewJSONColumn(breakdown),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// invoiceCurrency is the workspace account's currency for scoped invoices.
// Platform-wide invoices and workspaces without an account use the default.
func (s *billingReconciler) invoiceCurrency(ctx context.Context, workspaceID string) (string, error) {
	if workspaceID == "" {
		return s.Config.Billing.DefaultCurrency, nil
	}
	acc, err := s.CreditRepo.GetAccountByWorkspaceID(ctx, workspaceID)
	switch {
	case err == nil && acc.Currency != "":
		return acc.Currency, nil
	case err == nil || ierr.IsNotFound(err):
		return s.Config.Billing.DefaultCurrency, nil
	default:
		return "", err
	}
}

func (s *billingReconciler) fixedFee(ctx context.Context, svc *billable.Service, year int, month time.Month, prorata *proration.Result) (decimal.Decimal, error) {
	_, last := proration.MonthBounds(year, month, nil)
	at := lo.Ternary(prorata.To.Before(last), prorata.To, last)

	active, err := s.pricing.ActiveConfiguration(ctx, svc, at)
	if err != nil {
		return decimal.Zero, err
	}
	if active == nil || active.CostMode != types.CostModeFixed || active.Fixed.Data == nil {
		return decimal.Zero, nil
	}
	return prorata.Apply(active.Fixed.Data.PeriodCost), nil
}

func (s *billingReconciler) ListMonthlyBilling(ctx context.Context, caller types.Caller, req *dto.ListMonthlyBillingRequest) (*dto.ListInvoicesResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !caller.IsAuthenticated() {
		return nil, ierr.NewError("caller is not authenticated").
			WithHint("Authentication required").
			Mark(ierr.ErrUnauthenticated)
	}

	filter := req.ToFilter()
	if req.ProjectID != "" {
		if err := caller.RequireWorkspace(req.ProjectID); err != nil {
			return nil, err
		}
	} else if !caller.CanViewAllProjects {
		filter.WorkspaceIDs = lo.Ternary(caller.WorkspaceIDs != nil, caller.WorkspaceIDs, []string{})
	}
	if err := filter.QueryFilter.Validate(); err != nil {
		return nil, ierr.WithError(err).WithHint("Invalid pagination").Mark(ierr.ErrValidation)
	}

	invoices, err := s.InvoiceRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(invoices, func(inv *invoice.Invoice, _ int) *dto.InvoiceResponse {
		return dto.NewInvoiceResponse(inv, s.Config.Billing.DisplayPrecision)
	})
	response := types.NewListResponse(items, len(items), filter.GetLimit(), filter.GetOffset())
	return &response, nil
}

// authorizeScope allows workspace members to bill their own workspace and
// reserves platform-wide runs for credit administrators
func (s *billingReconciler) authorizeScope(caller types.Caller, projectID string) error {
	if projectID != "" {
		return caller.RequireWorkspace(projectID)
	}
	return caller.RequireCreditManagement()
}

func (s *billingReconciler) notifyInvoice(ctx context.Context, inv *invoice.Invoice) {
	// platform-wide invoices have no workspace endpoint to deliver to
	if inv.WorkspaceID == "" {
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	err := s.WebhookPublisher.Notify(notifyCtx, inv.WorkspaceID, types.WebhookEventInvoiceGenerated, invoiceEvent{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Year:          inv.Year,
		Month:         inv.Month,
		Version:       inv.Version,
		TotalAmount:   inv.TotalAmount,
		LineItems:     len(inv.LineItems),
	})
	if err != nil {
		s.Logger.Errorw("failed to publish invoice notification",
			"invoice_id", inv.ID,
			"error", err,
		)
	}
}

func invoiceOutcome(err error) string {
	if ierr.IsAlreadyExists(err) {
		return metrics.OutcomeRejected
	}
	return metrics.Outcome(err)
}
