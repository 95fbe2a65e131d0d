package payment

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/voxagent/billing/internal/config"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/sentry"
	"golang.org/x/time/rate"
)

// ChargeRequest is an off-session charge against a saved payment method
type ChargeRequest struct {
	WorkspaceID     string
	AccountID       string
	CustomerID      string
	PaymentMethodID string
	Amount          decimal.Decimal
	Currency        string
}

type ChargeResult struct {
	PaymentID string
	Status    string
}

// Payment is a payment as the provider reports it. Amount is what was
// actually received, in major units.
type Payment struct {
	ID        string
	Status    string
	Amount    decimal.Decimal
	Currency  string
	Succeeded bool
}

// Gateway is the payment collaborator used by auto-recharge
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	// GetPayment looks up a payment made outside this service, e.g. a checkout
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

type stripeGateway struct {
	client  *stripe.Client
	limiter *rate.Limiter
	timeout time.Duration
	logger  *logger.Logger
	sentry  *sentry.Service
}

// NewGateway returns the Stripe gateway, or one that refuses every charge when payments are disabled
func NewGateway(cfg *config.Configuration, logger *logger.Logger, sentry *sentry.Service) Gateway {
	if !cfg.Payment.Enabled || cfg.Payment.Stripe.SecretKey == "" {
		return &disabledGateway{}
	}

	limit := rate.Limit(cfg.Payment.RateLimit)
	if cfg.Payment.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Payment.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Payment.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &stripeGateway{
		client:  stripe.NewClient(cfg.Payment.Stripe.SecretKey, nil),
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
		logger:  logger,
		sentry:  sentry,
	}
}

func (g *stripeGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if err := validateCharge(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Payment provider is busy, try again later").
			Mark(ierr.ErrExternalDependency)
	}

	span, ctx := g.sentry.StartPaymentSpan(ctx, "payment.charge", map[string]interface{}{
		"workspace_id": req.WorkspaceID,
		"amount":       req.Amount.String(),
	})
	if span != nil {
		defer span.Finish()
	}

	amountInCents := req.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(amountInCents),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
		Metadata: map[string]string{
			"workspace_id":   req.WorkspaceID,
			"account_id":     req.AccountID,
			"payment_type":   "auto_recharge",
			"payment_source": "voxbilling",
		},
	}

	intent, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok {
			switch stripeErr.Code {
			case stripe.ErrorCodeAuthenticationRequired, stripe.ErrorCodeCardDeclined:
				return nil, ierr.NewError("auto-recharge payment was declined").
					WithHint("The saved payment method was declined").
					WithReportableDetails(map[string]interface{}{
						"workspace_id":      req.WorkspaceID,
						"stripe_error_code": stripeErr.Code,
					}).
					Mark(ierr.ErrInvalidOperation)
			}
		}

		g.logger.Errorw("failed to create auto-recharge payment intent",
			"error", err,
			"workspace_id", req.WorkspaceID,
			"amount", req.Amount.String(),
		)
		return nil, ierr.WithError(err).
			WithHint("Payment provider is unavailable").
			Mark(ierr.ErrExternalDependency)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, ierr.NewErrorf("payment intent %s finished with status %s", intent.ID, intent.Status).
			WithHint("Auto-recharge payment did not complete").
			WithReportableDetails(map[string]interface{}{
				"payment_id": intent.ID,
				"status":     string(intent.Status),
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	return &ChargeResult{
		PaymentID: intent.ID,
		Status:    string(intent.Status),
	}, nil
}

func (g *stripeGateway) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Payment provider is busy, try again later").
			Mark(ierr.ErrExternalDependency)
	}

	intent, err := g.client.V1PaymentIntents.Retrieve(ctx, paymentID, nil)
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, ierr.WithError(err).
				WithHint("Payment not found").
				WithReportableDetails(map[string]interface{}{"payment_id": paymentID}).
				Mark(ierr.ErrNotFound)
		}
		g.logger.Errorw("failed to retrieve payment intent", "error", err, "payment_id", paymentID)
		return nil, ierr.WithError(err).
			WithHint("Payment provider is unavailable").
			Mark(ierr.ErrExternalDependency)
	}

	return paymentFromIntent(intent), nil
}

func paymentFromIntent(intent *stripe.PaymentIntent) *Payment {
	return &Payment{
		ID:        intent.ID,
		Status:    string(intent.Status),
		Amount:    decimal.New(intent.AmountReceived, -2),
		Currency:  strings.ToUpper(string(intent.Currency)),
		Succeeded: intent.Status == stripe.PaymentIntentStatusSucceeded,
	}
}

func validateCharge(req ChargeRequest) error {
	if !req.Amount.IsPositive() {
		return ierr.NewError("charge amount must be positive").
			WithHint("Auto-recharge amount must be positive").
			Mark(ierr.ErrValidation)
	}
	if req.CustomerID == "" || req.PaymentMethodID == "" {
		return ierr.NewError("no saved payment method").
			WithHint("No payment method is configured for auto-recharge").
			WithReportableDetails(map[string]interface{}{
				"workspace_id": req.WorkspaceID,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	return nil
}

type disabledGateway struct{}

func (disabledGateway) Charge(_ context.Context, req ChargeRequest) (*ChargeResult, error) {
	return nil, ierr.NewError("payment collaborator is not configured").
		WithHint("Auto-recharge is unavailable").
		WithReportableDetails(map[string]interface{}{
			"workspace_id": req.WorkspaceID,
		}).
		Mark(ierr.ErrConfiguration)
}

func (disabledGateway) GetPayment(_ context.Context, paymentID string) (*Payment, error) {
	return nil, ierr.NewError("payment collaborator is not configured").
		WithHint("Payments cannot be verified").
		WithReportableDetails(map[string]interface{}{
			"payment_id": paymentID,
		}).
		Mark(ierr.ErrConfiguration)
}
