package payment

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v82"
	"github.com/voxagent/billing/internal/config"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/logger"
)

func TestDisabledGatewayRefusesCharges(t *testing.T) {
	cfg := config.GetDefaultConfig()
	gw := NewGateway(cfg, logger.NewNoopLogger(), nil)

	_, err := gw.Charge(context.Background(), ChargeRequest{
		WorkspaceID: "ws_1",
		Amount:      decimal.NewFromInt(50),
	})
	assert.True(t, ierr.IsConfiguration(err))
}

func TestDisabledGatewayCannotVerifyPayments(t *testing.T) {
	gw := NewGateway(config.GetDefaultConfig(), logger.NewNoopLogger(), nil)

	_, err := gw.GetPayment(context.Background(), "pi_1")
	assert.True(t, ierr.IsConfiguration(err))
}

func TestPaymentFromIntent(t *testing.T) {
	p := paymentFromIntent(&stripe.PaymentIntent{
		ID:             "pi_1",
		Status:         stripe.PaymentIntentStatusSucceeded,
		AmountReceived: 2550,
		Currency:       stripe.CurrencyUSD,
	})
	assert.Equal(t, "pi_1", p.ID)
	assert.True(t, p.Succeeded)
	assert.True(t, decimal.RequireFromString("25.5").Equal(p.Amount))
	assert.Equal(t, "USD", p.Currency)

	pending := paymentFromIntent(&stripe.PaymentIntent{ID: "pi_2", Status: stripe.PaymentIntentStatusProcessing})
	assert.False(t, pending.Succeeded)
	assert.True(t, pending.Amount.IsZero())
}

func TestValidateCharge(t *testing.T) {
	tests := []struct {
		name    string
		req     ChargeRequest
		isValid bool
	}{
		{
			name:    "valid",
			req:     ChargeRequest{Amount: decimal.NewFromInt(50), CustomerID: "cus_1", PaymentMethodID: "pm_1"},
			isValid: true,
		},
		{
			name: "zero amount",
			req:  ChargeRequest{Amount: decimal.Zero, CustomerID: "cus_1", PaymentMethodID: "pm_1"},
		},
		{
			name: "missing payment method",
			req:  ChargeRequest{Amount: decimal.NewFromInt(50), CustomerID: "cus_1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCharge(tt.req)
			if tt.isValid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
