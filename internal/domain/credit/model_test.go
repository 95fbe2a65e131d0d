package credit

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

func TestTransaction_Validate(t *testing.T) {
	tests := []struct {
		name     string
		txn      Transaction
		wantErr  bool
		wantKind string
	}{
		{
			name: "debit",
			txn: Transaction{
				TransactionType: types.TransactionTypeDebit,
				Amount:          decimal.NewFromInt(-30),
				BalanceBefore:   decimal.NewFromInt(100),
				BalanceAfter:    decimal.NewFromInt(70),
			},
		},
		{
			name: "negative adjustment",
			txn: Transaction{
				TransactionType: types.TransactionTypeAdjustment,
				Amount:          decimal.NewFromInt(-20),
				BalanceBefore:   decimal.NewFromInt(10),
				BalanceAfter:    decimal.NewFromInt(-10),
			},
		},
		{
			name: "positive debit",
			txn: Transaction{
				TransactionType: types.TransactionTypeDebit,
				Amount:          decimal.NewFromInt(30),
				BalanceBefore:   decimal.NewFromInt(100),
				BalanceAfter:    decimal.NewFromInt(130),
			},
			wantErr:  true,
			wantKind: types.ErrorKindInvalidAmount,
		},
		{
			name: "zero recharge",
			txn: Transaction{
				TransactionType: types.TransactionTypeRecharge,
				Amount:          decimal.Zero,
			},
			wantErr:  true,
			wantKind: types.ErrorKindInvalidAmount,
		},
		{
			name: "inconsistent balance",
			txn: Transaction{
				TransactionType: types.TransactionTypeRecharge,
				Amount:          decimal.NewFromInt(5),
				BalanceBefore:   decimal.NewFromInt(1),
				BalanceAfter:    decimal.NewFromInt(5),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.txn.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, ierr.Kind(err))
			}
		})
	}
}

func TestAccount_CanAutoResume(t *testing.T) {
	acc := NewAccount("ws_1", "user_1", "USD")
	acc.CurrentBalance = decimal.NewFromInt(5)
	assert.False(t, acc.CanAutoResume())

	acc.IsSuspended = true
	acc.SuspensionReason = lo.ToPtr(types.SuspensionReasonBalanceDepleted)
	assert.True(t, acc.CanAutoResume())

	acc.SuspensionReason = lo.ToPtr("fraud review")
	assert.False(t, acc.CanAutoResume())

	acc.SuspensionReason = lo.ToPtr(types.SuspensionReasonUsageRejected)
	acc.CurrentBalance = decimal.Zero
	assert.False(t, acc.CanAutoResume())
}

func TestAlert_Apply(t *testing.T) {
	acc := NewAccount("ws_1", "user_1", "USD")
	alert := NewAlert(acc, types.AlertTypeLowBalance, types.AlertSeverityWarning, "Low balance", "")
	at := time.Now().UTC()

	require.NoError(t, alert.Apply(types.AlertActionRead, at))
	assert.True(t, alert.IsRead)
	assert.False(t, alert.IsDismissed)

	require.NoError(t, alert.Apply(types.AlertActionDismiss, at))
	assert.True(t, alert.IsDismissed)
	assert.Equal(t, at, *alert.DismissedAt)

	err := alert.Apply(types.AlertAction("delete"), at)
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}
