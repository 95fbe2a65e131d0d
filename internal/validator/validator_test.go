package validator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

type rechargeLike struct {
	WorkspaceID string            `json:"workspace_id" validate:"required"`
	Amount      decimal.Decimal   `json:"amount" validate:"required"`
	ServiceType types.ServiceType `json:"service_type" validate:"omitempty,enum"`
	Month       int               `json:"month" validate:"omitempty,min=1,max=12"`
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name        string
		req         rechargeLike
		wantDetails map[string]any
	}{
		{
			name: "valid",
			req:  rechargeLike{WorkspaceID: "ws_1", Amount: decimal.NewFromInt(10), ServiceType: types.ServiceTypeAgent},
		},
		{
			name:        "missing workspace",
			req:         rechargeLike{Amount: decimal.NewFromInt(10)},
			wantDetails: map[string]any{"workspace_id": "is required"},
		},
		{
			name:        "unknown service type",
			req:         rechargeLike{WorkspaceID: "ws_1", Amount: decimal.NewFromInt(1), ServiceType: "robot"},
			wantDetails: map[string]any{"service_type": "has an unsupported value"},
		},
		{
			name:        "month out of range",
			req:         rechargeLike{WorkspaceID: "ws_1", Amount: decimal.NewFromInt(1), Month: 13},
			wantDetails: map[string]any{"month": "must be at most 12"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(&tt.req)
			if tt.wantDetails == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, ierr.IsValidation(err))
			assert.Equal(t, tt.wantDetails, ierr.ReportableDetails(err))
		})
	}
}
