package billable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

func TestParseCostOverrides(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantErr  bool
		wantKind string
		check    func(t *testing.T, o *CostOverrides)
	}{
		{
			name: "empty object",
			raw:  `{}`,
			check: func(t *testing.T, o *CostOverrides) {
				assert.True(t, o.IsEmpty())
			},
		},
		{
			name: "builtin stt cost with unit",
			raw:  `{"builtin_stt_cost": "0.01", "stt_unit": "second"}`,
			check: func(t *testing.T, o *CostOverrides) {
				ov := o.ForResource(types.ResourceSTT)
				require.NotNil(t, ov.Cost)
				assert.Equal(t, "0.01", ov.Cost.String())
				assert.Equal(t, types.PriceUnitSecond, *ov.Unit)
				assert.False(t, o.IsEmpty())
			},
		},
		{
			name: "provider override",
			raw:  `{"external_llm_provider": "prov_openai"}`,
			check: func(t *testing.T, o *CostOverrides) {
				ov := o.ForResource(types.ResourceLLM)
				assert.True(t, ov.IsSet())
				assert.Equal(t, "prov_openai", *ov.ProviderID)
			},
		},
		{
			name: "storage override uses gb",
			raw:  `{"s3_storage_cost_per_gb": 0.05}`,
			check: func(t *testing.T, o *CostOverrides) {
				ov := o.ForResource(types.ResourceStorage)
				assert.Equal(t, types.PriceUnitGB, *ov.Unit)
				assert.Equal(t, "0.05", ov.Cost.String())
			},
		},
		{
			name:     "unit outside allow-list",
			raw:      `{"builtin_tts_cost": "0.1", "tts_unit": "token"}`,
			wantErr:  true,
			wantKind: types.ErrorKindInvalidUnit,
		},
		{
			name:     "negative cost",
			raw:      `{"builtin_llm_cost": "-1"}`,
			wantErr:  true,
			wantKind: types.ErrorKindInvalidAmount,
		},
		{
			name:    "unknown key",
			raw:     `{"builtin_video_cost": "1"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := ParseCostOverrides([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ierr.IsValidation(err))
				if tt.wantKind != "" {
					assert.Equal(t, tt.wantKind, ierr.Kind(err))
				}
				return
			}
			require.NoError(t, err)
			tt.check(t, o)
		})
	}
}

func TestService_DedicatedRateKey(t *testing.T) {
	voice := types.AgentTypeVoice
	text := types.AgentTypeText

	tests := []struct {
		svc  Service
		want string
	}{
		{Service{ServiceType: types.ServiceTypeAgent, AgentType: &voice}, "voice_agent_monthly"},
		{Service{ServiceType: types.ServiceTypeAgent, AgentType: &text}, "text_agent_monthly"},
		{Service{ServiceType: types.ServiceTypeAgent}, "voice_agent_monthly"},
		{Service{ServiceType: types.ServiceTypeKnowledgeBase}, "knowledge_base_monthly"},
		{Service{ServiceType: types.ServiceTypeWorkflow}, "workflow_monthly"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.svc.DedicatedRateKey())
	}
}
