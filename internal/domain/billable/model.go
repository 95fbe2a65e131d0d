package billable

import (
	"time"

	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// Service is a billable agent, knowledge base or workflow owned by a workspace
type Service struct {
	ID            string                          `db:"id" json:"id"`
	WorkspaceID   string                          `db:"workspace_id" json:"workspace_id"`
	ServiceType   types.ServiceType               `db:"service_type" json:"service_type"`
	Name          string                          `db:"name" json:"name"`
	AgentType     *types.AgentType                `db:"agent_type" json:"agent_type,omitempty"`
	PlatformMode  types.PlatformMode              `db:"platform_mode" json:"platform_mode"`
	CostOverrides types.JSONColumn[CostOverrides] `db:"cost_overrides" json:"cost_overrides"`
	IsActive      bool                            `db:"is_active" json:"is_active"`
	CreatedAt     time.Time                       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time                       `db:"updated_at" json:"updated_at"`
	DeactivatedAt *time.Time                      `db:"deactivated_at" json:"deactivated_at,omitempty"`
}

// Ref identifies a service by type and id
type Ref struct {
	Type types.ServiceType `json:"service_type" validate:"required"`
	ID   string            `json:"service_id" validate:"required"`
}

func (r Ref) Validate() error {
	if r.ID == "" {
		return ierr.NewError("service_id is required").
			WithHint("Service ID is required").
			Mark(ierr.ErrValidation)
	}
	return r.Type.Validate()
}

func (s *Service) Ref() Ref {
	return Ref{Type: s.ServiceType, ID: s.ID}
}

// Overrides returns the parsed cost overrides
func (s *Service) Overrides() *CostOverrides {
	return &s.CostOverrides.Data
}

// DedicatedRateKey returns the settings key used for the flat monthly rate of this service
func (s *Service) DedicatedRateKey() string {
	switch s.ServiceType {
	case types.ServiceTypeKnowledgeBase:
		return "knowledge_base_monthly"
	case types.ServiceTypeWorkflow:
		return "workflow_monthly"
	}
	if s.AgentType != nil && *s.AgentType == types.AgentTypeText {
		return "text_agent_monthly"
	}
	return "voice_agent_monthly"
}

// ServiceFilter scopes service reads for the reconciler
type ServiceFilter struct {
	WorkspaceID  string
	ServiceTypes []types.ServiceType
	// ActiveFrom and ActiveTo select services alive at any point of the interval
	ActiveFrom time.Time
	ActiveTo   time.Time
}
