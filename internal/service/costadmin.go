package service

import (
	"context"
	"encoding/json"

	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/domain/billable"
	"github.com/voxagent/billing/internal/domain/costconfig"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/types"
)

// CostAdminService maintains per-service cost overrides and cost configurations
type CostAdminService interface {
	GetCostOverrides(ctx context.Context, caller types.Caller, ref billable.Ref) (*dto.CostOverridesResponse, error)
	SetCostOverrides(ctx context.Context, caller types.Caller, ref billable.Ref, raw json.RawMessage) (*dto.CostOverridesResponse, error)
	ResetCostOverrides(ctx context.Context, caller types.Caller, ref billable.Ref) (*dto.CostOverridesResponse, error)

	CreateCostConfiguration(ctx context.Context, caller types.Caller, req *dto.CreateCostConfigurationRequest) (*costconfig.CostConfiguration, error)
	ListCostConfigurations(ctx context.Context, caller types.Caller, req *dto.ListCostConfigurationsRequest) (*dto.ListCostConfigurationsResponse, error)
	DeactivateCostConfiguration(ctx context.Context, caller types.Caller, id string) error
}

type costAdminService struct {
	ServiceParams
}

func NewCostAdminService(params ServiceParams) CostAdminService {
	return &costAdminService{ServiceParams: params}
}

func (s *costAdminService) GetCostOverrides(ctx context.Context, caller types.Caller, ref billable.Ref) (*dto.CostOverridesResponse, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	svc, err := s.BillableRepo.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := caller.RequireWorkspace(svc.WorkspaceID); err != nil {
		return nil, err
	}
	return overridesResponse(svc.Ref(), *svc.Overrides()), nil
}

// SetCostOverrides replaces the whole override blob after strict validation
func (s *costAdminService) SetCostOverrides(ctx context.Context, caller types.Caller, ref billable.Ref, raw json.RawMessage) (*dto.CostOverridesResponse, error) {
	if err := caller.RequireGlobalSettings(); err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	overrides, err := billable.ParseCostOverrides(raw)
	if err != nil {
		return nil, err
	}
	if err := s.BillableRepo.UpdateCostOverrides(ctx, ref, *overrides); err != nil {
		return nil, err
	}

	s.Logger.Infow("updated cost overrides",
		"service_type", ref.Type,
		"service_id", ref.ID,
		"updated_by", caller.UserID,
	)
	return overridesResponse(ref, *overrides), nil
}

func (s *costAdminService) ResetCostOverrides(ctx context.Context, caller types.Caller, ref billable.Ref) (*dto.CostOverridesResponse, error) {
	if err := caller.RequireGlobalSettings(); err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if err := s.BillableRepo.UpdateCostOverrides(ctx, ref, billable.CostOverrides{}); err != nil {
		return nil, err
	}

	s.Logger.Infow("reset cost overrides",
		"service_type", ref.Type,
		"service_id", ref.ID,
		"updated_by", caller.UserID,
	)
	return overridesResponse(ref, billable.CostOverrides{}), nil
}

func (s *costAdminService) CreateCostConfiguration(ctx context.Context, caller types.Caller, req *dto.CreateCostConfigurationRequest) (*costconfig.CostConfiguration, error) {
	if err := caller.RequireGlobalSettings(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cfg, err := req.ToCostConfiguration(caller.UserID)
	if err != nil {
		return nil, err
	}

	if cfg.ServiceID != nil {
		svc, err := s.BillableRepo.Get(ctx, billable.Ref{Type: cfg.ServiceType, ID: *cfg.ServiceID})
		if err != nil {
			return nil, err
		}
		if svc.WorkspaceID != cfg.WorkspaceID {
			return nil, serviceNotInWorkspace(svc.ID, cfg.WorkspaceID)
		}
	}

	if err := s.CostConfigRepo.Create(ctx, cfg); err != nil {
		return nil, err
	}

	s.Logger.Infow("created cost configuration",
		"config_id", cfg.ID,
		"workspace_id", cfg.WorkspaceID,
		"cost_mode", cfg.CostMode,
		"priority", cfg.Priority,
	)
	return cfg, nil
}

func (s *costAdminService) ListCostConfigurations(ctx context.Context, caller types.Caller, req *dto.ListCostConfigurationsRequest) (*dto.ListCostConfigurationsResponse, error) {
	if err := caller.RequireWorkspace(req.WorkspaceID); err != nil {
		return nil, err
	}

	filter := req.ToFilter()
	if err := filter.QueryFilter.Validate(); err != nil {
		return nil, ierr.WithError(err).WithHint("Invalid pagination").Mark(ierr.ErrValidation)
	}

	configs, err := s.CostConfigRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	response := types.NewListResponse(configs, len(configs), filter.GetLimit(), filter.GetOffset())
	return &response, nil
}

// DeactivateCostConfiguration is a soft delete, history stays queryable
func (s *costAdminService) DeactivateCostConfiguration(ctx context.Context, caller types.Caller, id string) error {
	if err := caller.RequireGlobalSettings(); err != nil {
		return err
	}
	if _, err := s.CostConfigRepo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.CostConfigRepo.Deactivate(ctx, id); err != nil {
		return err
	}

	s.Logger.Infow("deactivated cost configuration",
		"config_id", id,
		"updated_by", caller.UserID,
	)
	return nil
}

func overridesResponse(ref billable.Ref, overrides billable.CostOverrides) *dto.CostOverridesResponse {
	return &dto.CostOverridesResponse{
		ServiceType:   ref.Type,
		ServiceID:     ref.ID,
		CostOverrides: overrides,
	}
}
