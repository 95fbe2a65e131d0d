package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/domain/credit"
	"github.com/voxagent/billing/internal/types"
)

// CreditAlertService manages credit alerts. Alerts are marked read or
// dismissed but never deleted.
type CreditAlertService interface {
	ListAlerts(ctx context.Context, caller types.Caller, filter *credit.AlertFilter) (*dto.ListAlertsResponse, error)
	UpdateAlert(ctx context.Context, caller types.Caller, id string, action types.AlertAction) (*credit.Alert, error)
	MarkRead(ctx context.Context, caller types.Caller, id string) (*credit.Alert, error)
	Dismiss(ctx context.Context, caller types.Caller, id string) (*credit.Alert, error)
	// CreateAlert returns nil without error when a deduplicated alert already exists
	CreateAlert(ctx context.Context, req *dto.CreateAlertRequest) (*credit.Alert, error)
}

type creditAlertService struct {
	ServiceParams
}

func NewCreditAlertService(params ServiceParams) CreditAlertService {
	return &creditAlertService{ServiceParams: params}
}

func (s *creditAlertService) ListAlerts(ctx context.Context, caller types.Caller, filter *credit.AlertFilter) (*dto.ListAlertsResponse, error) {
	if filter == nil {
		filter = credit.NewAlertFilter()
	}
	if err := caller.RequireWorkspace(filter.WorkspaceID); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	alerts, err := s.AlertRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.AlertRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	response := types.NewListResponse(alerts, total, filter.GetLimit(), filter.GetOffset())
	return &response, nil
}

func (s *creditAlertService) UpdateAlert(ctx context.Context, caller types.Caller, id string, action types.AlertAction) (*credit.Alert, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}

	alert, err := s.AlertRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := caller.RequireWorkspace(alert.WorkspaceID); err != nil {
		return nil, err
	}

	if err := alert.Apply(action, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.AlertRepo.Update(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *creditAlertService) MarkRead(ctx context.Context, caller types.Caller, id string) (*credit.Alert, error) {
	return s.UpdateAlert(ctx, caller, id, types.AlertActionRead)
}

func (s *creditAlertService) Dismiss(ctx context.Context, caller types.Caller, id string) (*credit.Alert, error) {
	return s.UpdateAlert(ctx, caller, id, types.AlertActionDismiss)
}

func (s *creditAlertService) CreateAlert(ctx context.Context, req *dto.CreateAlertRequest) (*credit.Alert, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	acc, err := s.CreditRepo.GetAccountByWorkspaceID(ctx, req.WorkspaceID)
	if err != nil {
		return nil, err
	}

	if req.Dedupe {
		exists, err := s.AlertRepo.HasUndismissedSince(ctx, req.WorkspaceID, req.AlertType, s.Config.Billing.AlertPeriod.Start(time.Now()))
		if err != nil {
			return nil, err
		}
		if exists {
			s.Logger.Debugw("skipping duplicate credit alert",
				"workspace_id", req.WorkspaceID,
				"alert_type", req.AlertType,
			)
			return nil, nil
		}
	}

	alert := credit.NewAlert(acc, req.AlertType, req.Severity, req.Title, req.Message)
	if req.Threshold != nil {
		alert.WithThreshold(lo.FromPtr(req.Threshold))
	}
	if err := alert.Validate(); err != nil {
		return nil, err
	}
	if err := s.AlertRepo.Create(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}
