package service

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/domain/proration"
	"github.com/voxagent/billing/internal/domain/usage"
	ierr "github.com/voxagent/billing/internal/errors"
	pubsubRouter "github.com/voxagent/billing/internal/pubsub/router"
	"github.com/voxagent/billing/internal/types"
)

// UsageService prices usage events and debits them from the workspace balance
type UsageService interface {
	RecordUsage(ctx context.Context, caller types.Caller, req *dto.RecordUsageRequest) (*dto.RecordUsageResponse, error)

	// RegisterHandler consumes usage events from the usage topic
	RegisterHandler(router *pubsubRouter.Router, subscriber message.Subscriber)
	// ProcessMessage records one queued usage event. Malformed payloads are acked.
	ProcessMessage(msg *message.Message) error
}

type usageService struct {
	ServiceParams
	costs   CostService
	credits CreditService
}

func NewUsageService(params ServiceParams, costService CostService, creditService CreditService) UsageService {
	return &usageService{
		ServiceParams: params,
		costs:         costService,
		credits:       creditService,
	}
}

func (s *usageService) RecordUsage(ctx context.Context, caller types.Caller, req *dto.RecordUsageRequest) (*dto.RecordUsageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := caller.RequireWorkspace(req.WorkspaceID); err != nil {
		return nil, err
	}

	if existing, err := s.UsageRepo.GetByEventID(ctx, req.EventID); err == nil {
		return s.duplicate(existing), nil
	} else if !ierr.IsNotFound(err) {
		return nil, err
	}

	svc, err := s.BillableRepo.Get(ctx, req.Ref())
	if err != nil {
		return nil, err
	}
	if svc.WorkspaceID != req.WorkspaceID {
		return nil, serviceNotInWorkspace(svc.ID, req.WorkspaceID)
	}
	if !svc.IsActive {
		return nil, ierr.NewErrorf("service %s is deactivated", svc.ID).
			WithHint("Usage cannot be recorded for a deactivated service").
			Mark(ierr.ErrInvalidOperation)
	}

	if _, err := s.credits.EnsureAccount(ctx, svc.WorkspaceID, caller.UserID, ""); err != nil {
		return nil, err
	}

	occurredAt := time.Now().UTC()
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
	}

	calcReq := req.ToCalculateCostRequest(occurredAt)
	if calcReq.Usage.PeriodStart == nil {
		// flat fees are prorated over the month the event falls in
		calcReq.Usage.PeriodStart = &occurredAt
	}
	costs, err := s.costs.CalculateForService(ctx, svc, calcReq)
	if err != nil {
		return nil, err
	}

	// flat fees are invoiced monthly, only metered cost is charged per event
	charge := costs.Costs.MeteredCost()

	var (
		rec      *usage.Record
		ledger   *dto.LedgerResult
		rejected bool
	)
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		rec = &usage.Record{
			ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE_RECORD),
			EventID:     req.EventID,
			WorkspaceID: svc.WorkspaceID,
			ServiceType: svc.ServiceType,
			ServiceID:   svc.ID,
			CostMode:    costs.Mode,
			Metrics:     types.NewJSONColumn(req.Usage),
			Breakdown:   types.NewJSONColumn(costs.Costs.AsMap()),
			TotalCost:   charge,
			OccurredAt:  occurredAt,
			CreatedAt:   time.Now().UTC(),
		}
		ledger = nil
		rejected = false

		if charge.IsPositive() {
			result, err := s.credits.Debit(ctx, types.SystemCaller(), &dto.DebitRequest{
				WorkspaceID:   svc.WorkspaceID,
				Amount:        charge,
				Description:   "Usage " + string(svc.ServiceType) + " " + svc.ID,
				ReferenceType: "usage",
				ReferenceID:   req.EventID,
			})
			switch {
			case err == nil:
				ledger = result
				rec.Billed = true
				rec.TransactionID = lo.ToPtr(result.TransactionID)
			case ierr.IsInsufficientBalance(err):
				// the event still happened, keep it unbilled
				rejected = true
			default:
				return err
			}
		} else {
			rec.Billed = true
		}

		if err := s.UsageRepo.Create(ctx, rec); err != nil {
			return err
		}
		return s.advanceAllowances(ctx, rec, costs)
	})
	if err != nil {
		if ierr.IsAlreadyExists(err) {
			// a concurrent delivery of the same event won
			if existing, getErr := s.UsageRepo.GetByEventID(ctx, req.EventID); getErr == nil {
				return s.duplicate(existing), nil
			}
		}
		return nil, err
	}

	resp := dto.NewRecordUsageResponse(rec, s.Config.Billing.DisplayPrecision)
	resp.Costs = costs
	if ledger != nil {
		resp.Balance = lo.ToPtr(ledger.NewBalance)
		resp.Suspended = ledger.IsSuspended
	}

	if rejected {
		suspension, err := s.credits.Suspend(ctx, types.SystemCaller(), svc.WorkspaceID,
			types.SuspensionReasonUsageRejected, types.AlertTypeAutoSuspension)
		if err != nil {
			// the monitor sweep suspends depleted accounts anyway
			s.Logger.Errorw("failed to suspend workspace after rejected usage",
				"workspace_id", svc.WorkspaceID,
				"event_id", req.EventID,
				"error", err,
			)
		} else {
			resp.Suspended = suspension.IsSuspended
		}
	}

	s.Logger.Debugw("recorded usage",
		"event_id", req.EventID,
		"workspace_id", svc.WorkspaceID,
		"service_id", svc.ID,
		"mode", costs.Mode,
		"total_cost", costs.Costs.TotalCost,
		"charged", charge,
		"billed", rec.Billed,
	)
	return resp, nil
}

// advanceAllowances records the included quantity consumed under fixed pricing
func (s *usageService) advanceAllowances(ctx context.Context, rec *usage.Record, costs *dto.CostBreakdown) error {
	if len(costs.AllowanceUsed) == 0 {
		return nil
	}
	periodStart, _ := proration.MonthRange(rec.OccurredAt.Year(), rec.OccurredAt.Month(), nil)
	for resource, consumed := range costs.AllowanceUsed {
		if !consumed.IsPositive() {
			continue
		}
		err := s.UsageRepo.AddAllowanceConsumed(ctx, &usage.AllowanceCounter{
			WorkspaceID: rec.WorkspaceID,
			ServiceID:   rec.ServiceID,
			Resource:    resource,
			PeriodStart: periodStart,
			Consumed:    consumed,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *usageService) duplicate(rec *usage.Record) *dto.RecordUsageResponse {
	resp := dto.NewRecordUsageResponse(rec, s.Config.Billing.DisplayPrecision)
	resp.Duplicate = true
	return resp
}

// RegisterHandler registers the usage consumer with the router
func (s *usageService) RegisterHandler(router *pubsubRouter.Router, subscriber message.Subscriber) {
	rateLimit := s.Config.Kafka.RateLimit
	if rateLimit <= 0 {
		rateLimit = 50
	}
	throttle := middleware.NewThrottle(rateLimit, time.Second)

	router.AddNoPublishHandler(
		"usage_ingestion_handler",
		s.Config.Kafka.UsageTopic,
		subscriber,
		s.ProcessMessage,
		throttle.Middleware,
	)

	s.Logger.Infow("registered usage ingestion handler",
		"topic", s.Config.Kafka.UsageTopic,
		"consumer_group", s.Config.Kafka.ConsumerGroup,
		"rate_limit", rateLimit,
	)
}

func (s *usageService) ProcessMessage(msg *message.Message) error {
	ctx := msg.Context()

	span, ctx := s.Sentry.StartKafkaConsumerSpan(ctx, s.Config.Kafka.UsageTopic)
	if span != nil {
		defer span.Finish()
	}

	var req dto.RecordUsageRequest
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(msg.Payload, &req); err != nil {
		// a malformed payload never parses on redelivery
		s.Logger.Errorw("failed to unmarshal usage event",
			"message_uuid", msg.UUID,
			"error", err,
		)
		s.Sentry.CaptureException(err)
		return nil
	}

	resp, err := s.RecordUsage(ctx, types.SystemCaller(), &req)
	if err != nil {
		return err
	}
	if resp.Duplicate {
		s.Logger.Debugw("skipping duplicate usage event", "event_id", req.EventID)
	}
	return nil
}
