package handler

import (
	"context"
	"net/http"

	"github.com/ThreeDotsLabs/watermill/message"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/httpclient"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/metrics"
	"github.com/voxagent/billing/internal/pubsub"
	pubsubRouter "github.com/voxagent/billing/internal/pubsub/router"
	"github.com/voxagent/billing/internal/svix"
	"github.com/voxagent/billing/internal/types"
)

// Handler delivers queued webhook events
type Handler interface {
	RegisterHandler(router *pubsubRouter.Router)
}

type handler struct {
	pubSub     pubsub.PubSub
	config     *config.Webhook
	client     httpclient.Client
	logger     *logger.Logger
	svixClient *svix.Client
}

func NewHandler(
	pubSub pubsub.PubSub,
	cfg *config.Configuration,
	client httpclient.Client,
	logger *logger.Logger,
	svixClient *svix.Client,
) Handler {
	return &handler{
		pubSub:     pubSub,
		config:     &cfg.Webhook,
		client:     client,
		logger:     logger,
		svixClient: svixClient,
	}
}

func (h *handler) RegisterHandler(router *pubsubRouter.Router) {
	router.AddNoPublishHandler(
		"webhook_handler",
		h.config.Topic,
		h.pubSub,
		h.processMessage,
	)
}

func (h *handler) processMessage(msg *message.Message) error {
	var event types.WebhookEvent
	if err := jsoniter.Unmarshal(msg.Payload, &event); err != nil {
		h.logger.Errorw("failed to unmarshal webhook event",
			"error", err,
			"message_uuid", msg.UUID,
		)
		metrics.WebhookDeliveriesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil
	}

	ctx := types.SetWorkspaceID(msg.Context(), event.WorkspaceID)
	ctx = types.SetUserID(ctx, event.UserID)

	var err error
	if h.config.Svix.Enabled && h.svixClient.Enabled() {
		err = h.deliverSvix(ctx, &event, msg.UUID)
	} else {
		err = h.deliverNative(ctx, &event, msg.UUID)
	}

	metrics.WebhookDeliveriesTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	return err
}

func (h *handler) deliverSvix(ctx context.Context, event *types.WebhookEvent, messageUUID string) error {
	appID, err := h.svixClient.GetOrCreateApplication(ctx, event.WorkspaceID)
	if err != nil {
		return err
	}

	body, err := jsoniter.Marshal(event)
	if err != nil {
		return err
	}

	if err := h.svixClient.SendMessage(ctx, appID, event.EventName, body); err != nil {
		h.logger.Errorw("failed to send webhook via svix",
			"error", err,
			"message_uuid", messageUUID,
			"workspace_id", event.WorkspaceID,
			"event", event.EventName,
		)
		return err
	}

	h.logger.Infow("webhook sent via svix",
		"message_uuid", messageUUID,
		"workspace_id", event.WorkspaceID,
		"event", event.EventName,
	)
	return nil
}

func (h *handler) deliverNative(ctx context.Context, event *types.WebhookEvent, messageUUID string) error {
	wsCfg, ok := h.config.Workspaces[event.WorkspaceID]
	if !ok || wsCfg.Endpoint == "" {
		h.logger.Debugw("no webhook endpoint for workspace",
			"workspace_id", event.WorkspaceID,
			"message_uuid", messageUUID,
		)
		return nil
	}

	if !wsCfg.Enabled {
		return nil
	}

	if lo.Contains(wsCfg.ExcludedEvents, event.EventName) {
		h.logger.Debugw("event excluded for workspace",
			"workspace_id", event.WorkspaceID,
			"event", event.EventName,
		)
		return nil
	}

	body, err := jsoniter.Marshal(event)
	if err != nil {
		return err
	}

	resp, err := h.client.Send(ctx, &httpclient.Request{
		Method:  http.MethodPost,
		URL:     wsCfg.Endpoint,
		Headers: wsCfg.Headers,
		Body:    body,
	})
	if err != nil {
		h.logger.Errorw("failed to send webhook",
			"error", err,
			"message_uuid", messageUUID,
			"workspace_id", event.WorkspaceID,
			"event", event.EventName,
		)
		return err
	}

	h.logger.Infow("webhook sent",
		"message_uuid", messageUUID,
		"workspace_id", event.WorkspaceID,
		"event", event.EventName,
		"status_code", resp.StatusCode,
	)
	return nil
}
