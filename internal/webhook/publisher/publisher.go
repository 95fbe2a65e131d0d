package publisher

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	jsoniter "github.com/json-iterator/go"
	"github.com/voxagent/billing/internal/config"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/pubsub"
	"github.com/voxagent/billing/internal/types"
)

// WebhookPublisher puts webhook events on the delivery queue
type WebhookPublisher interface {
	PublishWebhook(ctx context.Context, event *types.WebhookEvent) error
	// Notify builds an event for a workspace and publishes it
	Notify(ctx context.Context, workspaceID, eventName string, payload interface{}) error
	Close() error
}

type webhookPublisher struct {
	pubSub pubsub.PubSub
	config *config.Webhook
	logger *logger.Logger
}

func NewPublisher(pubSub pubsub.PubSub, cfg *config.Configuration, logger *logger.Logger) WebhookPublisher {
	return &webhookPublisher{
		pubSub: pubSub,
		config: &cfg.Webhook,
		logger: logger,
	}
}

func (p *webhookPublisher) Notify(ctx context.Context, workspaceID, eventName string, payload interface{}) error {
	if !p.config.Enabled {
		return nil
	}

	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(payload)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode webhook payload").
			Mark(ierr.ErrSystem)
	}

	return p.PublishWebhook(ctx, &types.WebhookEvent{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_EVENT),
		EventName:   eventName,
		WorkspaceID: workspaceID,
		UserID:      types.GetUserID(ctx),
		Timestamp:   time.Now().UTC(),
		Payload:     raw,
	})
}

func (p *webhookPublisher) PublishWebhook(ctx context.Context, event *types.WebhookEvent) error {
	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode webhook event").
			Mark(ierr.ErrSystem)
	}

	messageID := event.ID
	if messageID == "" {
		messageID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_EVENT)
	}

	msg := message.NewMessage(messageID, payload)
	msg.Metadata.Set("workspace_id", event.WorkspaceID)
	msg.Metadata.Set("event_name", event.EventName)

	p.logger.Debugw("publishing webhook event",
		"event_id", event.ID,
		"event_name", event.EventName,
		"workspace_id", event.WorkspaceID,
		"topic", p.config.Topic,
	)

	if err := p.pubSub.Publish(ctx, p.config.Topic, msg); err != nil {
		p.logger.Errorw("failed to publish webhook event",
			"error", err,
			"event_id", event.ID,
			"event_name", event.EventName,
			"workspace_id", event.WorkspaceID,
		)
		return ierr.WithError(err).
			WithHint("Webhook notifier is unavailable").
			Mark(ierr.ErrExternalDependency)
	}

	return nil
}

func (p *webhookPublisher) Close() error {
	return p.pubSub.Close()
}
