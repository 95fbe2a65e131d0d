package webhook

import (
	"fmt"

	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/logger"
	pubsubRouter "github.com/voxagent/billing/internal/pubsub/router"
	"github.com/voxagent/billing/internal/webhook/handler"
	"github.com/voxagent/billing/internal/webhook/publisher"
)

// WebhookService owns the notifier queue: the publisher side used by services
// and the delivery handler run by the message router
type WebhookService struct {
	config    *config.Configuration
	publisher publisher.WebhookPublisher
	handler   handler.Handler
	logger    *logger.Logger
}

func NewWebhookService(
	cfg *config.Configuration,
	publisher publisher.WebhookPublisher,
	h handler.Handler,
	l *logger.Logger,
) *WebhookService {
	return &WebhookService{
		config:    cfg,
		publisher: publisher,
		handler:   h,
		logger:    l,
	}
}

// RegisterHandler attaches the delivery handler to the router when webhooks are enabled
func (s *WebhookService) RegisterHandler(router *pubsubRouter.Router) {
	if !s.config.Webhook.Enabled {
		s.logger.Info("webhook delivery disabled")
		return
	}
	s.handler.RegisterHandler(router)
	s.logger.Infow("webhook delivery handler registered", "topic", s.config.Webhook.Topic)
}

// Stop closes the publisher side of the queue
func (s *WebhookService) Stop() error {
	if err := s.publisher.Close(); err != nil {
		s.logger.Errorw("failed to close webhook publisher", "error", err)
		return fmt.Errorf("failed to close webhook publisher: %w", err)
	}
	s.logger.Info("webhook service stopped")
	return nil
}
