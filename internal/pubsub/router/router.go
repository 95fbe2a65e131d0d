package router

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/metrics"
	"github.com/voxagent/billing/internal/sentry"
)

// dlqTopic receives messages whose retries ran out
const dlqTopic = "billing_dlq"

// Router runs the queue consumers of the process: webhook delivery and, in
// consumer modes, usage ingestion
type Router struct {
	router *message.Router
	logger *logger.Logger
	sentry *sentry.Service
}

// NewRouter wires retries with exponential backoff from the webhook config.
// A message that still fails is moved to an in-process dead letter queue
// where it is logged and counted.
func NewRouter(cfg *config.Configuration, logger *logger.Logger, sentry *sentry.Service) (*Router, error) {
	wmLogger := logger.GetWatermillLogger()

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 15 * time.Second}, wmLogger)
	if err != nil {
		return nil, err
	}

	dlq := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
	poisonQueue, err := middleware.PoisonQueue(dlq, dlqTopic)
	if err != nil {
		return nil, err
	}

	retry := middleware.Retry{
		MaxRetries:          cfg.Webhook.MaxRetries,
		InitialInterval:     cfg.Webhook.InitialInterval,
		MaxInterval:         cfg.Webhook.MaxInterval,
		Multiplier:          cfg.Webhook.Multiplier,
		MaxElapsedTime:      cfg.Webhook.MaxElapsedTime,
		RandomizationFactor: 0.5,
		Logger:              wmLogger,
		OnRetryHook: func(attempt int, delay time.Duration) {
			logger.Infow("retrying message", "attempt", attempt, "delay", delay)
		},
	}

	// the poison queue sits outside retry so only exhausted messages reach it
	router.AddMiddleware(
		poisonQueue,
		middleware.Recoverer,
		middleware.CorrelationID,
		retry.Middleware,
	)

	r := &Router{router: router, logger: logger, sentry: sentry}
	router.AddNoPublisherHandler("dead_letter_logger", dlqTopic, dlq, r.logPoisoned)
	return r, nil
}

// AddNoPublishHandler registers a consumer-only handler. Errors that a retry
// cannot fix are reported and then acknowledged.
func (r *Router) AddNoPublishHandler(
	handlerName string,
	topicName string,
	subscriber message.Subscriber,
	handlerFunc func(msg *message.Message) error,
	middlewares ...message.HandlerMiddleware,
) {
	handler := r.router.AddNoPublisherHandler(handlerName, topicName, subscriber, func(msg *message.Message) error {
		err := handlerFunc(msg)
		if err == nil {
			metrics.MessagesHandledTotal.WithLabelValues(handlerName, metrics.OutcomeSuccess).Inc()
			return nil
		}

		r.sentry.CaptureException(err)
		r.logger.Errorw("message handler failed",
			"handler", handlerName,
			"message_uuid", msg.UUID,
			"correlation_id", middleware.MessageCorrelationID(msg),
			"workspace_id", msg.Metadata.Get("workspace_id"),
			"error", err,
		)

		if !shouldRetry(r.logger, err) {
			metrics.MessagesHandledTotal.WithLabelValues(handlerName, metrics.OutcomeRejected).Inc()
			return nil
		}
		metrics.MessagesHandledTotal.WithLabelValues(handlerName, metrics.OutcomeFailure).Inc()
		return err
	})

	for _, mw := range middlewares {
		handler.AddMiddleware(mw)
	}
}

// logPoisoned drains the dead letter queue. Messages are not replayed, a
// lost usage event shows up as ledger drift in VerifyLedger.
func (r *Router) logPoisoned(msg *message.Message) error {
	topic := msg.Metadata.Get(middleware.PoisonedTopicKey)
	metrics.MessagesPoisonedTotal.WithLabelValues(topic).Inc()
	r.logger.Errorw("message moved to dead letter queue",
		"topic", topic,
		"handler", msg.Metadata.Get(middleware.PoisonedHandlerKey),
		"reason", msg.Metadata.Get(middleware.ReasonForPoisonedKey),
		"message_uuid", msg.UUID,
		"workspace_id", msg.Metadata.Get("workspace_id"),
	)
	return nil
}

// Run blocks until the router is closed
func (r *Router) Run() error {
	return r.router.Run(context.Background())
}

func (r *Router) Close() error {
	r.logger.Info("closing message router")
	return r.router.Close()
}
