package webhook

import (
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/httpclient"
	"github.com/voxagent/billing/internal/kafka"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/pubsub"
	kafkaPubSub "github.com/voxagent/billing/internal/pubsub/kafka"
	"github.com/voxagent/billing/internal/pubsub/memory"
	"github.com/voxagent/billing/internal/svix"
	"github.com/voxagent/billing/internal/types"
	"github.com/voxagent/billing/internal/webhook/handler"
	"github.com/voxagent/billing/internal/webhook/publisher"
	"go.uber.org/fx"
)

// Module provides all webhook-related dependencies
var Module = fx.Options(
	fx.Provide(
		providePubSub,
		httpclient.NewDefaultClient,
		svix.NewClient,
	),

	fx.Provide(
		publisher.NewPublisher,
		handler.NewHandler,
		NewWebhookService,
	),
)

func providePubSub(
	cfg *config.Configuration,
	logger *logger.Logger,
) (pubsub.PubSub, error) {
	switch cfg.Webhook.PubSub {
	case types.KafkaPubSub:
		producer, err := kafka.NewProducer(cfg, logger)
		if err != nil {
			return nil, err
		}
		// webhook delivery must not share the usage consumer group
		consumer, err := kafka.NewConsumer(cfg, logger, cfg.Kafka.ConsumerGroup+"-webhooks")
		if err != nil {
			return nil, err
		}
		return kafkaPubSub.NewPubSub(producer, consumer, logger), nil
	default:
		return memory.NewPubSub(logger), nil
	}
}
