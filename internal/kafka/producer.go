package kafka

import (
	"github.com/Shopify/sarama"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/logger"
)

// Producer publishes usage events (from the seeding script) and webhook
// events. Messages are keyed by their workspace_id metadata.
type Producer struct {
	publisher message.Publisher
}

func NewProducer(cfg *config.Configuration, log *logger.Logger) (*Producer, error) {
	saramaConfig := GetSaramaConfig(cfg)
	saramaConfig.Producer.Return.Successes = true
	// a lost usage event is lost revenue
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               cfg.Kafka.Brokers,
			Marshaler:             marshaler,
			OverwriteSaramaConfig: saramaConfig,
		},
		log.GetWatermillLogger(),
	)
	if err != nil {
		return nil, err
	}

	return &Producer{publisher: publisher}, nil
}

// Publish blocks until the broker acknowledged every message
func (p *Producer) Publish(topic string, msgs ...*message.Message) error {
	return p.publisher.Publish(topic, msgs...)
}

func (p *Producer) Close() error {
	return p.publisher.Close()
}
