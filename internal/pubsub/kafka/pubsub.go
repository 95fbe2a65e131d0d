package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/voxagent/billing/internal/kafka"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/pubsub"
)

// PubSub carries webhook events over Kafka so deliveries survive restarts
type PubSub struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
	logger   *logger.Logger
}

var _ pubsub.PubSub = (*PubSub)(nil)

func NewPubSub(producer *kafka.Producer, consumer *kafka.Consumer, logger *logger.Logger) *PubSub {
	return &PubSub{
		producer: producer,
		consumer: consumer,
		logger:   logger,
	}
}

func (p *PubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	return p.producer.Publish(topic, msg)
}

func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.consumer.Subscribe(ctx, topic)
}

func (p *PubSub) Close() error {
	if err := p.producer.Close(); err != nil {
		p.logger.Errorw("failed to close kafka producer", "error", err)
	}
	return p.consumer.Close()
}
