package kafka

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/logger"
)

// Consumer subscribes with its own consumer group. Instances sharing a group
// split the partitions, so each message is handled by exactly one of them.
type Consumer struct {
	message.Subscriber
	group string
	log   *logger.Logger
}

func NewConsumer(cfg *config.Configuration, log *logger.Logger, group string) (*Consumer, error) {
	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               cfg.Kafka.Brokers,
			ConsumerGroup:         group,
			Unmarshaler:           marshaler,
			OverwriteSaramaConfig: GetSaramaConfig(cfg),
			// a nacked event is retried after a pause instead of spinning on the partition
			NackResendSleep:     time.Second,
			ReconnectRetrySleep: 5 * time.Second,
		},
		log.GetWatermillLogger(),
	)
	if err != nil {
		return nil, err
	}

	return &Consumer{Subscriber: subscriber, group: group, log: log}, nil
}

func (c *Consumer) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	c.log.Infow("subscribing to kafka topic", "topic", topic, "consumer_group", c.group)
	return c.Subscriber.Subscribe(ctx, topic)
}
