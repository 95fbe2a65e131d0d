package memory

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/pubsub"
)

// PubSub is an in-process queue backed by watermill's gochannel
type PubSub struct {
	pubsub *gochannel.GoChannel
	logger *logger.Logger
}

var _ pubsub.PubSub = (*PubSub)(nil)

func NewPubSub(logger *logger.Logger) *PubSub {
	goChannel := gochannel.NewGoChannel(
		gochannel.Config{
			// keep messages published before the router subscribes
			Persistent:                     true,
			BlockPublishUntilSubscriberAck: false,
			OutputChannelBuffer:            100,
		},
		logger.GetWatermillLogger(),
	)

	return &PubSub{
		pubsub: goChannel,
		logger: logger,
	}
}

func (p *PubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	return p.pubsub.Publish(topic, msg)
}

func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.pubsub.Subscribe(ctx, topic)
}

func (p *PubSub) Close() error {
	return p.pubsub.Close()
}
