// Package pubsub abstracts the queue that carries outbound webhook events.
// The memory implementation serves local runs and tests, the kafka one
// serves deployments where api and consumer run as separate processes.
package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
	Close() error
}

// Subscriber matches message.Subscriber so the watermill router can consume it directly
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Close() error
}

type PubSub interface {
	Publisher
	Subscriber
}

var _ message.Subscriber = (Subscriber)(nil)
