package testutil

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	jsoniter "github.com/json-iterator/go"
	"github.com/voxagent/billing/internal/pubsub"
	"github.com/voxagent/billing/internal/types"
)

// InMemoryPubSub records published messages so tests can assert on the
// webhook events a service emitted
type InMemoryPubSub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *message.Message
	messages    map[string][]*message.Message
}

var _ pubsub.PubSub = (*InMemoryPubSub)(nil)

func NewInMemoryPubSub() *InMemoryPubSub {
	return &InMemoryPubSub{
		subscribers: make(map[string][]chan *message.Message),
		messages:    make(map[string][]*message.Message),
	}
}

func (ps *InMemoryPubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.messages[topic] = append(ps.messages[topic], msg)
	for _, ch := range ps.subscribers[topic] {
		select {
		case ch <- msg:
		default:
			// slow subscribers miss messages, the recorded copy stays available
		}
	}
	return nil
}

func (ps *InMemoryPubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ch := make(chan *message.Message, 100)
	ps.subscribers[topic] = append(ps.subscribers[topic], ch)
	return ch, nil
}

func (ps *InMemoryPubSub) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for _, subscribers := range ps.subscribers {
		for _, ch := range subscribers {
			close(ch)
		}
	}
	ps.subscribers = make(map[string][]chan *message.Message)
	return nil
}

// GetMessages returns all messages published to a topic
func (ps *InMemoryPubSub) GetMessages(topic string) []*message.Message {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return append([]*message.Message(nil), ps.messages[topic]...)
}

// WebhookEvents decodes the webhook events published to a topic, optionally
// keeping only the given event name
func (ps *InMemoryPubSub) WebhookEvents(topic, eventName string) []*types.WebhookEvent {
	var events []*types.WebhookEvent
	for _, msg := range ps.GetMessages(topic) {
		if eventName != "" && msg.Metadata.Get("event_name") != eventName {
			continue
		}
		var event types.WebhookEvent
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(msg.Payload, &event); err != nil {
			continue
		}
		events = append(events, &event)
	}
	return events
}

func (ps *InMemoryPubSub) ClearMessages() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.messages = make(map[string][]*message.Message)
}
