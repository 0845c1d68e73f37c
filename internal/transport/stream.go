// Package transport is the durable topic layer. Topics are Redis Streams,
// subscriptions are consumer groups, and a nack leaves the entry pending
// until it is reclaimed after the redelivery delay.
package transport

import (
	"context"
	"fmt"
)

const (
	keyPrefix    = "seb:"
	payloadField = "event"
)

// TopicKey is the stream holding every event of one event type.
func TopicKey(eventTypeCode string) string {
	return keyPrefix + "topic:" + eventTypeCode
}

// DeadLetterKey is the stream holding dead-lettered events of one subscription.
func DeadLetterKey(eventTypeCode, subscriptionCode string) string {
	return keyPrefix + "dlq:" + eventTypeCode + ":" + subscriptionCode
}

// Message is one dequeued stream entry.
type Message struct {
	ID      string
	Topic   string
	Payload []byte
	// Subscription is the consumer group the entry was read through.
	Subscription string

	// Redelivered and RedeliveryCount come from the group's pending list and
	// are best effort.
	Redelivered     bool
	RedeliveryCount int
}

func (m *Message) String() string {
	return fmt.Sprintf("%s/%s", m.Topic, m.ID)
}

// Acknowledger settles a dequeued message.
type Acknowledger interface {
	Ack(ctx context.Context, msg *Message) error
	Nack(ctx context.Context, msg *Message) error
}

// Handler processes one message and must settle it through ack.
type Handler func(ctx context.Context, msg *Message, ack Acknowledger)

func payloadOf(values map[string]any) ([]byte, error) {
	raw, ok := values[payloadField]
	if !ok {
		return nil, fmt.Errorf("missing %q field", payloadField)
	}
	switch v := raw.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected %q field type %T", payloadField, raw)
	}
}
