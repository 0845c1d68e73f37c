package transport

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Producer appends entries to one stream.
type Producer struct {
	client redis.Cmdable
	topic  string
	maxLen int64
}

// NewProducer checks the connection and returns a producer bound to topic.
// maxLen > 0 caps the stream approximately at that many entries.
func NewProducer(ctx context.Context, client redis.Cmdable, topic string, maxLen int64) (*Producer, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("creating producer for %s: %w", topic, err)
	}
	return &Producer{client: client, topic: topic, maxLen: maxLen}, nil
}

func (p *Producer) Topic() string { return p.topic }

// Send appends payload and returns the stream entry id.
func (p *Producer) Send(ctx context.Context, payload []byte) (string, error) {
	args := &redis.XAddArgs{
		Stream: p.topic,
		Values: map[string]any{payloadField: payload},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("sending to %s: %w", p.topic, err)
	}
	return id, nil
}

// Close releases the producer. The underlying client is shared and stays open.
func (p *Producer) Close() error { return nil }
