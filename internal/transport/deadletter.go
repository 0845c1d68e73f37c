package transport

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ReadDeadLetters returns up to limit entries of a dead-letter stream, newest first.
func ReadDeadLetters(ctx context.Context, client redis.Cmdable, eventTypeCode, subscriptionCode string, limit int64) ([]Message, error) {
	key := DeadLetterKey(eventTypeCode, subscriptionCode)
	entries, err := client.XRevRangeN(ctx, key, "+", "-", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("reading dead letters %s: %w", key, err)
	}
	msgs := make([]Message, 0, len(entries))
	for _, x := range entries {
		payload, err := payloadOf(x.Values)
		if err != nil {
			continue
		}
		msgs = append(msgs, Message{ID: x.ID, Topic: key, Payload: payload})
	}
	return msgs, nil
}
