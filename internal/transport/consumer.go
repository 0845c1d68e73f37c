package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConsumerOptions tunes a Consumer. Zero values take the defaults below.
type ConsumerOptions struct {
	// Name identifies this process within the consumer group.
	Name string
	// RedeliveryDelay is how long a nacked or unacknowledged entry stays
	// pending before it is claimed again.
	RedeliveryDelay time.Duration
	// Block bounds each read so the loop can observe shutdown.
	Block     time.Duration
	BatchSize int64
	// Execute runs one handler call and blocks until it returns. It lets a
	// shared worker pool bound concurrency across consumers. Nil runs inline.
	Execute func(ctx context.Context, job func(context.Context)) error
	Logger  *slog.Logger
}

func (o *ConsumerOptions) withDefaults() {
	if o.Name == "" {
		o.Name = "broker"
	}
	if o.RedeliveryDelay <= 0 {
		o.RedeliveryDelay = time.Minute
	}
	if o.Block <= 0 {
		o.Block = time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Consumer reads one topic as one consumer group. Entries are handed to the
// handler one at a time, so a subscription never has two deliveries in flight
// from the same process.
type Consumer struct {
	client redis.Cmdable
	topic  string
	group  string
	opts   ConsumerOptions
	logger *slog.Logger

	// claimFrom is the XAUTOCLAIM cursor, owned by the read loop.
	claimFrom string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer creates the consumer group if needed. A new group starts at the
// end of the stream, so it only sees events published after it exists.
func NewConsumer(ctx context.Context, client redis.Cmdable, topic, group string, opts ConsumerOptions) (*Consumer, error) {
	opts.withDefaults()
	err := client.XGroupCreateMkStream(ctx, topic, group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("creating consumer group %s on %s: %w", group, topic, err)
	}
	return &Consumer{
		client:    client,
		topic:     topic,
		group:     group,
		opts:      opts,
		logger:    opts.Logger.With("topic", topic, "group", group),
		claimFrom: "0-0",
	}, nil
}

func (c *Consumer) Topic() string { return c.topic }
func (c *Consumer) Group() string { return c.group }

// Start launches the read loop. Calling it twice is a no-op.
func (c *Consumer) Start(handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, handler)
}

// Close stops the loop and waits for the in-flight handler to return.
// Unacknowledged entries stay pending and are claimed again later.
func (c *Consumer) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Consumer) run(ctx context.Context, handler Handler) {
	defer close(c.done)
	c.logger.Info("consumer started", "consumer", c.opts.Name)

	for ctx.Err() == nil {
		err := c.reclaim(ctx, handler)
		if err == nil {
			err = c.read(ctx, handler)
		}
		if err != nil && ctx.Err() == nil {
			c.logger.Error("consumer loop error", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(c.opts.Block):
			}
		}
	}
	c.logger.Info("consumer stopped", "consumer", c.opts.Name)
}

// reclaim takes over entries pending for longer than the redelivery delay.
func (c *Consumer) reclaim(ctx context.Context, handler Handler) error {
	msgs, err := c.claim(ctx)
	if err != nil {
		return err
	}
	for _, x := range msgs {
		if ctx.Err() != nil {
			return nil
		}
		c.dispatch(ctx, handler, c.toMessage(ctx, x, true))
	}
	return nil
}

// claim runs one XAUTOCLAIM step. The scan resumes where the previous step
// stopped and wraps to the head of the pending list once Redis returns 0-0.
func (c *Consumer) claim(ctx context.Context) ([]redis.XMessage, error) {
	msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.topic,
		Group:    c.group,
		Consumer: c.opts.Name,
		MinIdle:  c.opts.RedeliveryDelay,
		Start:    c.claimFrom,
		Count:    c.opts.BatchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.claimFrom = "0-0"
			return nil, nil
		}
		return nil, fmt.Errorf("claiming pending entries: %w", err)
	}
	if next == "" {
		next = "0-0"
	}
	c.claimFrom = next
	return msgs, nil
}

func (c *Consumer) read(ctx context.Context, handler Handler) error {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.opts.Name,
		Streams:  []string{c.topic, ">"},
		Count:    c.opts.BatchSize,
		Block:    c.opts.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("reading group: %w", err)
	}
	for _, s := range streams {
		for _, x := range s.Messages {
			if ctx.Err() != nil {
				return nil
			}
			c.dispatch(ctx, handler, c.toMessage(ctx, x, false))
		}
	}
	return nil
}

func (c *Consumer) toMessage(ctx context.Context, x redis.XMessage, claimed bool) *Message {
	msg := &Message{ID: x.ID, Topic: c.topic, Subscription: c.group, Redelivered: claimed}
	payload, err := payloadOf(x.Values)
	if err != nil {
		c.logger.Warn("malformed stream entry", "message_id", x.ID, "error", err)
	}
	msg.Payload = payload
	if claimed {
		msg.RedeliveryCount = c.deliveryCount(ctx, x.ID) - 1
	}
	return msg
}

// deliveryCount reads the group's delivery counter for id, 1 when unknown.
func (c *Consumer) deliveryCount(ctx context.Context, id string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.topic,
		Group:  c.group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 || pending[0].RetryCount < 1 {
		return 1
	}
	return int(pending[0].RetryCount)
}

func (c *Consumer) dispatch(ctx context.Context, handler Handler, msg *Message) {
	if c.opts.Execute == nil {
		handler(ctx, msg, c)
		return
	}
	err := c.opts.Execute(ctx, func(jobCtx context.Context) {
		handler(jobCtx, msg, c)
	})
	if err != nil {
		c.logger.Warn("message not dispatched", "message_id", msg.ID, "error", err)
	}
}

// Ack removes the entry from the group's pending list.
func (c *Consumer) Ack(ctx context.Context, msg *Message) error {
	if err := c.client.XAck(ctx, c.topic, c.group, msg.ID).Err(); err != nil {
		return fmt.Errorf("acking %s: %w", msg, err)
	}
	return nil
}

// Nack leaves the entry pending. It is claimed again once it has been idle
// for the redelivery delay.
func (c *Consumer) Nack(ctx context.Context, msg *Message) error {
	c.logger.Debug("message nacked", "message_id", msg.ID, "redelivery_delay", c.opts.RedeliveryDelay)
	return nil
}
