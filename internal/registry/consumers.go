package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/redis/go-redis/v9"

	"github.com/volkaert/simple-event-broker2/internal/domain"
	"github.com/volkaert/simple-event-broker2/internal/transport"
)

// Consumer is an inbound subscription handle.
type Consumer interface {
	Topic() string
	Start(handler transport.Handler)
	Close() error
}

// ConsumerFactory opens a consumer on topic for subscription.
type ConsumerFactory func(ctx context.Context, topic, subscription string) (Consumer, error)

// StreamConsumers opens Redis Streams consumer groups on client. The group
// name is the subscription code.
func StreamConsumers(client redis.Cmdable, opts transport.ConsumerOptions) ConsumerFactory {
	return func(ctx context.Context, topic, subscription string) (Consumer, error) {
		c, err := transport.NewConsumer(ctx, client, topic, subscription, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// ConsumerRegistry keeps one consumer per subscription code. Every consumer
// it creates routes its messages into handler.
type ConsumerRegistry struct {
	memo    *Memo[Consumer]
	factory ConsumerFactory
	handler transport.Handler
	logger  *slog.Logger
}

func NewConsumerRegistry(factory ConsumerFactory, handler transport.Handler, logger *slog.Logger) *ConsumerRegistry {
	return &ConsumerRegistry{
		memo:    NewMemo[Consumer](),
		factory: factory,
		handler: handler,
		logger:  logger,
	}
}

// GetConsumer returns the consumer for subscription, creating and starting it
// on first use. An existing consumer is returned as is, even if topic changed.
func (r *ConsumerRegistry) GetConsumer(ctx context.Context, topic, subscription string) (Consumer, error) {
	c, err := r.memo.Get(subscription, func() (Consumer, error) {
		c, err := r.factory(ctx, topic, subscription)
		if err != nil {
			return nil, err
		}
		c.Start(r.guard(subscription))
		r.logger.Info("consumer created", "topic", topic, "subscription_code", subscription)
		return c, nil
	})
	if err != nil {
		return nil, domain.NewError(domain.KindDeliveryInfrastructure,
			fmt.Sprintf("cannot create consumer for subscription %s on %s", subscription, topic), err)
	}
	return c, nil
}

// Has reports whether a consumer exists for subscription.
func (r *ConsumerRegistry) Has(subscription string) bool {
	_, ok := r.memo.Peek(subscription)
	return ok
}

// Subscriptions lists the subscription codes with a live consumer.
func (r *ConsumerRegistry) Subscriptions() []string {
	return r.memo.Keys()
}

// Close stops every consumer and waits for their in-flight handlers.
func (r *ConsumerRegistry) Close() error {
	var errs []error
	for _, c := range r.memo.Drain() {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// guard keeps a panicking handler from killing the consumer loop.
func (r *ConsumerRegistry) guard(subscription string) transport.Handler {
	return func(ctx context.Context, msg *transport.Message, ack transport.Acknowledger) {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("message handler panicked",
					"subscription_code", subscription,
					"message_id", msg.ID,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
			}
		}()
		r.handler(ctx, msg, ack)
	}
}
