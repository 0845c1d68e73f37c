package registry

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/volkaert/simple-event-broker2/internal/domain"
	"github.com/volkaert/simple-event-broker2/internal/transport"
)

// Producer is an outbound topic handle.
type Producer interface {
	Topic() string
	Send(ctx context.Context, payload []byte) (string, error)
	Close() error
}

// ProducerFactory opens a producer for a topic key.
type ProducerFactory func(ctx context.Context, topic string) (Producer, error)

// StreamProducers opens Redis Streams producers on client.
func StreamProducers(client redis.Cmdable, maxLen int64) ProducerFactory {
	return func(ctx context.Context, topic string) (Producer, error) {
		p, err := transport.NewProducer(ctx, client, topic, maxLen)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// ProducerRegistry keeps one producer per topic key, event topics and
// dead-letter topics alike.
type ProducerRegistry struct {
	memo    *Memo[Producer]
	factory ProducerFactory
	logger  *slog.Logger
}

func NewProducerRegistry(factory ProducerFactory, logger *slog.Logger) *ProducerRegistry {
	return &ProducerRegistry{
		memo:    NewMemo[Producer](),
		factory: factory,
		logger:  logger,
	}
}

// GetProducer returns the producer for topic, creating it on first use.
func (r *ProducerRegistry) GetProducer(ctx context.Context, topic string) (Producer, error) {
	p, err := r.memo.Get(topic, func() (Producer, error) {
		p, err := r.factory(ctx, topic)
		if err != nil {
			return nil, err
		}
		r.logger.Info("producer created", "topic", topic)
		return p, nil
	})
	if err != nil {
		return nil, domain.NewError(domain.KindDeliveryInfrastructure, "cannot create producer for "+topic, err)
	}
	return p, nil
}

// Topics lists the topic keys with a live producer.
func (r *ProducerRegistry) Topics() []string {
	return r.memo.Keys()
}

// Close closes every producer. The registry can be reused afterwards.
func (r *ProducerRegistry) Close() error {
	var errs []error
	for _, p := range r.memo.Drain() {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
