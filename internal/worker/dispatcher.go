package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/volkaert/simple-event-broker2/internal/catalog"
	"github.com/volkaert/simple-event-broker2/internal/registry"
	"github.com/volkaert/simple-event-broker2/internal/transport"
)

// Consumers creates or reuses the consumer of one subscription.
type Consumers interface {
	GetConsumer(ctx context.Context, topic, subscription string) (registry.Consumer, error)
}

// Owner decides whether this instance consumes an event type.
type Owner interface {
	Owns(eventTypeCode string) bool
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Listed  int
	Skipped int
	Ensured int
	Failed  int
}

// Dispatcher periodically re-reads the subscription list and makes sure
// every subscription of an owned event type has a consumer, active or not:
// deliveries to an inactive subscription are dead-lettered by the engine.
// It never removes or recreates an existing consumer.
type Dispatcher struct {
	catalog   catalog.Lookup
	consumers Consumers
	owner     Owner
	logger    *slog.Logger
	interval  time.Duration
}

// NewDispatcher creates a dispatcher sweeping every interval.
func NewDispatcher(lookup catalog.Lookup, consumers Consumers, owner Owner, interval time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		catalog:   lookup,
		consumers: consumers,
		owner:     owner,
		logger:    logger,
		interval:  interval,
	}
}

// Start sweeps once immediately and then on every tick until the context
// is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("dispatcher started", "sweep_interval", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. A failing subscription is logged and skipped so it
// never blocks the others.
func (d *Dispatcher) Sweep(ctx context.Context) SweepResult {
	var res SweepResult

	subs, err := d.catalog.ListSubscriptions(ctx)
	if err != nil {
		d.logger.Error("failed to list subscriptions", "error", err)
		return res
	}
	res.Listed = len(subs)

	for _, sub := range subs {
		if ctx.Err() != nil {
			return res
		}
		if !d.owner.Owns(sub.EventTypeCode) {
			res.Skipped++
			continue
		}
		_, err := d.consumers.GetConsumer(ctx, transport.TopicKey(sub.EventTypeCode), sub.Code)
		if err != nil {
			res.Failed++
			d.logger.Error("failed to ensure consumer",
				"subscription_code", sub.Code,
				"event_type_code", sub.EventTypeCode,
				"error", err,
			)
			continue
		}
		res.Ensured++
	}

	d.logger.Debug("consumer sweep done",
		"listed", res.Listed,
		"ensured", res.Ensured,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res
}
