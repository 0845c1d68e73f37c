package delivery

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/volkaert/simple-event-broker2/internal/domain"
	"github.com/volkaert/simple-event-broker2/internal/registry"
	"github.com/volkaert/simple-event-broker2/internal/telemetry"
	"github.com/volkaert/simple-event-broker2/internal/transport"
)

// Producers hands out topic producers.
type Producers interface {
	GetProducer(ctx context.Context, topic string) (registry.Producer, error)
}

// DLQRecorder publishes a sanitized copy of an event to the dead-letter
// topic of its (event type, subscription) pair. Writing is best effort:
// failures are logged and never reach the caller.
type DLQRecorder struct {
	producers Producers
	telemetry telemetry.Sink
	logger    *slog.Logger
}

func NewDLQRecorder(producers Producers, sink telemetry.Sink, logger *slog.Logger) *DLQRecorder {
	return &DLQRecorder{producers: producers, telemetry: sink, logger: logger}
}

func (d *DLQRecorder) Record(ctx context.Context, event *domain.InFlightEvent) {
	topic := transport.DeadLetterKey(event.EventTypeCode, event.SubscriptionCode)

	payload, err := json.Marshal(event.Sanitized())
	if err != nil {
		d.logger.Error("failed to encode dead letter", "event", event.ShortLog(), "error", err)
		return
	}

	producer, err := d.producers.GetProducer(ctx, topic)
	if err != nil {
		d.logger.Error("failed to get dead letter producer", "topic", topic, "event", event.ShortLog(), "error", err)
		return
	}
	if _, err := producer.Send(ctx, payload); err != nil {
		d.logger.Error("failed to write dead letter", "topic", topic, "event", event.ShortLog(), "error", err)
		return
	}

	if d.telemetry != nil {
		d.telemetry.Record(ctx, telemetry.FromEvent(telemetry.DeliveryDeadLettered, event))
	}
}
