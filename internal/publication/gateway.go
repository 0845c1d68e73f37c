// Package publication accepts events from publishers, stamps them and puts
// them on their event type's topic.
package publication

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/volkaert/simple-event-broker2/internal/catalog"
	"github.com/volkaert/simple-event-broker2/internal/domain"
	"github.com/volkaert/simple-event-broker2/internal/registry"
	"github.com/volkaert/simple-event-broker2/internal/telemetry"
	"github.com/volkaert/simple-event-broker2/internal/transport"
)

// Request is what a publisher sends. A nil TimeToLiveInSeconds takes the default.
type Request struct {
	BusinessID          string          `json:"businessId"`
	PublicationCode     string          `json:"publicationCode"`
	Payload             json.RawMessage `json:"payload"`
	TimeToLiveInSeconds *int64          `json:"timeToLiveInSeconds,omitempty"`
	Channel             string          `json:"channel,omitempty"`
}

func (r Request) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PublicationCode,
			validation.By(notBlank),
		),
	)
}

func notBlank(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return validation.NewError("validation_required", "publicationCode is missing")
	}
	return nil
}

// Producers hands out topic producers.
type Producers interface {
	GetProducer(ctx context.Context, topic string) (registry.Producer, error)
}

// Gateway is the publish entry point.
type Gateway struct {
	catalog    catalog.Lookup
	producers  Producers
	telemetry  telemetry.Sink
	defaultTTL int64
	maxTTL     int64
	now        func() time.Time
	newID      func() string
	logger     *slog.Logger
}

func NewGateway(lookup catalog.Lookup, producers Producers, sink telemetry.Sink,
	defaultTTL, maxTTL int64, logger *slog.Logger) *Gateway {
	return &Gateway{
		catalog:    lookup,
		producers:  producers,
		telemetry:  sink,
		defaultTTL: defaultTTL,
		maxTTL:     maxTTL,
		now:        time.Now,
		newID:      uuid.NewString,
		logger:     logger,
	}
}

// EffectiveTTL clamps a requested time-to-live: absent or negative takes the
// default, anything above the max takes the max.
func (g *Gateway) EffectiveTTL(requested *int64) int64 {
	if requested == nil || *requested < 0 {
		return g.defaultTTL
	}
	if *requested > g.maxTTL {
		return g.maxTTL
	}
	return *requested
}

// Publish validates the request against the catalog and sends the stamped
// event to its event type's topic. Nothing reaches the transport unless the
// publication and its event type are known and active.
func (g *Gateway) Publish(ctx context.Context, req Request) (*domain.InFlightEvent, error) {
	now := g.now().UTC()
	ttl := g.EffectiveTTL(req.TimeToLiveInSeconds)
	event := &domain.InFlightEvent{
		ID:                  g.newID(),
		BusinessID:          req.BusinessID,
		PublicationCode:     req.PublicationCode,
		Payload:             req.Payload,
		TimeToLiveInSeconds: ttl,
		Channel:             req.Channel,
		CreationDate:        now,
		ExpirationDate:      now.Add(time.Duration(ttl) * time.Second),
	}

	g.record(ctx, telemetry.PublicationRequested, event, nil)

	if err := req.Validate(); err != nil {
		derr := domain.NewError(domain.KindInvalidRequest, "publicationCode is missing", err)
		g.record(ctx, telemetry.PublicationRejectedMissingCode, event, derr)
		return nil, derr
	}

	pub, err := g.catalog.GetPublication(ctx, req.PublicationCode)
	if err != nil {
		return nil, g.fail(ctx, event, fmt.Errorf("looking up publication %s: %w", req.PublicationCode, err))
	}
	if pub == nil {
		derr := domain.NewError(domain.KindUnknownPublication,
			fmt.Sprintf("unknown publication %s", req.PublicationCode), nil)
		g.record(ctx, telemetry.PublicationRejectedUnknownCode, event, derr)
		return nil, derr
	}
	if !pub.Active {
		derr := domain.NewError(domain.KindInactivePublication,
			fmt.Sprintf("inactive publication %s", req.PublicationCode), nil)
		g.record(ctx, telemetry.PublicationRejectedInactive, event, derr)
		return nil, derr
	}

	et, err := g.catalog.GetEventType(ctx, pub.EventTypeCode)
	if err != nil {
		return nil, g.fail(ctx, event, fmt.Errorf("looking up event type %s: %w", pub.EventTypeCode, err))
	}
	if et == nil {
		derr := domain.NewError(domain.KindUnknownEventType,
			fmt.Sprintf("unknown event type %s for publication %s", pub.EventTypeCode, pub.Code), nil)
		g.record(ctx, telemetry.PublicationRejectedUnknownEventType, event, derr)
		return nil, derr
	}
	event.EventTypeCode = et.Code

	g.record(ctx, telemetry.PublicationAttempted, event, nil)

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, g.fail(ctx, event, fmt.Errorf("encoding event: %w", err))
	}
	producer, err := g.producers.GetProducer(ctx, transport.TopicKey(et.Code))
	if err != nil {
		return nil, g.fail(ctx, event, err)
	}
	if _, err := producer.Send(ctx, payload); err != nil {
		return nil, g.fail(ctx, event, domain.NewError(domain.KindDeliveryInfrastructure,
			"cannot publish to "+producer.Topic(), err))
	}

	g.record(ctx, telemetry.PublicationSucceeded, event, nil)
	return event, nil
}

func (g *Gateway) fail(ctx context.Context, event *domain.InFlightEvent, err error) error {
	g.logger.Error("publication failed", "event", event.ShortLog(), "error", err)
	g.record(ctx, telemetry.PublicationFailed, event, err)
	return err
}

func (g *Gateway) record(ctx context.Context, kind telemetry.Kind, event *domain.InFlightEvent, err error) {
	if g.telemetry != nil {
		g.telemetry.Record(ctx, telemetry.FromEvent(kind, event).WithError(err))
	}
}
