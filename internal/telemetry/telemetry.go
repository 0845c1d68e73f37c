// Package telemetry records one event per publication and delivery decision
// branch and fans it out to logs, metrics, the live feed and Kafka.
package telemetry

import (
	"context"
	"time"

	"github.com/volkaert/simple-event-broker2/internal/domain"
)

// Kind names a decision branch.
type Kind string

const (
	PublicationRequested                Kind = "publication.requested"
	PublicationRejectedMissingCode      Kind = "publication.rejected.missing_code"
	PublicationRejectedUnknownCode      Kind = "publication.rejected.unknown_code"
	PublicationRejectedInactive         Kind = "publication.rejected.inactive"
	PublicationRejectedUnknownEventType Kind = "publication.rejected.unknown_event_type"
	PublicationAttempted                Kind = "publication.attempted"
	PublicationSucceeded                Kind = "publication.succeeded"
	PublicationFailed                   Kind = "publication.failed"

	DeliveryReceived             Kind = "delivery.received"
	DeliveryExpired              Kind = "delivery.expired"
	DeliveryInactiveSubscription Kind = "delivery.inactive_subscription"
	DeliveryInactiveEventType    Kind = "delivery.inactive_event_type"
	DeliveryChannelMismatch      Kind = "delivery.channel_mismatch"
	DeliveryAttempted            Kind = "delivery.attempted"
	DeliverySucceeded            Kind = "delivery.succeeded"
	DeliveryFailed               Kind = "delivery.failed"
	DeliveryDeadLettered         Kind = "delivery.dead_lettered"
	DeliveryInternalError        Kind = "delivery.internal_error"
)

// IsFailure reports kinds that log at warning level.
func (k Kind) IsFailure() bool {
	switch k {
	case PublicationRejectedMissingCode, PublicationRejectedUnknownCode, PublicationRejectedInactive,
		PublicationRejectedUnknownEventType, PublicationFailed,
		DeliveryExpired, DeliveryFailed, DeliveryDeadLettered, DeliveryInternalError:
		return true
	}
	return false
}

// Event is one recorded branch. It never carries secrets or auth material.
type Event struct {
	Kind             Kind                   `json:"kind"`
	Time             time.Time              `json:"time"`
	EventID          string                 `json:"eventId,omitempty"`
	BusinessID       string                 `json:"businessId,omitempty"`
	EventTypeCode    string                 `json:"eventTypeCode,omitempty"`
	PublicationCode  string                 `json:"publicationCode,omitempty"`
	SubscriptionCode string                 `json:"subscriptionCode,omitempty"`
	Channel          string                 `json:"channel,omitempty"`
	MessageID        string                 `json:"messageId,omitempty"`
	Redelivered      bool                   `json:"redelivered,omitempty"`
	RedeliveryCount  int                    `json:"redeliveryCount,omitempty"`
	Outcome          *domain.WebhookOutcome `json:"webhookOutcome,omitempty"`
	Duration         time.Duration          `json:"durationNs,omitempty"`
	Error            string                 `json:"error,omitempty"`
}

// FromEvent fills the identity and routing fields from ev.
func FromEvent(kind Kind, ev *domain.InFlightEvent) Event {
	e := Event{Kind: kind}
	if ev == nil {
		return e
	}
	e.EventID = ev.ID
	e.BusinessID = ev.BusinessID
	e.EventTypeCode = ev.EventTypeCode
	e.PublicationCode = ev.PublicationCode
	e.SubscriptionCode = ev.SubscriptionCode
	e.Channel = ev.Channel
	e.Redelivered = ev.Redelivered
	e.RedeliveryCount = ev.RedeliveryCount
	if ev.Outcome != nil {
		o := *ev.Outcome
		e.Outcome = &o
	}
	return e
}

// WithError sets the error text.
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Sink receives recorded events. Implementations must not block for long.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// Recorder fans each event out to every sink.
type Recorder struct {
	sinks []Sink
	now   func() time.Time
}

func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks, now: time.Now}
}

// Record stamps the event time if unset and hands it to each sink.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if r == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = r.now()
	}
	for _, s := range r.sinks {
		s.Record(ctx, e)
	}
}
