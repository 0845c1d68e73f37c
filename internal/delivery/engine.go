// Package delivery turns a dequeued event and its webhook outcome into a
// terminal queue decision.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/volkaert/simple-event-broker2/internal/catalog"
	"github.com/volkaert/simple-event-broker2/internal/config"
	"github.com/volkaert/simple-event-broker2/internal/domain"
	"github.com/volkaert/simple-event-broker2/internal/telemetry"
	"github.com/volkaert/simple-event-broker2/internal/transport"
)

// Decision is the terminal action taken on a message.
type Decision int

const (
	Nack Decision = iota
	Ack
	AckDeadLetter
)

func (d Decision) String() string {
	switch d {
	case Ack:
		return "ack"
	case AckDeadLetter:
		return "ack+dead_letter"
	default:
		return "nack"
	}
}

// Invoker performs one webhook call.
type Invoker interface {
	Invoke(ctx context.Context, event *domain.InFlightEvent) (domain.WebhookOutcome, error)
}

// DeadLetters keeps a copy of events that will not be delivered.
type DeadLetters interface {
	Record(ctx context.Context, event *domain.InFlightEvent)
}

// Engine is the per-message delivery state machine.
type Engine struct {
	catalog     catalog.Lookup
	invoker     Invoker
	deadLetters DeadLetters
	telemetry   telemetry.Sink
	ttl         config.WebhookConfig
	now         func() time.Time
	logger      *slog.Logger
}

func NewEngine(lookup catalog.Lookup, invoker Invoker, deadLetters DeadLetters,
	sink telemetry.Sink, ttl config.WebhookConfig, logger *slog.Logger) *Engine {
	return &Engine{
		catalog:     lookup,
		invoker:     invoker,
		deadLetters: deadLetters,
		telemetry:   sink,
		ttl:         ttl,
		now:         time.Now,
		logger:      logger,
	}
}

// Handle processes one dequeued message and settles it. It never panics and
// never returns an error: anything unexpected becomes a Nack so the message
// comes back after the redelivery delay.
func (e *Engine) Handle(ctx context.Context, msg *transport.Message, ack transport.Acknowledger) {
	now := e.now()
	var event *domain.InFlightEvent

	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("delivery handler panicked",
				"message_id", msg.ID,
				"event", event.ShortLog(),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			if event != nil {
				e.record(ctx, telemetry.FromEvent(telemetry.DeliveryFailed, event).
					WithError(fmt.Errorf("panic: %v", rec)))
			}
			e.settle(ctx, msg, ack, Nack, event)
		}
	}()

	event = &domain.InFlightEvent{}
	if err := json.Unmarshal(msg.Payload, event); err != nil {
		event = nil
		e.logger.Error("undecodable event",
			"message_id", msg.ID,
			"subscription_code", msg.Subscription,
			"error", err,
		)
		e.record(ctx, telemetry.Event{
			Kind:             telemetry.DeliveryInternalError,
			SubscriptionCode: msg.Subscription,
			MessageID:        msg.ID,
			Error:            err.Error(),
		})
		e.settle(ctx, msg, ack, Nack, nil)
		return
	}
	event.ResetDelivery()
	event.SubscriptionCode = msg.Subscription
	event.Redelivered = msg.Redelivered
	event.RedeliveryCount = msg.RedeliveryCount

	e.record(ctx, e.eventFor(telemetry.DeliveryReceived, event, msg))

	decision, err := e.decide(ctx, event, now)
	if err != nil {
		e.logger.Error("delivery aborted",
			"message_id", msg.ID,
			"event", event.ShortLog(),
			"error", err,
		)
		e.record(ctx, e.eventFor(telemetry.DeliveryInternalError, event, msg).WithError(err))
		decision = Nack
	}

	if decision == AckDeadLetter {
		e.deadLetters.Record(ctx, event)
	}
	e.settle(ctx, msg, ack, decision, event)
}

// decide runs the validation gate, the webhook attempt and the outcome
// classification. now is read once by the caller so every check of one
// message uses the same instant. A non-nil error always comes with Nack.
func (e *Engine) decide(ctx context.Context, event *domain.InFlightEvent, now time.Time) (Decision, error) {
	if now.After(event.ExpirationDate) {
		e.record(ctx, telemetry.FromEvent(telemetry.DeliveryExpired, event))
		return AckDeadLetter, nil
	}

	sub, err := e.catalog.GetSubscription(ctx, event.SubscriptionCode)
	if err != nil {
		return Nack, fmt.Errorf("looking up subscription %s: %w", event.SubscriptionCode, err)
	}
	if sub == nil {
		return Nack, domain.NewError(domain.KindInternalInconsistency,
			"subscription not found: "+event.SubscriptionCode, nil)
	}
	if !sub.Active {
		e.record(ctx, telemetry.FromEvent(telemetry.DeliveryInactiveSubscription, event))
		return AckDeadLetter, nil
	}

	// The subscription's current event type decides, not the one stamped at publish time.
	et, err := e.catalog.GetEventType(ctx, sub.EventTypeCode)
	if err != nil {
		return Nack, fmt.Errorf("looking up event type %s: %w", sub.EventTypeCode, err)
	}
	if et == nil {
		return Nack, domain.NewError(domain.KindInternalInconsistency,
			"event type not found: "+sub.EventTypeCode, nil)
	}
	if !et.Active {
		e.record(ctx, telemetry.FromEvent(telemetry.DeliveryInactiveEventType, event))
		return AckDeadLetter, nil
	}

	if !sub.MatchesChannel(event.Channel) {
		e.record(ctx, telemetry.FromEvent(telemetry.DeliveryChannelMismatch, event))
		return Ack, nil
	}

	auth, err := sub.Auth()
	if err != nil {
		return Nack, fmt.Errorf("subscription %s: %w", sub.Code, err)
	}
	event.WebhookURL = sub.WebhookURL
	event.WebhookContentType = sub.WebhookContentType
	event.WebhookHeaders = sub.WebhookHeaders
	event.Auth = auth
	event.Secret = sub.Secret

	e.record(ctx, telemetry.FromEvent(telemetry.DeliveryAttempted, event))
	start := time.Now()
	outcome, err := e.invoker.Invoke(ctx, event)
	elapsed := time.Since(start)

	if err != nil {
		ev := telemetry.FromEvent(telemetry.DeliveryFailed, event).WithError(err)
		ev.Duration = elapsed
		e.record(ctx, ev)
		return Nack, nil
	}

	if outcome.IsError() {
		ttl := e.ttlFor(sub, outcome)
		deadline := event.CreationDate.Add(time.Duration(ttl) * time.Second)
		ev := telemetry.FromEvent(telemetry.DeliveryFailed, event)
		ev.Duration = elapsed
		if !now.Before(deadline) {
			ev.Error = fmt.Sprintf("%s error and time to live of %ds exceeded", outcome.Reason(), ttl)
			e.record(ctx, ev)
			return AckDeadLetter, nil
		}
		ev.Error = fmt.Sprintf("%s error, will retry", outcome.Reason())
		e.record(ctx, ev)
		return Nack, nil
	}

	if !outcome.Succeeded() {
		ev := telemetry.FromEvent(telemetry.DeliveryFailed, event)
		ev.Duration = elapsed
		ev.Error = fmt.Sprintf("unexpected webhook status %d", outcome.Status)
		e.record(ctx, ev)
		return Nack, nil
	}

	ev := telemetry.FromEvent(telemetry.DeliverySucceeded, event)
	ev.Duration = elapsed
	e.record(ctx, ev)
	return Ack, nil
}

// ttlFor returns the time-to-live in seconds for a classified failure: the
// subscription override when positive, otherwise the deployment default.
func (e *Engine) ttlFor(sub *domain.Subscription, outcome domain.WebhookOutcome) int64 {
	if override := sub.TTLOverride(outcome); override != nil && *override > 0 {
		return *override
	}
	switch outcome.Kind {
	case domain.OutcomeConnection:
		return e.ttl.DefaultTTLConnectionError
	case domain.OutcomeReadTimeout:
		return e.ttl.DefaultTTLReadTimeoutError
	case domain.OutcomeServer5xx:
		return e.ttl.DefaultTTLServer5xxError
	case domain.OutcomeClient4xx:
		if outcome.IsAuthError() {
			return e.ttl.DefaultTTLAuth401Or403Error
		}
		return e.ttl.DefaultTTLClient4xxError
	}
	return 0
}

// settle submits the decision. Failures are logged only; an unacknowledged
// entry is claimed again after the redelivery delay.
func (e *Engine) settle(ctx context.Context, msg *transport.Message, ack transport.Acknowledger,
	decision Decision, event *domain.InFlightEvent) {
	if ack == nil {
		return
	}
	var err error
	if decision == Nack {
		err = ack.Nack(ctx, msg)
	} else {
		err = ack.Ack(ctx, msg)
	}
	if err != nil {
		e.logger.Error("failed to settle message",
			"message_id", msg.ID,
			"decision", decision.String(),
			"event", event.ShortLog(),
			"error", err,
		)
		return
	}
	e.logger.Debug("message settled",
		"message_id", msg.ID,
		"decision", decision.String(),
		"event", event.ShortLog(),
	)
}

func (e *Engine) eventFor(kind telemetry.Kind, event *domain.InFlightEvent, msg *transport.Message) telemetry.Event {
	ev := telemetry.FromEvent(kind, event)
	ev.MessageID = msg.ID
	return ev
}

func (e *Engine) record(ctx context.Context, ev telemetry.Event) {
	if e.telemetry != nil {
		e.telemetry.Record(ctx, ev)
	}
}
