package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Redacted replaces sensitive values in dead-letter copies and logs.
const Redacted = "*****"

// InFlightEvent is the unit of work moving from publisher to subscriber.
// Identity and temporal fields are set once at publish time. Delivery-scoped
// fields are recomputed by the delivery engine on every dequeue.
type InFlightEvent struct {
	ID         string `json:"id"`
	BusinessID string `json:"businessId,omitempty"`

	EventTypeCode    string `json:"eventTypeCode"`
	PublicationCode  string `json:"publicationCode"`
	SubscriptionCode string `json:"subscriptionCode,omitempty"`

	Payload             json.RawMessage `json:"payload,omitempty"`
	TimeToLiveInSeconds int64           `json:"timeToLiveInSeconds"`
	Channel             string          `json:"channel,omitempty"`

	CreationDate   time.Time `json:"creationDate"`
	ExpirationDate time.Time `json:"expirationDate"`

	WebhookURL         string `json:"webhookUrl,omitempty"`
	WebhookContentType string `json:"webhookContentType,omitempty"`
	WebhookHeaders     string `json:"webhookHeaders,omitempty"` // key:value;key2:value2
	Auth               Auth   `json:"-"`
	Secret             string `json:"secret,omitempty"`

	Outcome *WebhookOutcome `json:"webhookOutcome,omitempty"`

	Redelivered     bool `json:"redelivered,omitempty"`
	RedeliveryCount int  `json:"redeliveryCount,omitempty"`
}

// eventAlias drops the methods of InFlightEvent so the JSON hooks below do not recurse.
type eventAlias InFlightEvent

type eventJSON struct {
	eventAlias
	AuthMethod       string `json:"authMethod,omitempty"`
	AuthClientID     string `json:"authClientId,omitempty"`
	AuthClientSecret string `json:"authClientSecret,omitempty"`
	AuthScope        string `json:"authScope,omitempty"`
}

// MarshalJSON flattens the auth variant into the authMethod/authClientId/
// authClientSecret/authScope fields used on the wire.
func (e InFlightEvent) MarshalJSON() ([]byte, error) {
	out := eventJSON{eventAlias: eventAlias(e)}
	switch a := e.Auth.(type) {
	case BasicAuth:
		out.AuthMethod = AuthMethodBasic
		out.AuthClientID = a.ClientID
		out.AuthClientSecret = a.ClientSecret
	case OAuth2:
		out.AuthMethod = AuthMethodOAuth2
		out.AuthScope = a.Scope
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the auth variant from its flattened wire form.
func (e *InFlightEvent) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = InFlightEvent(in.eventAlias)
	if in.AuthMethod != "" {
		auth, err := ParseAuth(in.AuthMethod, in.AuthClientID, in.AuthClientSecret, in.AuthScope)
		if err != nil {
			return err
		}
		e.Auth = auth
	}
	return nil
}

// ShortLog is the non-sensitive summary used in log lines.
func (e *InFlightEvent) ShortLog() string {
	if e == nil {
		return "null"
	}
	return fmt.Sprintf("{ id: %s, businessId: %s, eventTypeCode: %s, publicationCode: %s, subscriptionCode: %s }",
		e.ID, e.BusinessID, e.EventTypeCode, e.PublicationCode, e.SubscriptionCode)
}

// Sanitized returns a copy with the shared secret and auth material redacted.
// The auth variant kind is preserved so an operator can still see which method was used.
func (e *InFlightEvent) Sanitized() *InFlightEvent {
	clone := *e
	if clone.Secret != "" {
		clone.Secret = Redacted
	}
	switch clone.Auth.(type) {
	case BasicAuth:
		clone.Auth = BasicAuth{ClientID: Redacted, ClientSecret: Redacted}
	case OAuth2:
		clone.Auth = OAuth2{Scope: Redacted}
	}
	if clone.Outcome != nil {
		o := *clone.Outcome
		clone.Outcome = &o
	}
	return &clone
}

// ResetDelivery clears every delivery-scoped field so that values are
// recomputed on each attempt instead of accumulated across redeliveries.
func (e *InFlightEvent) ResetDelivery() {
	e.WebhookURL = ""
	e.WebhookContentType = ""
	e.WebhookHeaders = ""
	e.Auth = nil
	e.Secret = ""
	e.Outcome = nil
}

// EventToPublisher is what the publish API returns. It omits the payload.
type EventToPublisher struct {
	BusinessID          string    `json:"businessId,omitempty"`
	PublicationCode     string    `json:"publicationCode"`
	TimeToLiveInSeconds int64     `json:"timeToLiveInSeconds"`
	Channel             string    `json:"channel,omitempty"`
	ID                  string    `json:"id"`
	CreationDate        time.Time `json:"creationDate"`
	ExpirationDate      time.Time `json:"expirationDate"`
	EventTypeCode       string    `json:"eventTypeCode"`
}

func (e *InFlightEvent) ToPublisher() EventToPublisher {
	return EventToPublisher{
		BusinessID:          e.BusinessID,
		PublicationCode:     e.PublicationCode,
		TimeToLiveInSeconds: e.TimeToLiveInSeconds,
		Channel:             e.Channel,
		ID:                  e.ID,
		CreationDate:        e.CreationDate,
		ExpirationDate:      e.ExpirationDate,
		EventTypeCode:       e.EventTypeCode,
	}
}

// EventToSubscriber is the webhook body. It carries the payload and the shared
// secret but none of the broker's delivery bookkeeping.
type EventToSubscriber struct {
	BusinessID          string          `json:"businessId,omitempty"`
	PublicationCode     string          `json:"publicationCode"`
	Payload             json.RawMessage `json:"payload,omitempty"`
	TimeToLiveInSeconds int64           `json:"timeToLiveInSeconds"`
	Channel             string          `json:"channel,omitempty"`
	ID                  string          `json:"id"`
	CreationDate        time.Time       `json:"creationDate"`
	ExpirationDate      time.Time       `json:"expirationDate"`
	EventTypeCode       string          `json:"eventTypeCode"`
	SubscriptionCode    string          `json:"subscriptionCode"`
	Secret              string          `json:"secret,omitempty"`
}

func (e *InFlightEvent) ToSubscriber() EventToSubscriber {
	return EventToSubscriber{
		BusinessID:          e.BusinessID,
		PublicationCode:     e.PublicationCode,
		Payload:             e.Payload,
		TimeToLiveInSeconds: e.TimeToLiveInSeconds,
		Channel:             e.Channel,
		ID:                  e.ID,
		CreationDate:        e.CreationDate,
		ExpirationDate:      e.ExpirationDate,
		EventTypeCode:       e.EventTypeCode,
		SubscriptionCode:    e.SubscriptionCode,
		Secret:              e.Secret,
	}
}
