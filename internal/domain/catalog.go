package domain

import "strings"

// EventType is owned by the catalog.
type EventType struct {
	Code   string `json:"code"`
	Name   string `json:"name,omitempty"`
	Active bool   `json:"active"`
}

// Publication binds a publication code to the event type it emits.
type Publication struct {
	Code          string `json:"code"`
	Name          string `json:"name,omitempty"`
	EventTypeCode string `json:"eventTypeCode"`
	Active        bool   `json:"active"`
}

// Subscription describes how events of one type reach one webhook.
// A nil Channel matches any channel. Nil or non-positive TTL overrides fall back
// to the deployment defaults.
type Subscription struct {
	Code          string  `json:"code"`
	Name          string  `json:"name,omitempty"`
	EventTypeCode string  `json:"eventTypeCode"`
	Active        bool    `json:"active"`
	Channel       *string `json:"channel,omitempty"`

	WebhookURL         string `json:"webhookUrl"`
	WebhookContentType string `json:"webhookContentType,omitempty"`
	WebhookHeaders     string `json:"webhookHeaders,omitempty"`

	AuthMethod       string `json:"authMethod,omitempty"`
	AuthClientID     string `json:"authClientId,omitempty"`
	AuthClientSecret string `json:"authClientSecret,omitempty"`
	AuthScope        string `json:"authScope,omitempty"`

	Secret string `json:"secret,omitempty"`

	TimeToLiveInSecondsForWebhookConnectionError   *int64 `json:"timeToLiveInSecondsForWebhookConnectionError,omitempty"`
	TimeToLiveInSecondsForWebhookReadTimeoutError  *int64 `json:"timeToLiveInSecondsForWebhookReadTimeoutError,omitempty"`
	TimeToLiveInSecondsForWebhookServer5xxError    *int64 `json:"timeToLiveInSecondsForWebhookServer5xxError,omitempty"`
	TimeToLiveInSecondsForWebhookClient4xxError    *int64 `json:"timeToLiveInSecondsForWebhookClient4xxError,omitempty"`
	TimeToLiveInSecondsForWebhookAuth401Or403Error *int64 `json:"timeToLiveInSecondsForWebhookAuth401Or403Error,omitempty"`
}

// MatchesChannel applies the channel filter case-insensitively.
func (s *Subscription) MatchesChannel(channel string) bool {
	if s.Channel == nil {
		return true
	}
	return strings.EqualFold(*s.Channel, channel)
}

// Auth parses the subscription's auth configuration.
func (s *Subscription) Auth() (Auth, error) {
	return ParseAuth(s.AuthMethod, s.AuthClientID, s.AuthClientSecret, s.AuthScope)
}

// TTLOverride returns the subscription-level TTL for the given outcome, or nil.
func (s *Subscription) TTLOverride(o WebhookOutcome) *int64 {
	switch o.Kind {
	case OutcomeConnection:
		return s.TimeToLiveInSecondsForWebhookConnectionError
	case OutcomeReadTimeout:
		return s.TimeToLiveInSecondsForWebhookReadTimeoutError
	case OutcomeServer5xx:
		return s.TimeToLiveInSecondsForWebhookServer5xxError
	case OutcomeClient4xx:
		if o.IsAuthError() {
			return s.TimeToLiveInSecondsForWebhookAuth401Or403Error
		}
		return s.TimeToLiveInSecondsForWebhookClient4xxError
	}
	return nil
}
