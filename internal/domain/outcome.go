package domain

import "net/http"

// OutcomeKind classifies a single webhook attempt. Exactly one applies per attempt.
type OutcomeKind string

const (
	// OutcomeResponse is a response that is neither 4xx nor 5xx. A 2xx status is a
	// successful delivery; anything else (a redirect, say) is retried.
	OutcomeResponse    OutcomeKind = "response"
	OutcomeConnection  OutcomeKind = "connection_error"
	OutcomeReadTimeout OutcomeKind = "read_timeout"
	OutcomeServer5xx   OutcomeKind = "server_5xx"
	OutcomeClient4xx   OutcomeKind = "client_4xx"
)

// WebhookOutcome is the classified result of one webhook call.
type WebhookOutcome struct {
	Kind   OutcomeKind `json:"kind"`
	Status int         `json:"status"`
}

// ClassifyStatus maps an HTTP status received without a transport error.
func ClassifyStatus(status int) WebhookOutcome {
	switch {
	case status >= 500 && status < 600:
		return WebhookOutcome{Kind: OutcomeServer5xx, Status: status}
	case status >= 400 && status < 500:
		return WebhookOutcome{Kind: OutcomeClient4xx, Status: status}
	default:
		return WebhookOutcome{Kind: OutcomeResponse, Status: status}
	}
}

func ConnectionError() WebhookOutcome {
	return WebhookOutcome{Kind: OutcomeConnection, Status: http.StatusBadGateway}
}

func ReadTimeoutError() WebhookOutcome {
	return WebhookOutcome{Kind: OutcomeReadTimeout, Status: http.StatusGatewayTimeout}
}

// Succeeded reports a 2xx response.
func (o WebhookOutcome) Succeeded() bool {
	return o.Kind == OutcomeResponse && o.Status >= 200 && o.Status < 300
}

// IsError reports one of the four classified webhook error kinds.
func (o WebhookOutcome) IsError() bool {
	return o.Kind != OutcomeResponse
}

// IsAuthError reports a 401 or 403, a sub-class of client 4xx with its own TTL.
func (o WebhookOutcome) IsAuthError() bool {
	return o.Kind == OutcomeClient4xx &&
		(o.Status == http.StatusUnauthorized || o.Status == http.StatusForbidden)
}

// Reason is a short human label for log lines.
func (o WebhookOutcome) Reason() string {
	switch o.Kind {
	case OutcomeConnection:
		return "connection"
	case OutcomeReadTimeout:
		return "read timeout"
	case OutcomeServer5xx:
		return "server 5xx"
	case OutcomeClient4xx:
		if o.IsAuthError() {
			return "auth 401 or 403"
		}
		return "client 4xx"
	default:
		return "response"
	}
}
