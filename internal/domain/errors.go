package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies broker failures.
type ErrorKind string

const (
	KindInvalidRequest         ErrorKind = "INVALID_REQUEST"
	KindUnknownPublication     ErrorKind = "UNKNOWN_PUBLICATION"
	KindInactivePublication    ErrorKind = "INACTIVE_PUBLICATION"
	KindUnknownEventType       ErrorKind = "UNKNOWN_EVENT_TYPE"
	KindInternalInconsistency  ErrorKind = "INTERNAL_INCONSISTENCY"
	KindDeliveryInfrastructure ErrorKind = "DELIVERY_INFRASTRUCTURE"
	KindWebhookTransport       ErrorKind = "WEBHOOK_TRANSPORT"
	KindTokenAcquisition       ErrorKind = "TOKEN_ACQUISITION"
)

// Error is a classified broker error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus maps the kind to the status returned at the publish boundary.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindUnknownPublication:
		return http.StatusNotFound
	case KindInactivePublication:
		return http.StatusUnprocessableEntity
	case KindWebhookTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the kind of the first *Error in the chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
