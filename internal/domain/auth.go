package domain

import (
	"fmt"
	"strings"
)

const (
	AuthMethodBasic  = "basicauth"
	AuthMethodOAuth2 = "oauth2"
)

// Auth is how the broker authenticates against a subscriber webhook.
// The set of implementations is closed: BasicAuth or OAuth2.
type Auth interface {
	Method() string
	isAuth()
}

// BasicAuth sends the client credentials in an Authorization: Basic header.
type BasicAuth struct {
	ClientID     string
	ClientSecret string
}

func (BasicAuth) Method() string { return AuthMethodBasic }
func (BasicAuth) isAuth()        {}

// OAuth2 sends a bearer token obtained for Scope with the broker's own client credentials.
type OAuth2 struct {
	Scope string
}

func (OAuth2) Method() string { return AuthMethodOAuth2 }
func (OAuth2) isAuth()        {}

// ParseAuth converts the catalog's string representation into an Auth variant.
// A blank method means basic auth. Missing credentials or scope are configuration
// errors reported as InternalInconsistency.
func ParseAuth(method, clientID, clientSecret, scope string) (Auth, error) {
	m := strings.ToLower(strings.TrimSpace(method))
	switch m {
	case "", AuthMethodBasic:
		if clientID == "" || clientSecret == "" {
			return nil, NewError(KindInternalInconsistency, "missing basic auth credentials", nil)
		}
		return BasicAuth{ClientID: clientID, ClientSecret: clientSecret}, nil
	case AuthMethodOAuth2:
		if strings.TrimSpace(scope) == "" {
			return nil, NewError(KindInternalInconsistency, "missing oauth2 scope", nil)
		}
		return OAuth2{Scope: scope}, nil
	default:
		return nil, NewError(KindInternalInconsistency, fmt.Sprintf("invalid auth method %q", method), nil)
	}
}
