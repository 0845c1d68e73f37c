// Package oauth caches client-credentials bearer tokens per scope.
package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/volkaert/simple-event-broker2/internal/config"
	"github.com/volkaert/simple-event-broker2/internal/domain"
)

// ExpiryMargin is how long before its expiry a token stops being reused.
const ExpiryMargin = 10 * time.Second

// Token is an access token and the instant it expires.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Fetcher obtains a fresh token for scope.
type Fetcher func(ctx context.Context, scope string) (*Token, error)

// ClientCredentials fetches tokens from the configured token endpoint with
// the broker's own client id and secret.
func ClientCredentials(cfg config.OAuth2Config) Fetcher {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return func(ctx context.Context, scope string) (*Token, error) {
		if cfg.TokenEndpoint == "" {
			return nil, fmt.Errorf("no oauth2 token endpoint configured")
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenEndpoint,
			Scopes:       []string{scope},
		}
		tok, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, httpClient))
		if err != nil {
			return nil, fmt.Errorf("requesting token: %w", err)
		}
		return &Token{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
	}
}

// Cache keeps one token per scope. Concurrent refetches for the same scope
// share a single call to the token endpoint.
type Cache struct {
	fetch  Fetcher
	now    func() time.Time
	logger *slog.Logger

	mu     sync.RWMutex
	tokens map[string]Token
	group  singleflight.Group
}

func NewCache(fetch Fetcher, logger *slog.Logger) *Cache {
	return &Cache{
		fetch:  fetch,
		now:    time.Now,
		logger: logger,
		tokens: make(map[string]Token),
	}
}

// GetToken returns a bearer token for scope, fetching a new one when the
// cached token is missing or expires within ExpiryMargin. A token without
// an expiry is used for the current call only.
func (c *Cache) GetToken(ctx context.Context, scope string) (string, error) {
	if tok, ok := c.cached(scope); ok {
		return tok, nil
	}

	v, err, _ := c.group.Do(scope, func() (any, error) {
		if tok, ok := c.cached(scope); ok {
			return tok, nil
		}
		c.evict(scope)

		t, err := c.fetch(ctx, scope)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.tokens[scope] = *t
		c.mu.Unlock()
		c.logger.Debug("oauth2 token fetched", "scope", scope, "expires_at", t.ExpiresAt)
		return t.AccessToken, nil
	})
	if err != nil {
		return "", domain.NewError(domain.KindTokenAcquisition, "cannot get oauth2 token for scope "+scope, err)
	}
	return v.(string), nil
}

func (c *Cache) cached(scope string) (string, bool) {
	c.mu.RLock()
	t, ok := c.tokens[scope]
	c.mu.RUnlock()
	if !ok || c.now().Add(ExpiryMargin).After(t.ExpiresAt) {
		return "", false
	}
	return t.AccessToken, true
}

func (c *Cache) evict(scope string) {
	c.mu.Lock()
	delete(c.tokens, scope)
	c.mu.Unlock()
}
