// Package webhook performs the outbound subscriber call.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/volkaert/simple-event-broker2/internal/config"
	"github.com/volkaert/simple-event-broker2/internal/domain"
)

const defaultContentType = "application/json"

// TokenSource provides bearer tokens for oauth2 subscriptions.
type TokenSource interface {
	GetToken(ctx context.Context, scope string) (string, error)
}

// Invoker calls subscriber webhooks.
type Invoker struct {
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// NewInvoker builds an HTTP client honoring the connect and read timeouts.
// Redirects are not followed; a 3xx is reported as a plain response.
func NewInvoker(cfg config.WebhookConfig, tokens TokenSource, logger *slog.Logger) *Invoker {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Invoker{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		tokens: tokens,
		logger: logger,
	}
}

// Invoke posts the subscriber projection of event to its webhook and
// classifies the result. A connection failure or a read timeout is an
// outcome, not an error. The returned error is reserved for failures that
// could not be classified: bad configuration, token acquisition, or any
// other transport error.
func (i *Invoker) Invoke(ctx context.Context, event *domain.InFlightEvent) (domain.WebhookOutcome, error) {
	headers, err := ParseHeaders(event.WebhookHeaders)
	if err != nil {
		return domain.WebhookOutcome{}, err
	}

	body, err := json.Marshal(event.ToSubscriber())
	if err != nil {
		return domain.WebhookOutcome{}, fmt.Errorf("encoding webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, event.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return domain.WebhookOutcome{}, domain.NewError(domain.KindInternalInconsistency, "invalid webhook url", err)
	}

	contentType := event.WebhookContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Webhook-Id", event.ID)
	req.Header.Set("X-Webhook-Event", event.EventTypeCode)
	req.Header.Set("X-Webhook-Attempt", strconv.Itoa(event.RedeliveryCount+1))
	if event.Secret != "" {
		req.Header.Set("X-Webhook-Signature", computeHMAC(body, event.Secret))
	}

	switch a := event.Auth.(type) {
	case domain.BasicAuth:
		req.SetBasicAuth(a.ClientID, a.ClientSecret)
	case domain.OAuth2:
		token, err := i.tokens.GetToken(ctx, a.Scope)
		if err != nil {
			return domain.WebhookOutcome{}, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	for _, h := range headers {
		req.Header.Set(h.Key, h.Value)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		outcome, ok := classifyTransportError(err)
		if !ok {
			return domain.WebhookOutcome{}, domain.NewError(domain.KindWebhookTransport, "webhook call failed", err)
		}
		i.logger.Debug("webhook transport error",
			"event_id", event.ID,
			"subscription_code", event.SubscriptionCode,
			"outcome", outcome.Kind,
			"error", err,
		)
		event.Outcome = &outcome
		return outcome, nil
	}
	defer resp.Body.Close()

	// The body is not interpreted; drain a bounded amount so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	outcome := domain.ClassifyStatus(resp.StatusCode)
	event.Outcome = &outcome
	return outcome, nil
}

// classifyTransportError separates failures to connect from timeouts while
// waiting for the response. A connect timeout is neither: it is reported as
// an unclassified transport failure.
func classifyTransportError(err error) (domain.WebhookOutcome, bool) {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		if opErr.Timeout() {
			return domain.WebhookOutcome{}, false
		}
		return domain.ConnectionError(), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ReadTimeoutError(), true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ReadTimeoutError(), true
	}
	return domain.WebhookOutcome{}, false
}

// computeHMAC generates an HMAC-SHA256 signature for the payload.
func computeHMAC(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
