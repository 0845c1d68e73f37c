package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/volkaert/simple-event-broker2/internal/domain"
)

// Client reads the catalog service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) GetEventType(ctx context.Context, code string) (*domain.EventType, error) {
	var et domain.EventType
	found, err := c.get(ctx, "/catalog/event-types/"+url.PathEscape(code), &et)
	if err != nil || !found {
		return nil, err
	}
	return &et, nil
}

func (c *Client) GetPublication(ctx context.Context, code string) (*domain.Publication, error) {
	var p domain.Publication
	found, err := c.get(ctx, "/catalog/publications/"+url.PathEscape(code), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetSubscription(ctx context.Context, code string) (*domain.Subscription, error) {
	var s domain.Subscription
	found, err := c.get(ctx, "/catalog/subscriptions/"+url.PathEscape(code), &s)
	if err != nil || !found {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ListEventTypes(ctx context.Context) ([]domain.EventType, error) {
	var out []domain.EventType
	if _, err := c.get(ctx, "/catalog/event-types", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListPublications(ctx context.Context) ([]domain.Publication, error) {
	var out []domain.Publication
	if _, err := c.get(ctx, "/catalog/publications", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	var out []domain.Subscription
	if _, err := c.get(ctx, "/catalog/subscriptions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// get decodes the response into dst. A 404 reports found=false with no error.
func (c *Client) get(ctx context.Context, path string, dst any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("creating catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("calling catalog %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return false, fmt.Errorf("catalog %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return false, fmt.Errorf("decoding catalog %s: %w", path, err)
	}
	return true, nil
}
