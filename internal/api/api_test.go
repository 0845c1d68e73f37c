package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volkaert/simple-event-broker2/internal/domain"
	"github.com/volkaert/simple-event-broker2/internal/partition"
	"github.com/volkaert/simple-event-broker2/internal/publication"
	"github.com/volkaert/simple-event-broker2/internal/registry"
	"github.com/volkaert/simple-event-broker2/internal/store"
	"github.com/volkaert/simple-event-broker2/internal/transport"
	ws "github.com/volkaert/simple-event-broker2/internal/websocket"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePublisher struct {
	err  error
	last publication.Request
}

func (p *fakePublisher) Publish(_ context.Context, req publication.Request) (*domain.InFlightEvent, error) {
	p.last = req
	if p.err != nil {
		return nil, p.err
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &domain.InFlightEvent{
		ID:                  "evt-1",
		BusinessID:          req.BusinessID,
		PublicationCode:     req.PublicationCode,
		EventTypeCode:       "orders",
		Payload:             req.Payload,
		TimeToLiveInSeconds: 3600,
		CreationDate:        now,
		ExpirationDate:      now.Add(time.Hour),
	}, nil
}

type fakeCatalog struct {
	subs []domain.Subscription
	err  error
}

func (c *fakeCatalog) GetEventType(context.Context, string) (*domain.EventType, error) {
	return nil, nil
}
func (c *fakeCatalog) GetPublication(context.Context, string) (*domain.Publication, error) {
	return nil, nil
}
func (c *fakeCatalog) GetSubscription(_ context.Context, code string) (*domain.Subscription, error) {
	if c.err != nil {
		return nil, c.err
	}
	for i := range c.subs {
		if c.subs[i].Code == code {
			s := c.subs[i]
			return &s, nil
		}
	}
	return nil, nil
}
func (c *fakeCatalog) ListEventTypes(context.Context) ([]domain.EventType, error) { return nil, nil }
func (c *fakeCatalog) ListPublications(context.Context) ([]domain.Publication, error) {
	return nil, nil
}
func (c *fakeCatalog) ListSubscriptions(context.Context) ([]domain.Subscription, error) {
	return c.subs, c.err
}

type nopProducer struct{ topic string }

func (p nopProducer) Topic() string                                { return p.topic }
func (p nopProducer) Send(context.Context, []byte) (string, error) { return "1-0", nil }
func (p nopProducer) Close() error                                 { return nil }

type nopConsumer struct{ topic string }

func (c nopConsumer) Topic() string           { return c.topic }
func (c nopConsumer) Start(transport.Handler) {}
func (c nopConsumer) Close() error            { return nil }

type testServer struct {
	handler   http.Handler
	publisher *fakePublisher
	catalog   *fakeCatalog
	redis     *redis.Client
	store     *store.RedisStore
	mr        *miniredis.Miniredis
	producers *registry.ProducerRegistry
	consumers *registry.ConsumerRegistry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rs, err := store.NewRedis(context.Background(), "redis://"+mr.Addr(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { rs.Close() })
	client := rs.Client()

	filter, err := partition.NewFilter(2, 1)
	require.NoError(t, err)

	ts := &testServer{
		publisher: &fakePublisher{},
		catalog:   &fakeCatalog{},
		redis:     client,
		store:     rs,
		mr:        mr,
		producers: registry.NewProducerRegistry(func(_ context.Context, topic string) (registry.Producer, error) {
			return nopProducer{topic: topic}, nil
		}, quietLogger()),
		consumers: registry.NewConsumerRegistry(func(_ context.Context, topic, _ string) (registry.Consumer, error) {
			return nopConsumer{topic: topic}, nil
		}, func(context.Context, *transport.Message, transport.Acknowledger) {}, quietLogger()),
	}
	ts.handler = NewRouter(Deps{
		Publisher:  ts.publisher,
		Catalog:    ts.catalog,
		Redis:      rs,
		Producers:  ts.producers,
		Consumers:  ts.consumers,
		Partition:  filter,
		Hub:        ws.NewHub(quietLogger()),
		InstanceID: "broker-1",
		Version:    "test",
		Logger:     quietLogger(),
	})
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestPublish_Created(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/events",
		`{"businessId":"order-42","publicationCode":"orders.created","payload":{"amount":10},"timeToLiveInSeconds":60}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "evt-1", body["id"])
	assert.Equal(t, "orders", body["eventTypeCode"])
	assert.NotContains(t, body, "payload")

	require.NotNil(t, ts.publisher.last.TimeToLiveInSeconds)
	assert.Equal(t, int64(60), *ts.publisher.last.TimeToLiveInSeconds)
	assert.JSONEq(t, `{"amount":10}`, string(ts.publisher.last.Payload))
}

func TestPublish_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"missing code", domain.NewError(domain.KindInvalidRequest, "publicationCode is missing", nil), http.StatusBadRequest},
		{"unknown publication", domain.NewError(domain.KindUnknownPublication, "unknown publication x", nil), http.StatusNotFound},
		{"inactive publication", domain.NewError(domain.KindInactivePublication, "inactive publication x", nil), http.StatusUnprocessableEntity},
		{"unknown event type", domain.NewError(domain.KindUnknownEventType, "unknown event type", nil), http.StatusInternalServerError},
		{"transport down", domain.NewError(domain.KindDeliveryInfrastructure, "cannot publish", errors.New("dial")), http.StatusInternalServerError},
		{"untyped error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.publisher.err = tt.err

			rec := ts.do(http.MethodPost, "/api/v1/events", `{"publicationCode":"x"}`)

			require.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.status, resp.HTTPStatusCode)
			assert.Equal(t, http.StatusText(tt.status), resp.HTTPStatusMessage)
			assert.Equal(t, "/api/v1/events", resp.Path)
			assert.NotEmpty(t, resp.Message)
			assert.False(t, resp.Timestamp.IsZero())
		})
	}
}

func TestPublish_InvalidBody(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/events", `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", decodeError(t, rec).Message)
}

func TestDeadLetters_List(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	ev := &domain.InFlightEvent{ID: "evt-9", EventTypeCode: "orders", SubscriptionCode: "billing", Secret: "s"}
	payload, err := json.Marshal(ev.Sanitized())
	require.NoError(t, err)
	key := transport.DeadLetterKey("orders", "billing")
	require.NoError(t, ts.redis.XAdd(ctx, &redis.XAddArgs{Stream: key, Values: map[string]any{"event": string(payload)}}).Err())
	require.NoError(t, ts.redis.XAdd(ctx, &redis.XAddArgs{Stream: key, Values: map[string]any{"event": "not json"}}).Err())

	rec := ts.do(http.MethodGet, "/api/v1/dead-letters/orders/billing?limit=10", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var letters []deadLetter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &letters))
	require.Len(t, letters, 2)
	assert.Nil(t, letters[0].Event)
	assert.NotEmpty(t, letters[0].Raw)
	require.NotNil(t, letters[1].Event)
	assert.Equal(t, "evt-9", letters[1].Event.ID)
	assert.Equal(t, domain.Redacted, letters[1].Event.Secret)
}

func TestDeadLetters_EmptyStream(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/dead-letters/orders/nobody", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	_, err := ts.producers.GetProducer(ctx, transport.TopicKey("orders"))
	require.NoError(t, err)
	_, err = ts.consumers.GetConsumer(ctx, transport.TopicKey("orders"), "billing")
	require.NoError(t, err)

	rec := ts.do(http.MethodGet, "/api/v1/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "broker-1", resp.InstanceID)
	assert.Equal(t, 2, resp.ClusterSize)
	assert.Equal(t, 1, resp.ClusterIndex)
	assert.Equal(t, []string{transport.TopicKey("orders")}, resp.Producers)
	assert.Equal(t, []string{"billing"}, resp.Consumers)
	assert.Equal(t, map[string]int64{transport.TopicKey("orders"): 0}, resp.StreamLengths)
}

func TestSubscriptions_RedactsCredentials(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.subs = []domain.Subscription{{
		Code:             "billing",
		EventTypeCode:    "orders",
		Active:           true,
		AuthClientID:     "broker",
		AuthClientSecret: "hunter2",
		Secret:           "s3cret",
	}}

	rec := ts.do(http.MethodGet, "/api/v1/subscriptions/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.NotContains(t, rec.Body.String(), "s3cret")

	rec = ts.do(http.MethodGet, "/api/v1/subscriptions/billing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view subscriptionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, partition.Owner("orders", 2), view.OwnerIndex)
	assert.Equal(t, view.OwnerIndex == 1, view.OwnedHere)
	assert.False(t, view.Consuming)
	assert.Equal(t, domain.Redacted, view.AuthClientSecret)

	rec = ts.do(http.MethodGet, "/api/v1/subscriptions/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)

	ts.mr.Close()
	rec = ts.do(http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRespondJSON_SetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusTeapot, map[string]string{"a": "b"})

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte(`"a":"b"`)))
}
