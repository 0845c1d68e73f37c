package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/volkaert/simple-event-broker2/internal/config"
	"github.com/volkaert/simple-event-broker2/internal/delivery"
	"github.com/volkaert/simple-event-broker2/internal/domain"
	"github.com/volkaert/simple-event-broker2/internal/publication"
	"github.com/volkaert/simple-event-broker2/internal/registry"
	"github.com/volkaert/simple-event-broker2/internal/telemetry"
	"github.com/volkaert/simple-event-broker2/internal/transport"
	"github.com/volkaert/simple-event-broker2/internal/webhook"
)

type kindCounter struct {
	mu    sync.Mutex
	kinds map[telemetry.Kind]int
}

func (k *kindCounter) Record(_ context.Context, e telemetry.Event) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.kinds == nil {
		k.kinds = map[telemetry.Kind]int{}
	}
	k.kinds[e.Kind]++
}

func (k *kindCounter) count(kind telemetry.Kind) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.kinds[kind]
}

type broker struct {
	client    *redis.Client
	telemetry *kindCounter
	catalog   *memCatalog
	gateway   *publication.Gateway
	consumers *registry.ConsumerRegistry
	dispatch  *Dispatcher
}

// setupBroker wires the whole pipeline on miniredis: gateway, producer and
// consumer registries, listener pool, delivery engine and webhook invoker.
func setupBroker(t *testing.T, subs ...domain.Subscription) *broker {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := quietLogger()
	cat := &memCatalog{
		eventTypes: map[string]*domain.EventType{
			"orders": {Code: "orders", Active: true},
		},
		publications: map[string]*domain.Publication{
			"orders.created": {Code: "orders.created", EventTypeCode: "orders", Active: true},
		},
		subscriptions: subs,
	}

	webhookCfg := config.WebhookConfig{
		ConnectTimeout:              time.Second,
		ReadTimeout:                 time.Second,
		DefaultTTLConnectionError:   3600,
		DefaultTTLReadTimeoutError:  3600,
		DefaultTTLServer5xxError:    3600,
		DefaultTTLClient4xxError:    300,
		DefaultTTLAuth401Or403Error: 3600,
	}

	sink := &kindCounter{}
	producers := registry.NewProducerRegistry(registry.StreamProducers(client, 1000), logger)
	engine := delivery.NewEngine(cat,
		webhook.NewInvoker(webhookCfg, nil, logger),
		delivery.NewDLQRecorder(producers, sink, logger),
		sink, webhookCfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(4, logger)
	pool.Start(ctx)

	consumers := registry.NewConsumerRegistry(registry.StreamConsumers(client, transport.ConsumerOptions{
		Name:            "test",
		RedeliveryDelay: 50 * time.Millisecond,
		Block:           20 * time.Millisecond,
		Execute:         pool.Execute,
		Logger:          logger,
	}), engine.Handle, logger)

	t.Cleanup(func() {
		consumers.Close()
		cancel()
		pool.Stop()
		producers.Close()
	})

	return &broker{
		client:    client,
		telemetry: sink,
		catalog:   cat,
		gateway:   publication.NewGateway(cat, producers, nil, 3600, 86400, logger),
		consumers: consumers,
		dispatch:  NewDispatcher(cat, consumers, ownsAll{}, time.Minute, logger),
	}
}

func subscription(code, url string) domain.Subscription {
	return domain.Subscription{
		Code:             code,
		EventTypeCode:    "orders",
		Active:           true,
		WebhookURL:       url,
		AuthClientID:     "broker",
		AuthClientSecret: "pw",
		Secret:           "shh",
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func pendingCount(t *testing.T, client *redis.Client, group string) int64 {
	t.Helper()
	p, err := client.XPending(context.Background(), transport.TopicKey("orders"), group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	return p.Count
}

func TestDelivery_SuccessfulEndpoint(t *testing.T) {
	var mu sync.Mutex
	var received []domain.EventToSubscriber
	var headers http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body domain.EventToSubscriber
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		received = append(received, body)
		headers = r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	b := setupBroker(t, subscription("billing", server.URL))
	if res := b.dispatch.Sweep(context.Background()); res.Ensured != 1 {
		t.Fatalf("expected one consumer, got %+v", res)
	}

	ev, err := b.gateway.Publish(context.Background(), publication.Request{
		BusinessID:      "order-42",
		PublicationCode: "orders.created",
		Payload:         json.RawMessage(`{"amount":10}`),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, "webhook call", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})
	waitFor(t, "ack", func() bool { return pendingCount(t, b.client, "billing") == 0 })

	mu.Lock()
	defer mu.Unlock()
	got := received[0]
	if got.ID != ev.ID || got.SubscriptionCode != "billing" || got.Secret != "shh" {
		t.Errorf("unexpected webhook body %+v", got)
	}
	if string(got.Payload) != `{"amount":10}` {
		t.Errorf("payload not forwarded: %s", got.Payload)
	}
	if headers.Get("X-Webhook-Signature") == "" {
		t.Error("missing X-Webhook-Signature header")
	}
	if user, pass, ok := (&http.Request{Header: headers}).BasicAuth(); !ok || user != "broker" || pass != "pw" {
		t.Errorf("unexpected basic auth %q %q", user, pass)
	}
}

func TestDelivery_EachSubscriptionGetsItsCopy(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	b := setupBroker(t, subscription("billing", server.URL), subscription("audit", server.URL))
	b.dispatch.Sweep(context.Background())

	if _, err := b.gateway.Publish(context.Background(), publication.Request{PublicationCode: "orders.created"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, "two deliveries", func() bool { return calls.Load() == 2 })
	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 2 {
		t.Errorf("expected exactly 2 webhook calls, got %d", calls.Load())
	}
}

func TestDelivery_FailingEndpointIsDeadLetteredAfterTTL(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sub := subscription("billing", server.URL)
	ttl := int64(1)
	sub.TimeToLiveInSecondsForWebhookServer5xxError = &ttl
	b := setupBroker(t, sub)
	b.dispatch.Sweep(context.Background())

	if _, err := b.gateway.Publish(context.Background(), publication.Request{PublicationCode: "orders.created"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var letters []transport.Message
	waitFor(t, "dead letter", func() bool {
		var err error
		letters, err = transport.ReadDeadLetters(context.Background(), b.client, "orders", "billing", 10)
		return err == nil && len(letters) == 1
	})
	waitFor(t, "ack", func() bool { return pendingCount(t, b.client, "billing") == 0 })

	if calls.Load() < 2 {
		t.Errorf("expected the webhook to be retried before dead-lettering, got %d calls", calls.Load())
	}

	var dead domain.InFlightEvent
	if err := json.Unmarshal(letters[0].Payload, &dead); err != nil {
		t.Fatalf("decode dead letter: %v", err)
	}
	if dead.Secret != domain.Redacted {
		t.Errorf("secret not redacted: %q", dead.Secret)
	}
	if b.telemetry.count(telemetry.DeliveryDeadLettered) != 1 {
		t.Errorf("expected one dead-lettered record, got %d", b.telemetry.count(telemetry.DeliveryDeadLettered))
	}
	if dead.Outcome == nil || dead.Outcome.Status != http.StatusServiceUnavailable {
		t.Errorf("expected 503 outcome on dead letter, got %+v", dead.Outcome)
	}
}

func TestDelivery_ChannelMismatchIsSkipped(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := subscription("billing", server.URL)
	channel := "eu"
	sub.Channel = &channel
	b := setupBroker(t, sub)
	b.dispatch.Sweep(context.Background())

	if _, err := b.gateway.Publish(context.Background(), publication.Request{
		PublicationCode: "orders.created",
		Channel:         "us",
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, "channel mismatch", func() bool {
		return b.telemetry.count(telemetry.DeliveryChannelMismatch) == 1
	})
	waitFor(t, "ack", func() bool { return pendingCount(t, b.client, "billing") == 0 })

	if calls.Load() != 0 {
		t.Errorf("webhook should not be called on channel mismatch, got %d calls", calls.Load())
	}
	letters, _ := transport.ReadDeadLetters(context.Background(), b.client, "orders", "billing", 10)
	if len(letters) != 0 {
		t.Errorf("channel mismatch must not dead-letter, got %d", len(letters))
	}
}

func TestDelivery_InactiveSubscriptionIsDeadLettered(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := subscription("billing", server.URL)
	sub.Active = false
	b := setupBroker(t, sub)
	if res := b.dispatch.Sweep(context.Background()); res.Ensured != 1 {
		t.Fatalf("expected a consumer for the inactive subscription, got %+v", res)
	}

	ev, err := b.gateway.Publish(context.Background(), publication.Request{PublicationCode: "orders.created"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	var letters []transport.Message
	waitFor(t, "dead letter", func() bool {
		var err error
		letters, err = transport.ReadDeadLetters(context.Background(), b.client, "orders", "billing", 10)
		return err == nil && len(letters) == 1
	})
	waitFor(t, "ack", func() bool { return pendingCount(t, b.client, "billing") == 0 })

	if calls.Load() != 0 {
		t.Errorf("inactive subscription must not be called, got %d calls", calls.Load())
	}
	var dead domain.InFlightEvent
	if err := json.Unmarshal(letters[0].Payload, &dead); err != nil {
		t.Fatalf("decode dead letter: %v", err)
	}
	if dead.ID != ev.ID {
		t.Errorf("expected dead letter for %s, got %s", ev.ID, dead.ID)
	}
}
