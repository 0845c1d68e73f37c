package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/volkaert/simple-event-broker2/internal/domain"
)

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

type ttlMap[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
}

func newTTLMap[V any]() *ttlMap[V] {
	return &ttlMap[V]{entries: make(map[string]entry[V])}
}

func (m *ttlMap[V]) get(key string, now time.Time, ttl time.Duration) (V, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || now.Sub(e.fetchedAt) >= ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (m *ttlMap[V]) put(key string, v V, now time.Time) {
	m.mu.Lock()
	m.entries[key] = entry[V]{value: v, fetchedAt: now}
	m.mu.Unlock()
}

func (m *ttlMap[V]) clear() {
	m.mu.Lock()
	clear(m.entries)
	m.mu.Unlock()
}

// Cached wraps a Lookup and keeps every successful read for ttl.
// Not-found results and errors are never cached, so a newly created
// entity becomes visible on the next read.
type Cached struct {
	next Lookup
	ttl  time.Duration
	now  func() time.Time

	eventTypes    *ttlMap[*domain.EventType]
	publications  *ttlMap[*domain.Publication]
	subscriptions *ttlMap[*domain.Subscription]
	lists         *ttlMap[any]
}

func NewCached(next Lookup, ttl time.Duration) *Cached {
	return &Cached{
		next:          next,
		ttl:           ttl,
		now:           time.Now,
		eventTypes:    newTTLMap[*domain.EventType](),
		publications:  newTTLMap[*domain.Publication](),
		subscriptions: newTTLMap[*domain.Subscription](),
		lists:         newTTLMap[any](),
	}
}

// Clear drops every cached entry.
func (c *Cached) Clear() {
	c.eventTypes.clear()
	c.publications.clear()
	c.subscriptions.clear()
	c.lists.clear()
}

func (c *Cached) GetEventType(ctx context.Context, code string) (*domain.EventType, error) {
	return cachedGet(ctx, c, c.eventTypes, code, c.next.GetEventType)
}

func (c *Cached) GetPublication(ctx context.Context, code string) (*domain.Publication, error) {
	return cachedGet(ctx, c, c.publications, code, c.next.GetPublication)
}

func (c *Cached) GetSubscription(ctx context.Context, code string) (*domain.Subscription, error) {
	return cachedGet(ctx, c, c.subscriptions, code, c.next.GetSubscription)
}

func (c *Cached) ListEventTypes(ctx context.Context) ([]domain.EventType, error) {
	return cachedList(ctx, c, "event-types", c.next.ListEventTypes)
}

func (c *Cached) ListPublications(ctx context.Context) ([]domain.Publication, error) {
	return cachedList(ctx, c, "publications", c.next.ListPublications)
}

func (c *Cached) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	return cachedList(ctx, c, "subscriptions", c.next.ListSubscriptions)
}

func cachedGet[V any](ctx context.Context, c *Cached, m *ttlMap[*V], code string,
	fetch func(context.Context, string) (*V, error)) (*V, error) {
	now := c.now()
	if v, ok := m.get(code, now, c.ttl); ok {
		return v, nil
	}
	v, err := fetch(ctx, code)
	if err != nil || v == nil {
		return nil, err
	}
	m.put(code, v, now)
	return v, nil
}

func cachedList[V any](ctx context.Context, c *Cached, key string,
	fetch func(context.Context) ([]V, error)) ([]V, error) {
	now := c.now()
	if v, ok := c.lists.get(key, now, c.ttl); ok {
		return v.([]V), nil
	}
	list, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.lists.put(key, list, now)
	return list, nil
}
