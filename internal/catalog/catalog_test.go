package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volkaert/simple-event-broker2/internal/domain"
)

func newCatalogServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /catalog/publications/{code}", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.PathValue("code") != "orders.created" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(domain.Publication{Code: "orders.created", EventTypeCode: "orders", Active: true})
	})
	mux.HandleFunc("GET /catalog/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode([]domain.Subscription{{Code: "billing", EventTypeCode: "orders", Active: true}})
	})
	mux.HandleFunc("GET /catalog/event-types/{code}", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_NotFoundIsNil(t *testing.T) {
	var hits atomic.Int32
	srv := newCatalogServer(t, &hits)
	c := NewClient(srv.URL+"/", time.Second)

	pub, err := c.GetPublication(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, pub)

	pub, err = c.GetPublication(context.Background(), "orders.created")
	require.NoError(t, err)
	require.NotNil(t, pub)
	assert.Equal(t, "orders", pub.EventTypeCode)
}

func TestClient_ServerErrorIsError(t *testing.T) {
	var hits atomic.Int32
	srv := newCatalogServer(t, &hits)
	c := NewClient(srv.URL, time.Second)

	et, err := c.GetEventType(context.Background(), "orders")
	assert.Error(t, err)
	assert.Nil(t, et)
}

func TestClient_List(t *testing.T) {
	var hits atomic.Int32
	srv := newCatalogServer(t, &hits)
	c := NewClient(srv.URL, time.Second)

	subs, err := c.ListSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "billing", subs[0].Code)
}

func TestCached_ReusesUntilTTL(t *testing.T) {
	var hits atomic.Int32
	srv := newCatalogServer(t, &hits)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCached(NewClient(srv.URL, time.Second), time.Minute)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.GetPublication(ctx, "orders.created")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())

	now = now.Add(time.Minute)
	_, err := c.GetPublication(ctx, "orders.created")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())

	c.Clear()
	_, err = c.GetPublication(ctx, "orders.created")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestCached_DoesNotCacheNotFound(t *testing.T) {
	var hits atomic.Int32
	srv := newCatalogServer(t, &hits)
	c := NewCached(NewClient(srv.URL, time.Second), time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		pub, err := c.GetPublication(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, pub)
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestCached_Lists(t *testing.T) {
	var hits atomic.Int32
	srv := newCatalogServer(t, &hits)
	c := NewCached(NewClient(srv.URL, time.Second), time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		subs, err := c.ListSubscriptions(ctx)
		require.NoError(t, err)
		assert.Len(t, subs, 1)
	}
	assert.Equal(t, int32(1), hits.Load())
}
