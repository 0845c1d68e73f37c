package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/volkaert/simple-event-broker2/internal/catalog"
	"github.com/volkaert/simple-event-broker2/internal/registry"
	"github.com/volkaert/simple-event-broker2/internal/store"
	ws "github.com/volkaert/simple-event-broker2/internal/websocket"
)

// Deps are the collaborators the HTTP layer reads from.
type Deps struct {
	Publisher  Publisher
	Catalog    catalog.Lookup
	Redis      *store.RedisStore
	Producers  *registry.ProducerRegistry
	Consumers  *registry.ConsumerRegistry
	Partition  Partition
	Hub        *ws.Hub
	InstanceID string
	Version    string
	Logger     *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.Use(corsMiddleware)

	eventHandler := NewEventHandler(d.Publisher, d.Logger)
	dlqHandler := NewDeadLetterHandler(d.Redis.Client())
	subHandler := NewSubscriptionHandler(d.Catalog, d.Partition, d.Consumers)
	dashHandler := NewDashboardHandler(d.InstanceID, d.Partition, d.Producers, d.Consumers, d.Redis, d.Hub)

	// Live decision feed, optionally filtered with ?eventTypeCode=
	r.Get("/ws", d.Hub.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(d.Redis, d.Version))
		r.Get("/status", dashHandler.Status)

		r.Post("/events", eventHandler.Create)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", subHandler.List)
			r.Get("/{code}", subHandler.Get)
		})

		r.Get("/dead-letters/{eventTypeCode}/{subscriptionCode}", dlqHandler.List)
	})

	return r
}

// corsMiddleware adds CORS headers for browser clients of the live feed.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
