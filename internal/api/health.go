package api

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Redis   string `json:"redis"`
}

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports healthy when the transport answers a ping.
func HealthHandler(transport Pinger, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "healthy",
			Version: version,
			Redis:   "up",
		}
		status := http.StatusOK

		if transport != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := transport.Ping(ctx); err != nil {
				resp.Status = "unhealthy"
				resp.Redis = "down"
				status = http.StatusServiceUnavailable
			}
		}

		respondJSON(w, status, resp)
	}
}
