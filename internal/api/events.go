package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/volkaert/simple-event-broker2/internal/domain"
	"github.com/volkaert/simple-event-broker2/internal/publication"
)

// Publisher is the publish entry point.
type Publisher interface {
	Publish(ctx context.Context, req publication.Request) (*domain.InFlightEvent, error)
}

type EventHandler struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewEventHandler(p Publisher, logger *slog.Logger) *EventHandler {
	return &EventHandler{publisher: p, logger: logger}
}

// Create publishes one event and returns its publisher projection.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req publication.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		respondError(w, r, http.StatusBadRequest, "payload must be valid JSON")
		return
	}

	event, err := h.publisher.Publish(r.Context(), req)
	if err != nil {
		h.logger.Warn("publish rejected",
			"publication_code", req.PublicationCode,
			"business_id", req.BusinessID,
			"error", err,
		)
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, event.ToPublisher())
}
