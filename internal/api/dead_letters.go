package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/volkaert/simple-event-broker2/internal/domain"
	"github.com/volkaert/simple-event-broker2/internal/transport"
)

const maxDeadLetterLimit = 500

type DeadLetterHandler struct {
	client redis.Cmdable
}

func NewDeadLetterHandler(client redis.Cmdable) *DeadLetterHandler {
	return &DeadLetterHandler{client: client}
}

type deadLetter struct {
	MessageID string                `json:"messageId"`
	Event     *domain.InFlightEvent `json:"event,omitempty"`
	Raw       json.RawMessage       `json:"raw,omitempty"`
}

// List returns the newest dead letters of one (event type, subscription) pair.
// Entries are already sanitized when written.
func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	eventTypeCode := chi.URLParam(r, "eventTypeCode")
	subscriptionCode := chi.URLParam(r, "subscriptionCode")
	limitStr := r.URL.Query().Get("limit")

	limit := 50
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = min(n, maxDeadLetterLimit)
		}
	}

	msgs, err := transport.ReadDeadLetters(r.Context(), h.client, eventTypeCode, subscriptionCode, int64(limit))
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	letters := make([]deadLetter, 0, len(msgs))
	for _, m := range msgs {
		letter := deadLetter{MessageID: m.ID}
		var ev domain.InFlightEvent
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			letter.Raw = json.RawMessage(strconv.Quote(string(m.Payload)))
		} else {
			letter.Event = &ev
		}
		letters = append(letters, letter)
	}

	respondJSON(w, http.StatusOK, letters)
}
