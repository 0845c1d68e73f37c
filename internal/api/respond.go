package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/volkaert/simple-event-broker2/internal/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Timestamp         time.Time `json:"timestamp"`
	HTTPStatusCode    int       `json:"httpStatusCode"`
	HTTPStatusMessage string    `json:"httpStatusMessage"`
	Message           string    `json:"message"`
	Path              string    `json:"path"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Timestamp:         time.Now().UTC(),
		HTTPStatusCode:    status,
		HTTPStatusMessage: http.StatusText(status),
		Message:           message,
		Path:              r.URL.Path,
	})
}

// respondDomainError maps a broker error to its HTTP status. Anything that is
// not a *domain.Error is a 500 with a generic message.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		respondError(w, r, derr.HTTPStatus(), derr.Message)
		return
	}
	respondError(w, r, http.StatusInternalServerError, "internal error")
}
