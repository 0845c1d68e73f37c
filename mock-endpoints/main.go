package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

var requestCount atomic.Int64

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	issuer := newIssuer(
		getEnv("MOCK_JWT_SECRET", "mock-signing-key"),
		getEnv("MOCK_CLIENT_ID", "broker"),
		getEnv("MOCK_CLIENT_SECRET", "broker-secret"),
		5*time.Minute,
	)

	mux := newMux(issuer, getEnv("MOCK_WEBHOOK_SECRET", ""), 3*time.Second, logger)

	logger.Info("mock endpoint server starting", "port", port)
	logger.Info("routes",
		"POST /webhook/success", "200 OK",
		"POST /webhook/slow", "200 OK after a delay",
		"POST /webhook/fail", "500 error",
		"POST /webhook/unauthorized", "401 error",
		"POST /webhook/flaky?failures=N", "503 for the first N calls of an event, then 200",
		"POST /webhook/secured", "200 with a valid bearer token, else 401",
		"POST /oauth/token", "client-credentials token issuer",
		"GET /stats", "request count",
	)

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newMux(issuer *issuer, webhookSecret string, slowDelay time.Duration, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	flaky := &attemptCounter{counts: map[string]int{}}

	// Successful endpoint, always returns 200
	mux.HandleFunc("POST /webhook/success", func(w http.ResponseWriter, r *http.Request) {
		reply(w, r, logger, webhookSecret, http.StatusOK, map[string]string{"status": "received"})
	})

	mux.HandleFunc("POST /webhook/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(slowDelay):
		case <-r.Context().Done():
			return
		}
		reply(w, r, logger, webhookSecret, http.StatusOK, map[string]string{"status": "received (slow)"})
	})

	mux.HandleFunc("POST /webhook/fail", func(w http.ResponseWriter, r *http.Request) {
		reply(w, r, logger, webhookSecret, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	})

	mux.HandleFunc("POST /webhook/unauthorized", func(w http.ResponseWriter, r *http.Request) {
		reply(w, r, logger, webhookSecret, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	})

	// Fails the first N calls of each event id, then accepts
	mux.HandleFunc("POST /webhook/flaky", func(w http.ResponseWriter, r *http.Request) {
		failures, _ := strconv.Atoi(r.URL.Query().Get("failures"))
		if flaky.next(r.Header.Get("X-Webhook-Id")) <= failures {
			reply(w, r, logger, webhookSecret, http.StatusServiceUnavailable, map[string]string{"error": "try again"})
			return
		}
		reply(w, r, logger, webhookSecret, http.StatusOK, map[string]string{"status": "received"})
	})

	mux.HandleFunc("POST /webhook/secured", func(w http.ResponseWriter, r *http.Request) {
		claims, err := issuer.verifyRequest(r)
		if err != nil {
			logger.Warn("rejected bearer token", "error", err)
			reply(w, r, logger, webhookSecret, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		reply(w, r, logger, webhookSecret, http.StatusOK, map[string]string{"status": "received", "scope": claims.Scope})
	})

	mux.HandleFunc("POST /oauth/token", issuer.handleToken)

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int64{"total_requests": requestCount.Load()})
	})

	return mux
}

func reply(w http.ResponseWriter, r *http.Request, logger *slog.Logger, webhookSecret string, status int, body any) {
	count := requestCount.Add(1)
	signature := r.Header.Get("X-Webhook-Signature")

	attrs := []any{
		"n", count,
		"path", r.URL.Path,
		"status", status,
		"event_type_code", r.Header.Get("X-Webhook-Event"),
		"event_id", r.Header.Get("X-Webhook-Id"),
		"attempt", r.Header.Get("X-Webhook-Attempt"),
		"signature", truncate(signature, 16),
	}
	if webhookSecret != "" {
		attrs = append(attrs, "signature_valid", verifySignature(r, webhookSecret, signature))
	}
	logger.Info("webhook call", attrs...)

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
