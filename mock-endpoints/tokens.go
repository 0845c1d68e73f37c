package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are carried by issued access tokens.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// issuer is a minimal client-credentials token endpoint signing HS256 tokens.
type issuer struct {
	secretKey    []byte
	clientID     string
	clientSecret string
	lifetime     time.Duration
	now          func() time.Time
}

func newIssuer(secretKey, clientID, clientSecret string, lifetime time.Duration) *issuer {
	return &issuer{
		secretKey:    []byte(secretKey),
		clientID:     clientID,
		clientSecret: clientSecret,
		lifetime:     lifetime,
		now:          time.Now,
	}
}

func (i *issuer) generateToken(scope string) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.lifetime)
	claims := Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   i.clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secretKey)
	return signed, expires, err
}

func (i *issuer) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secretKey, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// handleToken serves the client_credentials grant. Credentials are accepted
// as HTTP basic auth or as form fields.
func (i *issuer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	id, secret, ok := r.BasicAuth()
	if !ok {
		id, secret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	if id != i.clientID || secret != i.clientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	scope := r.PostForm.Get("scope")
	token, expires, err := i.generateToken(scope)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int64(expires.Sub(i.now()).Seconds()),
		"scope":        scope,
	})
}

func (i *issuer) verifyRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, errors.New("missing bearer token")
	}
	return i.validateToken(token)
}

// verifySignature checks X-Webhook-Signature against the body and restores
// the body for later readers.
func verifySignature(r *http.Request, secret, signature string) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// attemptCounter counts calls per key.
type attemptCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *attemptCounter) next(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key]
}
