package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/volkaert/simple-event-broker2/internal/domain"
)

const subscriptionColumns = `
	code, name, event_type_code, active, channel,
	webhook_url, COALESCE(webhook_content_type, ''), COALESCE(webhook_headers, ''),
	COALESCE(auth_method, ''), COALESCE(auth_client_id, ''), COALESCE(auth_client_secret, ''),
	COALESCE(auth_scope, ''), COALESCE(secret, ''),
	ttl_connection_error, ttl_read_timeout_error, ttl_server_5xx_error,
	ttl_client_4xx_error, ttl_auth_401_or_403_error`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.Code, &sub.Name, &sub.EventTypeCode, &sub.Active, &sub.Channel,
		&sub.WebhookURL, &sub.WebhookContentType, &sub.WebhookHeaders,
		&sub.AuthMethod, &sub.AuthClientID, &sub.AuthClientSecret,
		&sub.AuthScope, &sub.Secret,
		&sub.TimeToLiveInSecondsForWebhookConnectionError,
		&sub.TimeToLiveInSecondsForWebhookReadTimeoutError,
		&sub.TimeToLiveInSecondsForWebhookServer5xxError,
		&sub.TimeToLiveInSecondsForWebhookClient4xxError,
		&sub.TimeToLiveInSecondsForWebhookAuth401Or403Error,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *PostgresStore) GetEventType(ctx context.Context, code string) (*domain.EventType, error) {
	var et domain.EventType
	err := s.pool.QueryRow(ctx, `
		SELECT code, name, active FROM event_types WHERE code = $1
	`, code).Scan(&et.Code, &et.Name, &et.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying event type: %w", err)
	}
	return &et, nil
}

func (s *PostgresStore) GetPublication(ctx context.Context, code string) (*domain.Publication, error) {
	var p domain.Publication
	err := s.pool.QueryRow(ctx, `
		SELECT code, name, event_type_code, active FROM publications WHERE code = $1
	`, code).Scan(&p.Code, &p.Name, &p.EventTypeCode, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying publication: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, code string) (*domain.Subscription, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE code = $1`, code)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) ListEventTypes(ctx context.Context) ([]domain.EventType, error) {
	rows, err := s.pool.Query(ctx, `SELECT code, name, active FROM event_types ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("querying event types: %w", err)
	}
	defer rows.Close()

	eventTypes := []domain.EventType{}
	for rows.Next() {
		var et domain.EventType
		if err := rows.Scan(&et.Code, &et.Name, &et.Active); err != nil {
			return nil, fmt.Errorf("scanning event type: %w", err)
		}
		eventTypes = append(eventTypes, et)
	}
	return eventTypes, rows.Err()
}

func (s *PostgresStore) ListPublications(ctx context.Context) ([]domain.Publication, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, name, event_type_code, active FROM publications ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("querying publications: %w", err)
	}
	defer rows.Close()

	publications := []domain.Publication{}
	for rows.Next() {
		var p domain.Publication
		if err := rows.Scan(&p.Code, &p.Name, &p.EventTypeCode, &p.Active); err != nil {
			return nil, fmt.Errorf("scanning publication: %w", err)
		}
		publications = append(publications, p)
	}
	return publications, rows.Err()
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	subscriptions := []domain.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subscriptions = append(subscriptions, *sub)
	}
	return subscriptions, rows.Err()
}
