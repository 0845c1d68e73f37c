package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ctx context.Context, e Event) {
	attrs := []any{
		"event_id", e.EventID,
		"business_id", e.BusinessID,
		"event_type_code", e.EventTypeCode,
		"publication_code", e.PublicationCode,
	}
	if e.SubscriptionCode != "" {
		attrs = append(attrs, "subscription_code", e.SubscriptionCode)
	}
	if e.MessageID != "" {
		attrs = append(attrs, "message_id", e.MessageID)
	}
	if e.Redelivered {
		attrs = append(attrs, "redelivery_count", e.RedeliveryCount)
	}
	if e.Outcome != nil {
		attrs = append(attrs, "webhook_outcome", e.Outcome.Kind, "webhook_http_status", e.Outcome.Status)
	}
	if e.Duration > 0 {
		attrs = append(attrs, "duration_ms", e.Duration.Milliseconds())
	}
	if e.Error != "" {
		attrs = append(attrs, "error", e.Error)
	}

	level := slog.LevelInfo
	if e.Kind.IsFailure() {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, string(e.Kind), attrs...)
}

// MetricsSink counts publications and deliveries per branch.
type MetricsSink struct {
	publications metric.Int64Counter
	deliveries   metric.Int64Counter
	webhookTime  metric.Float64Histogram
}

func NewMetricsSink(meter metric.Meter) (*MetricsSink, error) {
	publications, err := meter.Int64Counter("broker.publications",
		metric.WithDescription("Publication decisions by branch"))
	if err != nil {
		return nil, fmt.Errorf("creating publications counter: %w", err)
	}
	deliveries, err := meter.Int64Counter("broker.deliveries",
		metric.WithDescription("Delivery decisions by branch"))
	if err != nil {
		return nil, fmt.Errorf("creating deliveries counter: %w", err)
	}
	webhookTime, err := meter.Float64Histogram("broker.webhook.duration",
		metric.WithDescription("Webhook call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("creating webhook duration histogram: %w", err)
	}
	return &MetricsSink{publications: publications, deliveries: deliveries, webhookTime: webhookTime}, nil
}

func (s *MetricsSink) Record(ctx context.Context, e Event) {
	attrs := []attribute.KeyValue{
		attribute.String("kind", string(e.Kind)),
		attribute.String("event_type_code", e.EventTypeCode),
	}
	if strings.HasPrefix(string(e.Kind), "publication.") {
		attrs = append(attrs, attribute.String("publication_code", e.PublicationCode))
		s.publications.Add(ctx, 1, metric.WithAttributes(attrs...))
		return
	}

	attrs = append(attrs, attribute.String("subscription_code", e.SubscriptionCode))
	if e.Outcome != nil {
		attrs = append(attrs, attribute.String("webhook_outcome", string(e.Outcome.Kind)))
	}
	s.deliveries.Add(ctx, 1, metric.WithAttributes(attrs...))
	if e.Duration > 0 {
		s.webhookTime.Record(ctx, float64(e.Duration.Microseconds())/1000, metric.WithAttributes(attrs...))
	}
}

// Broadcaster is the live feed, keyed by event type code.
type Broadcaster interface {
	Broadcast(key string, v any)
}

// FeedSink pushes every event to live feed clients.
type FeedSink struct {
	feed Broadcaster
}

func NewFeedSink(feed Broadcaster) *FeedSink {
	return &FeedSink{feed: feed}
}

func (s *FeedSink) Record(_ context.Context, e Event) {
	s.feed.Broadcast(e.EventTypeCode, e)
}

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink exports events as JSON to a Kafka topic, keyed by event id.
type KafkaSink struct {
	writer MessageWriter
	logger *slog.Logger
}

// NewKafkaWriter returns an async writer so recording never waits on the brokers.
func NewKafkaWriter(brokers []string, topic string, logger *slog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("telemetry export failed", "messages", len(messages), "error", err)
			}
		},
	}
}

func NewKafkaSink(writer MessageWriter, logger *slog.Logger) *KafkaSink {
	return &KafkaSink{writer: writer, logger: logger}
}

func (s *KafkaSink) Record(ctx context.Context, e Event) {
	value, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("failed to marshal telemetry event", "error", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(e.EventID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Warn("failed to export telemetry event", "kind", e.Kind, "event_id", e.EventID, "error", err)
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
