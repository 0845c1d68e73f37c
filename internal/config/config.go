package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config holds all configuration for the application.
type Config struct {
	Port     string
	LogLevel slog.Level

	RedisURL        string
	StreamMaxLen    int64
	DatabaseURL     string
	CatalogURL      string
	CatalogCacheTTL time.Duration

	DefaultTimeToLiveInSeconds int64
	MaxTimeToLiveInSeconds     int64

	Webhook WebhookConfig
	OAuth2  OAuth2Config

	ClusterSize  int
	ClusterIndex int

	ConsumerSweepInterval time.Duration
	ListenerThreadCount   int
	NackRedeliveryDelay   time.Duration
	ComponentInstanceID   string

	KafkaBrokers        []string
	KafkaTelemetryTopic string
}

// WebhookConfig carries the webhook call timeouts and the per-failure-class
// default time-to-live budgets, in seconds.
type WebhookConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	DefaultTTLConnectionError   int64
	DefaultTTLReadTimeoutError  int64
	DefaultTTLServer5xxError    int64
	DefaultTTLClient4xxError    int64
	DefaultTTLAuth401Or403Error int64
}

// OAuth2Config is the broker's own client-credentials identity.
type OAuth2Config struct {
	TokenEndpoint string
	ClientID      string
	ClientSecret  string
	Timeout       time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	hostname, _ := os.Hostname()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		LogLevel:        parseLevel(getEnv("LOG_LEVEL", "info")),
		RedisURL:        getEnv("REDIS_URL", ""),
		StreamMaxLen:    getEnvInt64("STREAM_MAX_LEN", 0),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		CatalogURL:      getEnv("CATALOG_URL", ""),
		CatalogCacheTTL: getEnvDuration("CATALOG_CACHE_TTL", 60*time.Second),

		DefaultTimeToLiveInSeconds: getEnvInt64("DEFAULT_TIME_TO_LIVE_IN_SECONDS", 3600),
		MaxTimeToLiveInSeconds:     getEnvInt64("MAX_TIME_TO_LIVE_IN_SECONDS", 86400),

		Webhook: WebhookConfig{
			ConnectTimeout:              getEnvDuration("WEBHOOK_CONNECT_TIMEOUT", 10*time.Second),
			ReadTimeout:                 getEnvDuration("WEBHOOK_READ_TIMEOUT", 10*time.Second),
			DefaultTTLConnectionError:   getEnvInt64("DEFAULT_TTL_WEBHOOK_CONNECTION_ERROR", 3600),
			DefaultTTLReadTimeoutError:  getEnvInt64("DEFAULT_TTL_WEBHOOK_READ_TIMEOUT_ERROR", 3600),
			DefaultTTLServer5xxError:    getEnvInt64("DEFAULT_TTL_WEBHOOK_SERVER_5XX_ERROR", 3600),
			DefaultTTLClient4xxError:    getEnvInt64("DEFAULT_TTL_WEBHOOK_CLIENT_4XX_ERROR", 300),
			DefaultTTLAuth401Or403Error: getEnvInt64("DEFAULT_TTL_WEBHOOK_AUTH_401_OR_403_ERROR", 3600),
		},
		OAuth2: OAuth2Config{
			TokenEndpoint: getEnv("OAUTH2_TOKEN_ENDPOINT", ""),
			ClientID:      getEnv("OAUTH2_CLIENT_ID", ""),
			ClientSecret:  getEnv("OAUTH2_CLIENT_SECRET", ""),
			Timeout:       getEnvDuration("OAUTH2_TIMEOUT", 10*time.Second),
		},

		ClusterSize:  getEnvInt("CLUSTER_SIZE", 1),
		ClusterIndex: getEnvInt("CLUSTER_INDEX", 0),

		ConsumerSweepInterval: getEnvDuration("CONSUMER_SWEEP_INTERVAL", 60*time.Second),
		ListenerThreadCount:   getEnvInt("LISTENER_THREAD_COUNT", 16),
		NackRedeliveryDelay:   getEnvDuration("NACK_REDELIVERY_DELAY", time.Minute),
		ComponentInstanceID:   getEnv("COMPONENT_INSTANCE_ID", hostname),

		KafkaBrokers:        getEnvList("KAFKA_BROKERS"),
		KafkaTelemetryTopic: getEnv("KAFKA_TELEMETRY_TOPIC", "broker-telemetry"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if (c.DatabaseURL == "") == (c.CatalogURL == "") {
		return fmt.Errorf("exactly one of DATABASE_URL or CATALOG_URL is required")
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.RedisURL, validation.Required.Error("REDIS_URL is required")),
		validation.Field(&c.Port, validation.Required),
		validation.Field(&c.StreamMaxLen, validation.Min(int64(0))),
		validation.Field(&c.DefaultTimeToLiveInSeconds, validation.Min(int64(0))),
		validation.Field(&c.MaxTimeToLiveInSeconds, validation.Min(c.DefaultTimeToLiveInSeconds).
			Error("MAX_TIME_TO_LIVE_IN_SECONDS must be >= DEFAULT_TIME_TO_LIVE_IN_SECONDS")),
		validation.Field(&c.ClusterSize, validation.Required, validation.Min(1)),
		validation.Field(&c.ClusterIndex, validation.Min(0), validation.Max(c.ClusterSize-1).
			Error("CLUSTER_INDEX must be in [0, CLUSTER_SIZE)")),
		validation.Field(&c.ListenerThreadCount, validation.Required, validation.Min(1)),
		validation.Field(&c.ConsumerSweepInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.NackRedeliveryDelay, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ComponentInstanceID, validation.Required),
		validation.Field(&c.Webhook),
		validation.Field(&c.OAuth2),
	)
}

func (w WebhookConfig) Validate() error {
	return validation.ValidateStruct(&w,
		validation.Field(&w.ConnectTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&w.ReadTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&w.DefaultTTLConnectionError, validation.Required, validation.Min(int64(1))),
		validation.Field(&w.DefaultTTLReadTimeoutError, validation.Required, validation.Min(int64(1))),
		validation.Field(&w.DefaultTTLServer5xxError, validation.Required, validation.Min(int64(1))),
		validation.Field(&w.DefaultTTLClient4xxError, validation.Required, validation.Min(int64(1))),
		validation.Field(&w.DefaultTTLAuth401Or403Error, validation.Required, validation.Min(int64(1))),
	)
}

func (o OAuth2Config) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&o.ClientID, validation.When(o.TokenEndpoint != "", validation.Required)),
		validation.Field(&o.ClientSecret, validation.When(o.TokenEndpoint != "", validation.Required)),
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.ParseInt(val, 10, 64)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
