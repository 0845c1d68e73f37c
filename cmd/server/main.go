package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/volkaert/simple-event-broker2/internal/api"
	"github.com/volkaert/simple-event-broker2/internal/catalog"
	"github.com/volkaert/simple-event-broker2/internal/config"
	"github.com/volkaert/simple-event-broker2/internal/delivery"
	"github.com/volkaert/simple-event-broker2/internal/oauth"
	"github.com/volkaert/simple-event-broker2/internal/partition"
	"github.com/volkaert/simple-event-broker2/internal/publication"
	"github.com/volkaert/simple-event-broker2/internal/registry"
	"github.com/volkaert/simple-event-broker2/internal/store"
	"github.com/volkaert/simple-event-broker2/internal/telemetry"
	"github.com/volkaert/simple-event-broker2/internal/transport"
	"github.com/volkaert/simple-event-broker2/internal/webhook"
	ws "github.com/volkaert/simple-event-broker2/internal/websocket"
	"github.com/volkaert/simple-event-broker2/internal/worker"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).
		With("instance_id", cfg.ComponentInstanceID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL, cfg.ListenerThreadCount*2)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	// Catalog: local PostgreSQL tables or the remote catalog service
	var source catalog.Lookup
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		logger.Info("connected to PostgreSQL")

		if err := pgStore.RunMigrations(ctx, store.Migrations()); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database migrations applied")
		source = pgStore
	} else {
		source = catalog.NewClient(cfg.CatalogURL, 10*time.Second)
		logger.Info("using remote catalog", "url", cfg.CatalogURL)
	}
	cached := catalog.NewCached(source, cfg.CatalogCacheTTL)

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	// Telemetry
	metricsSink, err := telemetry.NewMetricsSink(otel.Meter("simple-event-broker"))
	if err != nil {
		logger.Error("failed to create metric instruments", "error", err)
		os.Exit(1)
	}
	sinks := []telemetry.Sink{telemetry.NewLogSink(logger), metricsSink, telemetry.NewFeedSink(hub)}
	var kafkaSink *telemetry.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink = telemetry.NewKafkaSink(
			telemetry.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTelemetryTopic, logger), logger)
		sinks = append(sinks, kafkaSink)
		logger.Info("exporting telemetry to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTelemetryTopic)
	}
	recorder := telemetry.NewRecorder(sinks...)

	filter, err := partition.NewFilter(cfg.ClusterSize, cfg.ClusterIndex)
	if err != nil {
		logger.Error("invalid cluster partition", "error", err)
		os.Exit(1)
	}

	// Delivery pipeline
	producers := registry.NewProducerRegistry(registry.StreamProducers(redisStore.Client(), cfg.StreamMaxLen), logger)

	tokens := oauth.NewCache(oauth.ClientCredentials(cfg.OAuth2), logger)
	invoker := webhook.NewInvoker(cfg.Webhook, tokens, logger)

	engine := delivery.NewEngine(cached, invoker,
		delivery.NewDLQRecorder(producers, recorder, logger),
		recorder, cfg.Webhook, logger)

	pool := worker.NewPool(cfg.ListenerThreadCount, logger)
	pool.Start(ctx)

	consumers := registry.NewConsumerRegistry(registry.StreamConsumers(redisStore.Client(), transport.ConsumerOptions{
		Name:            cfg.ComponentInstanceID,
		RedeliveryDelay: cfg.NackRedeliveryDelay,
		Execute:         pool.Execute,
		Logger:          logger,
	}), engine.Handle, logger)

	dispatcher := worker.NewDispatcher(cached, consumers, filter, cfg.ConsumerSweepInterval, logger)
	go dispatcher.Start(ctx)

	gateway := publication.NewGateway(cached, producers, recorder,
		cfg.DefaultTimeToLiveInSeconds, cfg.MaxTimeToLiveInSeconds, logger)

	// Setup router
	router := api.NewRouter(api.Deps{
		Publisher:  gateway,
		Catalog:    cached,
		Redis:      redisStore,
		Producers:  producers,
		Consumers:  consumers,
		Partition:  filter,
		Hub:        hub,
		InstanceID: cfg.ComponentInstanceID,
		Version:    version,
		Logger:     logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting",
			"port", cfg.Port,
			"cluster_size", cfg.ClusterSize,
			"cluster_index", cfg.ClusterIndex,
			"listener_threads", cfg.ListenerThreadCount,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Stop consuming before the pool goes away; in-flight entries stay
	// pending and are reclaimed by another instance or after restart.
	if err := consumers.Close(); err != nil {
		logger.Error("failed to close consumers", "error", err)
	}
	cancel()
	pool.Stop()
	if err := producers.Close(); err != nil {
		logger.Error("failed to close producers", "error", err)
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Error("failed to flush telemetry", "error", err)
		}
	}

	logger.Info("server stopped")
}
