package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/PADAS/gundi-integration-inreach/internal/actions"
	"github.com/PADAS/gundi-integration-inreach/internal/activity"
	"github.com/PADAS/gundi-integration-inreach/internal/config"
	"github.com/PADAS/gundi-integration-inreach/internal/dispatcher"
	"github.com/PADAS/gundi-integration-inreach/internal/gundi"
	"github.com/PADAS/gundi-integration-inreach/internal/kafka/consumer"
	"github.com/PADAS/gundi-integration-inreach/internal/kafka/producer"
	"github.com/PADAS/gundi-integration-inreach/internal/logger"
	"github.com/PADAS/gundi-integration-inreach/internal/server"
	"github.com/PADAS/gundi-integration-inreach/internal/webhooks"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := *baseLogger

	store, err := gundi.LoadMemoryStore(cfg.Integrations.FilePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load integration records")
	}

	prod, err := producer.New(cfg.Kafka.Brokers, log.With().Str("component", "kafka-producer").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka producer")
	}
	defer func() {
		if err := prod.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	cons, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, log.With().Str("component", "kafka-consumer").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka consumer")
	}
	defer func() {
		if err := cons.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka consumer")
		}
	}()

	sender := gundi.NewKafkaSender(prod, cfg.Topics.Observations, cfg.Topics.Messages, log.With().Str("component", "gundi-sender").Logger())
	if sender == nil {
		log.Fatal().Msg("failed to create gundi sender")
	}

	recorder := activity.NewLogger(prod, cfg.Topics.Activity, log.With().Str("component", "activity").Logger())

	handlers, err := actions.NewHandlers(
		cfg.InReach.APIURL,
		recorder,
		log.With().Str("component", "actions").Logger(),
		actions.WithTimeouts(
			time.Duration(cfg.InReach.ConnectTimeoutSeconds)*time.Second,
			time.Duration(cfg.InReach.DataTimeoutSeconds)*time.Second,
		),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise action handlers")
	}

	dlq := dispatcher.NewKafkaDLQ(prod, cfg.Topics.PushDLQ, log.With().Str("component", "push-dlq").Logger())
	if dlq == nil {
		log.Fatal().Msg("failed to create push DLQ publisher")
	}

	disp, err := dispatcher.New(dispatcher.Config{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		BaseBackoff: time.Duration(cfg.Dispatch.BaseBackoffSeconds) * time.Second,
		MaxBackoff:  time.Duration(cfg.Dispatch.MaxBackoffSeconds) * time.Second,
		Concurrency: cfg.Dispatch.Concurrency,
	}, dispatcher.Dependencies{
		Store:  store,
		Pusher: handlers,
		DLQ:    dlq,
		Logger: log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise push dispatcher")
	}

	webhookHandler, err := webhooks.NewHandler(sender, log.With().Str("component", "webhooks").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise webhook handler")
	}

	srv, err := server.New(store, webhookHandler, handlers, log.With().Str("component", "http").Logger(),
		server.WithReadinessChecks(map[string]func() bool{
			"kafka_producer": prod.IsReady,
			"kafka_consumer": cons.IsReady,
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise http server")
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		if err := cons.Consume(ctx, cfg.Topics.PushRequests, dispatcher.KafkaHandler(disp, cons)); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info().
		Int("port", cfg.App.Port).
		Str("push_request_topic", cfg.Topics.PushRequests).
		Bool("tracing_enabled", cfg.TracingEnabled).
		Msg("inreach connector started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("connector terminated with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
}

func fail(stage string, err error) {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	log.Fatal().Err(err).Str("stage", stage).Msg("inreach connector init failed")
}
