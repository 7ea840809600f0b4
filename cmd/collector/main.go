package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pushlens/pushlens/internal/api"
	"github.com/pushlens/pushlens/internal/broadcast"
	"github.com/pushlens/pushlens/internal/circuitbreaker"
	"github.com/pushlens/pushlens/internal/config"
	"github.com/pushlens/pushlens/internal/dispatch"
	"github.com/pushlens/pushlens/internal/metrics"
	"github.com/pushlens/pushlens/internal/normalize"
	"github.com/pushlens/pushlens/internal/observ"
	"github.com/pushlens/pushlens/internal/redis"
	"github.com/pushlens/pushlens/internal/registry"
	"github.com/pushlens/pushlens/internal/router"
	"github.com/pushlens/pushlens/internal/sns"
	"github.com/pushlens/pushlens/internal/sqs"
	"github.com/pushlens/pushlens/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting pushlens collector",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()

	// Initialize Redis for persistence, dedup, pub/sub and rate limiting.
	// The collector stays usable without it: state is then memory-only.
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, running with in-memory state only",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
		redisClient = nil
	}

	var kv store.KV
	var deduper *redis.Deduper
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		kv = redisClient
		deduper = redis.NewDeduper(redisClient, redis.DedupTTL, logger)
		if cfg.RateLimitEnabled {
			rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
				Limit:  cfg.RateLimit,
				Window: time.Duration(cfg.RateLimitWindow) * time.Second,
			})
		}
		defer redisClient.Close()
	}

	// Change broadcaster: redis pub/sub, optionally mirrored to SNS.
	var mirror broadcast.Mirror
	if cfg.SNSTopicARN != "" {
		m, err := sns.New(ctx, sns.Config{
			Region:   cfg.SNSRegion,
			TopicARN: cfg.SNSTopicARN,
		}, logger)
		if err != nil {
			logger.Warn("sns unavailable, change mirror disabled", zap.Error(err))
		} else {
			mirror = m
		}
	}

	var publisher broadcast.Publisher
	if redisClient != nil {
		publisher = redisClient
	}
	broadcaster := broadcast.New(publisher, mirror, logger)

	// Message store and subscription registry, hydrated from redis.
	messageStore := store.New(kv, broadcaster, cfg.MaxMessages, logger)
	if err := messageStore.Load(ctx); err != nil {
		logger.Warn("failed to load message history, starting empty", zap.Error(err))
	}

	subRegistry := registry.New(kv, logger)
	if err := subRegistry.Load(ctx); err != nil {
		logger.Warn("failed to load subscriptions, starting empty", zap.Error(err))
	}

	logger.Info("state hydrated",
		zap.Int("messages", messageStore.Count()),
		zap.Int("subscriptions", subRegistry.Count()),
	)

	// Display path: webhook agent if configured, log sink otherwise. Either
	// way the sender sits behind a circuit breaker.
	var sender dispatch.Sender
	if cfg.DisplayWebhookURL != "" {
		sender = dispatch.NewWebhookSender(dispatch.WebhookConfig{
			URL:     cfg.DisplayWebhookURL,
			Timeout: time.Duration(cfg.WebhookTimeout) * time.Second,
		}, logger)
	} else {
		logger.Info("no display webhook configured, notifications will be logged")
		sender = dispatch.NewLogSender(logger)
	}

	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("display"), logger)
	sender = circuitbreaker.NewProtectedSender(sender, breaker, logger)

	// Event router
	defaults := normalize.StandardDefaults(cfg.DefaultTargetURL)
	eventRouter := router.New(
		normalize.New(defaults),
		defaults,
		messageStore,
		subRegistry,
		sender,
		logger,
	)

	// Retention: prune at startup and on the cron schedule.
	if pruned := messageStore.PruneOlderThan(ctx, cfg.RetentionDays); pruned > 0 {
		logger.Info("startup prune complete", zap.Int("pruned", pruned))
	}

	pruneCron := cron.New()
	if _, err := pruneCron.AddFunc(cfg.PruneSchedule, func() {
		if pruned := messageStore.PruneOlderThan(context.Background(), cfg.RetentionDays); pruned > 0 {
			logger.Info("scheduled prune complete", zap.Int("pruned", pruned))
		}
	}); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", cfg.PruneSchedule, err)
	}
	pruneCron.Start()
	defer pruneCron.Stop()

	// SQS ingestion transport, when a queue is configured.
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	if cfg.SQSQueueURL != "" {
		consumer, err := sqs.NewConsumer(ctx, sqs.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSQueueURL,
		}, eventRouter, logger)
		if err != nil {
			logger.Warn("sqs consumer unavailable, queue ingestion disabled", zap.Error(err))
		} else {
			go consumer.Run(consumerCtx)
			logger.Info("sqs ingestion started", zap.String("queue_url", cfg.SQSQueueURL))
		}
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(api.RequestLogger(logger))

	// API routes
	var handler *api.Handler
	if deduper != nil {
		handler = api.NewHandlerWithDedup(logger, eventRouter, deduper)
	} else {
		handler = api.NewHandler(logger, eventRouter)
	}

	r.Route("/v1", func(r chi.Router) {
		// Ingestion is unlimited; the control surface is rate limited.
		r.Post("/push", handler.IngestPush)

		r.Group(func(r chi.Router) {
			r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.IPKeyFunc))

			r.Post("/test", handler.TriggerTest)
			r.Post("/events", handler.HandleEvent)

			r.Get("/messages", handler.ListMessages)
			r.Delete("/messages", handler.ClearMessages)
			r.Delete("/messages/{id}", handler.DeleteMessage)

			r.Get("/stats", handler.GetStats)

			r.Get("/subscriptions", handler.ListSubscriptions)
			r.Delete("/subscriptions", handler.DeleteSubscription)
		})
	})

	// Health check
	r.Get("/health", handler.Health)

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		consumerCancel()

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
