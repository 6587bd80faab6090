package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dispatchlab/notification-service/internal/config"
	"github.com/dispatchlab/notification-service/internal/dispatch"
	"github.com/dispatchlab/notification-service/internal/domain"
	"github.com/dispatchlab/notification-service/internal/handler"
	"github.com/dispatchlab/notification-service/internal/middleware"
	"github.com/dispatchlab/notification-service/internal/provider"
	"github.com/dispatchlab/notification-service/internal/queue/kafka"
	"github.com/dispatchlab/notification-service/internal/repository/postgres"
	"github.com/dispatchlab/notification-service/internal/repository/redis"
	"github.com/dispatchlab/notification-service/internal/retry"
	"github.com/dispatchlab/notification-service/internal/service"
	"github.com/dispatchlab/notification-service/internal/worker"
)

// @title Notification Dispatch Service API
// @version 1.0
// @description Multi-channel notification dispatch service

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logLevel := slog.LevelInfo
	if cfg.App.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting notification service",
		"env", cfg.App.Env,
		"port", cfg.Server.Port,
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	db, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	if err := postgres.Migrate(cfg.Database.URL); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// Initialize Redis
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// Initialize repositories
	notificationRepo := postgres.NewNotificationRepository(db)
	templateRepo := postgres.NewTemplateRepository(db)
	userRepo := postgres.NewUserRepository(db)

	rateLimiter := redis.NewRateLimiter(redisClient, cfg.RateLimit, logger)
	idempotencyGate := redis.NewIdempotencyGate(redisClient, cfg.Dedup, logger)

	// Initialize Kafka publisher
	publisher := kafka.NewPublisher(cfg.Kafka.Brokers, logger)
	defer publisher.Close()

	// Initialize services
	templateService := service.NewTemplateService(templateRepo, logger)
	notificationService := service.NewNotificationService(
		notificationRepo, userRepo, templateRepo,
		publisher, rateLimiter, idempotencyGate,
		cfg.Retry, logger,
	)
	sweeper := service.NewSweeperService(notificationRepo, publisher, cfg.Sweeper, logger)

	// Initialize WebSocket hub; its loop starts once the metrics gauge is
	// attached below
	wsHub := handler.NewWebSocketHub(logger)

	statusBroadcast := func(n *domain.Notification) {
		wsHub.BroadcastStatus(n)
	}
	notificationService.SetStatusBroadcast(statusBroadcast)

	// Initialize channel handlers
	dispatcher := dispatch.NewDispatcher()
	handlers := []domain.ChannelHandler{
		dispatch.NewEmailHandler(provider.NewHTTPVendor(cfg.Handlers.URLs["email"], cfg.Handlers.TimeoutFor("email"))),
		dispatch.NewSMSHandler(provider.NewHTTPVendor(cfg.Handlers.URLs["sms"], cfg.Handlers.TimeoutFor("sms"))),
		dispatch.NewPushHandler(provider.NewHTTPVendor(cfg.Handlers.URLs["push"], cfg.Handlers.TimeoutFor("push"))),
		dispatch.NewInAppHandler(wsHub),
	}
	for _, h := range handlers {
		if err := dispatcher.Register(h); err != nil {
			logger.Error("failed to register channel handler", "error", err)
			os.Exit(1)
		}
	}

	// Initialize metrics
	metrics := handler.NewMetrics()
	metricsHandler := handler.NewMetricsHandler()
	wsHub.SetConnectionGauge(func(n int) { metrics.SetWebsocketConnections(float64(n)) })
	go wsHub.Run()

	// Initialize consumer pools, one per channel
	policy := retry.NewPolicy(cfg.Retry)
	pools := make([]*worker.Pool, 0, len(domain.Channels))
	for _, ch := range domain.Channels {
		channelHandler, ok := dispatcher.HandlerFor(ch)
		if !ok {
			logger.Error("no handler for channel", "channel", ch)
			os.Exit(1)
		}

		channel := ch
		pool := worker.NewPool(
			channel,
			channelHandler,
			notificationRepo,
			userRepo,
			policy,
			func() worker.Source { return kafka.NewReader(cfg.Kafka.Brokers, channel) },
			worker.PoolConfig{
				Workers:        cfg.Consumers.WorkersFor(string(channel)),
				HandlerTimeout: cfg.Handlers.TimeoutFor(string(channel)),
				DrainDeadline:  cfg.Consumers.DrainDeadline,
			},
			metrics.WorkerHooks(),
			logger,
		)
		pool.SetStatusBroadcast(statusBroadcast)
		pools = append(pools, pool)
	}

	// Initialize handlers
	notificationHandler := handler.NewNotificationHandler(notificationService, metrics)
	templateHandler := handler.NewTemplateHandler(templateService)
	userHandler := handler.NewUserHandler(userRepo)
	healthHandler := handler.NewHealthHandler()
	healthHandler.AddChecker("postgres", db)
	healthHandler.AddChecker("redis", redisClient)

	wsHandler := handler.NewWebSocketHandler(wsHub)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Correlation)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics(metrics))
	r.Use(chimiddleware.Compress(5))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/health/detailed", healthHandler.Detailed)
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)

	// Metrics endpoint
	r.Handle("/metrics", metricsHandler.Handler())

	// WebSocket endpoint
	r.Get("/ws", wsHandler.HandleWebSocket)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/notifications", func(r chi.Router) {
			notificationHandler.RegisterRoutes(r)
		})

		r.Route("/templates", func(r chi.Router) {
			templateHandler.RegisterRoutes(r)
		})

		r.Route("/users", func(r chi.Router) {
			userHandler.RegisterRoutes(r)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start consumer pools
	for _, pool := range pools {
		if err := pool.Start(ctx); err != nil {
			logger.Error("failed to start consumer pool", "error", err)
			os.Exit(1)
		}
	}

	// Start sweeper
	if err := sweeper.Start(ctx); err != nil {
		logger.Error("failed to start sweeper", "error", err)
		os.Exit(1)
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new requests
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Stop sweeper first so nothing new is re-published
	sweeper.Stop()

	// Stop consumer pools (waits for in-flight attempts)
	for _, pool := range pools {
		pool.Stop()
	}

	// Cancel context
	cancel()

	logger.Info("server stopped")
}
