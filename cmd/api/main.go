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

	"event-dispatcher/config"
	httpHandler "event-dispatcher/internal/adapter/http/handler"
	"event-dispatcher/internal/adapter/http/middleware"
	"event-dispatcher/internal/adapter/metrics"
	pgStorage "event-dispatcher/internal/adapter/storage/postgres"
	redisStorage "event-dispatcher/internal/adapter/storage/redis"
	"event-dispatcher/internal/adapter/transport"
	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports"
	"event-dispatcher/internal/service"
	"event-dispatcher/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("EVD_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Bool("database", cfg.Database.Enabled).
		Bool("redis", cfg.Redis.Enabled).
		Msg("Starting Event Dispatcher")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Persistence is optional; interface-typed so a disabled store stays nil.
	var (
		encSvc         ports.EncryptionService
		targetRepo     ports.TargetRepository
		secretRepo     ports.SecretRepository
		deliveryRepo   ports.DeliveryLogRepository
		auditRepo      ports.AuditRepository
		healthCheckers []ports.HealthChecker
	)

	if cfg.Database.Enabled {
		aes, err := service.NewAESEncryptionService(cfg.AES.Key)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize encryption service")
		}
		encSvc = aes

		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		if err := pgStorage.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply database schema")
		}
		log.Info().Msg("PostgreSQL connected")

		targetRepo = pgStorage.NewTargetRepo(pool, encSvc)
		secretRepo = pgStorage.NewSecretRepo(pool)
		deliveryRepo = pgStorage.NewDeliveryLogRepo(pool)
		auditRepo = pgStorage.NewAuditRepo(pool)
		healthCheckers = append(healthCheckers, pgStorage.NewHealthCheck(pool))
	}

	var (
		windowStore ports.WindowStore
		idemCache   ports.IdempotencyCache
	)
	localWindows := service.NewWindowLimiter()
	windowStore = localWindows

	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		keys := redisStorage.Keyspace(cfg.Redis.Prefix)
		idemCache = redisStorage.NewIdempotencyCache(rdb, keys)
		if cfg.Dispatcher.SharedRateLimit {
			windowStore = redisStorage.NewWindowStore(rdb, keys)
		}
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
	}

	// Core services
	notifier := service.NewNotifier()
	stats := service.NewStatsTracker()
	limiter := service.NewTargetRateLimiter(windowStore)
	signer := service.NewHMACSigner(secretRepo, encSvc, log)
	registry := service.NewRegistry(targetRepo, signer, limiter, stats, notifier, log)

	if err := registry.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load targets")
	}

	dispatcher := service.NewDispatcher(
		registry,
		limiter,
		signer,
		stats,
		transport.NewHTTPTransport(transport.NewHTTPClient(cfg.Dispatcher.RequestTimeout)),
		notifier,
		service.DispatcherOptions{
			RequestTimeout: cfg.Dispatcher.RequestTimeout,
			MaxConcurrency: cfg.Dispatcher.MaxConcurrency,
			AsyncWorkers:   cfg.Dispatcher.AsyncWorkers,
			AsyncQueueSize: cfg.Dispatcher.AsyncQueueSize,
			UserAgent:      cfg.Dispatcher.UserAgent,
		},
		log,
	)

	authSvc := service.NewAuthService(cfg.Operator.ClientID, cfg.Operator.SecretHash, hashSvc, tokenSvc)
	if cfg.Operator.ClientID == "" {
		log.Warn().Msg("operator.client_id not set, admin API will reject every token request")
	}
	auditSvc := service.NewAuditService(auditRepo, log)
	deliverySvc := service.NewDeliveryLogService(deliveryRepo, log)

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(promRegistry, metrics.Sources{
		Targets: func() int { return len(registry.List(domain.TargetFilter{})) },
		Dropped: notifier.Dropped,
	})

	// Notification subscribers
	buffer := cfg.Dispatcher.NotificationBuffer
	go deliverySvc.Run(ctx, subscribe(notifier, buffer))
	go m.Run(ctx, subscribe(notifier, buffer))

	// Housekeeping
	retention, err := service.NewRetentionJob(cfg.Retention.Schedule, cfg.Retention.DeliveryLogs, deliverySvc, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule retention job")
	}
	if err := retention.Schedule("@every 1m", "window sweep", func() {
		if n := localWindows.Sweep(time.Now()); n > 0 {
			log.Debug().Int("windows", n).Msg("expired rate limit windows swept")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule window sweep")
	}
	retention.Start()

	// Ingress rate limiting
	var ingressStore ports.WindowStore
	rules := middleware.DefaultRateLimitRules()
	if cfg.Server.RateLimit > 0 {
		ingressStore = windowStore
		rules["events"] = middleware.RateLimitRule{Limit: cfg.Server.RateLimit, Window: cfg.Server.RateWindow}
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:            authSvc,
		TokenSvc:           tokenSvc,
		Registry:           registry,
		Stats:              stats,
		Deliveries:         deliverySvc,
		Dispatcher:         dispatcher,
		Notifier:           notifier,
		NotificationBuffer: buffer,
		Idempotency:        idemCache,
		IdempotencyTTL:     cfg.Dispatcher.IdempotencyTTL,
		RateLimitStore:     ingressStore,
		RateLimitRules:     rules,
		HealthCheckers:     healthCheckers,
		AuditSvc:           auditSvc,
		Metrics:            m,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		Logger:             log,
	})

	// HTTP Server with graceful shutdown
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Async deliveries abandoned")
	}
	retention.Stop(shutdownCtx)
	notifier.Close()
	auditSvc.Wait()
	stop()

	log.Info().Msg("Server exited")
}

func subscribe(n *service.Notifier, buffer int) <-chan domain.Notification {
	ch, _ := n.Subscribe(buffer)
	return ch
}
