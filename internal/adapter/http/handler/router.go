package handler

import (
	"time"

	"event-dispatcher/internal/adapter/http/middleware"
	"event-dispatcher/internal/adapter/metrics"
	"event-dispatcher/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc            ports.AuthService
	TokenSvc           ports.TokenService
	Registry           ports.Registry
	Stats              ports.StatsTracker
	Deliveries         ports.DeliveryLogService
	Dispatcher         ports.Dispatcher
	Notifier           ports.Notifier
	NotificationBuffer int
	Idempotency        ports.IdempotencyCache // nil = Idempotency-Key ignored
	IdempotencyTTL     time.Duration
	RateLimitStore     ports.WindowStore // nil = ingress rate limiting disabled
	RateLimitRules     map[string]middleware.RateLimitRule
	HealthCheckers     []ports.HealthChecker
	AuditSvc           ports.AuditService // nil = audit logging disabled
	Metrics            *metrics.Metrics   // nil = no /metrics endpoint
	MaxBodyBytes       int64
	Logger             zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.GinMiddleware())
	}
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB request body limit
	}
	r.Use(middleware.MaxBodySize(maxBody))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (pings PostgreSQL and Redis when enabled)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	rules := deps.RateLimitRules
	if rules == nil {
		rules = middleware.DefaultRateLimitRules()
	}

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	v1.POST("/auth/token", rl("auth_token"), authHandler.IssueToken)

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	targetHandler := NewTargetHandler(deps.Registry, deps.Stats, deps.Deliveries)
	targets := v1.Group("/targets", jwtAuth, rl("admin"))
	{
		targets.POST("", targetHandler.Create)
		targets.GET("", targetHandler.List)
		targets.GET("/:id", targetHandler.Get)
		targets.PATCH("/:id", targetHandler.Update)
		targets.DELETE("/:id", targetHandler.Delete)
		targets.POST("/:id/rotate-secret", targetHandler.RotateSecret)
		targets.GET("/:id/stats", targetHandler.Stats)
		targets.GET("/:id/deliveries", targetHandler.Deliveries)
	}

	eventHandler := NewEventHandler(deps.Dispatcher, deps.Idempotency, deps.IdempotencyTTL, deps.Logger)
	events := v1.Group("/events", jwtAuth, rl("events"))
	{
		events.POST("", eventHandler.Trigger)
		events.POST("/async", eventHandler.TriggerAsync)
	}

	notificationHandler := NewNotificationHandler(deps.Notifier, deps.NotificationBuffer)
	v1.GET("/notifications/stream", jwtAuth, notificationHandler.Stream)

	return r
}
