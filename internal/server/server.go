package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tb-api-sdk/gateway/internal/bulk"
	"github.com/tb-api-sdk/gateway/internal/config"
	"github.com/tb-api-sdk/gateway/internal/handler"
	"github.com/tb-api-sdk/gateway/internal/middleware"
	"github.com/tb-api-sdk/gateway/internal/ratelimit"
	"github.com/tb-api-sdk/gateway/internal/repository"
	"github.com/tb-api-sdk/gateway/internal/service"
	"github.com/tb-api-sdk/gateway/internal/storage"
	"github.com/tb-api-sdk/gateway/internal/thingsboard"
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	redis      *storage.RedisClient
	postgres   *storage.Postgres
	limiter    ratelimit.Limiter
	httpServer *http.Server

	apiKeyService    *service.APIKeyService
	authService      *service.AuthService
	analyticsService *service.AnalyticsService

	telemetryHandler *handler.TelemetryHandler
	deviceHandler    *handler.DeviceHandler
	apiKeyHandler    *handler.APIKeyHandler
	authHandler      *handler.AuthHandler
	analyticsHandler *handler.AnalyticsHandler
}

// New wires the gateway. The redis and postgres clients are optional;
// without postgres the admin surface is not registered and API keys
// fall back to the static key from config.
func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres, tb *thingsboard.Client, limiter ratelimit.Limiter) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	orchestrator := bulk.New(tb, cfg.Bulk.Workers, cfg.Bulk.TargetTimeout, cfg.Server.Debug)

	s := &Server{
		router:           router,
		config:           cfg,
		redis:            redis,
		postgres:         postgres,
		limiter:          limiter,
		telemetryHandler: handler.NewTelemetryHandler(tb, orchestrator, cfg.Server.Debug),
		deviceHandler:    handler.NewDeviceHandler(tb, cfg.Server.Debug),
	}

	if postgres != nil {
		apiKeyRepo := repository.NewAPIKeyRepository(postgres)
		userRepo := repository.NewUserRepository(postgres)
		logRepo := repository.NewRequestLogRepository(postgres)

		s.apiKeyService = service.NewAPIKeyService(apiKeyRepo, redis)
		s.authService = service.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.JWTExpiryHours)
		s.analyticsService = service.NewAnalyticsService(logRepo)

		s.apiKeyHandler = handler.NewAPIKeyHandler(s.apiKeyService, cfg.Server.Debug)
		s.authHandler = handler.NewAuthHandler(s.authService)
		s.analyticsHandler = handler.NewAnalyticsHandler(s.analyticsService, cfg.Server.Debug)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS(s.config.Server.CORSOrigins))

	// Installed before auth and rate limiting so rejected requests still
	// land in the analytics log.
	if s.postgres != nil {
		middleware.InitRequestLogger(s.postgres, 1000)
		s.router.Use(middleware.RequestLogger())
	}

	s.router.Use(middleware.APIKeyValidator(s.apiKeyService, s.config.Auth.APIKey))
	s.router.Use(middleware.RateLimit(s.limiter, s.config.RateLimit.Window))
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.root)
	s.router.GET("/api/v1/health", s.healthCheck)

	tb := s.router.Group("/api/v1/tb")
	{
		tb.GET("/devices", s.deviceHandler.List)
		tb.POST("/devices/:device_id/telemetry", s.telemetryHandler.Upload)
		tb.GET("/devices/:device_id/keys", s.deviceHandler.TelemetryKeys)
		tb.GET("/devices/:device_id/telemetry/latest", s.deviceHandler.LatestTelemetry)
		tb.POST("/devices/:device_id/attributes/server", s.telemetryHandler.UploadServerAttributes)
		tb.POST("/devices/:device_id/attributes/shared", s.telemetryHandler.UploadSharedAttributes)
		tb.POST("/telemetry/bulk", s.telemetryHandler.BulkUpload)
	}

	if s.authHandler != nil {
		s.router.POST("/auth/login", s.authHandler.Login)

		admin := s.router.Group("/admin")
		admin.Use(middleware.RequireAuth(s.authService))
		{
			admin.POST("/users", s.authHandler.Register)
			admin.POST("/keys", s.apiKeyHandler.Create)
			admin.GET("/keys", s.apiKeyHandler.List)
			admin.GET("/keys/:id", s.apiKeyHandler.Get)
			admin.PATCH("/keys/:id", s.apiKeyHandler.Update)
			admin.DELETE("/keys/:id", s.apiKeyHandler.Delete)
			admin.GET("/analytics/summary", s.analyticsHandler.Summary)
			admin.GET("/analytics/logs", s.analyticsHandler.Logs)
			admin.DELETE("/analytics/logs", s.analyticsHandler.Cleanup)
		}
	}
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "tb-gateway",
		"version": "1.0.0",
		"docs":    "/api/v1/tb",
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	status := "healthy"
	statusCode := http.StatusOK
	checks := gin.H{}

	if s.redis != nil {
		healthy := true
		if err := s.redis.Healthy(ctx); err != nil {
			healthy = false
			log.Printf("Redis health check failed: %v", err)
		}
		checks["redis"] = healthy
		if !healthy {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}

	if s.postgres != nil {
		healthy := true
		if err := s.postgres.Ping(ctx); err != nil {
			healthy = false
			log.Printf("Database health check failed: %v", err)
		}
		checks["database"] = healthy
		if !healthy {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "tb-gateway",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting gateway on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
