package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aescanero/varflow/internal/application/orchestrator"
	"github.com/aescanero/varflow/internal/application/workers"
)

// HealthReporter reports worker pool health.
type HealthReporter interface {
	GetStatus() *workers.HealthStatus
}

// StreamHandler serves the snapshot stream of one session.
type StreamHandler interface {
	HandleSessionStream(c *gin.Context)
}

// Server represents the HTTP API server
type Server struct {
	router   *gin.Engine
	server   *http.Server
	sessions *orchestrator.Manager
	health   HealthReporter
	logger   *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Port     int
	Sessions *orchestrator.Manager
	Health   HealthReporter
	Metrics  http.Handler
	Logger   *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))
	router.Use(corsMiddleware())

	s := &Server{
		router:   router,
		sessions: cfg.Sessions,
		health:   cfg.Health,
		logger:   cfg.Logger,
	}

	metricsHandler := cfg.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	s.setupRoutes(metricsHandler)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(metricsHandler http.Handler) {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// Metrics
	s.router.GET("/metrics", gin.WrapH(metricsHandler))

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/sessions", s.handleCreateSession)
		v1.GET("/sessions", s.handleListSessions)
		v1.GET("/sessions/:id", s.handleGetSession)
		v1.PUT("/sessions/:id/variables", s.handleReconfigure)
		v1.PUT("/sessions/:id/time-range", s.handleSetTimeRange)
		v1.PUT("/sessions/:id/variables/:name", s.handleSetValue)
		v1.DELETE("/sessions/:id", s.handleCloseSession)
	}
}

// SetupWebSocket adds the snapshot stream endpoint
func (s *Server) SetupWebSocket(handler StreamHandler) {
	s.router.GET("/api/v1/sessions/:id/ws", handler.HandleSessionStream)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// requestLogger is a middleware for request logging
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
