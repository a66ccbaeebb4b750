// Package api exposes the risk engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/celltx-risk-engine/internal/accrual"
	"github.com/celltx-risk-engine/internal/bayes"
	"github.com/celltx-risk-engine/internal/cache"
	"github.com/celltx-risk-engine/internal/domain"
	"github.com/celltx-risk-engine/internal/ensemble"
	"github.com/celltx-risk-engine/internal/middleware"
	"github.com/celltx-risk-engine/internal/mitigation"
)

// EngineVersion stamps responses and cache keys; bump on any change to a
// formula, threshold, or aggregation rule.
const EngineVersion = "1.0.0"

// Server represents the HTTP server
type Server struct {
	config *domain.Config
	logger *logrus.Logger
	router *gin.Engine
	server *http.Server

	orchestrator *ensemble.Orchestrator
	engine       *bayes.Engine
	conditions   *bayes.ConditionRegistry
	store        accrual.Store
	combiner     *mitigation.Combiner
	results      *cache.TieredCache
}

// Deps are the assembled components the server serves.
type Deps struct {
	Orchestrator *ensemble.Orchestrator
	Engine       *bayes.Engine
	Conditions   *bayes.ConditionRegistry
	Store        accrual.Store
	Combiner     *mitigation.Combiner
	Results      *cache.TieredCache
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, logger *logrus.Logger, deps Deps) *Server {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())
	router.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))

	server := &Server{
		config:       cfg,
		logger:       logger,
		router:       router,
		orchestrator: deps.Orchestrator,
		engine:       deps.Engine,
		conditions:   deps.Conditions,
		store:        deps.Store,
		combiner:     deps.Combiner,
		results:      deps.Results,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/score", s.handleScore)
		v1.GET("/conditions", s.handleListConditions)
		v1.POST("/conditions/:id/accrue", s.handleAccrue)
		v1.GET("/conditions/:id/history", s.handleHistory)
		v1.GET("/conditions/:id/monitor", s.handleMonitor)
		v1.GET("/conditions/:id/sensitivity", s.handleSensitivity)
		v1.POST("/mitigation/project", s.handleMitigationProject)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	storeStatus := "ok"
	if err := s.store.Ping(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		storeStatus = err.Error()
	}

	c.JSON(status, gin.H{
		"status":    map[bool]string{true: "healthy", false: "degraded"}[status == http.StatusOK],
		"store":     storeStatus,
		"timestamp": time.Now().UTC(),
		"version":   EngineVersion,
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
