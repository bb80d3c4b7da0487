package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lorekeeper/chronicle"
	"github.com/lorekeeper/chronicle/pkg/config"
	"github.com/lorekeeper/chronicle/pkg/server/handlers"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// Server represents the HTTP server
type Server struct {
	config    *config.Config
	router    *gin.Engine
	chronicle chronicle.Chronicle
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, client chronicle.Chronicle, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    cfg,
		chronicle: client,
		logger:    logger,
	}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	// Set gin mode
	gin.SetMode(s.config.Server.Mode)

	// Create router
	s.router = gin.New()

	// Add middleware
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.router.Use(contextMiddleware())

	// Setup routes
	s.setupRoutes()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

// setupRoutes sets up all the routes
func (s *Server) setupRoutes() {
	// Create handlers
	healthHandler := handlers.NewHealthHandler(s.chronicle)
	ingestHandler := handlers.NewIngestHandler(s.chronicle, s.logger)
	timelineHandler := handlers.NewTimelineHandler(s.chronicle)
	anchorHandler := handlers.NewAnchorHandler(s.chronicle)

	// Health endpoints
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/healthcheck", healthHandler.HealthCheck) // Legacy endpoint
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/live", healthHandler.LivenessCheck) // Kubernetes liveness probe
	s.router.GET("/health/detailed", healthHandler.DetailedHealthCheck)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		// Ingest routes
		ingest := v1.Group("/ingest")
		{
			ingest.POST("", ingestHandler.Ingest)
			ingest.POST("/sync", ingestHandler.IngestSync)
			ingest.DELETE("/clear", ingestHandler.ClearTimeline)
		}

		// Timeline routes
		timeline := v1.Group("/timeline")
		{
			timeline.GET("/:user_id", timelineHandler.GetTimeline)
			timeline.GET("/:user_id/entries/:entry_id", timelineHandler.GetEntry)
			timeline.POST("/:user_id/entries/:entry_id/archive", timelineHandler.ArchiveEntry)
			timeline.POST("/:user_id/entries/:entry_id/correct", timelineHandler.CorrectEntry)
			timeline.GET("/:user_id/insights", timelineHandler.GetInsights)
		}

		// Anchor routes
		anchors := v1.Group("/anchors")
		{
			anchors.POST("/:user_id", anchorHandler.AddAnchor)
			anchors.GET("/:user_id", anchorHandler.GetAnchors)
			anchors.DELETE("/:user_id/:anchor_id", anchorHandler.DeleteAnchor)
		}
	}
}

// Start starts the server
func (s *Server) Start() error {
	s.logger.Info("starting http server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping http server")
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-User-ID, X-Session-ID, X-Request-Source")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// contextMiddleware extracts context information from headers
func contextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		userID := c.GetHeader("X-User-ID")
		if userID != "" {
			ctx = context.WithValue(ctx, types.ContextKeyUserID, userID)
		}

		sessionID := c.GetHeader("X-Session-ID")
		if sessionID != "" {
			ctx = context.WithValue(ctx, types.ContextKeySessionID, sessionID)
		}

		source := c.GetHeader("X-Request-Source")
		if source == "" {
			source = "server"
		}
		ctx = context.WithValue(ctx, types.ContextKeyRequestSource, source)

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
