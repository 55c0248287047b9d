package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jochuuuu/reldb/internal/engine"
	"github.com/jochuuuu/reldb/internal/logging"
	"github.com/jochuuuu/reldb/internal/ratelimit"
	"github.com/jochuuuu/reldb/pkg/config"
)

// Server is the REST API fronting an Engine: one SQL batch endpoint, a
// health check, and a rate-limiter metrics snapshot.
type Server struct {
	router     *gin.Engine
	engine     *engine.Engine
	config     *config.Config
	limiter    *ratelimit.Limiter
	httpServer *http.Server
	log        *logging.Logger
}

// NewServer creates a new REST API server wrapping eng.
func NewServer(eng *engine.Engine, cfg *config.Config) *Server {
	log := logging.GetLogger("api")
	log.Info("initializing REST API server")

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.RestAPI.CORSOrigins) > 0 && cfg.RestAPI.CORSOrigins[0] != "*" {
		corsConfig.AllowOrigins = cfg.RestAPI.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = ratelimit.NewLimiter(&ratelimit.Config{
			Enabled:           true,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		})
	}

	router.Use(MaxBodySizeMiddleware(DefaultBodyLimit))

	server := &Server{
		router:  router,
		engine:  eng,
		config:  cfg,
		limiter: limiter,
		log:     log,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.GET("/v1/healthz", s.healthz)

	v1 := s.router.Group("/v1")
	if s.limiter != nil {
		v1.Use(RateLimitMiddleware(s.limiter))
	}
	{
		v1.POST("/sql", s.executeSQL)
		v1.GET("/metrics", s.metricsHandler)
	}
}

// Start starts the HTTP server and blocks until it exits or errors.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.RestAPI.Host, s.config.RestAPI.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	s.log.Info("starting REST API server", "address", addr)
	return s.httpServer.ListenAndServe()
}

// StartWithContext starts the HTTP server and blocks until ctx is cancelled
// or the server encounters an error, then shuts down gracefully.
func (s *Server) StartWithContext(ctx context.Context, shutdownTimeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", s.config.RestAPI.Host, s.config.RestAPI.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("starting REST API server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping REST API server")
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("server shutdown error", "error", err)
			return err
		}
		s.log.Info("REST API server stopped")
	}
	return nil
}

// Router returns the underlying Gin router, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
