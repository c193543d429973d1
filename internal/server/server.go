package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ngenohkevin/hivedeck-monitor/config"
	"github.com/ngenohkevin/hivedeck-monitor/internal/logging"
	"github.com/ngenohkevin/hivedeck-monitor/internal/monitor"
)

const shutdownTimeout = 10 * time.Second

// Server represents the local dashboard HTTP server
type Server struct {
	cfg        *config.Config
	router     *gin.Engine
	handlers   *Handlers
	auth       *AuthService
	limiter    *RateLimiter
	httpServer *http.Server
}

// New creates a server over mon. Listener settings are read once; the rest
// of the configuration is read from store per request.
func New(store *config.Store, mon *monitor.Monitor) *Server {
	cfg := store.Get()

	// Set Gin mode based on log level
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	secret := cfg.Server.JWTSecret
	if secret == "" {
		// tokens then survive only until restart
		secret = uuid.NewString()
	}

	auth := NewAuthService(cfg.Server.APIKey, secret)
	s := &Server{
		cfg:      cfg,
		router:   gin.New(),
		handlers: NewHandlers(store, mon, auth),
		auth:     auth,
		limiter:  NewRateLimiter(cfg.Server.RateLimitRPS),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(RecoveryMiddleware())
	s.router.Use(LoggerMiddleware(logging.Named("http")))
	s.router.Use(CORSMiddleware(s.cfg.Server.AllowedOrigins))
	s.router.Use(RateLimitMiddleware(s.limiter))
}

func (s *Server) setupRoutes() {
	// Health check (no auth)
	s.router.GET("/health", s.handlers.HealthCheck)

	api := s.router.Group("/api")
	api.Use(AuthMiddleware(s.auth))
	{
		api.POST("/token", s.handlers.IssueToken)
		api.GET("/info", s.handlers.GetInfo)

		// Metrics
		api.GET("/snapshot", s.handlers.GetSnapshot)
		api.GET("/series", s.handlers.ListSeries)
		api.GET("/history/:series", s.handlers.GetHistory)

		// Alerts
		api.GET("/alerts", s.handlers.ListAlerts)
		api.POST("/alerts/reset", s.handlers.ResetCooldown)

		// Output
		api.GET("/status", s.handlers.GetStatus)
		api.POST("/export", s.handlers.Export)
		api.POST("/logging", s.handlers.SetLogging)

		// Settings
		api.GET("/config", s.handlers.GetConfig)
		api.PUT("/config", s.handlers.UpdateConfig)

		// Real-time
		api.GET("/events", s.handlers.StreamEvents)
		api.GET("/ws", s.handlers.StreamWebSocket)
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("server: dashboard API listening on %s", s.cfg.Addr())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("server: forced to shutdown: %v", err)
	}
	return <-errCh
}

// Router returns the Gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
