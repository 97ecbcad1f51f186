package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/ngenohkevin/fwcheck-agent/config"
)

const shutdownTimeout = 10 * time.Second

// Dependencies are the domain components the API serves
type Dependencies struct {
	Tracker   Tracker
	Rules     RuleMatcher
	Processes ProcessReader
	// HostInfo defaults to system.GetHostInfo
	HostInfo HostInfoFunc
}

// Server represents the HTTP server
type Server struct {
	cfg           *config.Config
	router        *gin.Engine
	handlers      *Handlers
	setupHandlers *SetupHandlers
	auth          *AuthService
	limiter       *RateLimiter
	tracker       Tracker
	httpServer    *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, deps Dependencies) *Server {
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	auth := NewAuthService(cfg.APIKey, cfg.JWTSecret)

	s := &Server{
		cfg:           cfg,
		router:        router,
		handlers:      NewHandlers(cfg, auth, deps),
		setupHandlers: NewSetupHandlers(cfg),
		auth:          auth,
		limiter:       NewRateLimiter(cfg.RateLimitRPS),
		tracker:       deps.Tracker,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(RecoveryMiddleware())
	s.router.Use(LoggerMiddleware())
	s.router.Use(CORSMiddleware(s.cfg.AllowedOrigins))
	s.router.Use(RateLimitMiddleware(s.limiter))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)

	// no auth until a key exists
	if s.cfg.SetupMode {
		setup := s.router.Group("/setup")
		{
			setup.POST("/generate", s.setupHandlers.GenerateKey)
			setup.POST("/save", s.setupHandlers.SaveKey)
		}
	}

	api := s.router.Group("/api")
	api.Use(AuthMiddleware(s.auth))
	{
		api.GET("/info", s.handlers.GetInfo)

		// Tracked processes
		api.GET("/processes", s.handlers.ListProcesses)
		api.GET("/processes/:name", s.handlers.GetProcess)
		api.GET("/processes/:name/rules", s.handlers.GetProcessRules)
		api.GET("/pids/:pid", s.handlers.GetPID)

		// Reconciliation
		api.POST("/refresh", s.handlers.Refresh)
		api.GET("/refresh/status", s.handlers.RefreshStatus)
		api.PUT("/refresh/auto", s.handlers.SetAutoRefresh)

		// Firewall rules
		api.GET("/rules", s.handlers.ListRules)
		api.GET("/rules/match", s.handlers.MatchRules)

		api.GET("/events", s.handlers.StreamEvents)

		api.POST("/token", s.handlers.IssueToken)

		api.GET("/settings", s.setupHandlers.GetSettings)
		api.POST("/settings/generate-key", s.setupHandlers.GenerateKey)
		api.POST("/settings/api-key", s.setupHandlers.SaveKey)
	}
}

// Run serves HTTP until ctx is done, then stops the tracker and drains connections
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.cfg.Addr()).Info("Starting fwcheck agent")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.tracker.Shutdown()
		s.handlers.Close()
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	// ends event streams so Shutdown does not wait on them
	s.tracker.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Server forced to shutdown")
	}

	s.handlers.Close()

	log.Info("Server stopped")
	return nil
}

// Router returns the Gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
