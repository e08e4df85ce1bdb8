// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/p2pescrow/internal/auth"
	"github.com/mbd888/p2pescrow/internal/config"
	"github.com/mbd888/p2pescrow/internal/dispute"
	"github.com/mbd888/p2pescrow/internal/health"
	"github.com/mbd888/p2pescrow/internal/ledger"
	"github.com/mbd888/p2pescrow/internal/logging"
	"github.com/mbd888/p2pescrow/internal/metrics"
	"github.com/mbd888/p2pescrow/internal/offer"
	"github.com/mbd888/p2pescrow/internal/ratelimit"
	"github.com/mbd888/p2pescrow/internal/reconciliation"
	"github.com/mbd888/p2pescrow/internal/security"
	"github.com/mbd888/p2pescrow/internal/store"
	"github.com/mbd888/p2pescrow/internal/traces"
	"github.com/mbd888/p2pescrow/internal/trade"
	"github.com/mbd888/p2pescrow/internal/validation"
)

const (
	serviceName = "p2pescrow"
	version     = "0.1.0"
)

// Backend is everything the services need from storage. Both the in-memory
// and Postgres stores satisfy it.
type Backend interface {
	ledger.Store
	offer.Store
	trade.Store
	reconciliation.Store
}

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg       *config.Config
	backend   Backend
	pgStore   *store.PostgresStore // nil if using in-memory
	db        *sql.DB
	ledger    *ledger.Ledger
	offers    *offer.Service
	trades    *trade.Service
	resolver  *dispute.Resolver
	reconcile *reconciliation.Runner

	expiryTimer    *trade.Timer
	reconcileTimer *reconciliation.Timer
	rateLimiter    *ratelimit.Limiter
	health         *health.Registry

	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	drainDelay    time.Duration
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run
	shutdownTrace func(context.Context) error
	stopOnce      sync.Once

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBackend sets the storage backend (for testing)
func WithBackend(b Backend) Option {
	return func(s *Server) {
		s.backend = b
	}
}

// WithDrainDelay sets how long Shutdown waits before closing listeners.
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		drainDelay: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if s.backend == nil {
		if cfg.DatabaseURL != "" {
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("failed to open database: %w", err)
			}

			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = db.PingContext(ctx)
			cancel()
			if err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to connect to database: %w", err)
			}

			s.db = db
			if err := metrics.RegisterDB(db, serviceName); err != nil {
				s.logger.Warn("failed to register pool metrics", "error", err)
			}
			s.pgStore = store.NewPostgresStore(db)
			s.backend = s.pgStore
			s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
		} else {
			s.backend = store.NewMemoryStore()
			s.logger.Warn("DATABASE_URL not set, using in-memory storage (data is lost on restart)")
		}
	}

	s.ledger = ledger.New(s.backend).WithLogger(s.logger)
	s.offers = offer.NewService(s.backend).WithLogger(s.logger)
	s.trades = trade.NewService(s.backend).
		WithLogger(s.logger).
		WithEscrowAccount(cfg.EscrowAccount).
		WithPaymentWindow(cfg.PaymentWindow)
	s.resolver = dispute.NewResolver(s.trades).WithLogger(s.logger)
	s.reconcile = reconciliation.NewRunner(s.backend, s.logger)

	s.expiryTimer = trade.NewTimer(s.trades, s.backend, cfg.ExpiryInterval, s.logger)
	s.reconcileTimer = reconciliation.NewTimer(s.reconcile, cfg.ReconcileInterval, s.logger)

	s.health = health.NewRegistry()
	if s.pgStore != nil {
		s.health.Register("database", health.DatabaseChecker(s.pgStore))
	}
	s.health.Register("expiry_timer", health.LoopChecker(s.expiryTimer))
	s.health.Register("reconciliation_timer", health.LoopChecker(s.reconcileTimer))
	s.health.Register("reconciliation", health.ReconciliationChecker(s.reconcile))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Request ID first so recovery and access logs carry it
	s.router.Use(logging.RequestIDMiddleware(s.logger))

	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware(security.HeaderOptions{HSTS: s.cfg.IsProduction()}))
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	s.rateLimiter = ratelimit.New(ratelimit.FromRPM(s.cfg.RateLimitRPM))
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(traces.Middleware())
	s.router.Use(logging.AccessLogMiddleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	v1.Use(auth.Middleware(s.cfg.AdminSecret))
	// Validate :id URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.IDParamMiddleware())

	user := v1.Group("")
	user.Use(auth.RequireUser())
	{
		ledger.NewHandler(s.ledger, s.logger).RegisterRoutes(user)
		offer.NewHandler(s.offers, s.logger).RegisterRoutes(user)
		trade.NewHandler(s.trades, s.logger).RegisterRoutes(user)
	}

	admin := v1.Group("")
	admin.Use(auth.RequireAdmin())
	{
		ledger.NewHandler(s.ledger, s.logger).RegisterAdminRoutes(admin)
		dispute.NewHandler(s.resolver, s.logger).RegisterAdminRoutes(admin)
		reconciliation.NewHandler(s.reconcile, s.logger).RegisterAdminRoutes(admin)
	}
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	ok, checks := s.health.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start launches tracing and the background loops. Run calls it; tests call
// it directly to exercise the loops without a listener.
func (s *Server) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	if s.cfg.OTLPEndpoint != "" {
		shutdown, err := traces.Init(runCtx, traces.Config{
			Endpoint:    s.cfg.OTLPEndpoint,
			ServiceName: serviceName,
			Version:     version,
			SampleRatio: s.cfg.TraceSampleRatio,
		}, s.logger)
		if err != nil {
			s.logger.Error("failed to start tracing", "error", err)
		} else {
			s.shutdownTrace = shutdown
		}
	}

	go s.expiryTimer.Start(runCtx)
	go s.reconcileTimer.Start(runCtx)
}

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	s.Start(ctx)

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
			"escrow_account", s.cfg.EscrowAccount,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		s.stopBackground()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	var shutdownErr error
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	s.stopBackground()

	if s.shutdownTrace != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.shutdownTrace(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
		cancel()
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return shutdownErr
}

func (s *Server) stopBackground() {
	s.stopOnce.Do(func() {
		if s.cancelRunCtx != nil {
			s.cancelRunCtx()
		}

		s.expiryTimer.Stop()
		s.reconcileTimer.Stop()
		s.logger.Info("background timers stopped")

		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
	})
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
