// Package server wires the bridge together and runs the HTTP surface.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/onixgrid/bapbridge/internal/auth"
	"github.com/onixgrid/bapbridge/internal/callback"
	"github.com/onixgrid/bapbridge/internal/config"
	"github.com/onixgrid/bapbridge/internal/correlation"
	"github.com/onixgrid/bapbridge/internal/gateway"
	"github.com/onixgrid/bapbridge/internal/idgen"
	"github.com/onixgrid/bapbridge/internal/logging"
	"github.com/onixgrid/bapbridge/internal/metrics"
	"github.com/onixgrid/bapbridge/internal/normalize"
	"github.com/onixgrid/bapbridge/internal/notify"
	"github.com/onixgrid/bapbridge/internal/orders"
	"github.com/onixgrid/bapbridge/internal/profile"
	"github.com/onixgrid/bapbridge/internal/protocol"
	"github.com/onixgrid/bapbridge/internal/ratelimit"
	"github.com/onixgrid/bapbridge/internal/realtime"
	"github.com/onixgrid/bapbridge/internal/security"
	"github.com/onixgrid/bapbridge/internal/settlement"
	"github.com/onixgrid/bapbridge/internal/traces"
	"github.com/onixgrid/bapbridge/internal/validation"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg          *config.Config
	correlations *correlation.Store
	profiles     profile.Store
	orders       orders.Store
	settlements  settlement.Store
	notifier     notify.Notifier
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil when using in-memory stores
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc

	ready atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithNotifier overrides the notifier (for testing).
func WithNotifier(n notify.Notifier) Option {
	return func(s *Server) {
		s.notifier = n
	}
}

// New creates a server instance with all routes set up.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Storage: Postgres if DATABASE_URL is set, otherwise in-memory.
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		s.db = db
		s.profiles = profile.NewPostgresStore(db)
		s.orders = orders.NewPostgresStore(db)
		s.settlements = settlement.NewPostgresStore(db)
		s.logger.Info("storage initialized", "backend", "postgres")
	} else {
		s.profiles = profile.NewMemoryStore()
		s.orders = orders.NewMemoryStore()
		s.settlements = settlement.NewMemoryStore()
		s.logger.Info("storage initialized", "backend", "memory")
	}

	if s.notifier == nil {
		if cfg.NotifyWebhookURL != "" {
			s.notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret)
		} else {
			s.notifier = notify.NoopNotifier{}
		}
	}

	s.correlations = correlation.NewStore(cfg.CallbackTimeout)
	s.realtimeHub = realtime.NewHub(s.logger)

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    gateway.CodeInternal,
				"message": "An unexpected error occurred",
			},
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.WithPrefix("req_")
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket lifecycle event stream
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// Synchronous action endpoints: rate limited, identity resolved from
	// API key when present.
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPM,
		BurstSize:         s.cfg.RateLimitRPM / 6,
		CleanupInterval:   time.Minute,
	})
	normalizer := normalize.New(s.profiles, normalize.Config{
		SubscriberID:   s.cfg.SubscriberID,
		SubscriberURI:  s.cfg.SubscriberURI,
		Domain:         s.cfg.ProtocolDomain,
		CoreVersion:    s.cfg.CoreVersion,
		TTL:            s.cfg.EnvelopeTTL,
		WheelingCharge: protocol.ParseDecimal(s.cfg.WheelingCharge),
	})
	upstream := gateway.NewUpstream(s.cfg.OnixBapURL, s.cfg.UpstreamTimeout)
	service := gateway.NewService(normalizer, s.correlations, upstream, s.logger)

	actions := s.router.Group("/")
	actions.Use(s.rateLimiter.Middleware())
	actions.Use(auth.Middleware(s.profiles))
	gateway.NewHandlers(service, s.logger).Register(actions)

	// Asynchronous callback endpoints: never rate limited, never
	// authenticated away; the counterparty's results must always land.
	receiver := callback.NewReceiver(
		s.correlations, s.orders, s.settlements, s.notifier, s.realtimeHub,
		protocol.ParseDecimal(s.cfg.WheelingCharge), s.logger,
	)
	callback.NewHandlers(receiver).Register(s.router)

	// Order lookup for confirmed trades
	s.router.GET("/orders/:transactionId", validation.TransactionParamMiddleware(), s.orderHandler)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":              "OK",
		"pendingTransactions": s.correlations.Count(),
		"onixBapUrl":          s.cfg.OnixBapURL,
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) orderHandler(c *gin.Context) {
	txnID := c.Param("transactionId")
	rec, err := s.orders.FindByTransactionID(c.Request.Context(), txnID)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ORDER_NOT_FOUND",
					"message": "no confirmed order for this transaction",
				},
			})
			return
		}
		logging.L(c.Request.Context()).Error("order lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    gateway.CodeInternal,
				"message": "order lookup failed",
			},
		})
		return
	}

	settlements, err := s.settlements.FindByTransactionID(c.Request.Context(), txnID)
	if err != nil {
		logging.L(c.Request.Context()).Warn("settlement lookup failed", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"transaction_id": txnID,
		"data": gin.H{
			"order":       rec,
			"settlements": settlements,
		},
	})
}

// Run starts the server and blocks until a shutdown signal or ctx
// cancellation.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Error("tracing init failed", "error", err)
		shutdownTraces = func(context.Context) error { return nil }
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Callers hold the connection open for the full callback wait.
		WriteTimeout: s.cfg.CallbackTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"upstream", s.cfg.OnixBapURL,
			"callback_window", s.cfg.CallbackTimeout,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTraces(shutdownCtx)
	}()
	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Profiles exposes the profile store so operators can provision buyers.
func (s *Server) Profiles() profile.Store {
	return s.profiles
}
