// Package server wires the fraud-assessment engine together and runs the
// HTTP surface.
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
	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/shopspring/decimal"

	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/circuitbreaker"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/config"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/enrichment"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/events"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/health"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/ja3"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/ledger"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/logging"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/metrics"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/realtime"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/security"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/traces"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/transaction"
	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/validation"
)

// Server wraps the HTTP server and all engine components.
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	router    *gin.Engine
	httpSrv   *http.Server
	db        *sql.DB // nil if using in-memory stores
	detector  *ja3.Detector
	chain     *ledger.Chain
	hub       *realtime.Hub
	publisher events.Publisher
	txStore   transaction.Store
	saga      *transaction.Saga
	healthReg *health.Registry

	scorerOverride    transaction.Scorer // set by WithScorer in tests
	publisherOverride events.Publisher   // set by WithPublisher in tests

	cancelRunCtx  context.CancelFunc
	shutdownTrace func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithScorer overrides the AI scorer (for testing).
func WithScorer(scorer transaction.Scorer) Option {
	return func(s *Server) {
		s.scorerOverride = scorer
	}
}

// WithPublisher overrides the event publisher (for testing).
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) {
		s.publisherOverride = p
	}
}

// New creates a server with all components wired.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	shutdownTrace, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	s.shutdownTrace = shutdownTrace

	// Storage: Postgres if DATABASE_URL is set, otherwise in-memory.
	var enrichStore enrichment.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		s.db = db
		s.txStore = transaction.NewPostgresStore(db)
		enrichStore = enrichment.NewPostgresStore(db)
		s.logger.Info("using postgres storage")
	} else {
		s.txStore = transaction.NewMemoryStore()
		enrichStore = enrichment.NewMemoryStore()
		s.logger.Info("using in-memory storage")
	}

	// Engine cores.
	s.detector = ja3.NewDetector(cfg.BotThreshold)
	s.chain = ledger.New(cfg.LedgerBatchSize)
	s.hub = realtime.NewHub(s.logger)

	switch {
	case s.publisherOverride != nil:
		s.publisher = s.publisherOverride
	case len(cfg.KafkaBrokers) > 0:
		s.publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, s.logger)
		s.logger.Info("kafka publisher enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	default:
		s.publisher = events.NoopPublisher{}
	}
	s.wireLedgerHooks()
	s.wireDetectorHook()

	// Saga collaborators. The scorer and visual trigger stay disabled (every
	// submission keeps draft defaults) until their URLs are configured.
	breaker := circuitbreaker.New(5, 30*time.Second)

	var scorer transaction.Scorer = disabledScorer{}
	if s.scorerOverride != nil {
		scorer = s.scorerOverride
	} else if cfg.AIServiceURL != "" {
		scorer = transaction.NewScoringClient(cfg.AIServiceURL, breaker, cfg.UpstreamTimeout)
	}

	var visual transaction.VisualNotifier = disabledVisual{}
	if cfg.VisualServiceURL != "" {
		visual = transaction.NewVisualClient(cfg.VisualServiceURL, cfg.VisualInternalAPIKey, breaker, cfg.UpstreamTimeout)
	}

	// The risk engine is called remotely when it runs in its own process;
	// otherwise the in-process detector serves evaluations directly.
	var risk transaction.FingerprintEvaluator
	if cfg.SecurityServiceURL != "" {
		risk = transaction.NewRiskClient(cfg.SecurityServiceURL, breaker, cfg.UpstreamTimeout)
	} else {
		risk = &localRiskAdapter{detector: s.detector}
	}

	s.saga = transaction.NewSaga(
		s.txStore,
		enrichStore,
		scorer,
		visual,
		risk,
		&pipelineEmitter{hub: s.hub, publisher: s.publisher},
	)

	// Health checks.
	s.healthReg = health.NewRegistry()
	s.healthReg.Register("ledger", func(ctx context.Context) health.Status {
		if err := s.chain.Verify(); err != nil {
			return health.Status{Name: "ledger", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "ledger", Healthy: true}
	})
	if s.db != nil {
		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
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
	// Operational endpoints stay outside the bot gate.
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Every fingerprinted request counts as a bot-detection hit; blocked
	// fingerprints are rejected here before reaching any handler.
	s.router.Use(ja3.Gate(s.detector))

	transaction.NewHandler(s.saga, s.txStore).RegisterRoutes(s.router)

	sec := s.router.Group("/security")
	ja3.NewHandler(s.detector).RegisterRoutes(sec)
	ledger.NewHandler(s.chain).RegisterRoutes(sec)

	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})
	s.router.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.hub.Stats())
	})
}

// wireLedgerHooks fans sealed blocks and appended fraud logs out to the
// realtime hub and the Kafka pipeline.
func (s *Server) wireLedgerHooks() {
	s.chain.OnSeal(func(b ledger.Block) {
		s.hub.BroadcastBlockSealed(map[string]any{
			"index":        b.Index,
			"hash":         b.Hash,
			"previousHash": b.PreviousHash,
			"logCount":     len(b.Logs),
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.publisher.Publish(ctx, events.Event{
			Type:    events.TypeBlockSealed,
			Key:     b.Hash,
			Payload: b,
		})
	})
	s.chain.OnLog(func(l ledger.FraudLog) {
		s.hub.Broadcast(&realtime.Event{
			Type:      realtime.EventFraudConfirmed,
			Timestamp: time.Now(),
			Data: map[string]any{
				"txId":      l.TxID,
				"accountId": l.AccountID,
				"amount":    l.Amount.String(),
			},
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.publisher.Publish(ctx, events.Event{
			Type:    events.TypeFraudConfirmed,
			Key:     l.TxID,
			Payload: l,
		})
	})
}

// wireDetectorHook announces fingerprints crossing the bot threshold.
func (s *Server) wireDetectorHook() {
	s.detector.OnBlock(func(fingerprint string, hits int) {
		s.logger.Warn("fingerprint blocked", "ja3", fingerprint, "hits", hits)
		s.hub.BroadcastBotBlocked(map[string]any{
			"ja3":  fingerprint,
			"hits": hits,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.publisher.Publish(ctx, events.Event{
			Type: events.TypeBotBlocked,
			Key:  fingerprint,
			Payload: map[string]any{
				"ja3":  fingerprint,
				"hits": hits,
			},
		})
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.healthReg.CheckAll(c.Request.Context())
	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": statuses})
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
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal or context
// cancellation.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

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
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.hub.Run(runCtx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
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

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if err := s.publisher.Close(); err != nil {
		s.logger.Warn("kafka publisher close", "error", err)
	}

	if s.shutdownTrace != nil {
		if err := s.shutdownTrace(ctx); err != nil {
			s.logger.Warn("trace shutdown", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("database close", "error", err)
		}
	}

	s.healthy.Store(false)
	s.logger.Info("shutdown complete")
	return nil
}

// -----------------------------------------------------------------------------
// Adapters
// -----------------------------------------------------------------------------

// localRiskAdapter serves fingerprint evaluations from the in-process
// detector when no remote risk engine is configured.
type localRiskAdapter struct {
	detector *ja3.Detector
}

func (a *localRiskAdapter) EvaluateRisk(_ context.Context, fingerprint, accountID, _ string) (*transaction.RiskAssessment, error) {
	assessment := a.detector.Evaluate(fingerprint, accountID)
	risk := assessment.JA3Risk
	velocity := assessment.Velocity
	fanout := assessment.Fanout
	return &transaction.RiskAssessment{
		JA3:      assessment.JA3,
		JA3Risk:  &risk,
		Velocity: &velocity,
		Fanout:   &fanout,
	}, nil
}

// pipelineEmitter announces assessed transactions on the realtime hub and
// the Kafka pipeline.
type pipelineEmitter struct {
	hub       *realtime.Hub
	publisher events.Publisher
}

func (e *pipelineEmitter) TransactionScored(tx *transaction.Transaction) {
	data := map[string]any{
		"id":             tx.ID,
		"sourceAccount":  tx.SourceAccount,
		"targetAccount":  tx.TargetAccount,
		"amount":         tx.Amount.String(),
		"suspectedFraud": tx.SuspectedFraud,
	}
	if tx.RiskScore != nil {
		data["riskScore"] = *tx.RiskScore
	}
	e.hub.BroadcastScoredTransaction(data)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = e.publisher.Publish(ctx, events.Event{
		Type:    events.TypeTransactionScored,
		Key:     tx.ID,
		Payload: tx,
	})
}

// disabledScorer is wired when no AI service is configured: submissions keep
// their draft defaults without counting as degraded.
type disabledScorer struct{}

func (disabledScorer) Score(context.Context, int64, int64, decimal.Decimal) (*transaction.Verdict, error) {
	return nil, nil
}

// disabledVisual is wired when no visual-analytics service is configured.
type disabledVisual struct{}

func (disabledVisual) Reanalyze(context.Context, string, []transaction.NodeRef) error {
	return nil
}
