package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/cache"
	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/etl"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/observability"
	"github.com/raaihank/pii-sentinel/internal/privacy"
	"github.com/raaihank/pii-sentinel/internal/security"
	"github.com/raaihank/pii-sentinel/internal/store"
	"github.com/raaihank/pii-sentinel/internal/websocket"
)

// Version is reported by /info
var Version = "0.1.0"

var tracer = otel.Tracer("github.com/raaihank/pii-sentinel/internal/server")

// Server exposes the classifier and redaction pipeline over HTTP
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	pipeline *etl.Pipeline
	store    *store.Store
	cache    *cache.ResultCache
	metrics  *observability.Metrics
	limiter  *security.RateLimiter
	router   *mux.Router
	server   *http.Server
	wsHub    *websocket.Hub

	startedAt time.Time
	cancel    context.CancelFunc
	ctx       context.Context
}

// Option customizes a Server
type Option func(*Server)

// WithStore persists results and serves lookups from the relational store
func WithStore(s *store.Store) Option {
	return func(srv *Server) {
		srv.store = s
	}
}

// WithCache caches results and serves lookups from Redis
func WithCache(c *cache.ResultCache) Option {
	return func(srv *Server) {
		srv.cache = c
	}
}

// WithMetrics exposes Prometheus metrics on /metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(srv *Server) {
		srv.metrics = m
	}
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Server, error) {
	registry, err := privacy.NewRegistry(cfg.Privacy.Detectors)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector registry: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		limiter:   security.NewRateLimiter(cfg.RateLimit),
		router:    mux.NewRouter(),
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wsHub = websocket.NewHub(&websocket.HubConfig{
		BroadcastDetections:  cfg.WebSocket.Events.BroadcastDetections,
		BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
		PIIOnly:              cfg.WebSocket.Events.PIIOnly,
		MaxConnections:       cfg.WebSocket.MaxConnections,
		AllowedOrigins:       cfg.WebSocket.AllowedOrigins,
		Username:             cfg.WebSocket.Username,
		Password:             cfg.WebSocket.Password,
	}, log.Logger)

	pipelineOpts := []etl.Option{
		etl.WithMetrics(s.metrics),
		etl.WithObserver(s.publishRedaction),
	}
	if s.store != nil {
		pipelineOpts = append(pipelineOpts, etl.WithSinks(s.store))
	}
	if s.cache != nil {
		pipelineOpts = append(pipelineOpts, etl.WithSinks(s.cache))
	}

	classifier := privacy.NewClassifier(registry, log.WithComponent("privacy"))
	pipelineConfig := cfg.Pipeline
	s.pipeline = etl.NewPipeline(classifier, &pipelineConfig, log.WithComponent("etl").Logger, pipelineOpts...)

	// Setup routes
	s.setupRoutes()

	// Create HTTP server
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/classify", s.handleClassify).Methods(http.MethodPost)
	api.HandleFunc("/records", s.handleRecords).Methods(http.MethodPost)
	api.HandleFunc("/records/{id}", s.handleGetRecord).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the background workers and serves HTTP until Stop is called
func (s *Server) Start() error {
	s.logger.Info("Starting PII sentinel server",
		zap.Int("port", s.config.Server.Port),
		zap.Strings("detectors", s.config.Privacy.Detectors),
		zap.Bool("store_enabled", s.store != nil),
		zap.Bool("cache_enabled", s.cache != nil),
		zap.Bool("websocket_enabled", s.config.WebSocket.Enabled),
	)

	s.RunBackground()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// RunBackground starts the WebSocket hub and rate limiter housekeeping
func (s *Server) RunBackground() {
	go s.wsHub.Run(s.ctx)
	s.limiter.StartCleanupRoutine(s.ctx)
}

// Stop gracefully stops the HTTP server and background workers
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping PII sentinel server")
	defer s.cancel()
	return s.server.Shutdown(ctx)
}

// Reload swaps in a classifier built from cfg.Privacy. Other settings need a restart.
func (s *Server) Reload(cfg *config.Config) error {
	registry, err := privacy.NewRegistry(cfg.Privacy.Detectors)
	if err != nil {
		return fmt.Errorf("failed to create detector registry: %w", err)
	}

	s.pipeline.SetClassifier(privacy.NewClassifier(registry, s.logger.WithComponent("privacy")))
	s.logger.Info("Detectors reloaded", zap.Strings("detectors", cfg.Privacy.Detectors))
	return nil
}

// Pipeline returns the redaction pipeline behind the API
func (s *Server) Pipeline() *etl.Pipeline {
	return s.pipeline
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}

// publishRedaction forwards pipeline results to WebSocket subscribers
func (s *Server) publishRedaction(ctx context.Context, r etl.Redaction) {
	s.publishDetection(ctx, websocket.PIIDetectionEvent{
		RecordID: r.Output.RecordID,
		Source:   "pipeline",
		IsPII:    r.Output.IsPII,
		Findings: r.Findings,
	})
}

func (s *Server) publishDetection(ctx context.Context, event websocket.PIIDetectionEvent) {
	if !s.config.WebSocket.Enabled {
		return
	}
	s.wsHub.PublishDetection(getRequestID(ctx), event)
}
