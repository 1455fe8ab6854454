// Package server hosts the analysis service: POST /analyze, health probes
// and Prometheus metrics, with CORS, rate limiting and graceful shutdown.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/felixgeelhaar/macrocam/internal/health"
	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/metrics"
)

// Server is the analysis service HTTP server.
type Server struct {
	httpServer      *http.Server
	mux             *http.ServeMux
	probeManager    *health.ProbeManager
	limiter         *rate.Limiter
	metrics         *metrics.Metrics
	logger          *log.Logger
	inShutdown      atomic.Bool
	shutdownTimeout time.Duration
}

// Config holds server configuration.
type Config struct {
	// Address is the listen address, e.g. "0.0.0.0:8000".
	Address string

	// AllowedOrigins may call the API from a browser. "*" allows any origin.
	AllowedOrigins []string

	// RateLimit is the sustained /analyze request rate per second; 0 disables limiting.
	RateLimit float64

	// RateBurst is the number of /analyze requests allowed at once. Defaults to 5.
	RateBurst int

	// ShutdownTimeout defaults to 30 seconds.
	ShutdownTimeout time.Duration

	// ReadTimeout defaults to 30 seconds.
	ReadTimeout time.Duration

	// WriteTimeout covers the model call and defaults to 2 minutes.
	WriteTimeout time.Duration

	// IdleTimeout defaults to 60 seconds.
	IdleTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves /metrics from reg and counts rate-limited requests.
func WithMetrics(m *metrics.Metrics, reg prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		if reg != nil {
			s.mux.Handle("/metrics", metrics.HandlerFor(reg))
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates the server with health endpoints registered.
func NewServer(probeManager *health.ProbeManager, cfg Config, opts ...Option) *Server {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 5
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	s := &Server{
		mux:             http.NewServeMux(),
		probeManager:    probeManager,
		limiter:         rate.NewLimiter(limit, cfg.RateBurst),
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/health/live", s.handleLiveness)
	s.mux.HandleFunc("/health/ready", s.handleReadiness)
	s.mux.HandleFunc("/health/startup", s.handleStartup)
	s.mux.HandleFunc("/healthz", s.handleReadiness)

	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDefault(s.logger).With("component", "server")

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.logRequests(cors(cfg.AllowedOrigins, s.mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handle registers h on pattern.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// HandleLimited registers h on pattern behind the rate limiter.
func (s *Server) HandleLimited(pattern string, h http.Handler) {
	s.mux.Handle(pattern, s.rateLimit(h))
}

// Handler returns the full handler chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start listens on the configured address and blocks until shutdown.
// It returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	s.probeManager.MarkInitialized()
	s.logger.Info("analysis service listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Serve is Start on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	s.probeManager.MarkInitialized()
	s.logger.Info("analysis service listening", "addr", l.Addr().String())
	return s.httpServer.Serve(l)
}

// Shutdown fails readiness, stops keep-alives and drains connections for
// at most the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.probeManager.MarkShutdown()
	s.httpServer.SetKeepAlivesEnabled(false)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down", "timeout", s.shutdownTimeout)
	return s.httpServer.Shutdown(shutdownCtx)
}

// IsShuttingDown reports whether Shutdown was called.
func (s *Server) IsShuttingDown() bool {
	return s.inShutdown.Load()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode response: %v", err), http.StatusInternalServerError)
	}
}

func (s *Server) writeProbeResponse(w http.ResponseWriter, result *health.ProbeResult, unhealthyStatus int) {
	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = unhealthyStatus
	}
	writeJSON(w, status, result)
}

// handleHealth answers GET /health with {"status":"ok"}.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLiveness always answers 200, degraded while shutting down.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeProbeResponse(w, s.probeManager.CheckLiveness(r.Context()), http.StatusOK)
}

// handleReadiness answers 503 while shutting down or when a check is unhealthy.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeProbeResponse(w, s.probeManager.CheckReadiness(r.Context()), http.StatusServiceUnavailable)
}

// handleStartup answers 503 until the server started listening.
func (s *Server) handleStartup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeProbeResponse(w, s.probeManager.CheckStartup(r.Context()), http.StatusServiceUnavailable)
}
