// Package server implements the HTTP API that exposes document upload and
// document-grounded question answering. The server is started by the
// `docqa serve` CLI command.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docqa-go/internal/logging"
)

// defaultMaxBodyBytes caps request bodies when Config.MaxBodyBytes is zero.
const defaultMaxBodyBytes = 10 << 20

// New constructs a Server from the answer path, the document service, and config.
func New(ans answerer, docs documentService, cfg *Config) (*Server, error) {
	if ans == nil {
		return nil, fmt.Errorf("server: answerer must not be nil")
	}
	if docs == nil {
		return nil, fmt.Errorf("server: document service must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	applyDefaults(cfg)

	s := &Server{
		answerer: ans,
		docs:     docs,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
	}
	s.metrics = newServerMetrics(cfg.MetricsRegistry)
	s.metrics.registerGauges(cfg.MetricsRegistry, cfg.IndexSize, cfg.ActiveSessions)

	if cfg.APIKey == "" {
		s.log.Warn("server: DOCQA_API_KEY is not set, API authentication is disabled")
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.OwnerHeader, s.log)
	s.stopRL = stop

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(rl),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// applyDefaults fills zero fields of cfg.
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.OwnerHeader == "" {
		cfg.OwnerHeader = "X-User-ID"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
}

// routes builds the request multiplexer. Health, readiness, and metrics stay
// outside authentication so probes and scrapers need no token.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	api := http.NewServeMux()
	api.Handle("POST /api/ask", rl.middleware(s.instrument("ask", http.HandlerFunc(s.handleAsk))))
	api.Handle("POST /api/documents", s.instrument("upload", http.HandlerFunc(s.handleUpload)))
	api.Handle("GET /api/documents", s.instrument("list", http.HandlerFunc(s.handleListDocuments)))
	api.Handle("GET /api/documents/{id}", s.instrument("get", http.HandlerFunc(s.handleGetDocument)))
	api.Handle("DELETE /api/documents/{id}", s.instrument("delete", http.HandlerFunc(s.handleDeleteDocument)))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))
	mux.Handle("/api/", authMiddleware(s.cfg.APIKey, api))

	return requestLogger(s.log, mux)
}

// Handler returns the fully wrapped root handler. Used by tests and by
// callers that embed the API in their own listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("docqa server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("docqa server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}
