// Package server implements the HTTP server that exposes document indexing,
// document management, and retrieval-grounded question answering as a REST
// API. The server is started by the `docqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docqa/docqa-go/internal/logging"
)

// defaultRequestTimeout bounds total API request handling time. Indexing a
// large batch of documents can legitimately take minutes.
const defaultRequestTimeout = 600 * time.Second

// defaultMaxUploadBytes caps the total size of one multipart index request.
const defaultMaxUploadBytes = 64 << 20

// New constructs a Server from the provided pipelines and config.
func New(idx indexer, ask asker, docs documents, cfg *Config) (*Server, error) {
	if idx == nil {
		return nil, fmt.Errorf("server: indexer must not be nil")
	}
	if ask == nil {
		return nil, fmt.Errorf("server: asker must not be nil")
	}
	if docs == nil {
		return nil, fmt.Errorf("server: document store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
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
		// WriteTimeout must exceed RequestTimeout or slow indexing requests
		// are cut off mid-response.
		cfg.WriteTimeout = 11 * time.Minute
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		indexer: idx,
		asker:   ask,
		docs:    docs,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: DOCQA_API_KEY not set — API authentication is disabled")
	}

	// Protected API routes: auth, rate limiting, and the request deadline
	// apply. Probes and metrics stay outside the chain so orchestrators can
	// always reach them.
	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/document/index", s.handleDocumentIndex)
	api.HandleFunc("DELETE /api/v1/document/delete", s.handleDocumentDelete)
	api.HandleFunc("GET /api/v1/document/list", s.handleDocumentList)
	api.HandleFunc("POST /api/v1/chat/question", s.handleQuestion)

	var protected http.Handler = stripTrailingSlash(api)
	protected = timeoutMiddleware(cfg.RequestTimeout, protected)
	protected = rl.middleware(protected)
	protected = authMiddleware(cfg.APIKey, protected)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", protected)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	root := corsMiddleware(cfg.CORSOrigin, mux)
	root = s.metricsMiddleware(root)
	root = requestLogger(log, root)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Handler exposes the server's root handler for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already written; nothing left to do but log.
		slog.Default().Error("server: response encode failed", slog.Any("error", err))
	}
}

// writeError sends a JSON error body with the given status and detail.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
