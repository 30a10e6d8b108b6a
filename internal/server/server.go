// Package server implements the HTTP server that exposes the calai agent
// via a JSON REST API. The server is started by the `calai serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calai/calai-go/internal/agent"
	"github.com/calai/calai-go/internal/logging"
)

// New constructs a Server from the provided agent and config.
func New(calAgent *agent.Agent, cfg *Config) (*Server, error) {
	if calAgent == nil {
		return nil, fmt.Errorf("server: agent must not be nil")
	}
	return newServer(calAgent, cfg)
}

// newServer wires the middleware chain and routes. Split from New so tests
// can inject a fake querier without building a full agent.
func newServer(q querier, cfg *Config) (*Server, error) {
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
		// WriteTimeout must cover a full LLM pipeline run.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		querier: q,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("API key not configured, authentication disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	// protected applies auth then rate limiting; the per-route metrics
	// middleware sits inside so rejected requests are not counted as hits.
	protected := func(route string, h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(s.metrics.instrument(route, h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/query", protected("/api/query", s.handleQuery))
	mux.Handle("GET /api/auth/status", protected("/api/auth/status", s.handleAuthStatus))
	mux.Handle("POST /api/auth/connect", protected("/api/auth/connect", s.handleAuthConnect))
	mux.Handle("POST /api/index/rebuild", protected("/api/index/rebuild", s.handleIndexRebuild))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
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

// handleQuery handles POST /api/query. It runs the full pipeline (intent
// classification, retrieval, composition, grounding) and returns the
// structured agent response as JSON.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	s.metrics.queriesInFlight.Inc()
	resp, err := s.querier.Query(ctx, req.Session, req.Query)
	s.metrics.queriesInFlight.Dec()
	elapsed := time.Since(start)

	if err != nil {
		outcome := "error"
		status := http.StatusInternalServerError
		msg := "query failed"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
			status = http.StatusGatewayTimeout
			msg = "query timed out"
		}
		s.metrics.queriesTotal.WithLabelValues(outcome).Inc()
		log.Error("query failed",
			slog.Duration("duration", elapsed),
			slog.Any("error", err),
		)
		http.Error(w, msg, status)
		return
	}

	s.metrics.queriesTotal.WithLabelValues("ok").Inc()
	s.metrics.queryDuration.Observe(elapsed.Seconds())
	log.Info("query served",
		slog.String("intent", string(resp.Intent)),
		slog.Float64("confidence", resp.Confidence),
		slog.Duration("duration", elapsed),
	)

	writeJSON(w, http.StatusOK, resp)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIndexRebuild handles POST /api/index/rebuild. It re-chunks and
// re-embeds the knowledge base, swapping the in-memory index atomically so
// concurrent queries keep serving the previous snapshot.
func (s *Server) handleIndexRebuild(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.cfg.Index == nil {
		http.Error(w, "index rebuild not available", http.StatusNotImplemented)
		return
	}

	if err := s.cfg.Index.Rebuild(r.Context(), log); err != nil {
		log.Error("index rebuild failed", slog.Any("error", err))
		http.Error(w, "rebuild failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

// writeJSON encodes v as the JSON response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already written; nothing useful left to send.
		logging.New().Error("response encode error", slog.Any("error", err))
	}
}
