package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/calai/calai-go/internal/agent"
	"github.com/calai/calai-go/internal/google"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout bounds a single /api/query pipeline run.
	QueryTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Auth serves /api/auth/status and /api/auth/connect. May be nil, in
	// which case both endpoints report the calendar as not configured.
	Auth *google.Auth
	// Index triggers knowledge-base rebuilds for POST /api/index/rebuild.
	// May be nil to disable the endpoint.
	Index Rebuilder
	// MetricsRegistry receives the server's Prometheus metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// querier is the interface handleQuery calls to run the pipeline.
// *agent.Agent satisfies it; tests inject a fake.
type querier interface {
	// Query runs one user query and returns the structured response.
	Query(ctx context.Context, session, query string) (*agent.Response, error)
}

// Rebuilder is the interface POST /api/index/rebuild calls to re-embed the
// knowledge base. *kb.Service satisfies it.
type Rebuilder interface {
	// Rebuild re-chunks and re-embeds the knowledge base.
	Rebuild(ctx context.Context, log *slog.Logger) error
}

// Server is the HTTP server that wraps the calai agent.
type Server struct {
	// querier runs the query pipeline; set to the agent in production,
	// overridden by a fake in tests.
	querier querier
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus metrics owned by this server instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Query is the user's natural language question or request.
	Query string `json:"query"`
	// Session identifies the conversation for clarification follow-ups.
	// Optional; one-shot callers may omit it.
	Session string `json:"session,omitempty"`
}

// connectRequest is the JSON body for POST /api/auth/connect.
type connectRequest struct {
	// Code is the OAuth authorization code. When absent the handler returns
	// the authorization URL instead of completing the exchange.
	Code string `json:"code,omitempty"`
}

// connectResponse is the JSON response for POST /api/auth/connect.
type connectResponse struct {
	// AuthURL is the browser URL to authorize access. Set only when no code
	// was supplied.
	AuthURL string `json:"auth_url,omitempty"`
	// Connected is true once a token has been stored.
	Connected bool `json:"connected"`
}
