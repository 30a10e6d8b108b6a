package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/calai/calai-go/internal/agent"
	"github.com/calai/calai-go/internal/intent"
)

// fakeQuerier is a test double for the querier interface. It records the
// last session and query it was called with.
type fakeQuerier struct {
	// resp is returned on success.
	resp *agent.Response
	// err is returned instead of resp when non-nil.
	err error
	// gotSession and gotQuery capture the last call's arguments.
	gotSession string
	gotQuery   string
}

func (f *fakeQuerier) Query(_ context.Context, session, query string) (*agent.Response, error) {
	f.gotSession = session
	f.gotQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

// newTestServer builds a *Server with a stub querier, a hermetic metrics
// registry, and a discarded logger.
func newTestServer() *Server {
	return newTestServerWith(&fakeQuerier{resp: &agent.Response{Answer: "ok"}})
}

// newTestServerWith builds a *Server around the given querier.
func newTestServerWith(q querier) *Server {
	reg := prometheus.NewRegistry()
	s, err := newServer(q, &Config{
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		panic(err)
	}
	// Stop the rate limiter's eviction goroutine; tests never Start the server.
	s.stopRL()
	return s
}

// postJSON builds a POST request with the given JSON body string.
func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ---------------------------------------------------------------------------
// POST /api/query
// ---------------------------------------------------------------------------

// TestHandleQuery_OK verifies a valid request returns the agent response as
// JSON and that session and query are passed through.
func TestHandleQuery_OK(t *testing.T) {
	t.Parallel()

	fq := &fakeQuerier{resp: &agent.Response{
		Answer:     "You have 2 events tomorrow.",
		Intent:     intent.ListEvents,
		Confidence: 1.0,
		Result:     "PASS",
	}}
	s := newTestServerWith(fq)

	w := httptest.NewRecorder()
	s.handleQuery(w, postJSON("/api/query", `{"query":"what events are on my calendar","session":"abc"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if fq.gotQuery != "what events are on my calendar" {
		t.Errorf("query passthrough: got %q", fq.gotQuery)
	}
	if fq.gotSession != "abc" {
		t.Errorf("session passthrough: got %q", fq.gotSession)
	}

	var resp agent.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "You have 2 events tomorrow." {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if resp.Intent != intent.ListEvents {
		t.Errorf("intent: got %q", resp.Intent)
	}
	if resp.Result != "PASS" {
		t.Errorf("result: got %q", resp.Result)
	}
}

// TestHandleQuery_InvalidBody verifies malformed JSON returns 400.
func TestHandleQuery_InvalidBody(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := httptest.NewRecorder()
	s.handleQuery(w, postJSON("/api/query", `{not json`))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

// TestHandleQuery_MissingQuery verifies an empty query returns 400.
func TestHandleQuery_MissingQuery(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := httptest.NewRecorder()
	s.handleQuery(w, postJSON("/api/query", `{"session":"abc"}`))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

// TestHandleQuery_PipelineError verifies a querier failure returns 500.
func TestHandleQuery_PipelineError(t *testing.T) {
	t.Parallel()

	s := newTestServerWith(&fakeQuerier{err: errors.New("embedder down")})
	w := httptest.NewRecorder()
	s.handleQuery(w, postJSON("/api/query", `{"query":"hello"}`))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d — body: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "embedder down") {
		t.Errorf("internal error detail leaked to client: %s", w.Body.String())
	}
}

// TestHandleQuery_Timeout verifies a deadline-exceeded failure returns 504.
func TestHandleQuery_Timeout(t *testing.T) {
	t.Parallel()

	s := newTestServerWith(&fakeQuerier{err: context.DeadlineExceeded})
	w := httptest.NewRecorder()
	s.handleQuery(w, postJSON("/api/query", `{"query":"hello"}`))

	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Routing and middleware wiring
// ---------------------------------------------------------------------------

// TestRouting_QueryRequiresAuth verifies the full handler chain rejects an
// unauthenticated /api/query when an API key is configured, while /api/health
// stays open.
func TestRouting_QueryRequiresAuth(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s, err := newServer(&fakeQuerier{resp: &agent.Response{Answer: "ok"}}, &Config{
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		APIKey:          "secret-key",
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	t.Cleanup(s.stopRL)

	handler := s.httpServer.Handler

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, postJSON("/api/query", `{"query":"hello"}`))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated query: expected 401, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req := postJSON("/api/query", `{"query":"hello"}`)
	req.Header.Set("Authorization", "Bearer secret-key")
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authenticated query: expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health without auth: expected 200, got %d", w.Code)
	}
}

// TestRouting_MetricsExposed verifies GET /metrics serves the server's own
// registry.
func TestRouting_MetricsExposed(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "calai_query_in_flight") {
		t.Errorf("expected calai_query_in_flight in metrics output")
	}
}
