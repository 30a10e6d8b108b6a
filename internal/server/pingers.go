package server

import (
	"context"
	"fmt"
	"time"

	"github.com/calai/calai-go/internal/calendar"
	"github.com/calai/calai-go/internal/rag"
)

// EmbedderPinger probes the embedding backend by embedding a short fixed
// text. A working round-trip proves both connectivity and that the
// configured model is loaded.
type EmbedderPinger struct {
	// embedder is the embedding client to probe.
	embedder rag.Embedder
}

// NewEmbedderPinger constructs a Pinger for the embedding backend.
func NewEmbedderPinger(embedder rag.Embedder) *EmbedderPinger {
	return &EmbedderPinger{embedder: embedder}
}

// Name returns the dependency label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds a single short text and verifies a non-empty vector comes back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed probe: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed probe: empty vector")
	}
	return nil
}

// CalendarPinger probes the calendar provider with a free/busy query over a
// tiny window. It exercises the same authenticated path real queries use
// without mutating any calendar state.
type CalendarPinger struct {
	// provider is the calendar provider to probe.
	provider calendar.Provider
}

// NewCalendarPinger constructs a Pinger for the calendar provider.
func NewCalendarPinger(provider calendar.Provider) *CalendarPinger {
	return &CalendarPinger{provider: provider}
}

// Name returns the dependency label used in readiness responses.
func (p *CalendarPinger) Name() string { return "calendar" }

// Ping issues a free/busy query over the next minute.
func (p *CalendarPinger) Ping(ctx context.Context) error {
	now := time.Now()
	_, err := p.provider.FreeBusy(ctx, calendar.Window{Start: now, End: now.Add(time.Minute)})
	if err != nil {
		return fmt.Errorf("freebusy probe: %w", err)
	}
	return nil
}
