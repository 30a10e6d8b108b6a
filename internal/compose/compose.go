// Package compose turns retrieval output into the answer text returned to
// the caller. Strategies are tried in order: the optional LLM strategy
// first, then the deterministic summary, which cannot fail. Composition as a
// whole therefore never fails — at worst the answer is the plain summary.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/calai/calai-go/internal/calendar"
	"github.com/calai/calai-go/internal/logging"
	"github.com/calai/calai-go/internal/rag"
)

// Input carries everything a strategy may draw on to compose an answer.
type Input struct {
	// Query is the raw user question.
	Query string
	// KBHits are knowledge-base passages that cleared retrieval.
	KBHits []rag.Hit
	// EventHits are calendar events that cleared retrieval.
	EventHits []rag.Hit
	// Events are the normalized events behind EventHits, for rendering.
	Events []calendar.NormalizedEvent
	// ToolUsed reports whether calendar data contributed to this answer.
	ToolUsed bool
}

// Strategy produces an answer from retrieval output. Strategies that cannot
// answer return an error and the next strategy in the chain runs.
type Strategy interface {
	// Name identifies the strategy in logs and responses.
	Name() string
	// Compose returns the answer text.
	Compose(ctx context.Context, in Input) (string, error)
}

// Composer runs a strategy chain. The final strategy must be infallible.
type Composer struct {
	strategies []Strategy
}

// NewComposer builds a Composer ending in the deterministic summary, so
// composition always yields an answer. Nil strategies are skipped.
func NewComposer(strategies ...Strategy) *Composer {
	chain := make([]Strategy, 0, len(strategies)+1)
	for _, s := range strategies {
		if s != nil {
			chain = append(chain, s)
		}
	}
	chain = append(chain, SummaryStrategy{})
	return &Composer{strategies: chain}
}

// Compose runs the chain and returns the answer plus the name of the
// strategy that produced it.
func (c *Composer) Compose(ctx context.Context, in Input) (answer, strategy string) {
	log := logging.FromContext(ctx)
	for _, s := range c.strategies {
		out, err := s.Compose(ctx, in)
		if err != nil {
			log.Warn("compose strategy failed, falling through",
				slog.String("strategy", s.Name()), slog.String("error", err.Error()))
			continue
		}
		return out, s.Name()
	}
	// Unreachable: SummaryStrategy never errors. Kept as a guard against a
	// miswired chain.
	return "I do not have sufficient context to answer this question.", "none"
}

// SummaryStrategy composes a deterministic answer from the retrieval output
// alone. It never fails and is always the last link in the chain.
type SummaryStrategy struct{}

// Name implements Strategy.
func (SummaryStrategy) Name() string { return "deterministic_summary" }

// Compose implements Strategy.
func (SummaryStrategy) Compose(_ context.Context, in Input) (string, error) {
	var b strings.Builder

	switch {
	case len(in.Events) > 0:
		fmt.Fprintf(&b, "Found %d matching event(s):\n", len(in.Events))
		for _, ev := range in.Events {
			fmt.Fprintf(&b, "- %s — %s", ev.Title, ev.Start)
			if ev.Location != "" {
				fmt.Fprintf(&b, " (%s)", ev.Location)
			}
			b.WriteString("\n")
		}
	case len(in.KBHits) > 0:
		b.WriteString("Based on the knowledge base:\n")
		for _, h := range in.KBHits {
			fmt.Fprintf(&b, "- %s\n", snippet(h.Text, 200))
		}
	default:
		return "I do not have sufficient context to answer this question.", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// snippet truncates s to at most n bytes on a word boundary.
func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
