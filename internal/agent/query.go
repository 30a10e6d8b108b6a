package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/calai/calai-go/internal/calendar"
	"github.com/calai/calai-go/internal/compose"
	"github.com/calai/calai-go/internal/grounding"
	"github.com/calai/calai-go/internal/intent"
	"github.com/calai/calai-go/internal/logging"
	"github.com/calai/calai-go/internal/rag"
	"github.com/calai/calai-go/internal/slots"
)

// Query runs one user query through the pipeline. session identifies the
// conversation for clarification follow-ups; it may be empty for one-shot
// callers. The returned error is reserved for internal wiring failures —
// provider outages, empty retrieval, conflicts, and clarification requests
// are all expressed in the Response.
func (a *Agent) Query(ctx context.Context, session, query string) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("agent: empty query")
	}

	// A parked clarification round means this message answers our previous
	// question; route it back into creation before classifying anew.
	if a.pending != nil && session != "" {
		p, err := a.pending.Take(ctx, session)
		if err != nil {
			logging.FromContext(ctx).Warn("pending round lookup failed",
				slog.String("session", session), slog.String("error", err.Error()))
		} else if p != nil {
			return a.resumeCreation(ctx, p, query)
		}
	}

	in := intent.Classify(query)
	if in == intent.CreateEvent {
		return a.create(ctx, session, query)
	}
	return a.answer(ctx, query, in)
}

// answer handles every non-creation intent: ambiguity check, parallel
// dual-source retrieval, composition, grounding.
func (a *Agent) answer(ctx context.Context, query string, in intent.Intent) (*Response, error) {
	if missing := slots.DetectAmbiguity(query); len(missing) > 0 {
		return &Response{
			Answer: fmt.Sprintf("The query is ambiguous. Please provide the following details: %s.",
				strings.Join(missing, ", ")),
			Intent:     in,
			References: []string{},
			Confidence: 0.6,
			Result:     resultPass,
			Missing:    missing,
		}, nil
	}

	log := logging.FromContext(ctx)

	var (
		kbHits   []rag.Hit
		evHits   []rag.Hit
		evs      []calendar.NormalizedEvent
		toolUsed bool
	)

	// KB and event retrieval are independent; run them concurrently. Either
	// side failing degrades to its empty result rather than failing the
	// query, so the goroutines never return errors.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := a.kb.Retrieve(gctx, query, 0, 0)
		if err != nil {
			log.Warn("kb retrieval failed, degrading to empty",
				slog.String("error", err.Error()))
			return nil
		}
		kbHits = hits
		return nil
	})
	if in.IsCalendarIntent() && a.events != nil {
		g.Go(func() error {
			hits, matched, err := a.retrieveEvents(gctx, query, in)
			if err != nil {
				log.Warn("event retrieval failed, degrading to kb only",
					slog.String("error", err.Error()))
				return nil
			}
			evHits, evs, toolUsed = hits, matched, true
			return nil
		})
	}
	_ = g.Wait()

	answer, strategy := a.composer.Compose(ctx, compose.Input{
		Query:     query,
		KBHits:    kbHits,
		EventHits: evHits,
		Events:    evs,
		ToolUsed:  toolUsed,
	})

	allHits := append(append([]rag.Hit{}, evHits...), kbHits...)
	verdict := grounding.Evaluate(answer, allHits, toolUsed)

	resp := &Response{
		Answer:     answer,
		Intent:     in,
		References: references(kbHits, len(evs)),
		Strategy:   strategy,
		Events:     evs,
	}
	applyVerdict(resp, verdict)
	return resp, nil
}

// retrieveEvents picks the provider operation for the intent: keyword search
// for detail/search queries, the semantic lookahead scan otherwise.
func (a *Agent) retrieveEvents(ctx context.Context, query string, in intent.Intent) ([]rag.Hit, []calendar.NormalizedEvent, error) {
	switch in {
	case intent.SearchEvents, intent.GetEventDetails:
		found, err := a.provider.SearchEvents(ctx, searchKeyword(query))
		if err != nil {
			return nil, nil, err
		}
		hits, err := a.events.Score(ctx, query, found)
		if err != nil {
			return nil, nil, err
		}
		return hits, matchByID(hits, found), nil
	default:
		return a.events.Retrieve(ctx, query)
	}
}

// searchKeyword strips the intent trigger words so the provider keyword
// search sees only the subject of the query.
func searchKeyword(query string) string {
	stop := map[string]bool{
		"search": true, "find": true, "details": true, "for": true,
		"the": true, "a": true, "an": true, "of": true, "my": true,
		"about": true, "event": true, "events": true,
	}
	var kept []string
	for _, w := range strings.Fields(query) {
		if !stop[strings.ToLower(strings.Trim(w, ".,?!"))] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return query
	}
	return strings.Join(kept, " ")
}

func matchByID(hits []rag.Hit, evs []calendar.NormalizedEvent) []calendar.NormalizedEvent {
	byID := make(map[string]calendar.NormalizedEvent, len(evs))
	for _, ev := range evs {
		byID[ev.ID] = ev
	}
	out := make([]calendar.NormalizedEvent, 0, len(hits))
	for _, h := range hits {
		if ev, ok := byID[h.SourceID]; ok {
			out = append(out, ev)
		}
	}
	return out
}
