// Package events scores live calendar events against a user query so that
// only events actually related to the question reach the answer composer. A
// two-stage filter keeps the result set tight: an absolute score floor plus
// a relative cut against the best-scoring event.
package events

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/calai/calai-go/internal/calendar"
	"github.com/calai/calai-go/internal/rag"
)

const (
	// DefaultTopK caps the number of events returned per query.
	DefaultTopK = 5
	// DefaultThreshold is the absolute similarity floor. When even the best
	// event scores below it, the query is unrelated to the calendar and the
	// result is empty.
	DefaultThreshold = 0.18
	// relativeFactor keeps an event only when it scores at least this
	// fraction of the best event's score.
	relativeFactor = 0.5

	// DefaultLookahead bounds how far into the future events are fetched.
	DefaultLookahead = 30 * 24 * time.Hour
)

// Retriever embeds upcoming events on the fly and returns those relevant to
// a query. Event vectors are computed per request; live calendar data is too
// mutable to cache the way the knowledge base is.
type Retriever struct {
	provider  calendar.Provider
	embedder  rag.Embedder
	topK      int
	threshold float64
	lookahead time.Duration
	now       func() time.Time
}

// NewRetriever builds a Retriever with the default filter parameters.
func NewRetriever(p calendar.Provider, e rag.Embedder) (*Retriever, error) {
	if p == nil {
		return nil, fmt.Errorf("events: provider is required")
	}
	if e == nil {
		return nil, fmt.Errorf("events: embedder is required")
	}
	return &Retriever{
		provider:  p,
		embedder:  e,
		topK:      DefaultTopK,
		threshold: DefaultThreshold,
		lookahead: DefaultLookahead,
		now:       time.Now,
	}, nil
}

// SetLookahead overrides how far into the future Retrieve scans. Zero or
// negative durations keep the current value.
func (r *Retriever) SetLookahead(d time.Duration) {
	if d > 0 {
		r.lookahead = d
	}
}

// Retrieve fetches upcoming events, scores each against the query, and
// returns the filtered hits in descending score order plus the events they
// refer to. An empty result means no event cleared the filter; provider and
// embedder failures propagate as their classified errors.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]rag.Hit, []calendar.NormalizedEvent, error) {
	start := r.now()
	evs, err := r.provider.ListEvents(ctx, start, start.Add(r.lookahead))
	if err != nil {
		return nil, nil, err
	}
	hits, err := r.Score(ctx, query, evs)
	if err != nil {
		return nil, nil, err
	}
	return hits, matchEvents(hits, evs), nil
}

// Score runs the two-stage filter over an explicit event set, for callers
// that fetched events themselves (keyword search).
func (r *Retriever) Score(ctx context.Context, query string, evs []calendar.NormalizedEvent) ([]rag.Hit, error) {
	if len(evs) == 0 {
		return nil, nil
	}

	texts := make([]string, 0, len(evs)+1)
	texts = append(texts, query)
	for _, ev := range evs {
		texts = append(texts, ev.CanonicalText())
	}
	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("events: embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	queryVec := vectors[0]

	hits := make([]rag.Hit, 0, len(evs))
	best := 0.0
	for i, ev := range evs {
		score := rag.CosineSimilarity(queryVec, vectors[i+1])
		if score > best {
			best = score
		}
		hits = append(hits, rag.Hit{
			SourceID: ev.ID,
			Text:     ev.CanonicalText(),
			Score:    score,
			Origin:   rag.OriginEvent,
		})
	}

	// Stage one: if nothing clears the absolute floor the calendar is not
	// what the user is asking about.
	if best < r.threshold {
		return nil, nil
	}

	// Stage two: keep events near the best match, drop distant stragglers
	// that happen to clear the floor.
	cutoff := best * relativeFactor
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= r.threshold && h.Score >= cutoff {
			kept = append(kept, h)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > r.topK {
		kept = kept[:r.topK]
	}
	return kept, nil
}

// matchEvents returns the events behind hits, in hit order.
func matchEvents(hits []rag.Hit, evs []calendar.NormalizedEvent) []calendar.NormalizedEvent {
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
