// Package agent orchestrates the query pipeline: intent classification,
// slot extraction and clarification, dual-source retrieval, answer
// composition, grounding evaluation, and availability-checked event
// creation. The HTTP layer is a thin shell around Agent.Query.
package agent

import (
	"fmt"
	"time"

	"github.com/calai/calai-go/internal/calendar"
	"github.com/calai/calai-go/internal/compose"
	"github.com/calai/calai-go/internal/events"
	"github.com/calai/calai-go/internal/grounding"
	"github.com/calai/calai-go/internal/intent"
	"github.com/calai/calai-go/internal/kb"
	"github.com/calai/calai-go/internal/rag"
	"github.com/calai/calai-go/internal/slots"
	"github.com/calai/calai-go/internal/store"
)

// Config holds the collaborators required to construct an Agent. KB and
// Composer are mandatory; the calendar collaborators may be nil, in which
// case calendar intents degrade to knowledge-base answers and creation
// requests report the provider as unavailable.
type Config struct {
	// KB retrieves knowledge-base passages.
	KB *kb.Retriever
	// Events retrieves query-relevant calendar events. May be nil.
	Events *events.Retriever
	// Provider is the calendar collaborator. May be nil.
	Provider calendar.Provider
	// Resolver checks creation windows for conflicts. May be nil when
	// Provider is nil.
	Resolver *calendar.Resolver
	// Composer produces the final answer text.
	Composer *compose.Composer
	// Pending parks clarification rounds. May be nil to disable slot-fill
	// follow-ups.
	Pending store.ClarificationStore
	// Timezone anchors relative dates and creation windows.
	Timezone *time.Location
}

// Agent is the query pipeline. Safe for concurrent use: all mutable state
// lives in the collaborators, which manage their own synchronization.
type Agent struct {
	kb        *kb.Retriever
	events    *events.Retriever
	provider  calendar.Provider
	resolver  *calendar.Resolver
	composer  *compose.Composer
	pending   store.ClarificationStore
	extractor *slots.Extractor
	tz        *time.Location
	now       func() time.Time
}

// New constructs an Agent from the provided Config.
func New(cfg *Config) (*Agent, error) {
	if cfg.KB == nil {
		return nil, fmt.Errorf("agent: KB retriever must not be nil")
	}
	if cfg.Composer == nil {
		return nil, fmt.Errorf("agent: Composer must not be nil")
	}
	tz := cfg.Timezone
	if tz == nil {
		tz = time.UTC
	}
	return &Agent{
		kb:        cfg.KB,
		events:    cfg.Events,
		provider:  cfg.Provider,
		resolver:  cfg.Resolver,
		composer:  cfg.Composer,
		pending:   cfg.Pending,
		extractor: slots.NewExtractor(tz),
		tz:        tz,
		now:       time.Now,
	}, nil
}

// Response is the structured outcome of one query. Exactly one of the
// shapes is populated: an answered question, a clarification request, a
// conflict report, or a created event.
type Response struct {
	// Answer is the text returned to the user. Always set.
	Answer string `json:"answer"`
	// Intent is the classified intent of the query.
	Intent intent.Intent `json:"intent"`
	// References names the evidence sources behind the answer.
	References []string `json:"references"`
	// Confidence is the grounding confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Result is "PASS" or "FAIL" per the grounding verdict.
	Result string `json:"result"`
	// Strategy names the composition strategy that produced Answer.
	Strategy string `json:"strategy,omitempty"`

	// Events are the calendar events behind the answer, if any.
	Events []calendar.NormalizedEvent `json:"events,omitempty"`

	// Missing lists required creation fields still needed. Non-empty means
	// the caller should answer with just those values.
	Missing []string `json:"missing,omitempty"`
	// Slots holds the partial extraction when Missing is non-empty.
	Slots *slots.SlotSet `json:"slots,omitempty"`

	// Conflict is set when the requested window overlaps busy time.
	Conflict *calendar.ConflictReport `json:"conflict,omitempty"`
	// Created is the event representation after successful creation.
	Created *calendar.NormalizedEvent `json:"created,omitempty"`
}

const (
	resultPass = "PASS"
	resultFail = "FAIL"
)

// applyVerdict fills the grounding fields of a response.
func applyVerdict(r *Response, v grounding.Verdict) {
	r.Confidence = v.Confidence
	if v.Pass {
		r.Result = resultPass
	} else {
		r.Result = resultFail
	}
}

// references builds the user-facing source list.
func references(kbHits []rag.Hit, eventCount int) []string {
	refs := make([]string, 0, len(kbHits)+1)
	for _, h := range kbHits {
		refs = append(refs, h.SourceID)
	}
	if eventCount > 0 {
		refs = append(refs, "Google Calendar")
	}
	return refs
}
