// Package intent maps a raw user query onto one of the five pipeline
// intents using ordered keyword rules. Rules are deterministic and cheap:
// the classifier runs on every request before any model call.
package intent

import "strings"

// Intent selects which pipeline branch handles a query.
type Intent string

const (
	// CreateEvent means the user wants a new calendar event.
	CreateEvent Intent = "CREATE_EVENT"
	// ListEvents means the user wants their upcoming schedule.
	ListEvents Intent = "LIST_EVENTS"
	// GetEventDetails means the user wants details of a specific event.
	GetEventDetails Intent = "GET_EVENT_DETAILS"
	// SearchEvents means the user wants events matching a keyword.
	SearchEvents Intent = "SEARCH_EVENTS"
	// RAGOnly means the query is answered from the knowledge base alone.
	RAGOnly Intent = "RAG_ONLY"
)

// rule pairs trigger keywords with the intent they select. Rules are
// evaluated in order and the first match wins, so creation verbs take
// precedence over the generic calendar words that often accompany them
// ("schedule a meeting on my calendar").
type rule struct {
	keywords []string
	intent   Intent
}

var rules = []rule{
	{[]string{"create", "schedule"}, CreateEvent},
	{[]string{"list", "upcoming"}, ListEvents},
	{[]string{"calendar", "event", "events"}, ListEvents},
	{[]string{"details"}, GetEventDetails},
	{[]string{"search", "find"}, SearchEvents},
}

// Classify returns the intent for a query. Matching is case-insensitive
// substring matching; a query that triggers no rule is answered from the
// knowledge base only.
func Classify(query string) Intent {
	q := strings.ToLower(query)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(q, kw) {
				return r.intent
			}
		}
	}
	return RAGOnly
}

// IsCalendarIntent reports whether the intent touches the calendar provider.
func (i Intent) IsCalendarIntent() bool {
	return i != RAGOnly
}
