package calendar

import (
	"strings"

	gcal "google.golang.org/api/calendar/v3"
)

// noTitlePlaceholder is substituted when a provider event has no summary,
// so downstream rendering never deals with empty titles.
const noTitlePlaceholder = "(No title)"

// NormalizedEvent is the provider-independent event model used throughout
// the pipeline. Start/End keep the provider's string form: the precise
// dateTime when present, otherwise the date-only value (all-day events).
type NormalizedEvent struct {
	// ID is the provider event identifier.
	ID string `json:"id"`
	// Title is the event summary, never empty (placeholder when absent).
	Title string `json:"title"`
	// Start is the event start, RFC3339 or YYYY-MM-DD for all-day events.
	Start string `json:"start"`
	// End is the event end in the same form as Start.
	End string `json:"end"`
	// Description is the free-text event body, may be empty.
	Description string `json:"description,omitempty"`
	// Location is the event location, may be empty.
	Location string `json:"location,omitempty"`
	// Link is the provider's browser URL for the event, may be empty.
	Link string `json:"link,omitempty"`
	// Status is the provider status (confirmed, tentative, cancelled).
	Status string `json:"status,omitempty"`
}

// CanonicalText renders the event as the fixed-order text used for
// embedding: title, start, location, description. The order is part of the
// retrieval contract — scoring must be stable regardless of how the source
// record orders its fields.
func (e NormalizedEvent) CanonicalText() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{e.Title, e.Start, e.Location, e.Description} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Normalize converts a Google Calendar event into the provider-independent
// model, coalescing missing fields. Returns the zero value for a nil input.
func Normalize(ev *gcal.Event) NormalizedEvent {
	if ev == nil {
		return NormalizedEvent{}
	}

	n := NormalizedEvent{
		ID:          ev.Id,
		Title:       ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Link:        ev.HtmlLink,
		Status:      ev.Status,
	}
	if n.Title == "" {
		n.Title = noTitlePlaceholder
	}
	if ev.Start != nil {
		n.Start = coalesce(ev.Start.DateTime, ev.Start.Date)
	}
	if ev.End != nil {
		n.End = coalesce(ev.End.DateTime, ev.End.Date)
	}
	return n
}

// NormalizeAll converts a slice of provider events, skipping nil entries.
func NormalizeAll(events []*gcal.Event) []NormalizedEvent {
	out := make([]NormalizedEvent, 0, len(events))
	for _, ev := range events {
		if ev == nil {
			continue
		}
		out = append(out, Normalize(ev))
	}
	return out
}

// coalesce returns the first non-empty string.
func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
