// Package calendar defines the calendar provider boundary: the operations
// the core consumes (list/get/search/freebusy/insert), the normalized event
// model, and the availability resolver that keeps new events from
// double-booking. The Google implementation lives in google.go; tests use an
// in-package fake.
package calendar

import (
	"context"
	"time"
)

// Window is a timezone-aware time interval [Start, End).
type Window struct {
	// Start is the inclusive start instant.
	Start time.Time `json:"start"`
	// End is the exclusive end instant.
	End time.Time `json:"end"`
}

// Overlaps reports whether w and other overlap. The comparison is
// non-strict: windows that merely touch at an endpoint do not conflict.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Shift returns the window moved forward by d, same duration.
func (w Window) Shift(d time.Duration) Window {
	return Window{Start: w.Start.Add(d), End: w.End.Add(d)}
}

// EventDraft is the payload for creating a new event.
type EventDraft struct {
	// Title is the event summary.
	Title string
	// Description is the free-text event body, may be empty.
	Description string
	// Location is the event location, may be empty.
	Location string
	// Start and End bound the event.
	Start time.Time
	// End is the event end instant.
	End time.Time
}

// ConflictReport is the structured alternative to event creation returned
// when the requested window overlaps existing busy time. It is a normal
// outcome, not an error.
type ConflictReport struct {
	// BusyIntervals are the existing busy intervals overlapping the request.
	BusyIntervals []Window `json:"busy_intervals"`
	// Suggestions are alternative windows of the same duration that were
	// individually verified as free when the report was generated.
	Suggestions []Window `json:"suggestions"`
}

// Provider is the calendar collaborator consumed by the core. Every method
// converts provider failures into a fault.ProviderUnavailable error rather
// than letting transport errors escape; a nil error with an empty slice
// means a genuine zero-result answer. Implementations must apply bounded
// timeouts and be safe for concurrent use.
type Provider interface {
	// ListEvents returns the events between start and end, ascending by
	// start time.
	ListEvents(ctx context.Context, start, end time.Time) ([]NormalizedEvent, error)

	// GetEvent returns a single event by its provider ID.
	GetEvent(ctx context.Context, id string) (*NormalizedEvent, error)

	// SearchEvents returns events matching the free-text keyword.
	SearchEvents(ctx context.Context, keyword string) ([]NormalizedEvent, error)

	// FreeBusy returns the busy intervals inside the given window.
	FreeBusy(ctx context.Context, w Window) ([]Window, error)

	// InsertEvent creates the event and returns its created representation.
	InsertEvent(ctx context.Context, draft EventDraft) (*NormalizedEvent, error)
}
