package calendar

import (
	"context"
	"log/slog"
	"time"

	"github.com/calai/calai-go/internal/logging"
)

const (
	// maxProbes is how many hourly shifts are tried after a conflict.
	maxProbes = 5
	// maxSuggestions caps the alternatives returned in a ConflictReport.
	maxSuggestions = 3
	// probeStep is the shift between consecutive alternative windows.
	probeStep = time.Hour
)

// Resolver checks a candidate window against the provider's busy time and,
// when the window conflicts, probes later same-duration windows for
// alternatives.
type Resolver struct {
	provider Provider
}

// NewResolver returns a Resolver backed by the given provider.
func NewResolver(p Provider) *Resolver {
	return &Resolver{provider: p}
}

// Resolve checks whether w is free. A nil report means the window is free
// and creation may proceed. A non-nil report carries the overlapping busy
// intervals plus up to three verified-free alternatives; it is a normal
// outcome. The error is non-nil only when the initial freebusy check itself
// fails — probe failures are treated as busy, never as errors.
func (r *Resolver) Resolve(ctx context.Context, w Window) (*ConflictReport, error) {
	busy, err := r.provider.FreeBusy(ctx, w)
	if err != nil {
		return nil, err
	}

	conflicts := overlapping(w, busy)
	if len(conflicts) == 0 {
		return nil, nil
	}

	report := &ConflictReport{BusyIntervals: conflicts}
	for i := 1; i <= maxProbes && len(report.Suggestions) < maxSuggestions; i++ {
		probe := w.Shift(time.Duration(i) * probeStep)
		probeBusy, err := r.provider.FreeBusy(ctx, probe)
		if err != nil {
			// An unverifiable window is never suggested.
			logging.FromContext(ctx).Debug("availability probe failed, treating as busy",
				slog.Time("start", probe.Start), slog.String("error", err.Error()))
			continue
		}
		if len(overlapping(probe, probeBusy)) == 0 {
			report.Suggestions = append(report.Suggestions, probe)
		}
	}
	return report, nil
}

// overlapping returns the busy intervals that actually overlap w.
func overlapping(w Window, busy []Window) []Window {
	var out []Window
	for _, b := range busy {
		if w.Overlaps(b) {
			out = append(out, b)
		}
	}
	return out
}
