package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calai/calai-go/internal/calendar"
	"github.com/calai/calai-go/internal/grounding"
	"github.com/calai/calai-go/internal/intent"
	"github.com/calai/calai-go/internal/logging"
	"github.com/calai/calai-go/internal/slots"
	"github.com/calai/calai-go/internal/store"
)

const providerDownAnswer = "Calendar integration is not available. Connect Google Calendar first and try again."

// create handles a fresh creation request: extract slots, park a
// clarification round when incomplete, otherwise resolve availability and
// insert the event.
func (a *Agent) create(ctx context.Context, session, query string) (*Response, error) {
	ex := a.extractor.Extract(query)
	if !ex.Complete() {
		if a.pending != nil && session != "" {
			err := a.pending.Put(ctx, store.Pending{
				ID:      uuid.NewString(),
				Session: session,
				Query:   query,
				Slots:   ex.Slots,
				Missing: ex.Missing,
			})
			if err != nil {
				logging.FromContext(ctx).Warn("failed to park clarification round",
					slog.String("session", session), slog.String("error", err.Error()))
			}
		}
		return clarificationResponse(ex), nil
	}
	return a.finishCreation(ctx, ex.Slots)
}

// resumeCreation merges a follow-up message into the parked round. Only one
// clarification round is supported: if fields are still missing afterwards
// the round is not re-parked and the user must restart the request.
func (a *Agent) resumeCreation(ctx context.Context, p *store.Pending, message string) (*Response, error) {
	ex := a.extractor.Extract(message)
	merged := p.Slots
	if merged.Title == "" {
		// A bare follow-up like "standup" carries the title without any
		// marker; fall back to the whole message when extraction found none.
		merged.Title = ex.Slots.Title
		if merged.Title == "" && !containsField(p.Missing, slots.FieldDate) && !containsField(p.Missing, slots.FieldStartTime) {
			merged.Title = trimShort(message)
		}
	}
	if merged.Date == "" {
		merged.Date = ex.Slots.Date
	}
	if merged.StartTime == "" {
		merged.StartTime = ex.Slots.StartTime
		merged.EndTime = ex.Slots.EndTime
	}
	if merged.Location == "" {
		merged.Location = ex.Slots.Location
	}

	var missing []string
	if merged.Title == "" {
		missing = append(missing, slots.FieldTitle)
	}
	if merged.Date == "" {
		missing = append(missing, slots.FieldDate)
	}
	if merged.StartTime == "" {
		missing = append(missing, slots.FieldStartTime)
	}
	if len(missing) > 0 {
		return clarificationResponse(slots.Extraction{Slots: merged, Missing: missing}), nil
	}
	return a.finishCreation(ctx, merged)
}

// finishCreation resolves availability for the requested window and inserts
// the event when free. Provider failures produce a structured FAIL response,
// never an error.
func (a *Agent) finishCreation(ctx context.Context, s slots.SlotSet) (*Response, error) {
	if a.provider == nil || a.resolver == nil {
		return failResponse(providerDownAnswer), nil
	}

	window, err := a.creationWindow(s)
	if err != nil {
		return clarificationResponse(slots.Extraction{
			Slots:   s,
			Missing: []string{slots.FieldDate, slots.FieldStartTime},
		}), nil
	}

	report, err := a.resolver.Resolve(ctx, window)
	if err != nil {
		logging.FromContext(ctx).Warn("availability check failed",
			slog.String("error", err.Error()))
		return failResponse(providerDownAnswer), nil
	}
	if report != nil {
		resp := &Response{
			Answer:     conflictAnswer(s.Title, report),
			Intent:     intent.CreateEvent,
			References: []string{"Google Calendar"},
			Conflict:   report,
		}
		applyVerdict(resp, grounding.Evaluate(resp.Answer, nil, true))
		return resp, nil
	}

	created, err := a.provider.InsertEvent(ctx, calendar.EventDraft{
		Title:    s.Title,
		Location: s.Location,
		Start:    window.Start,
		End:      window.End,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("event insertion failed",
			slog.String("error", err.Error()))
		return failResponse(providerDownAnswer), nil
	}

	resp := &Response{
		Answer: fmt.Sprintf("Created %q on %s at %s.", created.Title, s.Date, s.StartTime),
		Intent: intent.CreateEvent,
		References: []string{
			"Google Calendar",
		},
		Created: created,
		Events:  []calendar.NormalizedEvent{*created},
	}
	applyVerdict(resp, grounding.Evaluate(resp.Answer, nil, true))
	return resp, nil
}

// creationWindow builds the timezone-anchored window from the extracted
// date and times. An end time at or before the start means the event wraps
// past midnight into the next day.
func (a *Agent) creationWindow(s slots.SlotSet) (calendar.Window, error) {
	start, err := time.ParseInLocation("2006-01-02 15:04", s.Date+" "+s.StartTime, a.tz)
	if err != nil {
		return calendar.Window{}, fmt.Errorf("agent: parse start: %w", err)
	}
	endTime := s.EndTime
	if endTime == "" {
		endTime = s.StartTime
	}
	end, err := time.ParseInLocation("2006-01-02 15:04", s.Date+" "+endTime, a.tz)
	if err != nil {
		return calendar.Window{}, fmt.Errorf("agent: parse end: %w", err)
	}
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return calendar.Window{Start: start, End: end}, nil
}

func clarificationResponse(ex slots.Extraction) *Response {
	s := ex.Slots
	return &Response{
		Answer: fmt.Sprintf("I need more information to create this event. Please provide: %s.",
			strings.Join(ex.Missing, ", ")),
		Intent:     intent.CreateEvent,
		References: []string{},
		Confidence: 0.6,
		Result:     resultPass,
		Missing:    ex.Missing,
		Slots:      &s,
	}
}

func failResponse(answer string) *Response {
	return &Response{
		Answer:     answer,
		Intent:     intent.CreateEvent,
		References: []string{},
		Confidence: 0,
		Result:     resultFail,
	}
}

func conflictAnswer(title string, report *calendar.ConflictReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The requested time for %q conflicts with %d existing event(s).", title, len(report.BusyIntervals))
	if len(report.Suggestions) > 0 {
		b.WriteString(" Free alternatives:")
		for _, w := range report.Suggestions {
			fmt.Fprintf(&b, " %s–%s;", w.Start.Format("Mon 15:04"), w.End.Format("15:04"))
		}
	}
	return strings.TrimRight(b.String(), ";")
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// trimShort caps a free-text follow-up at eight words for use as a title.
func trimShort(s string) string {
	words := strings.Fields(strings.TrimSpace(s))
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.Join(words, " ")
}
