package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/calai/calai-go/internal/fault"
)

const (
	// readTimeout bounds list/get/search/freebusy calls.
	readTimeout = 15 * time.Second
	// createTimeout bounds event insertion, which Google serves slower.
	createTimeout = 60 * time.Second

	primaryCalendar = "primary"
)

// GoogleProvider implements Provider on top of the Google Calendar v3 API.
// All failures surface as fault.ProviderUnavailable.
type GoogleProvider struct {
	svc      *gcal.Service
	calendar string
	timezone *time.Location
}

// NewGoogleProvider builds a provider from an OAuth-authorized HTTP client.
func NewGoogleProvider(ctx context.Context, client *http.Client, tz *time.Location) (*GoogleProvider, error) {
	svc, err := gcal.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fault.Wrap(fault.ProviderUnavailable, "create calendar service", err)
	}
	if tz == nil {
		tz = time.UTC
	}
	return &GoogleProvider{svc: svc, calendar: primaryCalendar, timezone: tz}, nil
}

// ListEvents returns events in [start, end), recurring events expanded and
// ordered by start time.
func (p *GoogleProvider) ListEvents(ctx context.Context, start, end time.Time) ([]NormalizedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	resp, err := p.svc.Events.List(p.calendar).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).Do()
	if err != nil {
		return nil, fault.Wrap(fault.ProviderUnavailable, "list events", err)
	}
	return NormalizeAll(resp.Items), nil
}

// GetEvent returns a single event by ID.
func (p *GoogleProvider) GetEvent(ctx context.Context, id string) (*NormalizedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	ev, err := p.svc.Events.Get(p.calendar, id).Context(ctx).Do()
	if err != nil {
		return nil, fault.Wrap(fault.ProviderUnavailable, fmt.Sprintf("get event %s", id), err)
	}
	n := Normalize(ev)
	return &n, nil
}

// SearchEvents returns events matching the free-text keyword.
func (p *GoogleProvider) SearchEvents(ctx context.Context, keyword string) ([]NormalizedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	resp, err := p.svc.Events.List(p.calendar).
		Q(keyword).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).Do()
	if err != nil {
		return nil, fault.Wrap(fault.ProviderUnavailable, "search events", err)
	}
	return NormalizeAll(resp.Items), nil
}

// FreeBusy returns the busy intervals inside the window for the primary
// calendar.
func (p *GoogleProvider) FreeBusy(ctx context.Context, w Window) ([]Window, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	resp, err := p.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: w.Start.Format(time.RFC3339),
		TimeMax: w.End.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: p.calendar}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fault.Wrap(fault.ProviderUnavailable, "freebusy query", err)
	}

	cal, ok := resp.Calendars[p.calendar]
	if !ok {
		return nil, nil
	}
	busy := make([]Window, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fault.Wrap(fault.ProviderUnavailable, "parse busy interval", err)
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fault.Wrap(fault.ProviderUnavailable, "parse busy interval", err)
		}
		busy = append(busy, Window{Start: start.In(p.timezone), End: end.In(p.timezone)})
	}
	return busy, nil
}

// InsertEvent creates the event on the primary calendar.
func (p *GoogleProvider) InsertEvent(ctx context.Context, draft EventDraft) (*NormalizedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, createTimeout)
	defer cancel()

	ev := &gcal.Event{
		Summary:     draft.Title,
		Description: draft.Description,
		Location:    draft.Location,
		Start: &gcal.EventDateTime{
			DateTime: draft.Start.Format(time.RFC3339),
			TimeZone: p.timezone.String(),
		},
		End: &gcal.EventDateTime{
			DateTime: draft.End.Format(time.RFC3339),
			TimeZone: p.timezone.String(),
		},
	}
	created, err := p.svc.Events.Insert(p.calendar, ev).Context(ctx).Do()
	if err != nil {
		return nil, fault.Wrap(fault.ProviderUnavailable, "insert event", err)
	}
	n := Normalize(created)
	return &n, nil
}

var _ Provider = (*GoogleProvider)(nil)
