package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/cal-comb/app/event"
	"github.com/lysyi3m/cal-comb/app/ics"
)

type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) (*ics.FetchResult, error)
}

var _ FeedFetcher = (*ics.Fetcher)(nil)

// FeedAdapter reads iCalendar feeds and expands them over one year. A
// definition whose content hash is unchanged since the previous decode of
// the same calendar reuses its earlier occurrences.
type FeedAdapter struct {
	fetcher  FeedFetcher
	year     int
	location *time.Location
	filterer *Filterer
	now      func() time.Time

	mu       sync.Mutex
	expanded map[string]expansion
}

// expansion is the reusable output of one calendar's last decode
type expansion struct {
	url    string
	window ics.Window
	byHash map[string][]event.Event
}

// NewFeedAdapter expands into year, or into the current year at decode
// time when year is zero or lower.
func NewFeedAdapter(fetcher FeedFetcher, year int, loc *time.Location) *FeedAdapter {
	if loc == nil {
		loc = time.Local
	}
	return &FeedAdapter{
		fetcher:  fetcher,
		year:     year,
		location: loc,
		filterer: NewFilterer(),
		now:      time.Now,
		expanded: make(map[string]expansion),
	}
}

func (a *FeedAdapter) WithClock(now func() time.Time) *FeedAdapter {
	a.now = now
	return a
}

func (a *FeedAdapter) window() ics.Window {
	year := a.year
	if year <= 0 {
		year = a.now().In(a.location).Year()
	}
	return ics.YearWindow(year, a.location)
}

func (a *FeedAdapter) Kind() event.Kind { return event.KindFeed }

func (a *FeedAdapter) Fetch(ctx context.Context, cal event.Calendar) (Payload, error) {
	res, err := a.fetcher.Fetch(ctx, cal.URL)
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		CalendarID: cal.ID,
		Kind:       event.KindFeed,
		Body:       res.Body,
		Via:        res.Via,
		FetchedAt:  res.FetchedAt,
	}, nil
}

func (a *FeedAdapter) Decode(cal event.Calendar, payload Payload) (Result, error) {
	defs, err := ics.Parse(payload.Body, a.location)
	if err != nil {
		return Result{}, fmt.Errorf("failed to decode feed for calendar %s: %w", cal.ID, err)
	}

	window := a.window()
	x := ics.NewExpander(window, a.location, cal.ID, cal.URL)
	if !payload.FetchedAt.IsZero() {
		x.CapturedAt = payload.FetchedAt
	}
	expanded, reused := a.expand(x, cal, window, defs)
	events, filtered := a.filterer.Run(expanded, cal.Filters)

	slog.Debug("Feed decoded", "calendar", cal.ID, "year", window.Start.Year(), "definitions", len(defs), "unchanged", reused, "events", len(events), "filtered", filtered)

	return Result{
		Events: events,
		Meta: Meta{
			Via:         payload.Via,
			Definitions: len(defs),
			Filtered:    filtered,
			FetchedAt:   payload.FetchedAt,
		},
	}, nil
}

// expand re-expands only the definitions whose hash the previous decode of
// cal did not see, and reports how many were reused.
func (a *FeedAdapter) expand(x *ics.Expander, cal event.Calendar, window ics.Window, defs []ics.Definition) ([]event.Event, int) {
	a.mu.Lock()
	prev, ok := a.expanded[cal.ID]
	a.mu.Unlock()
	if !ok || prev.url != cal.URL || prev.window != window {
		prev = expansion{}
	}

	next := expansion{url: cal.URL, window: window, byHash: make(map[string][]event.Event, len(defs))}
	events := make([]event.Event, 0, len(defs))
	reused := 0

	for _, def := range defs {
		hash := def.Hash()
		occurrences, seen := next.byHash[hash]
		if !seen {
			occurrences, seen = prev.byHash[hash]
			if seen {
				occurrences = recaptured(occurrences, x.CapturedAt)
				reused++
			} else {
				occurrences = x.ExpandAll([]ics.Definition{def})
			}
			next.byHash[hash] = occurrences
		}
		events = append(events, occurrences...)
	}

	a.mu.Lock()
	a.expanded[cal.ID] = next
	a.mu.Unlock()

	return events, reused
}

func recaptured(events []event.Event, at time.Time) []event.Event {
	out := make([]event.Event, len(events))
	for i, e := range events {
		e = e.Clone()
		e.CapturedAt = at
		out[i] = e
	}
	return out
}
