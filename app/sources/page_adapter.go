package sources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/cal-comb/app/event"
	"github.com/lysyi3m/cal-comb/app/scrape"
)

// ViaText marks page events recovered by line scanning instead of a table
const ViaText = "text"

// PageAdapter scrapes public database pages
type PageAdapter struct {
	fetcher  scrape.Fetcher
	location *time.Location
	filterer *Filterer
}

func NewPageAdapter(fetcher scrape.Fetcher, loc *time.Location) *PageAdapter {
	if loc == nil {
		loc = time.Local
	}
	return &PageAdapter{fetcher: fetcher, location: loc, filterer: NewFilterer()}
}

func (a *PageAdapter) Kind() event.Kind { return event.KindPage }

func (a *PageAdapter) Fetch(ctx context.Context, cal event.Calendar) (Payload, error) {
	body, err := a.fetcher.Fetch(ctx, cal.URL)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to fetch page for calendar %s: %w", cal.ID, err)
	}
	return Payload{
		CalendarID: cal.ID,
		Kind:       event.KindPage,
		Body:       body,
		Via:        a.fetcher.Name(),
		FetchedAt:  time.Now(),
	}, nil
}

func (a *PageAdapter) Decode(cal event.Calendar, payload Payload) (Result, error) {
	result, err := a.Infer(cal, payload, false)
	if err != nil {
		return Result{}, err
	}

	meta := Meta{
		Via:       payload.Via,
		Strategy:  result.Metadata.Strategy,
		Rejected:  result.Metadata.Skipped,
		FetchedAt: payload.FetchedAt,
	}

	events := result.Events
	if len(events) == 0 {
		events = scrape.TextEvents(scrape.PageText(payload.Body, cal.URL), cal.URL, a.options(cal, payload, false))
		meta.Strategy = ViaText
	}

	events, meta.Filtered = a.filterer.Run(events, cal.Filters)

	slog.Debug("Page decoded", "calendar", cal.ID, "strategy", meta.Strategy, "events", len(events), "rejected", meta.Rejected)

	return Result{Events: events, Meta: meta}, nil
}

// Infer runs table inference alone, optionally with a debug trace
func (a *PageAdapter) Infer(cal event.Calendar, payload Payload, debug bool) (scrape.Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload.Body))
	if err != nil {
		return scrape.Result{}, fmt.Errorf("failed to parse page for calendar %s: %w", cal.ID, err)
	}
	return scrape.Infer(doc, cal.URL, a.options(cal, payload, debug)), nil
}

func (a *PageAdapter) options(cal event.Calendar, payload Payload, debug bool) scrape.Options {
	opts := scrape.Options{CalendarID: cal.ID, Location: a.location, Debug: debug}
	if !payload.FetchedAt.IsZero() {
		fetchedAt := payload.FetchedAt
		opts.Now = func() time.Time { return fetchedAt }
	}
	return opts
}
