package orchestrator

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/cal-comb/app/cache"
	"github.com/lysyi3m/cal-comb/app/database"
	"github.com/lysyi3m/cal-comb/app/event"
	"github.com/lysyi3m/cal-comb/app/ics"
	"github.com/lysyi3m/cal-comb/app/sources"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeCalendarRepo struct {
	mu        sync.Mutex
	calendars []event.Calendar
}

func (r *fakeCalendarRepo) List() ([]event.Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calendars), nil
}

func (r *fakeCalendarRepo) Get(id string) (*event.Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calendars {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeCalendarRepo) Upsert(cal event.Calendar) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.calendars {
		if c.ID == cal.ID {
			r.calendars[i] = cal
			return nil
		}
	}
	r.calendars = append(r.calendars, cal)
	return nil
}

func (r *fakeCalendarRepo) UpdateSyncStats(id string, syncedAt time.Time, eventCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.calendars {
		if r.calendars[i].ID == id {
			r.calendars[i].LastSync = &syncedAt
			r.calendars[i].EventCount = eventCount
		}
	}
	return nil
}

func (r *fakeCalendarRepo) UpdateDetails(id string, update database.CalendarUpdate) (*event.Calendar, error) {
	return r.Get(id)
}

func (r *fakeCalendarRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calendars = slices.DeleteFunc(r.calendars, func(c event.Calendar) bool { return c.ID == id })
	return nil
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events map[string][]event.Event
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[string][]event.Event)}
}

func (r *fakeEventRepo) ReplaceForCalendar(calendarID string, events []event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[calendarID] = slices.Clone(events)
	return nil
}

func (r *fakeEventRepo) Upsert(e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.CalendarID] = append(r.events[e.CalendarID], e)
	return nil
}

func (r *fakeEventRepo) Delete(calendarID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.events[calendarID])
	r.events[calendarID] = slices.DeleteFunc(r.events[calendarID], func(e event.Event) bool { return e.ID == id })
	return len(r.events[calendarID]) < before, nil
}

func (r *fakeEventRepo) ListByCalendar(calendarID string) ([]event.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events[calendarID]), nil
}

func (r *fakeEventRepo) ListAll() (map[string][]event.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]event.Event, len(r.events))
	for id, events := range r.events {
		out[id] = slices.Clone(events)
	}
	return out, nil
}

func (r *fakeEventRepo) Count(calendarID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events[calendarID]), nil
}

var (
	_ database.CalendarRepositoryInterface = (*fakeCalendarRepo)(nil)
	_ database.EventRepositoryInterface    = (*fakeEventRepo)(nil)
)

// fakeAdapter fetches the calendar ID as its body and decodes the body into
// a single event titled after it.
type fakeAdapter struct {
	mu    sync.Mutex
	kind  event.Kind
	clock *fakeClock
	fail  map[string]bool
	calls int
}

func (a *fakeAdapter) Kind() event.Kind { return a.kind }

func (a *fakeAdapter) Fetch(ctx context.Context, cal event.Calendar) (sources.Payload, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.fail[cal.ID] {
		return sources.Payload{}, ics.ErrSourceUnreachable
	}
	return sources.Payload{CalendarID: cal.ID, Kind: a.kind, Body: []byte("Meeting " + cal.ID), Via: "fake", FetchedAt: a.clock.Now()}, nil
}

func (a *fakeAdapter) Decode(cal event.Calendar, payload sources.Payload) (sources.Result, error) {
	e, err := event.New(event.Event{
		Title:      string(payload.Body),
		Date:       time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		CalendarID: cal.ID,
		SourceKind: a.kind,
		CapturedAt: payload.FetchedAt,
	})
	if err != nil {
		return sources.Result{}, err
	}
	return sources.Result{Events: []event.Event{e}, Meta: sources.Meta{Via: payload.Via, FetchedAt: payload.FetchedAt}}, nil
}

func (a *fakeAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type testEnv struct {
	clock     *fakeClock
	calendars *fakeCalendarRepo
	events    *fakeEventRepo
	feed      *fakeAdapter
	page      *fakeAdapter
	kv        cache.KV
	registry  *sources.Registry
	orch      *Orchestrator
}

func newTestEnv(t *testing.T, calendars ...event.Calendar) *testEnv {
	t.Helper()

	kv, err := cache.NewFileKV(filepath.Join(t.TempDir(), "kv.json"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kv.Close() })

	clock := newClock()
	env := &testEnv{
		clock:     clock,
		calendars: &fakeCalendarRepo{calendars: append([]event.Calendar{event.LocalCalendar()}, calendars...)},
		events:    newFakeEventRepo(),
		feed:      &fakeAdapter{kind: event.KindFeed, clock: clock, fail: map[string]bool{}},
		page:      &fakeAdapter{kind: event.KindPage, clock: clock, fail: map[string]bool{}},
		kv:        kv,
	}
	env.registry = sources.NewRegistry(env.feed, env.page)

	tiered := cache.NewTiered(cache.DefaultTTL, cache.NewMemory(), cache.NewKVTier(kv)).WithClock(clock.Now)
	limiter := NewRateLimiter(kv).WithClock(clock.Now)
	env.orch = New(env.calendars, env.events, env.registry, tiered, kv, limiter).WithClock(clock.Now)
	return env
}

func feedCal(id string) event.Calendar {
	return event.Calendar{ID: id, Name: id, Kind: event.KindFeed, URL: "https://example.com/" + id + ".ics", Enabled: true}
}

func pageCal(id string) event.Calendar {
	return event.Calendar{ID: id, Name: id, Kind: event.KindPage, URL: "https://example.notion.site/" + id, Enabled: true}
}
