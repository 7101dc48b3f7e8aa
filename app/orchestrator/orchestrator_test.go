package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lysyi3m/cal-comb/app/event"
	"github.com/lysyi3m/cal-comb/app/sources"
)

func TestSyncAllRateLimited(t *testing.T) {
	env := newTestEnv(t, feedCal("team"))
	ctx := context.Background()

	if _, err := env.orch.SyncAll(ctx, false); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	env.clock.Advance(time.Minute)
	result, err := env.orch.SyncAll(ctx, false)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
	if result.Synced != 1 {
		t.Errorf("Expected previous result to be returned, got %+v", result)
	}
	if env.feed.Calls() != 1 {
		t.Errorf("Expected exactly 1 fetch, got %d", env.feed.Calls())
	}

	if _, err := env.orch.SyncAll(ctx, true); err != nil {
		t.Fatalf("Unexpected error on forced sync: %v", err)
	}
	if env.feed.Calls() != 2 {
		t.Errorf("Expected forced sync to fetch, got %d fetches", env.feed.Calls())
	}

	env.clock.Advance(CalendarsInterval)
	if _, err := env.orch.SyncAll(ctx, false); err != nil {
		t.Errorf("Expected sync after interval, got %v", err)
	}
}

func TestSyncAllPartialFailure(t *testing.T) {
	env := newTestEnv(t, feedCal("a"), feedCal("b"), feedCal("c"))
	ctx := context.Background()

	stale, err := event.New(event.Event{Title: "Old", Date: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), CalendarID: "b"})
	if err != nil {
		t.Fatal(err)
	}
	env.events.ReplaceForCalendar("b", []event.Event{stale})
	env.feed.fail["b"] = true

	result, err := env.orch.SyncAll(ctx, false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Total != 3 || result.Synced != 2 || result.Errored != 1 {
		t.Errorf("Expected 2 synced, 1 errored of 3, got %+v", result)
	}
	if env.feed.Calls() != 3 {
		t.Errorf("Expected every calendar to be attempted, got %d fetches", env.feed.Calls())
	}

	status := env.orch.Status(feedCal("b"))
	if status.State != StateErrored {
		t.Errorf("Expected state errored, got '%s'", status.State)
	}
	if status.Error == "" {
		t.Error("Expected error message on errored calendar")
	}

	kept, _ := env.events.ListByCalendar("b")
	if len(kept) != 1 || kept[0].Title != "Old" {
		t.Errorf("Expected errored calendar to keep its events, got %d", len(kept))
	}

	if s := env.orch.Status(feedCal("a")); s.State != StateSynced || s.EventCount != 1 || s.LastSync == nil {
		t.Errorf("Unexpected status for synced calendar: %+v", s)
	}
}

func TestSyncAllSkipsDisabledAndLocal(t *testing.T) {
	disabled := feedCal("off")
	disabled.Enabled = false
	env := newTestEnv(t, disabled, feedCal("on"))

	result, err := env.orch.SyncAll(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 1 {
		t.Errorf("Expected 1 calendar in pass, got %d", result.Total)
	}
	if env.feed.Calls() != 1 {
		t.Errorf("Expected 1 fetch, got %d", env.feed.Calls())
	}
}

func TestSyncAllPagesHourly(t *testing.T) {
	env := newTestEnv(t, pageCal("club"))
	ctx := context.Background()

	if _, err := env.orch.SyncAll(ctx, false); err != nil {
		t.Fatal(err)
	}

	env.clock.Advance(CalendarsInterval + time.Minute)
	result, err := env.orch.SyncAll(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if env.page.Calls() != 1 {
		t.Errorf("Expected page to be fetched once within the hour, got %d", env.page.Calls())
	}
	if result.Synced != 1 {
		t.Errorf("Expected page not due to count as synced, got %+v", result)
	}

	env.clock.Advance(PagesInterval)
	if _, err := env.orch.SyncAll(ctx, false); err != nil {
		t.Fatal(err)
	}
	if env.page.Calls() != 2 {
		t.Errorf("Expected page to be fetched after an hour, got %d", env.page.Calls())
	}
}

func TestSyncAllHonorsSyncFrequency(t *testing.T) {
	cal := feedCal("slow")
	cal.SyncFrequency = 3600
	env := newTestEnv(t, cal)
	ctx := context.Background()

	if _, err := env.orch.SyncAll(ctx, false); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(10 * time.Minute)
	if _, err := env.orch.SyncAll(ctx, false); err != nil {
		t.Fatal(err)
	}
	if env.feed.Calls() != 1 {
		t.Errorf("Expected 1 fetch within sync frequency, got %d", env.feed.Calls())
	}
}

func TestSyncCalendar(t *testing.T) {
	env := newTestEnv(t, feedCal("team"))
	ctx := context.Background()

	status, err := env.orch.SyncCalendar(ctx, "team")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if status.State != StateSynced {
		t.Errorf("Expected state synced, got '%s'", status.State)
	}

	if _, err := env.orch.SyncCalendar(ctx, "missing"); !errors.Is(err, ErrUnknownCalendar) {
		t.Errorf("Expected ErrUnknownCalendar, got %v", err)
	}
	if _, err := env.orch.SyncCalendar(ctx, event.DefaultCalendarID); !errors.Is(err, ErrNotSyncable) {
		t.Errorf("Expected ErrNotSyncable, got %v", err)
	}
}

func TestStatusIdleBeforeSync(t *testing.T) {
	env := newTestEnv(t, feedCal("team"))

	if s := env.orch.Status(feedCal("team")); s.State != StateIdle {
		t.Errorf("Expected state idle, got '%s'", s.State)
	}
}

func TestActivateDrainsHandoff(t *testing.T) {
	env := newTestEnv(t, feedCal("team"), feedCal("gone"))
	ctx := context.Background()
	handoff := NewHandoff(env.kv)

	payload := sources.Payload{CalendarID: "team", Kind: event.KindFeed, Body: []byte("Offsite"), Via: "fake", FetchedAt: env.clock.Now()}
	if err := handoff.Push(ctx, payload, env.clock.Now()); err != nil {
		t.Fatal(err)
	}
	orphan := sources.Payload{CalendarID: "gone", Kind: event.KindFeed, Body: []byte("Lost"), FetchedAt: env.clock.Now()}
	if err := handoff.Push(ctx, orphan, env.clock.Now()); err != nil {
		t.Fatal(err)
	}
	env.calendars.Delete("gone")

	merged, err := env.orch.Activate(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if merged != 1 {
		t.Errorf("Expected 1 merged record, got %d", merged)
	}

	stored, _ := env.events.ListByCalendar("team")
	if len(stored) != 1 || stored[0].Title != "Offsite" {
		t.Errorf("Expected handoff events to be stored, got %v", stored)
	}

	pending, err := handoff.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected empty handoff queue, got %d records", len(pending))
	}
}

func TestMergeKeepsNewerCapture(t *testing.T) {
	env := newTestEnv(t, feedCal("team"))
	ctx := context.Background()

	if _, err := env.orch.SyncAll(ctx, false); err != nil {
		t.Fatal(err)
	}

	older := sources.Payload{CalendarID: "team", Kind: event.KindFeed, Body: []byte("Stale"), FetchedAt: env.clock.Now().Add(-time.Hour)}
	if err := NewHandoff(env.kv).Push(ctx, older, older.FetchedAt); err != nil {
		t.Fatal(err)
	}
	if _, err := env.orch.Activate(ctx); err != nil {
		t.Fatal(err)
	}

	stored, _ := env.events.ListByCalendar("team")
	if len(stored) != 1 || stored[0].Title != "Meeting team" {
		t.Errorf("Expected newer events to survive an older handoff, got %v", stored)
	}
}

func TestEventsAggregatesCacheAndStore(t *testing.T) {
	env := newTestEnv(t, feedCal("team"))
	ctx := context.Background()

	local, err := event.New(event.Event{Title: "Dentist", Date: time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	env.events.Upsert(local)

	if _, err := env.orch.SyncAll(ctx, false); err != nil {
		t.Fatal(err)
	}

	events, err := env.orch.Events(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Title != "Dentist" || events[1].Title != "Meeting team" {
		t.Errorf("Unexpected order: %s, %s", events[0].Title, events[1].Title)
	}
}

func TestForgetDropsCachedEvents(t *testing.T) {
	env := newTestEnv(t, feedCal("team"))
	ctx := context.Background()

	if _, err := env.orch.SyncAll(ctx, false); err != nil {
		t.Fatal(err)
	}
	env.calendars.Delete("team")
	env.orch.Forget(ctx, "team")

	if s := env.orch.Status(feedCal("team")); s.State != StateIdle {
		t.Errorf("Expected forgotten calendar to be idle, got '%s'", s.State)
	}
	calendars, err := readCalendars(ctx, env.kv)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range calendars {
		if c.ID == "team" {
			t.Error("Expected published calendars to exclude removed calendar")
		}
	}
}

func TestEventsFallsBackToStoreWithoutCache(t *testing.T) {
	env := newTestEnv(t, feedCal("team"), pageCal("board"))
	ctx := context.Background()

	if _, err := env.orch.SyncAll(ctx, false); err != nil {
		t.Fatal(err)
	}
	env.orch.cache.Clear(ctx)

	events, err := env.orch.Events(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected both calendars to be served from the store, got %d events", len(events))
	}
}
