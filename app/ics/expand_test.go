package ics

import (
	"slices"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/lysyi3m/cal-comb/app/event"
)

func testExpander() *Expander {
	return NewExpander(YearWindow(2025, time.UTC), time.UTC, "work", "https://example.com/work.ics")
}

func collectAll(x *Expander, def Definition) []event.Event {
	var out []event.Event
	for e := range x.Occurrences(def) {
		out = append(out, e)
	}
	return out
}

func TestOccurrencesSingleDay(t *testing.T) {
	def := Definition{
		UID:     "single",
		Summary: "Dentist",
		Start:   time.Date(2025, 4, 10, 14, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 4, 10, 15, 0, 0, 0, time.UTC),
		HasTime: true,
	}

	events := collectAll(testExpander(), def)

	if len(events) != 1 {
		t.Fatalf("Expected 1 occurrence, got %d", len(events))
	}
	e := events[0]
	if e.IsMultiDay {
		t.Error("Expected single-day occurrence")
	}
	if e.TimeRange != "14:00 - 15:00" {
		t.Errorf("Expected time '14:00 - 15:00', got '%s'", e.TimeRange)
	}
	if e.DayKey() != "2025-04-10" {
		t.Errorf("Expected day 2025-04-10, got %s", e.DayKey())
	}
	if e.SourceKind != event.KindFeed || e.CalendarID != "work" {
		t.Errorf("Expected feed event for 'work', got %s/%s", e.SourceKind, e.CalendarID)
	}
}

func TestOccurrencesOutsideWindow(t *testing.T) {
	def := Definition{
		UID:     "old",
		Summary: "Last year",
		Start:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		AllDay:  true,
	}

	if events := collectAll(testExpander(), def); len(events) != 0 {
		t.Errorf("Expected no occurrences outside the window, got %d", len(events))
	}
}

func TestOccurrencesMultiDayHalfOpen(t *testing.T) {
	// Monday through Thursday, Thursday excluded
	def := Definition{
		UID:     "offsite",
		Summary: "Offsite",
		Start:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 3, 6, 0, 0, 0, 0, time.UTC),
		AllDay:  true,
	}

	events := collectAll(testExpander(), def)

	want := []string{"2025-03-03", "2025-03-04", "2025-03-05"}
	if len(events) != len(want) {
		t.Fatalf("Expected %d occurrences, got %d", len(want), len(events))
	}
	for i, day := range want {
		if events[i].DayKey() != day {
			t.Errorf("Expected occurrence %d on %s, got %s", i, day, events[i].DayKey())
		}
		if !events[i].IsMultiDay {
			t.Errorf("Expected occurrence %d to be multi-day", i)
		}
		if events[i].TimeRange != event.AllDayMultiDay {
			t.Errorf("Expected '%s', got '%s'", event.AllDayMultiDay, events[i].TimeRange)
		}
	}
}

func TestOccurrencesDailyRecurrence(t *testing.T) {
	def := Definition{
		UID:     "standup",
		Summary: "Standup",
		Start:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		HasTime: true,
		RRule:   "FREQ=DAILY;COUNT=5",
	}

	events := collectAll(testExpander(), def)

	if len(events) != 5 {
		t.Fatalf("Expected 5 occurrences, got %d", len(events))
	}
	for i, e := range events {
		want := time.Date(2025, 3, 1+i, 0, 0, 0, 0, time.UTC)
		if !e.Date.Equal(want) {
			t.Errorf("Expected occurrence %d on %v, got %v", i, want, e.Date)
		}
		if !e.IsRecurring {
			t.Errorf("Expected occurrence %d to be recurring", i)
		}
		if e.TimeRange != "09:00 - 09:30"+event.RecurringMark {
			t.Errorf("Expected recurring time range, got '%s'", e.TimeRange)
		}
	}
}

func TestOccurrencesHonoursExDates(t *testing.T) {
	def := Definition{
		UID:     "gym",
		Summary: "Gym",
		Start:   time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC),
		HasTime: true,
		RRule:   "FREQ=DAILY;COUNT=3",
		ExDates: []time.Time{time.Date(2025, 3, 2, 18, 0, 0, 0, time.UTC)},
	}

	events := collectAll(testExpander(), def)

	if len(events) != 2 {
		t.Fatalf("Expected 2 occurrences, got %d", len(events))
	}
	if events[1].DayKey() != "2025-03-03" {
		t.Errorf("Expected second occurrence on 2025-03-03, got %s", events[1].DayKey())
	}
}

func TestOccurrencesRecurringMultiDay(t *testing.T) {
	def := Definition{
		UID:     "weekend",
		Summary: "Weekend trip",
		Start:   time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC),
		AllDay:  true,
		RRule:   "FREQ=WEEKLY;COUNT=2",
	}

	events := collectAll(testExpander(), def)

	want := []string{"2025-05-03", "2025-05-04", "2025-05-10", "2025-05-11"}
	if len(events) != len(want) {
		t.Fatalf("Expected %d occurrences, got %d", len(want), len(events))
	}
	for i, day := range want {
		if events[i].DayKey() != day {
			t.Errorf("Expected occurrence %d on %s, got %s", i, day, events[i].DayKey())
		}
		if !events[i].IsMultiDay || !events[i].IsRecurring {
			t.Errorf("Expected occurrence %d to be multi-day and recurring", i)
		}
	}
}

func TestOccurrencesRecurringMultiDayAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	// The second instance starts before clocks fall back on November 2
	def := Definition{
		UID:     "retreat",
		Summary: "Retreat",
		Start:   time.Date(2025, 10, 25, 0, 0, 0, 0, ny),
		End:     time.Date(2025, 10, 27, 0, 0, 0, 0, ny),
		AllDay:  true,
		RRule:   "FREQ=WEEKLY;COUNT=2",
	}

	x := NewExpander(YearWindow(2025, ny), ny, "work", "https://example.com/work.ics")
	events := collectAll(x, def)

	want := []string{"2025-10-25", "2025-10-26", "2025-11-01", "2025-11-02"}
	if len(events) != len(want) {
		t.Fatalf("Expected %d occurrences, got %d", len(want), len(events))
	}
	for i, day := range want {
		if events[i].DayKey() != day {
			t.Errorf("Expected occurrence %d on %s, got %s", i, day, events[i].DayKey())
		}
		if !events[i].IsMultiDay {
			t.Errorf("Expected occurrence %d to be multi-day", i)
		}
	}
}

func TestOccurrencesStopsAtWindowEnd(t *testing.T) {
	def := Definition{
		UID:     "forever",
		Summary: "Daily",
		Start:   time.Date(2025, 12, 30, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		AllDay:  true,
		RRule:   "FREQ=DAILY",
	}

	events := collectAll(testExpander(), def)

	if len(events) != 2 {
		t.Errorf("Expected 2 occurrences before the window ends, got %d", len(events))
	}
}

func TestOccurrencesInvalidRuleFallsBack(t *testing.T) {
	def := Definition{
		UID:     "broken",
		Summary: "Broken rule",
		Start:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC),
		AllDay:  true,
		RRule:   "FREQ=SOMETIMES",
	}

	events := collectAll(testExpander(), def)

	if len(events) != 1 {
		t.Fatalf("Expected 1 fallback occurrence, got %d", len(events))
	}
	if events[0].IsRecurring {
		t.Error("Expected fallback occurrence not to be marked recurring")
	}
}

func TestOccurrencesAreIdempotent(t *testing.T) {
	x := testExpander()
	def := Definition{
		UID:     "weekly",
		Summary: "Weekly review",
		Start:   time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC),
		HasTime: true,
		RRule:   "FREQ=WEEKLY;COUNT=10",
	}

	ids := func() []string {
		var out []string
		for e := range x.Occurrences(def) {
			out = append(out, e.ID)
		}
		return out
	}

	first, second := ids(), ids()
	if !slices.Equal(first, second) {
		t.Errorf("Expected identical identifiers across expansions, got %v and %v", first, second)
	}
	if len(first) != 10 {
		t.Errorf("Expected 10 occurrences, got %d", len(first))
	}
}

func TestOccurrencesEarlyStop(t *testing.T) {
	def := Definition{
		UID:     "daily",
		Summary: "Daily",
		Start:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		AllDay:  true,
		RRule:   "FREQ=DAILY;COUNT=100",
	}

	count := 0
	for range testExpander().Occurrences(def) {
		count++
		if count == 3 {
			break
		}
	}
	if count != 3 {
		t.Errorf("Expected iteration to stop after 3, got %d", count)
	}
}

func TestExpandAllSkipsUntitled(t *testing.T) {
	defs := []Definition{
		{UID: "a", Summary: "Kept", Start: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), AllDay: true},
		{UID: "b", Summary: "", Start: time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC), AllDay: true},
		{UID: "c", Summary: "Also kept", Start: time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), AllDay: true},
	}

	events := testExpander().ExpandAll(defs)

	if len(events) != 2 {
		t.Errorf("Expected 2 events, got %d", len(events))
	}
}
