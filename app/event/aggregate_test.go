package event

import (
	"testing"
	"time"
)

func testEvent(id, calendarID string, day int, timeRange string) Event {
	return Event{
		ID:         id,
		Title:      "Event " + id,
		Date:       time.Date(2025, 6, day, 0, 0, 0, 0, time.UTC),
		TimeRange:  timeRange,
		CalendarID: calendarID,
	}
}

func TestAggregateFiltersDisabledAndUnknownCalendars(t *testing.T) {
	calendars := []Calendar{
		{ID: "work", Name: "Work", Kind: KindFeed, Enabled: true},
		{ID: "gym", Name: "Gym", Kind: KindFeed, Enabled: false},
	}
	perCalendar := map[string][]Event{
		"work":    {testEvent("w1", "work", 2, AllDay)},
		"gym":     {testEvent("g1", "gym", 1, AllDay)},
		"deleted": {testEvent("x1", "deleted", 1, AllDay)},
	}

	events := Aggregate(perCalendar, calendars)

	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].ID != "w1" {
		t.Errorf("Expected 'w1', got '%s'", events[0].ID)
	}
}

func TestAggregateDeduplicatesAndSorts(t *testing.T) {
	calendars := []Calendar{
		{ID: "a", Name: "A", Kind: KindFeed, Enabled: true},
		{ID: "b", Name: "B", Kind: KindFeed, Enabled: true},
	}
	perCalendar := map[string][]Event{
		"a": {
			testEvent("late", "a", 3, "09:00 - 10:00"),
			testEvent("dup", "a", 1, "14:00 - 15:00"),
		},
		"b": {
			testEvent("dup", "b", 1, "14:00 - 15:00"),
			testEvent("allday", "b", 1, AllDay),
		},
	}

	events := Aggregate(perCalendar, calendars)

	want := []string{"allday", "dup", "late"}
	if len(events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(events))
	}
	for i, id := range want {
		if events[i].ID != id {
			t.Errorf("Expected event %d to be '%s', got '%s'", i, id, events[i].ID)
		}
	}
}

func TestAggregateLocalCalendarVisibility(t *testing.T) {
	feed := Calendar{ID: "work", Name: "Work", Kind: KindFeed, Enabled: true}
	local := LocalCalendar()
	local.Enabled = false

	// No feed events: local is shown despite its flag
	events := Aggregate(map[string][]Event{
		DefaultCalendarID: {testEvent("l1", DefaultCalendarID, 1, AllDay)},
	}, []Calendar{feed, local})
	if len(events) != 1 {
		t.Errorf("Expected local event while feeds are empty, got %d events", len(events))
	}

	// Feed events present: local follows its enabled flag
	events = Aggregate(map[string][]Event{
		"work":            {testEvent("w1", "work", 1, AllDay)},
		DefaultCalendarID: {testEvent("l1", DefaultCalendarID, 1, AllDay)},
	}, []Calendar{feed, local})
	if len(events) != 1 || events[0].ID != "w1" {
		t.Errorf("Expected only the feed event, got %v", events)
	}
}

func TestVisibleCalendarsSuppressesEmptyLocal(t *testing.T) {
	calendars := []Calendar{
		{ID: "work", Name: "Work", Kind: KindFeed, Enabled: true, EventCount: 4},
	}

	visible := VisibleCalendars(calendars)
	if len(visible) != 1 || visible[0].ID != "work" {
		t.Errorf("Expected empty local calendar to be suppressed, got %v", visible)
	}

	calendars[0].EventCount = 0
	visible = VisibleCalendars(calendars)
	if len(visible) != 2 || visible[0].ID != DefaultCalendarID {
		t.Errorf("Expected local calendar first while feeds are empty, got %v", visible)
	}
}

func TestRankCalendars(t *testing.T) {
	calendars := []Calendar{
		{ID: "3", Name: "beta", EventCount: 2},
		{ID: "2", Name: "Alpha", EventCount: 2},
		{ID: "1", Name: "Zulu", EventCount: 10},
		{ID: DefaultCalendarID, Name: "My Calendar", EventCount: 0},
		{ID: "0", Name: "alpha", EventCount: 2},
	}

	ranked := RankCalendars(calendars)

	want := []string{DefaultCalendarID, "1", "0", "2", "3"}
	for i, id := range want {
		if ranked[i].ID != id {
			t.Errorf("Expected position %d to be '%s', got '%s'", i, id, ranked[i].ID)
		}
	}
	if calendars[0].ID != "3" {
		t.Error("RankCalendars should not reorder its input")
	}
}
