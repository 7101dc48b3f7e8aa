package sources

import (
	"strings"
	"testing"

	"github.com/lysyi3m/cal-comb/app/event"
)

func filterEvents() []event.Event {
	return []event.Event{
		{ID: "1", Title: "Quarterly review", Location: "Board room", Categories: []string{"work"}},
		{ID: "2", Title: "Yoga class", Location: "Gym", Categories: []string{"health"}},
		{ID: "3", Title: "Team lunch", Description: "Cancelled this week", Categories: []string{"work", "social"}},
	}
}

func TestFiltererNoFilters(t *testing.T) {
	kept, dropped := NewFilterer().Run(filterEvents(), nil)

	if len(kept) != 3 {
		t.Errorf("Expected 3 events, got %d", len(kept))
	}
	if dropped != 0 {
		t.Errorf("Expected 0 dropped, got %d", dropped)
	}
}

func TestFiltererInclude(t *testing.T) {
	filters := []event.Filter{{Field: "categories", Includes: []string{"WORK"}}}

	kept, dropped := NewFilterer().Run(filterEvents(), filters)

	if len(kept) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(kept))
	}
	if dropped != 1 {
		t.Errorf("Expected 1 dropped, got %d", dropped)
	}
	if kept[0].ID != "1" || kept[1].ID != "3" {
		t.Errorf("Expected events 1 and 3, got %s and %s", kept[0].ID, kept[1].ID)
	}
}

func TestFiltererExcludeWinsOverInclude(t *testing.T) {
	filters := []event.Filter{
		{Field: "categories", Includes: []string{"work"}},
		{Field: "description", Excludes: []string{"cancelled"}},
	}

	kept, _ := NewFilterer().Run(filterEvents(), filters)

	if len(kept) != 1 || kept[0].ID != "1" {
		t.Errorf("Expected only event 1, got %d events", len(kept))
	}
}

func TestFiltererCheckReason(t *testing.T) {
	f := NewFilterer()
	e := filterEvents()[1]

	excluded, reason := f.Check(e, []event.Filter{{Field: "location", Excludes: []string{"gym"}}})
	if !excluded {
		t.Fatal("Expected event to be excluded")
	}
	if !strings.Contains(reason, "location") || !strings.Contains(reason, "gym") {
		t.Errorf("Unexpected reason: %s", reason)
	}

	excluded, reason = f.Check(e, []event.Filter{{Field: "title", Includes: []string{"review"}}})
	if !excluded {
		t.Fatal("Expected event to be excluded")
	}
	if !strings.Contains(reason, "does not contain") {
		t.Errorf("Unexpected reason: %s", reason)
	}

	if excluded, reason := f.Check(e, []event.Filter{{Field: "title", Includes: []string{"yoga"}}}); excluded {
		t.Errorf("Expected event to pass, got reason: %s", reason)
	}
}
