package sources

import (
	"fmt"
	"strings"

	"github.com/lysyi3m/cal-comb/app/event"
)

var FilterFields = map[string]bool{
	"title":       true,
	"description": true,
	"location":    true,
	"organizer":   true,
	"categories":  true,
	"status":      true,
}

// Filterer applies a calendar's include and exclude rules
type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run returns the events that pass every filter and how many were dropped
func (f *Filterer) Run(events []event.Event, filters []event.Filter) ([]event.Event, int) {
	if len(filters) == 0 {
		return events, 0
	}

	kept := make([]event.Event, 0, len(events))
	for _, e := range events {
		if excluded, _ := f.Check(e, filters); excluded {
			continue
		}
		kept = append(kept, e)
	}

	return kept, len(events) - len(kept)
}

// Check reports whether e is filtered out and why
func (f *Filterer) Check(e event.Event, filters []event.Filter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(e, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(e event.Event, field string) string {
	switch field {
	case "title":
		return e.Title
	case "description":
		return e.Description
	case "location":
		return e.Location
	case "organizer":
		return e.Organizer
	case "categories":
		return strings.Join(e.Categories, " ")
	case "status":
		return e.Status
	default:
		return ""
	}
}
