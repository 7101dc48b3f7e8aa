package event

import (
	"cmp"
	"slices"
	"strings"
)

// Aggregate merges per-calendar events into one deduplicated stream ordered
// by day, time and title. Events whose calendar is unknown or disabled are
// dropped, so deleting a calendar hides its events even if they linger.
func Aggregate(perCalendar map[string][]Event, calendars []Calendar) []Event {
	byID := make(map[string]Calendar, len(calendars))
	for _, c := range calendars {
		byID[c.ID] = c
	}

	counts := make(map[string]int, len(perCalendar))
	for id, events := range perCalendar {
		counts[id] = len(events)
	}
	showLocal := localShown(calendars, counts)

	seen := make(map[string]bool)
	out := make([]Event, 0)

	for _, c := range RankCalendars(withLocal(calendars)) {
		if !included(c, byID, showLocal) {
			continue
		}
		for _, e := range perCalendar[c.ID] {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			out = append(out, e)
		}
	}

	SortEvents(out)
	return out
}

func included(c Calendar, known map[string]Calendar, showLocal bool) bool {
	if c.ID == DefaultCalendarID {
		return showLocal
	}
	_, ok := known[c.ID]
	return ok && c.Enabled
}

// localShown reports whether the default local calendar is visible. It is
// always shown while no feed calendar has events; once one does, an empty
// local calendar is suppressed and a non-empty one follows its enabled flag.
func localShown(calendars []Calendar, counts map[string]int) bool {
	feedHasEvents := false
	for _, c := range calendars {
		if c.ID != DefaultCalendarID && c.Kind != KindLocal && counts[c.ID] > 0 {
			feedHasEvents = true
			break
		}
	}
	if !feedHasEvents {
		return true
	}
	if counts[DefaultCalendarID] == 0 {
		return false
	}
	for _, c := range calendars {
		if c.ID == DefaultCalendarID {
			return c.Enabled
		}
	}
	return true
}

func withLocal(calendars []Calendar) []Calendar {
	for _, c := range calendars {
		if c.ID == DefaultCalendarID {
			return calendars
		}
	}
	return append(slices.Clone(calendars), LocalCalendar())
}

// RankCalendars returns a copy ordered local first, then by event count
// descending, then by name and finally by ID.
func RankCalendars(calendars []Calendar) []Calendar {
	ranked := slices.Clone(calendars)
	slices.SortStableFunc(ranked, func(a, b Calendar) int {
		aLocal, bLocal := a.ID == DefaultCalendarID, b.ID == DefaultCalendarID
		if aLocal != bLocal {
			if aLocal {
				return -1
			}
			return 1
		}
		return cmp.Or(
			cmp.Compare(b.EventCount, a.EventCount),
			cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return ranked
}

// VisibleCalendars returns the ranked calendars a selection UI should list,
// using each calendar's cached event count.
func VisibleCalendars(calendars []Calendar) []Calendar {
	counts := make(map[string]int, len(calendars))
	for _, c := range calendars {
		counts[c.ID] = c.EventCount
	}
	showLocal := localShown(calendars, counts)

	visible := make([]Calendar, 0, len(calendars)+1)
	for _, c := range RankCalendars(withLocal(calendars)) {
		if c.ID == DefaultCalendarID && !showLocal {
			continue
		}
		visible = append(visible, c)
	}
	return visible
}

// SortEvents orders events by day, all-day entries first, then time and title
func SortEvents(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return cmp.Or(
			a.Date.Compare(b.Date),
			cmp.Compare(timeKey(a), timeKey(b)),
			cmp.Compare(a.Title, b.Title),
			cmp.Compare(a.ID, b.ID),
		)
	})
}

func timeKey(e Event) string {
	if strings.HasPrefix(e.TimeRange, AllDay) {
		return ""
	}
	return e.TimeRange
}
