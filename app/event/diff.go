package event

// Changes lists what differs between two expansions of the same source
type Changes struct {
	Added   []Event
	Removed []Event
	Updated []Event
}

func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Updated) == 0
}

// Diff matches events by identifier and compares the fields a viewer can see
// change without the identifier changing.
func Diff(before, after []Event) Changes {
	var changes Changes

	old := make(map[string]Event, len(before))
	for _, e := range before {
		old[e.ID] = e
	}

	seen := make(map[string]bool, len(after))
	for _, e := range after {
		seen[e.ID] = true
		prev, ok := old[e.ID]
		if !ok {
			changes.Added = append(changes.Added, e)
			continue
		}
		if changed(prev, e) {
			changes.Updated = append(changes.Updated, e)
		}
	}

	for _, e := range before {
		if !seen[e.ID] {
			changes.Removed = append(changes.Removed, e)
		}
	}

	return changes
}

func changed(a, b Event) bool {
	return a.Description != b.Description ||
		a.Location != b.Location ||
		a.TimeRange != b.TimeRange ||
		a.Organizer != b.Organizer
}
