package orchestrator

import "time"

type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateSynced  State = "synced"
	StateErrored State = "errored"
)

// Status is the sync state of one calendar. An errored calendar keeps the
// LastSync and EventCount of its last good sync.
type Status struct {
	CalendarID string     `json:"calendarId"`
	State      State      `json:"state"`
	LastSync   *time.Time `json:"lastSync,omitempty"`
	EventCount int        `json:"eventCount"`
	Via        string     `json:"via,omitempty"`
	Error      string     `json:"error,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
