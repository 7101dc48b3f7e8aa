package event

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"time"
)

// Kind identifies where a calendar's events come from
type Kind string

const (
	KindFeed  Kind = "feed"
	KindPage  Kind = "page"
	KindLocal Kind = "local"
)

// DefaultCalendarID is the implicit local calendar shown when no feed has events
const DefaultCalendarID = "local"

const (
	AllDay         = "All day"
	AllDayMultiDay = "All day (Multi-day)"
	RecurringMark  = " (Recurring)"
)

var (
	ErrMissingTitle = errors.New("event title is required")
	ErrInvalidDate  = errors.New("event date is required")
)

// Event is a normalized calendar entry. Values built by New are never
// mutated afterwards; Clone returns an independent copy.
type Event struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Date        time.Time         `json:"date"`
	TimeRange   string            `json:"time"`
	Location    string            `json:"location"`
	Description string            `json:"description"`
	Organizer   string            `json:"organizer,omitempty"`
	Categories  []string          `json:"categories"`
	Status      string            `json:"status,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
	SourceKind  Kind              `json:"sourceKind"`
	CalendarID  string            `json:"calendarId"`
	OriginURL   string            `json:"originUrl,omitempty"`
	CapturedAt  time.Time         `json:"capturedAt"`
	IsMultiDay  bool              `json:"isMultiDay"`
	IsAllDay    bool              `json:"isAllDay"`
	IsRecurring bool              `json:"isRecurring"`
}

// New validates a draft and returns the normalized Event. The draft's
// slices and maps are copied so later changes to them are not observed.
func New(draft Event) (Event, error) {
	draft.Title = strings.TrimSpace(draft.Title)
	if draft.Title == "" {
		return Event{}, ErrMissingTitle
	}
	if draft.Date.IsZero() {
		return Event{}, ErrInvalidDate
	}

	e := draft.Clone()
	e.Date = Day(e.Date)
	e.TimeRange = strings.TrimSpace(e.TimeRange)
	if e.TimeRange == "" {
		e.TimeRange = AllDay
		e.IsAllDay = true
	}
	e.Location = strings.TrimSpace(e.Location)
	e.Description = strings.TrimSpace(e.Description)
	if e.Categories == nil {
		e.Categories = []string{}
	}
	if e.SourceKind == "" {
		e.SourceKind = KindLocal
	}
	if e.CalendarID == "" {
		e.CalendarID = DefaultCalendarID
	}
	if e.CapturedAt.IsZero() {
		e.CapturedAt = time.Now()
	}
	if e.ID == "" {
		e.ID = OccurrenceID(e.CalendarID, e.Title, e.Date, e.IsMultiDay)
	}

	return e, nil
}

func (e Event) Clone() Event {
	e.Categories = slices.Clone(e.Categories)
	e.Properties = maps.Clone(e.Properties)
	return e
}

// DayKey returns the event's calendar day as YYYY-MM-DD
func (e Event) DayKey() string {
	return e.Date.Format(DayLayout)
}

const DayLayout = "2006-01-02"

// Day truncates t to midnight in its own location
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type Filter struct {
	Field    string   `yaml:"field" json:"field"`
	Includes []string `yaml:"includes" json:"includes,omitempty"`
	Excludes []string `yaml:"excludes" json:"excludes,omitempty"`
}

// Calendar describes one event source
type Calendar struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Color         string     `json:"color"`
	Kind          Kind       `json:"kind"`
	URL           string     `json:"url"`
	Enabled       bool       `json:"enabled"`
	LastSync      *time.Time `json:"lastSync,omitempty"`
	EventCount    int        `json:"eventCount"`
	SyncFrequency int        `json:"syncFrequency,omitempty"` // seconds, 0 means default
	Filters       []Filter   `json:"filters,omitempty"`
}

// LocalCalendar returns the default calendar for locally created events
func LocalCalendar() Calendar {
	return Calendar{
		ID:      DefaultCalendarID,
		Name:    "My Calendar",
		Color:   "#4f46e5",
		Kind:    KindLocal,
		Enabled: true,
	}
}

type ColumnType string

const (
	ColumnDate        ColumnType = "date"
	ColumnTitle       ColumnType = "title"
	ColumnStatus      ColumnType = "status"
	ColumnLocation    ColumnType = "location"
	ColumnCategory    ColumnType = "category"
	ColumnDescription ColumnType = "description"
	ColumnTime        ColumnType = "time"
	ColumnPriority    ColumnType = "priority"
	ColumnCustom      ColumnType = "custom"
)

// ColumnMapping is the inferred meaning of one scraped table column
type ColumnMapping struct {
	Index    int        `json:"index"`
	Header   string     `json:"header"`
	Type     ColumnType `json:"type"`
	Property string     `json:"property"`
}

// SyncResult summarizes one orchestration pass
type SyncResult struct {
	Timestamp time.Time `json:"timestamp"`
	Synced    int       `json:"syncedCount"`
	Errored   int       `json:"errorCount"`
	Total     int       `json:"totalCalendars"`
}
