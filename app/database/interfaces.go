package database

import (
	"time"

	"github.com/lysyi3m/cal-comb/app/event"
)

// CalendarUpdate carries the user-editable fields; nil means unchanged
type CalendarUpdate struct {
	Name    *string
	Color   *string
	Enabled *bool
	Filters *[]event.Filter
}

type CalendarRepositoryInterface interface {
	List() ([]event.Calendar, error)
	Get(id string) (*event.Calendar, error)
	Upsert(cal event.Calendar) error
	UpdateSyncStats(id string, syncedAt time.Time, eventCount int) error
	UpdateDetails(id string, update CalendarUpdate) (*event.Calendar, error)
	Delete(id string) error
}

type EventRepositoryInterface interface {
	ReplaceForCalendar(calendarID string, events []event.Event) error
	Upsert(e event.Event) error
	Delete(calendarID, id string) (bool, error)
	ListByCalendar(calendarID string) ([]event.Event, error)
	ListAll() (map[string][]event.Event, error)
	Count(calendarID string) (int, error)
}

var (
	_ CalendarRepositoryInterface = (*CalendarRepository)(nil)
	_ EventRepositoryInterface    = (*EventRepository)(nil)
)
