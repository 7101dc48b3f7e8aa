package api

import (
	"context"

	"github.com/lysyi3m/cal-comb/app/database"
	"github.com/lysyi3m/cal-comb/app/event"
	"github.com/lysyi3m/cal-comb/app/orchestrator"
	"github.com/lysyi3m/cal-comb/app/scrape"
	"github.com/lysyi3m/cal-comb/app/sources"
	"github.com/lysyi3m/cal-comb/app/tasks"
)

type OrchestratorInterface interface {
	Events(ctx context.Context) ([]event.Event, error)
	SyncAll(ctx context.Context, force bool) (event.SyncResult, error)
	SyncCalendar(ctx context.Context, id string) (orchestrator.Status, error)
	Activate(ctx context.Context) (int, error)
	PublishCalendars(ctx context.Context) error
	Forget(ctx context.Context, id string)
	Status(cal event.Calendar) orchestrator.Status
	LastResult() event.SyncResult
	Support() orchestrator.FeatureSupport
}

var _ OrchestratorInterface = (*orchestrator.Orchestrator)(nil)

type ExporterInterface interface {
	Run(name string, events []event.Event) (string, error)
}

var _ ExporterInterface = (*sources.Exporter)(nil)

// InspectorInterface runs table inference on a page with the debug trace on
type InspectorInterface interface {
	Fetch(ctx context.Context, cal event.Calendar) (sources.Payload, error)
	Infer(cal event.Calendar, payload sources.Payload, debug bool) (scrape.Result, error)
}

var _ InspectorInterface = (*sources.PageAdapter)(nil)

type Handler struct {
	calendarRepo database.CalendarRepositoryInterface
	eventRepo    database.EventRepositoryInterface
	orchestrator OrchestratorInterface
	exporter     ExporterInterface
	inspector    InspectorInterface
	messenger    orchestrator.Messenger
	configCache  *sources.ConfigCache
	scheduler    tasks.TaskSchedulerInterface
	version      string
}

type calendarView struct {
	event.Calendar
	Visible bool                `json:"visible"`
	Sync    orchestrator.Status `json:"sync"`
}

type createCalendarRequest struct {
	Name          string         `json:"name"`
	URL           string         `json:"url" binding:"required"`
	Kind          event.Kind     `json:"kind"`
	Color         string         `json:"color"`
	SyncFrequency int            `json:"syncFrequency"`
	Filters       []event.Filter `json:"filters"`
}

type updateCalendarRequest struct {
	Name    *string         `json:"name"`
	Color   *string         `json:"color"`
	Enabled *bool           `json:"enabled"`
	Filters *[]event.Filter `json:"filters"`
}

type createEventRequest struct {
	Title       string   `json:"title"`
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
}

type scrapeDebugRequest struct {
	URL string `json:"url" binding:"required"`
}
