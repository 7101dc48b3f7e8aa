package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lysyi3m/cal-comb/app/database"
	"github.com/lysyi3m/cal-comb/app/event"
	"github.com/lysyi3m/cal-comb/app/orchestrator"
	"github.com/lysyi3m/cal-comb/app/sources"
	"github.com/lysyi3m/cal-comb/app/tasks"
)

const defaultColor = "#0ea5e9"

type HandlerOptions struct {
	CalendarRepo database.CalendarRepositoryInterface
	EventRepo    database.EventRepositoryInterface
	Orchestrator OrchestratorInterface
	Exporter     ExporterInterface
	Inspector    InspectorInterface
	Messenger    orchestrator.Messenger
	ConfigCache  *sources.ConfigCache
	Scheduler    tasks.TaskSchedulerInterface
	Version      string
}

func NewHandler(opts HandlerOptions) *Handler {
	return &Handler{
		calendarRepo: opts.CalendarRepo,
		eventRepo:    opts.EventRepo,
		orchestrator: opts.Orchestrator,
		exporter:     opts.Exporter,
		inspector:    opts.Inspector,
		messenger:    opts.Messenger,
		configCache:  opts.ConfigCache,
		scheduler:    opts.Scheduler,
		version:      opts.Version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if calendars, err := h.calendarRepo.List(); err == nil {
		health["calendars"] = len(calendars)
	}
	if h.configCache != nil {
		health["loaded_configurations"] = h.configCache.GetConfigCount()
	}
	health["background"] = h.orchestrator.Support()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.orchestrator.Events(c.Request.Context())
	if err != nil {
		slog.Error("Failed to aggregate events", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load events"})
		return
	}

	from, to, err := dayRange(c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	calendarID := c.Query("calendar")
	filtered := make([]event.Event, 0, len(events))
	for _, e := range events {
		if calendarID != "" && e.CalendarID != calendarID {
			continue
		}
		if !from.IsZero() && e.Date.Before(from) {
			continue
		}
		if !to.IsZero() && e.Date.After(to) {
			continue
		}
		filtered = append(filtered, e)
	}

	c.JSON(http.StatusOK, gin.H{
		"events": filtered,
		"total":  len(filtered),
	})
}

func (h *Handler) ExportEvents(c *gin.Context) {
	events, err := h.orchestrator.Events(c.Request.Context())
	if err != nil {
		slog.Error("Failed to aggregate events", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	ics, err := h.exporter.Run("Cal Comb", events)
	if err != nil {
		slog.Error("ICS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("X-Calendar-Events", strconv.Itoa(len(events)))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(ics))
}

func (h *Handler) CreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	var date time.Time
	if req.Date != "" {
		parsed, err := time.ParseInLocation(event.DayLayout, req.Date, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Date must use YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	e, err := event.New(event.Event{
		ID:          "local-" + uuid.NewString(),
		Title:       req.Title,
		Date:        date,
		TimeRange:   req.Time,
		Location:    req.Location,
		Description: req.Description,
		Categories:  req.Categories,
		SourceKind:  event.KindLocal,
		CalendarID:  event.DefaultCalendarID,
	})
	if errors.Is(err, event.ErrMissingTitle) || errors.Is(err, event.ErrInvalidDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.eventRepo.Upsert(e); err != nil {
		slog.Error("Database error", "operation", "create_event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusCreated, e)
}

func (h *Handler) DeleteEvent(c *gin.Context) {
	id := c.Param("id")

	deleted, err := h.eventRepo.Delete(event.DefaultCalendarID, id)
	if err != nil {
		slog.Error("Database error", "operation", "delete_event", "event", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ListCalendars(c *gin.Context) {
	calendars, err := h.loadCalendars()
	if err != nil {
		slog.Error("Database error", "operation", "list_calendars", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	visible := make(map[string]bool)
	for _, cal := range event.VisibleCalendars(calendars) {
		visible[cal.ID] = true
	}

	views := make([]calendarView, 0, len(calendars))
	for _, cal := range event.RankCalendars(calendars) {
		views = append(views, calendarView{
			Calendar: cal,
			Visible:  visible[cal.ID],
			Sync:     h.orchestrator.Status(cal),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"calendars": views,
		"total":     len(views),
	})
}

// loadCalendars fills in the local calendar's count, which no sync maintains
func (h *Handler) loadCalendars() ([]event.Calendar, error) {
	calendars, err := h.calendarRepo.List()
	if err != nil {
		return nil, err
	}
	for i := range calendars {
		if calendars[i].ID != event.DefaultCalendarID {
			continue
		}
		count, err := h.eventRepo.Count(event.DefaultCalendarID)
		if err != nil {
			return nil, err
		}
		calendars[i].EventCount = count
	}
	return calendars, nil
}

func (h *Handler) CreateCalendar(c *gin.Context) {
	var req createCalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if req.Kind == "" {
		req.Kind = event.KindFeed
	}
	if req.Kind != event.KindFeed && req.Kind != event.KindPage {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Kind must be feed or page"})
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL must be http or https"})
		return
	}
	if err := sources.ValidateFilters(req.Filters); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cal := event.Calendar{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(req.Name),
		Color:         req.Color,
		Kind:          req.Kind,
		URL:           req.URL,
		Enabled:       true,
		SyncFrequency: req.SyncFrequency,
		Filters:       req.Filters,
	}
	if cal.Name == "" {
		cal.Name = req.URL
	}
	if cal.Color == "" {
		cal.Color = defaultColor
	}

	if err := h.calendarRepo.Upsert(cal); err != nil {
		slog.Error("Database error", "operation", "create_calendar", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	h.publish(c)

	response := gin.H{"calendar": cal}
	if h.scheduler != nil {
		task := tasks.NewSyncCalendarTask(h.orchestrator, cal.ID)
		if err := h.scheduler.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue SyncCalendarTask", "calendar", cal.ID, "error", err)
		} else {
			response["task"] = gin.H{"id": task.ID, "type": task.Type}
		}
	}

	c.JSON(http.StatusCreated, response)
}

func (h *Handler) UpdateCalendar(c *gin.Context) {
	id := c.Param("id")

	var req updateCalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.Filters != nil {
		if err := sources.ValidateFilters(*req.Filters); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	cal, err := h.calendarRepo.UpdateDetails(id, database.CalendarUpdate{
		Name:    req.Name,
		Color:   req.Color,
		Enabled: req.Enabled,
		Filters: req.Filters,
	})
	if err != nil {
		slog.Error("Database error", "operation", "update_calendar", "calendar", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if cal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Calendar not found"})
		return
	}
	h.publish(c)

	c.JSON(http.StatusOK, gin.H{"calendar": cal})
}

func (h *Handler) DeleteCalendar(c *gin.Context) {
	id := c.Param("id")
	if id == event.DefaultCalendarID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "The local calendar cannot be removed"})
		return
	}

	cal, err := h.calendarRepo.Get(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_calendar", "calendar", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if cal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Calendar not found"})
		return
	}

	if err := h.calendarRepo.Delete(id); err != nil {
		slog.Error("Database error", "operation", "delete_calendar", "calendar", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	h.orchestrator.Forget(c.Request.Context(), id)

	c.Status(http.StatusNoContent)
}

func (h *Handler) SyncCalendar(c *gin.Context) {
	id := c.Param("id")

	status, err := h.orchestrator.SyncCalendar(c.Request.Context(), id)
	switch {
	case errors.Is(err, orchestrator.ErrUnknownCalendar):
		c.JSON(http.StatusNotFound, gin.H{"error": "Calendar not found"})
	case errors.Is(err, orchestrator.ErrNotSyncable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "sync": status})
	default:
		c.JSON(http.StatusOK, gin.H{"sync": status})
	}
}

func (h *Handler) SyncAll(c *gin.Context) {
	force := c.Query("force") == "1" || c.Query("force") == "true"

	result, err := h.orchestrator.SyncAll(c.Request.Context(), force)
	if errors.Is(err, orchestrator.ErrRateLimited) {
		c.JSON(http.StatusOK, gin.H{"result": result, "rateLimited": true})
		return
	}
	if err != nil {
		slog.Error("Sync pass failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result, "rateLimited": false})
}

func (h *Handler) GetSyncStatus(c *gin.Context) {
	calendars, err := h.calendarRepo.List()
	if err != nil {
		slog.Error("Database error", "operation", "list_calendars", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	statuses := make([]orchestrator.Status, 0, len(calendars))
	for _, cal := range calendars {
		if cal.Kind == event.KindLocal {
			continue
		}
		statuses = append(statuses, h.orchestrator.Status(cal))
	}

	c.JSON(http.StatusOK, gin.H{
		"lastResult": h.orchestrator.LastResult(),
		"support":    h.orchestrator.Support(),
		"calendars":  statuses,
	})
}

// PostMessage accepts a wire message. Messages for the background context
// are forwarded and answered with its acknowledgement; a completion notice
// schedules the handoff drain.
func (h *Handler) PostMessage(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, orchestrator.Ack{Error: "failed to read body"})
		return
	}

	msg, err := orchestrator.DecodeMessage(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, orchestrator.Ack{Error: err.Error()})
		return
	}

	if _, ok := msg.(orchestrator.BackgroundSyncComplete); ok {
		if h.scheduler == nil {
			if _, err := h.orchestrator.Activate(c.Request.Context()); err != nil {
				c.JSON(http.StatusInternalServerError, orchestrator.Ack{Error: err.Error()})
				return
			}
		} else if err := h.scheduler.EnqueueTask(tasks.NewActivateTask(h.orchestrator)); err != nil {
			c.JSON(http.StatusServiceUnavailable, orchestrator.Ack{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, orchestrator.Ack{Success: true})
		return
	}

	if h.messenger == nil {
		c.JSON(http.StatusOK, orchestrator.Ack{Error: orchestrator.ErrCapabilityUnsupported.Error()})
		return
	}
	c.JSON(http.StatusOK, h.messenger.Send(c.Request.Context(), msg))
}

func (h *Handler) ScrapeDebug(c *gin.Context) {
	var req scrapeDebugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	cal := event.Calendar{ID: "debug", Name: "Debug", Kind: event.KindPage, URL: req.URL, Enabled: true}

	payload, err := h.inspector.Fetch(c.Request.Context(), cal)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	result, err := h.inspector.Infer(cal, payload, true)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"via":      payload.Via,
		"events":   result.Events,
		"columns":  result.Columns,
		"metadata": result.Metadata,
		"trace":    result.Trace,
	})
}

func (h *Handler) publish(c *gin.Context) {
	if err := h.orchestrator.PublishCalendars(c.Request.Context()); err != nil {
		slog.Warn("Failed to publish calendars", "error", err)
	}
}

func dayRange(from, to string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if from != "" {
		if start, err = time.ParseInLocation(event.DayLayout, from, time.Local); err != nil {
			return time.Time{}, time.Time{}, errors.New("from must use YYYY-MM-DD")
		}
	}
	if to != "" {
		if end, err = time.ParseInLocation(event.DayLayout, to, time.Local); err != nil {
			return time.Time{}, time.Time{}, errors.New("to must use YYYY-MM-DD")
		}
	}
	return start, end, nil
}
