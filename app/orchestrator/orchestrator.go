package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/cal-comb/app/cache"
	"github.com/lysyi3m/cal-comb/app/database"
	"github.com/lysyi3m/cal-comb/app/event"
	"github.com/lysyi3m/cal-comb/app/sources"
)

var (
	ErrUnknownCalendar = errors.New("calendar not found")
	ErrNotSyncable     = errors.New("calendar has no remote source")
)

const calendarKeyPrefix = "calendar:"

func cacheKey(calendarID string) string {
	return calendarKeyPrefix + calendarID
}

// Orchestrator drives foreground syncs and owns the sync state of every
// calendar. Results are written to the tiered cache and the event store.
type Orchestrator struct {
	calendars database.CalendarRepositoryInterface
	events    database.EventRepositoryInterface
	registry  *sources.Registry
	cache     *cache.Tiered
	kv        cache.KV
	handoff   *Handoff
	limiter   *RateLimiter
	now       func() time.Time

	mu      sync.Mutex
	states  map[string]Status
	last    event.SyncResult
	support FeatureSupport
}

func New(calendars database.CalendarRepositoryInterface, events database.EventRepositoryInterface,
	registry *sources.Registry, tiered *cache.Tiered, kv cache.KV, limiter *RateLimiter) *Orchestrator {
	return &Orchestrator{
		calendars: calendars,
		events:    events,
		registry:  registry,
		cache:     tiered,
		kv:        kv,
		handoff:   NewHandoff(kv),
		limiter:   limiter,
		now:       time.Now,
		states:    make(map[string]Status),
	}
}

func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// SyncAll syncs every enabled remote calendar one after another. Without
// force a pass within CalendarsInterval of the last one is suppressed and
// the previous result is returned with ErrRateLimited.
func (o *Orchestrator) SyncAll(ctx context.Context, force bool) (event.SyncResult, error) {
	if !o.limiter.Allow(ctx, CategoryCalendars, force) {
		slog.Debug("Sync pass suppressed by rate limit")
		return o.LastResult(), ErrRateLimited
	}
	o.limiter.Mark(ctx, CategoryCalendars)

	calendars, err := o.calendars.List()
	if err != nil {
		return event.SyncResult{}, fmt.Errorf("failed to list calendars: %w", err)
	}

	result := event.SyncResult{Timestamp: o.now()}
	for _, cal := range calendars {
		if cal.Kind == event.KindLocal || !cal.Enabled {
			continue
		}
		result.Total++

		if !o.due(ctx, cal, force) {
			slog.Debug("Calendar not due for sync", "calendar", cal.ID)
			result.Synced++
			continue
		}

		if err := o.syncOne(ctx, cal); err != nil {
			slog.Warn("Calendar sync failed", "calendar", cal.ID, "error", err)
			result.Errored++
			continue
		}
		result.Synced++
	}

	o.mu.Lock()
	o.last = result
	o.mu.Unlock()

	if err := o.PublishCalendars(ctx); err != nil {
		slog.Warn("Failed to publish calendars", "error", err)
	}

	slog.Info("Sync pass completed", "synced", result.Synced, "errored", result.Errored, "total", result.Total)
	return result, nil
}

// SyncCalendar syncs one calendar immediately, ignoring rate limits
func (o *Orchestrator) SyncCalendar(ctx context.Context, id string) (Status, error) {
	cal, err := o.calendars.Get(id)
	if err != nil {
		return Status{}, fmt.Errorf("failed to load calendar %s: %w", id, err)
	}
	if cal == nil {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownCalendar, id)
	}
	if cal.Kind == event.KindLocal {
		return Status{}, fmt.Errorf("%w: %s", ErrNotSyncable, id)
	}

	if cal.Kind == event.KindPage {
		o.limiter.Mark(ctx, PageCategory(cal.ID))
	}
	err = o.syncOne(ctx, *cal)
	return o.Status(*cal), err
}

// due applies the per-calendar limits: hourly for pages and the calendar's
// own sync frequency when it has one.
func (o *Orchestrator) due(ctx context.Context, cal event.Calendar, force bool) bool {
	if force {
		if cal.Kind == event.KindPage {
			o.limiter.Mark(ctx, PageCategory(cal.ID))
		}
		return true
	}

	if cal.SyncFrequency > 0 && cal.LastSync != nil &&
		o.now().Sub(*cal.LastSync) < time.Duration(cal.SyncFrequency)*time.Second {
		return false
	}

	if cal.Kind == event.KindPage {
		if !o.limiter.Allow(ctx, PageCategory(cal.ID), false) {
			return false
		}
		o.limiter.Mark(ctx, PageCategory(cal.ID))
	}
	return true
}

func (o *Orchestrator) syncOne(ctx context.Context, cal event.Calendar) error {
	adapter, ok := o.registry.For(cal.Kind)
	if !ok {
		err := fmt.Errorf("no adapter for calendar kind %s", cal.Kind)
		o.fail(cal, err)
		return err
	}

	o.transition(cal, StateSyncing)

	result, err := sources.Sync(ctx, adapter, cal)
	if err != nil {
		o.fail(cal, err)
		return err
	}

	if err := o.merge(ctx, cal, result); err != nil {
		o.fail(cal, err)
		return err
	}
	return nil
}

// merge stores a decoded result unless a newer capture is already cached
func (o *Orchestrator) merge(ctx context.Context, cal event.Calendar, result sources.Result) error {
	capturedAt := result.Meta.FetchedAt
	if capturedAt.IsZero() {
		capturedAt = o.now()
	}

	entry, err := cache.NewEntry(cacheKey(cal.ID), result.Events, capturedAt, o.cache.TTL())
	if err != nil {
		return err
	}

	stored, err := o.cache.PutIfNewer(ctx, entry)
	if err != nil {
		slog.Warn("Failed to cache calendar events", "calendar", cal.ID, "error", err)
	} else if !stored {
		slog.Debug("Discarding result older than cached events", "calendar", cal.ID, "captured_at", capturedAt)
		o.succeed(cal, capturedAt, -1, result.Meta.Via)
		return nil
	}

	before, err := o.events.ListByCalendar(cal.ID)
	if err != nil {
		return fmt.Errorf("failed to load events for calendar %s: %w", cal.ID, err)
	}
	changes := event.Diff(before, result.Events)

	if err := o.events.ReplaceForCalendar(cal.ID, result.Events); err != nil {
		return fmt.Errorf("failed to store events for calendar %s: %w", cal.ID, err)
	}
	if err := o.calendars.UpdateSyncStats(cal.ID, capturedAt, len(result.Events)); err != nil {
		return fmt.Errorf("failed to update sync stats for calendar %s: %w", cal.ID, err)
	}

	o.succeed(cal, capturedAt, len(result.Events), result.Meta.Via)

	slog.Info("Calendar synced", "calendar", cal.ID, "via", result.Meta.Via, "events", len(result.Events),
		"added", len(changes.Added), "removed", len(changes.Removed), "updated", len(changes.Updated))
	return nil
}

// Activate drains the handoff queue into the event store. Records are only
// removed after every one of them has been processed.
func (o *Orchestrator) Activate(ctx context.Context) (int, error) {
	records, err := o.handoff.Pending(ctx)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	merged := 0
	for _, record := range records {
		if err := o.apply(ctx, record); err != nil {
			slog.Warn("Dropping handoff record", "calendar", record.CalendarID, "error", err)
			continue
		}
		merged++
	}

	if err := o.handoff.Ack(ctx, len(records)); err != nil {
		return merged, err
	}

	slog.Info("Handoff queue drained", "records", len(records), "merged", merged)
	return merged, nil
}

func (o *Orchestrator) apply(ctx context.Context, record HandoffRecord) error {
	if record.CalendarID == "" {
		return errors.New("malformed record")
	}

	cal, err := o.calendars.Get(record.CalendarID)
	if err != nil {
		return err
	}
	if cal == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCalendar, record.CalendarID)
	}

	adapter, ok := o.registry.For(cal.Kind)
	if !ok {
		return fmt.Errorf("no adapter for calendar kind %s", cal.Kind)
	}

	payload, err := record.Payload()
	if err != nil {
		return err
	}
	if payload.FetchedAt.IsZero() {
		payload.FetchedAt = record.SyncTime
	}

	result, err := adapter.Decode(*cal, payload)
	if err != nil {
		o.fail(*cal, err)
		return err
	}
	if err := o.merge(ctx, *cal, result); err != nil {
		o.fail(*cal, err)
		return err
	}
	return nil
}

// Events returns the aggregated view across all calendars, preferring
// fresh cached results over the event store.
func (o *Orchestrator) Events(ctx context.Context) ([]event.Event, error) {
	calendars, err := o.calendars.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	// The store is read once, on the first calendar the cache cannot serve
	var stored map[string][]event.Event

	perCalendar := make(map[string][]event.Event, len(calendars))
	for _, cal := range calendars {
		if cal.Kind != event.KindLocal {
			var cached []event.Event
			ok, err := o.cache.Load(ctx, cacheKey(cal.ID), &cached)
			if err != nil {
				slog.Warn("Ignoring unreadable cache entry", "calendar", cal.ID, "error", err)
			}
			if ok {
				perCalendar[cal.ID] = cached
				continue
			}
		}

		if stored == nil {
			if stored, err = o.events.ListAll(); err != nil {
				return nil, fmt.Errorf("failed to load stored events: %w", err)
			}
		}
		perCalendar[cal.ID] = stored[cal.ID]
	}

	return event.Aggregate(perCalendar, calendars), nil
}

// Forget drops the cached events and sync state of a removed calendar
func (o *Orchestrator) Forget(ctx context.Context, id string) {
	o.cache.Delete(ctx, cacheKey(id))

	o.mu.Lock()
	delete(o.states, id)
	o.mu.Unlock()

	if err := o.PublishCalendars(ctx); err != nil {
		slog.Warn("Failed to publish calendars", "error", err)
	}
}

func (o *Orchestrator) PublishCalendars(ctx context.Context) error {
	calendars, err := o.calendars.List()
	if err != nil {
		return fmt.Errorf("failed to list calendars: %w", err)
	}
	return publishCalendars(ctx, o.kv, calendars)
}

func (o *Orchestrator) LastResult() event.SyncResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Status returns the known state of cal, idle when it never synced here
func (o *Orchestrator) Status(cal event.Calendar) Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	if s, ok := o.states[cal.ID]; ok {
		return s
	}
	return Status{CalendarID: cal.ID, State: StateIdle, LastSync: cal.LastSync, EventCount: cal.EventCount}
}

func (o *Orchestrator) Statuses(calendars []event.Calendar) []Status {
	out := make([]Status, 0, len(calendars))
	for _, cal := range calendars {
		out = append(out, o.Status(cal))
	}
	return out
}

func (o *Orchestrator) transition(cal event.Calendar, state State) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.states[cal.ID]
	if !ok {
		s = Status{CalendarID: cal.ID, LastSync: cal.LastSync, EventCount: cal.EventCount}
	}
	s.State = state
	s.UpdatedAt = o.now()
	if state == StateSyncing {
		s.Error = ""
	}
	o.states[cal.ID] = s
}

// succeed marks cal synced; a negative count keeps the previous one
func (o *Orchestrator) succeed(cal event.Calendar, syncedAt time.Time, count int, via string) {
	o.transition(cal, StateSynced)

	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.states[cal.ID]
	if s.LastSync == nil || syncedAt.After(*s.LastSync) {
		s.LastSync = &syncedAt
	}
	if count >= 0 {
		s.EventCount = count
	}
	s.Via = via
	o.states[cal.ID] = s
}

func (o *Orchestrator) fail(cal event.Calendar, err error) {
	o.transition(cal, StateErrored)

	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.states[cal.ID]
	s.Error = err.Error()
	o.states[cal.ID] = s
}

// Support reports which background capabilities were granted
func (o *Orchestrator) Support() FeatureSupport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.support
}

// Register asks the background context for its capabilities. Refusals and
// timeouts leave the orchestrator on foreground scheduling only.
func (o *Orchestrator) Register(ctx context.Context, bg Messenger) FeatureSupport {
	if ack := bg.Send(ctx, SkipWaiting{}); !ack.Success {
		slog.Warn("Background context did not activate", "error", ack.Error)
	}

	var support FeatureSupport
	acks := []struct {
		msg Message
		ok  *bool
	}{
		{RegisterBackgroundSync{Tag: "calendar-sync"}, &support.BackgroundSync},
		{RegisterPeriodicSync{Tag: "calendar-periodic"}, &support.PeriodicSync},
	}
	for _, a := range acks {
		ack := bg.Send(ctx, a.msg)
		*a.ok = ack.Success
		if !ack.Success {
			slog.Info("Background capability unavailable", "type", a.msg.Type(), "error", ack.Error)
		}
	}

	if !support.BackgroundSync && !support.PeriodicSync {
		slog.Info("Running with foreground sync only")
	}

	o.mu.Lock()
	o.support = support
	o.mu.Unlock()
	return support
}
