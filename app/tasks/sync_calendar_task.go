package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/cal-comb/app/orchestrator"
)

type SyncCalendarTask struct {
	Task
	syncer Syncer
}

func NewSyncCalendarTask(syncer Syncer, calendarID string) *SyncCalendarTask {
	return &SyncCalendarTask{
		Task:   NewTask(TaskTypeSyncCalendar, calendarID),
		syncer: syncer,
	}
}

func (t *SyncCalendarTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	status, err := t.syncer.SyncCalendar(ctx, t.CalendarID)
	if errors.Is(err, orchestrator.ErrUnknownCalendar) || errors.Is(err, orchestrator.ErrNotSyncable) {
		slog.Debug("Calendar sync skipped", "calendar", t.CalendarID, "reason", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to sync calendar %s: %w", t.CalendarID, err)
	}

	slog.Info("Task completed",
		"type", "SyncCalendar",
		"calendar", t.CalendarID,
		"events", status.EventCount,
		"duration", t.GetDuration())

	return nil
}
