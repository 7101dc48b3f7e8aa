package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/cal-comb/app/database"
	"github.com/lysyi3m/cal-comb/app/sources"
)

type SyncCalendarConfigTask struct {
	Task
	Config       *sources.Config
	calendarRepo database.CalendarRepositoryInterface
}

func NewSyncCalendarConfigTask(config *sources.Config, calendarRepo database.CalendarRepositoryInterface) *SyncCalendarConfigTask {
	return &SyncCalendarConfigTask{
		Task:         NewTask(TaskTypeSyncCalendarConfig, config.ID),
		Config:       config,
		calendarRepo: calendarRepo,
	}
}

func (t *SyncCalendarConfigTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.calendarRepo.Upsert(t.Config.Calendar()); err != nil {
		slog.Error("Task failed", "type", "SyncCalendarConfig", "calendar", t.CalendarID, "error", err)
		return fmt.Errorf("failed to sync calendar config to database: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncCalendarConfig",
		"calendar", t.CalendarID,
		"duration", t.GetDuration())

	return nil
}
