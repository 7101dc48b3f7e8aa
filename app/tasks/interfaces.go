package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/cal-comb/app/event"
	"github.com/lysyi3m/cal-comb/app/orchestrator"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to run the foreground task queue.
// Example usage:
//
//	scheduler := NewScheduler(configCache, calendarRepo, orchestrator, cacheRepo)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewActivateTask(orchestrator))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// Syncer is the part of the orchestrator the tasks drive
type Syncer interface {
	SyncAll(ctx context.Context, force bool) (event.SyncResult, error)
	SyncCalendar(ctx context.Context, id string) (orchestrator.Status, error)
	Activate(ctx context.Context) (int, error)
	PublishCalendars(ctx context.Context) error
}

// CacheCleaner removes expired entries from the durable cache tier
type CacheCleaner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
