package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type CleanupCacheTask struct {
	Task
	cleaner CacheCleaner
}

func NewCleanupCacheTask(cleaner CacheCleaner) *CleanupCacheTask {
	t := &CleanupCacheTask{
		Task:    NewTask(TaskTypeCleanupCache, ""),
		cleaner: cleaner,
	}
	t.MaxRetries = 0
	return t
}

func (t *CleanupCacheTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	removed, err := t.cleaner.DeleteExpired(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	slog.Debug("Task completed",
		"type", "CleanupCache",
		"removed", removed,
		"duration", t.GetDuration())

	return nil
}
