package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

// ActivateTask merges results the background context captured while the
// foreground was not running.
type ActivateTask struct {
	Task
	syncer Syncer
}

func NewActivateTask(syncer Syncer) *ActivateTask {
	return &ActivateTask{
		Task:   NewTask(TaskTypeActivate, ""),
		syncer: syncer,
	}
}

func (t *ActivateTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	merged, err := t.syncer.Activate(ctx)
	if err != nil {
		return fmt.Errorf("failed to drain handoff queue: %w", err)
	}
	if err := t.syncer.PublishCalendars(ctx); err != nil {
		slog.Warn("Failed to publish calendars", "error", err)
	}

	slog.Info("Task completed",
		"type", "Activate",
		"merged", merged,
		"duration", t.GetDuration())

	return nil
}
