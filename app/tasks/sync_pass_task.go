package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/cal-comb/app/orchestrator"
)

type SyncPassTask struct {
	Task
	Force  bool
	syncer Syncer
}

func NewSyncPassTask(syncer Syncer, force bool) *SyncPassTask {
	return &SyncPassTask{
		Task:   NewTask(TaskTypeSyncPass, ""),
		Force:  force,
		syncer: syncer,
	}
}

func (t *SyncPassTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.syncer.SyncAll(ctx, t.Force)
	if errors.Is(err, orchestrator.ErrRateLimited) {
		slog.Debug("Sync pass skipped", "reason", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run sync pass: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncPass",
		"synced", result.Synced,
		"errored", result.Errored,
		"total", result.Total,
		"duration", t.GetDuration())

	return nil
}
