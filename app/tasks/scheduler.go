package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lysyi3m/cal-comb/app/cfg"
	"github.com/lysyi3m/cal-comb/app/database"
	"github.com/lysyi3m/cal-comb/app/sources"
)

// The foreground runs a single logical queue
const workerCount = 1

const taskTimeout = 5 * time.Minute

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	configCache  *sources.ConfigCache
	calendarRepo database.CalendarRepositoryInterface
	syncer       Syncer
	cleaner      CacheCleaner
	interval     time.Duration
	workerCount  int
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	taskQueue    chan TaskInterface
}

func NewScheduler(configCache *sources.ConfigCache, calendarRepo database.CalendarRepositoryInterface,
	syncer Syncer, cleaner CacheCleaner) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		configCache:  configCache,
		calendarRepo: calendarRepo,
		syncer:       syncer,
		cleaner:      cleaner,
		interval:     cfg.SyncInterval,
		workerCount:  workerCount,
		ctx:          ctx,
		cancel:       cancel,
		taskQueue:    make(chan TaskInterface, 100),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueStartupTasks() {
	if s.configCache != nil {
		configs := s.configCache.GetConfigs()
		ids := make([]string, 0, len(configs))
		for id := range configs {
			ids = append(ids, id)
		}
		slices.Sort(ids)

		slog.Debug("Processing calendar configurations", "count", len(ids))

		for _, id := range ids {
			if err := s.EnqueueTask(NewSyncCalendarConfigTask(configs[id], s.calendarRepo)); err != nil {
				slog.Warn("Failed to enqueue SyncCalendarConfigTask", "calendar", id, "error", err)
			}
		}
	}

	if err := s.EnqueueTask(NewActivateTask(s.syncer)); err != nil {
		slog.Warn("Failed to enqueue ActivateTask", "error", err)
	}
	if err := s.EnqueueTask(NewSyncPassTask(s.syncer, false)); err != nil {
		slog.Warn("Failed to enqueue SyncPassTask", "error", err)
	}
}

func (s *Scheduler) enqueueTasks() {
	if err := s.EnqueueTask(NewSyncPassTask(s.syncer, false)); err != nil {
		slog.Warn("Failed to enqueue SyncPassTask", "error", err)
	}

	if s.cleaner != nil {
		if err := s.EnqueueTask(NewCleanupCacheTask(s.cleaner)); err != nil {
			slog.Warn("Failed to enqueue CleanupCacheTask", "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "calendar", task.GetCalendarID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
