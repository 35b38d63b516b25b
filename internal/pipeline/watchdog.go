package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/repos"
)

// Watchdog sweeps for RUNNING tasks whose worker stopped heartbeating and
// flips them to FAILED so the course stays recoverable. It never restarts
// anything itself; a fresh start is always an explicit client call.
type Watchdog struct {
	log        *logger.Logger
	taskRepo   repos.StageTaskRepo
	courseRepo repos.CourseRepo
	notify     StageNotifier
	staleAfter time.Duration
	sweepEvery time.Duration
}

func NewWatchdog(baseLog *logger.Logger, taskRepo repos.StageTaskRepo, courseRepo repos.CourseRepo, notify StageNotifier, staleAfter, sweepEvery time.Duration) *Watchdog {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	if sweepEvery <= 0 {
		sweepEvery = 30 * time.Second
	}
	return &Watchdog{
		log:        baseLog.With("component", "Watchdog"),
		taskRepo:   taskRepo,
		courseRepo: courseRepo,
		notify:     notify,
		staleAfter: staleAfter,
		sweepEvery: sweepEvery,
	}
}

func (w *Watchdog) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Sweep(ctx)
			}
		}
	}()
}

// Sweep marks abandoned tasks failed and flips their course status. Exposed
// for tests and for one-shot admin use.
func (w *Watchdog) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	msg := fmt.Sprintf("abandoned: no progress heartbeat within %s", w.staleAfter)
	stale, err := w.taskRepo.MarkStaleFailed(ctx, nil, cutoff, msg)
	if err != nil {
		w.log.Warn("stale task sweep failed", "error", err)
		return
	}
	for _, task := range stale {
		w.log.Warn("marked stale task failed", "task_id", task.ID, "course_id", task.CourseID, "stage", task.Stage)
		if err := w.courseRepo.UpdateFields(ctx, nil, task.CourseID, map[string]interface{}{
			"status": task.Stage.FailedStatus(),
		}); err != nil {
			w.log.Error("failed to flip course status for stale task", "course_id", task.CourseID, "error", err)
		}
		if w.notify != nil {
			w.notify.StageFailed(task.CourseID, task.Stage, msg)
		}
	}
}
