package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/types"
)

// Dispatcher hands a claimed task to the task-execution substrate. Dispatch
// must return promptly; results come back through the orchestrator's
// ReportProgress/CompleteStage, possibly from another process. The returned
// handle is an opaque id of the dispatched unit of work.
type Dispatcher interface {
	Dispatch(ctx context.Context, task *types.StageTask, in ExecuteInput) (handle string, err error)
}

// LocalDispatcher runs executors on in-process goroutines, bounded by a
// semaphore so a burst of courses cannot exhaust the process.
type LocalDispatcher struct {
	log      *logger.Logger
	registry *Registry
	sem      *semaphore.Weighted
	orch     *Orchestrator
}

func NewLocalDispatcher(baseLog *logger.Logger, registry *Registry, maxConcurrent int64) *LocalDispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &LocalDispatcher{
		log:      baseLog.With("component", "LocalDispatcher"),
		registry: registry,
		sem:      semaphore.NewWeighted(maxConcurrent),
	}
}

// Bind wires the dispatcher back to the orchestrator. Required before the
// first Dispatch; split from the constructor because the two reference each
// other.
func (d *LocalDispatcher) Bind(orch *Orchestrator) { d.orch = orch }

func (d *LocalDispatcher) Dispatch(ctx context.Context, task *types.StageTask, in ExecuteInput) (string, error) {
	if d.orch == nil {
		return "", fmt.Errorf("local dispatcher not bound to an orchestrator")
	}
	exec, ok := d.registry.Get(in.Stage)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoExecutor, in.Stage)
	}

	handle := "local:" + task.ID.String()
	go d.run(task, in, exec)
	return handle, nil
}

// run executes the stage on a worker goroutine. The dispatch context is not
// inherited: the HTTP request that started the stage is long gone by the
// time work finishes.
func (d *LocalDispatcher) run(task *types.StageTask, in ExecuteInput, exec Executor) {
	ctx := context.Background()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		_ = d.orch.CompleteStageByTask(ctx, task.ID, nil, fmt.Errorf("acquire worker slot: %w", err))
		return
	}
	defer d.sem.Release(1)

	onProgress := func(pct int, step string) {
		if _, err := d.orch.ReportProgressByTask(ctx, task.ID, pct, step); err != nil {
			d.log.Warn("progress update failed", "task_id", task.ID, "error", err)
		}
	}

	out, err := func() (out *ExecuteOutput, err error) {
		// An executor panic must fail the task, not the process.
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("stage executor panic", "task_id", task.ID, "stage", in.Stage, "panic", r)
				out = nil
				err = fmt.Errorf("stage executor panic: %v", r)
			}
		}()
		return exec.Execute(ctx, in, onProgress)
	}()

	if cErr := d.orch.CompleteStageByTask(ctx, task.ID, out, err); cErr != nil {
		d.log.Error("complete stage failed", "task_id", task.ID, "stage", in.Stage, "error", cErr)
	}
}
