package stagerun

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/pipeline"
)

type Activities struct {
	Log      *logger.Logger
	Registry *pipeline.Registry
	Orch     *pipeline.Orchestrator
}

// Execute runs the stage executor inside a Temporal activity. Outcome is
// reported through the orchestrator either way, so the activity itself only
// errors on configuration problems.
func (a *Activities) Execute(ctx context.Context, in Input) error {
	if a == nil || a.Registry == nil || a.Orch == nil {
		return fmt.Errorf("stagerun: activity not configured")
	}
	exec, ok := a.Registry.Get(in.Stage)
	if !ok {
		return a.Orch.CompleteStageByTask(ctx, in.TaskID, nil, fmt.Errorf("%w: %s", pipeline.ErrNoExecutor, in.Stage))
	}

	stopHB := a.startHeartbeat(ctx)
	defer stopHB()

	onProgress := func(pct int, step string) {
		if _, err := a.Orch.ReportProgressByTask(ctx, in.TaskID, pct, step); err != nil && a.Log != nil {
			a.Log.Warn("progress update failed", "task_id", in.TaskID, "error", err)
		}
	}

	out, err := func() (out *pipeline.ExecuteOutput, err error) {
		defer func() {
			if r := recover(); r != nil {
				if a.Log != nil {
					a.Log.Error("stage executor panic", "task_id", in.TaskID, "stage", in.Stage, "panic", r)
				}
				out = nil
				err = fmt.Errorf("stage executor panic: %v", r)
			}
		}()
		return exec.Execute(ctx, pipeline.ExecuteInput{
			TaskID:   in.TaskID,
			CourseID: in.CourseID,
			Stage:    in.Stage,
			Payload:  in.Payload,
		}, onProgress)
	}()

	if cErr := a.Orch.CompleteStageByTask(ctx, in.TaskID, out, err); cErr != nil {
		// duplicate delivery after a worker restart; terminal state already set
		if errors.Is(cErr, pipeline.ErrTaskNotActive) {
			return nil
		}
		return cErr
	}
	return nil
}

func (a *Activities) startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		tick := time.NewTicker(10 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-tick.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
