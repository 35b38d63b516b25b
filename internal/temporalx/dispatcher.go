package temporalx

import (
	"context"
	"fmt"

	"go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/pipeline"
	"github.com/courseforge/courseforge-backend/internal/temporalx/stagerun"
	"github.com/courseforge/courseforge-backend/internal/types"
)

// Dispatcher starts one stage-run workflow per task. The workflow id is
// derived from the task id, so the server rejects a concurrent duplicate
// start of the same task.
type Dispatcher struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	taskQueue string
}

func NewDispatcher(baseLog *logger.Logger, tc temporalsdkclient.Client, taskQueue string) (*Dispatcher, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if taskQueue == "" {
		taskQueue = LoadConfig().TaskQueue
	}
	return &Dispatcher{
		log:       baseLog.With("component", "TemporalDispatcher"),
		tc:        tc,
		taskQueue: taskQueue,
	}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, task *types.StageTask, in pipeline.ExecuteInput) (string, error) {
	run, err := d.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                    stagerun.WorkflowID(task.ID),
		TaskQueue:             d.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, stagerun.WorkflowName, stagerun.Input{
		TaskID:   in.TaskID,
		CourseID: in.CourseID,
		Stage:    in.Stage,
		Payload:  in.Payload,
	})
	if err != nil {
		return "", fmt.Errorf("start stage-run workflow: %w", err)
	}
	d.log.Info("stage run dispatched", "task_id", task.ID, "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return "temporal:" + run.GetID() + "/" + run.GetRunID(), nil
}
