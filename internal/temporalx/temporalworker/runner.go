package temporalworker

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/pipeline"
	"github.com/courseforge/courseforge-backend/internal/temporalx"
	"github.com/courseforge/courseforge-backend/internal/temporalx/stagerun"
)

// Runner hosts the stage-run worker: it polls the task queue and executes
// stage workflows/activities in this process.
type Runner struct {
	log  *logger.Logger
	tc   temporalsdkclient.Client
	acts *stagerun.Activities
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, registry *pipeline.Registry, orch *pipeline.Orchestrator) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if registry == nil || orch == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	return &Runner{
		log: log.With("component", "TemporalWorker"),
		tc:  tc,
		acts: &stagerun.Activities{
			Log:      log,
			Registry: registry,
			Orch:     orch,
		},
	}, nil
}

// Start launches the worker and blocks until ctx is canceled.
func (r *Runner) Start(ctx context.Context) error {
	cfg := temporalx.LoadConfig()
	r.log.Info("starting Temporal worker", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)

	w := worker.New(r.tc, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(stagerun.Workflow, workflow.RegisterOptions{Name: stagerun.WorkflowName})
	w.RegisterActivityWithOptions(r.acts.Execute, activity.RegisterOptions{Name: stagerun.ActivityExecute})

	if err := w.Start(); err != nil {
		return fmt.Errorf("start temporal worker: %w", err)
	}
	<-ctx.Done()
	w.Stop()
	return nil
}
