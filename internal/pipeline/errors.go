package pipeline

import "errors"

var (
	// ErrStageOutOfOrder rejects a start for a stage whose predecessor has
	// not succeeded yet. Clients recover by re-querying status.
	ErrStageOutOfOrder = errors.New("stage out of order: previous stage has not succeeded")

	// ErrStageAlreadyComplete rejects a plain start for a stage that already
	// succeeded; re-runs go through RestartStage so downstream output is
	// invalidated explicitly, never silently.
	ErrStageAlreadyComplete = errors.New("stage already complete: use restart to re-run")

	// ErrNotYetAvailable signals that stage output cannot be read because the
	// stage has not reached a terminal success state. Callers poll again.
	ErrNotYetAvailable = errors.New("stage output not yet available")

	// ErrStageFailed is returned when stage output is requested for a stage
	// whose latest task failed.
	ErrStageFailed = errors.New("stage failed")

	// ErrTaskNotStale rejects a force-reset of a task that is still
	// reporting progress within the watchdog window.
	ErrTaskNotStale = errors.New("task is still reporting progress")

	ErrCourseNotFound = errors.New("course not found")
	ErrTaskNotFound   = errors.New("no task found for stage")
	ErrUnknownStage   = errors.New("unknown stage")

	// ErrTaskNotActive is returned when a terminal transition arrives for a
	// task that is no longer pending or running (duplicate completion from an
	// at-least-once substrate); the late delivery is dropped.
	ErrTaskNotActive = errors.New("task is not active")

	// ErrNoExecutor is returned by the local dispatcher when no executor is
	// registered for a stage.
	ErrNoExecutor = errors.New("no executor registered for stage")
)
