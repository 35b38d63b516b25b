package stagerun

import (
	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/types"
)

const (
	WorkflowName    = "stage_run"
	ActivityExecute = "stage_run_execute"
)

// Input is the workflow/activity argument. The workflow id is derived from
// TaskID, so a duplicate dispatch of the same task dedups at the server.
type Input struct {
	TaskID   uuid.UUID      `json:"task_id"`
	CourseID uuid.UUID      `json:"course_id"`
	Stage    types.Stage    `json:"stage"`
	Payload  map[string]any `json:"payload,omitempty"`
}

func WorkflowID(taskID uuid.UUID) string {
	return "stage-run-" + taskID.String()
}
