package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusSucceeded = "succeeded"
	TaskStatusFailed    = "failed"
)

// TaskStatusActive reports whether a status counts as "currently running"
// for the duplicate-start guard.
func TaskStatusActive(status string) bool {
	return status == TaskStatusPending || status == TaskStatusRunning
}

func TaskStatusTerminal(status string) bool {
	return status == TaskStatusSucceeded || status == TaskStatusFailed
}

// StageTask is the durable record of one attempt to execute a stage for a
// course. At most one non-invalidated row per (course_id, stage) may be
// pending or running at any time; the orchestrator enforces this under a
// course-row lock. Rows are never overwritten by a re-run: a restart
// invalidates the old row and creates a new one, keeping history for audit.
type StageTask struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_stage_task_course_stage" json:"course_id"`
	Stage          Stage          `gorm:"type:text;not null;index:idx_stage_task_course_stage" json:"stage"`
	ExecutorHandle string         `gorm:"column:executor_handle" json:"executor_handle"`
	Status         string         `gorm:"column:status;not null;index" json:"status"` // pending|running|succeeded|failed
	Progress       int            `gorm:"column:progress;not null;default:0" json:"progress"`
	CurrentStep    string         `gorm:"column:current_step" json:"current_step"`
	Error          string         `gorm:"column:error" json:"error"`
	Attempt        int            `gorm:"column:attempt;not null;default:1" json:"attempt"`
	Payload        datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	Result         datatypes.JSON `gorm:"type:jsonb;column:result" json:"result"`
	StartedAt      *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	HeartbeatAt    *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	InvalidatedAt  *time.Time     `gorm:"column:invalidated_at;index" json:"invalidated_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (StageTask) TableName() string { return "stage_task" }
