package pipeline

import (
	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/types"
)

// StageNotifier receives stage lifecycle events as they are committed.
// Implementations must not block; the orchestrator calls them inline.
type StageNotifier interface {
	StageStarted(task *types.StageTask)
	StageProgress(courseID uuid.UUID, stage types.Stage, progress int, step string)
	StageFailed(courseID uuid.UUID, stage types.Stage, errorMessage string)
	StageDone(courseID uuid.UUID, stage types.Stage)
}
