package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/pipeline"
	"github.com/courseforge/courseforge-backend/internal/types"
)

type PipelineHandler struct {
	log  *logger.Logger
	orch *pipeline.Orchestrator
}

func NewPipelineHandler(log *logger.Logger, orch *pipeline.Orchestrator) *PipelineHandler {
	return &PipelineHandler{
		log:  log.With("handler", "PipelineHandler"),
		orch: orch,
	}
}

type startStageRequest struct {
	Payload map[string]any `json:"payload"`
}

func parseCourseStage(c *gin.Context) (uuid.UUID, types.Stage, bool) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", err)
		return uuid.Nil, "", false
	}
	stage, err := types.ParseStage(c.Param("stage"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unknown_stage",
			fmt.Errorf("%w: %q", pipeline.ErrUnknownStage, c.Param("stage")))
		return uuid.Nil, "", false
	}
	return courseID, stage, true
}

// POST /api/courses/:id/stages/:stage/start
//
// Returns 202 with the new task, or 200 with the already-active task when
// the same start arrives twice.
func (h *PipelineHandler) StartStage(c *gin.Context) {
	courseID, stage, ok := parseCourseStage(c)
	if !ok {
		return
	}
	// an empty body is fine; only malformed JSON is rejected
	var req startStageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
	}

	task, existing, err := h.orch.StartStage(c.Request.Context(), courseID, stage, req.Payload)
	if err != nil {
		h.respondPipelineError(c, "start_stage_failed", err, courseID, stage)
		return
	}
	status := http.StatusAccepted
	if existing {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"task_id": task.ID, "status": task.Status, "attempt": task.Attempt})
}

// POST /api/courses/:id/stages/:stage/restart
//
// Re-runs a completed stage and invalidates everything downstream of it.
func (h *PipelineHandler) RestartStage(c *gin.Context) {
	courseID, stage, ok := parseCourseStage(c)
	if !ok {
		return
	}
	var req startStageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
	}

	task, err := h.orch.RestartStage(c.Request.Context(), courseID, stage, req.Payload)
	if err != nil {
		h.respondPipelineError(c, "restart_stage_failed", err, courseID, stage)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID, "status": task.Status, "attempt": task.Attempt})
}

// POST /api/courses/:id/stages/:stage/reset
//
// Flips an abandoned task to failed so the stage can be started again. Only
// works once the task has gone quiet past the staleness window.
func (h *PipelineHandler) ForceReset(c *gin.Context) {
	courseID, stage, ok := parseCourseStage(c)
	if !ok {
		return
	}
	task, err := h.orch.ForceReset(c.Request.Context(), courseID, stage)
	if err != nil {
		h.respondPipelineError(c, "force_reset_failed", err, courseID, stage)
		return
	}
	RespondOK(c, gin.H{"task_id": task.ID, "status": task.Status})
}

type progressRequest struct {
	Progress int    `json:"progress"`
	Step     string `json:"step"`
}

// POST /internal/tasks/:taskId/progress
//
// Executor callback. Regressing or duplicate reports are acknowledged but
// not applied.
func (h *PipelineHandler) ReportProgress(c *gin.Context) {
	taskID, err := uuid.Parse(c.Param("taskId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	applied, err := h.orch.ReportProgressByTask(c.Request.Context(), taskID, req.Progress, req.Step)
	if err != nil {
		h.log.Error("ReportProgress failed", "error", err, "task_id", taskID)
		RespondError(c, http.StatusInternalServerError, "report_progress_failed", err)
		return
	}
	RespondOK(c, gin.H{"applied": applied})
}

type completeRequest struct {
	Result *pipeline.ExecuteOutput `json:"result,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

// POST /internal/tasks/:taskId/complete
//
// Executor callback for the terminal transition. A non-empty error field
// marks the task failed; otherwise result is persisted and the task
// succeeds. Duplicate completions return 200 with applied=false.
func (h *PipelineHandler) CompleteTask(c *gin.Context) {
	taskID, err := uuid.Parse(c.Param("taskId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	var execErr error
	if req.Error != "" {
		execErr = errors.New(req.Error)
	}
	err = h.orch.CompleteStageByTask(c.Request.Context(), taskID, req.Result, execErr)
	if err != nil {
		if errors.Is(err, pipeline.ErrTaskNotActive) {
			RespondOK(c, gin.H{"applied": false})
			return
		}
		if errors.Is(err, pipeline.ErrTaskNotFound) {
			RespondError(c, http.StatusNotFound, "task_not_found", err)
			return
		}
		h.log.Error("CompleteTask failed", "error", err, "task_id", taskID)
		RespondError(c, http.StatusInternalServerError, "complete_task_failed", err)
		return
	}
	RespondOK(c, gin.H{"applied": true})
}

func (h *PipelineHandler) respondPipelineError(c *gin.Context, code string, err error, courseID uuid.UUID, stage types.Stage) {
	switch {
	case errors.Is(err, pipeline.ErrCourseNotFound):
		RespondError(c, http.StatusNotFound, "course_not_found", err)
	case errors.Is(err, pipeline.ErrTaskNotFound):
		RespondError(c, http.StatusNotFound, "task_not_found", err)
	case errors.Is(err, pipeline.ErrUnknownStage):
		RespondError(c, http.StatusBadRequest, "unknown_stage", err)
	case errors.Is(err, pipeline.ErrStageOutOfOrder):
		RespondError(c, http.StatusConflict, "stage_out_of_order", err)
	case errors.Is(err, pipeline.ErrStageAlreadyComplete):
		RespondError(c, http.StatusConflict, "stage_already_complete", err)
	case errors.Is(err, pipeline.ErrTaskNotStale):
		RespondError(c, http.StatusConflict, "task_not_stale", err)
	default:
		h.log.Error("pipeline operation failed", "error", err, "course_id", courseID, "stage", stage)
		RespondError(c, http.StatusInternalServerError, code, err)
	}
}
