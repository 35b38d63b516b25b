package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/pipeline"
	"github.com/courseforge/courseforge-backend/internal/services"
	"github.com/courseforge/courseforge-backend/internal/types"
)

type StageDataHandler struct {
	log       *logger.Logger
	stageData services.StageDataService
}

func NewStageDataHandler(log *logger.Logger, stageData services.StageDataService) *StageDataHandler {
	return &StageDataHandler{
		log:       log.With("handler", "StageDataHandler"),
		stageData: stageData,
	}
}

// GET /api/courses/:id/stages/:stage
//
// 202 while the stage has not succeeded yet, 409 when its latest attempt
// failed, 200 with the stage-shaped payload otherwise.
func (h *StageDataHandler) GetStageData(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", err)
		return
	}
	stage, err := types.ParseStage(c.Param("stage"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unknown_stage",
			fmt.Errorf("%w: %q", pipeline.ErrUnknownStage, c.Param("stage")))
		return
	}

	data, err := h.stageData.GetStageData(c.Request.Context(), nil, courseID, stage)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrNotYetAvailable):
			RespondError(c, http.StatusAccepted, "not_yet_available", err)
		case errors.Is(err, pipeline.ErrStageFailed):
			RespondError(c, http.StatusConflict, "stage_failed", err)
		case errors.Is(err, pipeline.ErrUnknownStage):
			RespondError(c, http.StatusBadRequest, "unknown_stage", err)
		default:
			h.log.Error("GetStageData failed", "error", err, "course_id", courseID, "stage", stage)
			RespondError(c, http.StatusInternalServerError, "load_stage_data_failed", err)
		}
		return
	}
	RespondOK(c, data)
}
