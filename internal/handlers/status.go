package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/services"
)

type StatusHandler struct {
	log    *logger.Logger
	status services.StatusService
}

func NewStatusHandler(log *logger.Logger, status services.StatusService) *StatusHandler {
	return &StatusHandler{
		log:    log.With("handler", "StatusHandler"),
		status: status,
	}
}

// GET /api/courses/:id/status
//
// Cheap read-only projection; dashboards poll this every couple of seconds.
func (h *StatusHandler) GetStatus(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", err)
		return
	}
	view, err := h.status.GetStatus(c.Request.Context(), nil, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			RespondError(c, http.StatusNotFound, "course_not_found", err)
			return
		}
		h.log.Error("GetStatus failed", "error", err, "course_id", courseID)
		RespondError(c, http.StatusInternalServerError, "load_status_failed", err)
		return
	}
	RespondOK(c, view)
}
