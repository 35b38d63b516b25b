package app

import (
	"github.com/courseforge/courseforge-backend/internal/handlers"
	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/sse"
)

type Handlers struct {
	Course    *handlers.CourseHandler
	Pipeline  *handlers.PipelineHandler
	Status    *handlers.StatusHandler
	StageData *handlers.StageDataHandler
	SSE       *handlers.SSEHandler
}

func wireHandlers(log *logger.Logger, s Services, hub *sse.Hub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Course:    handlers.NewCourseHandler(log, s.Course),
		Pipeline:  handlers.NewPipelineHandler(log, s.Orchestrator),
		Status:    handlers.NewStatusHandler(log, s.Status),
		StageData: handlers.NewStageDataHandler(log, s.StageData),
		SSE:       handlers.NewSSEHandler(log, hub),
	}
}
