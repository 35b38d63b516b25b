package app

import (
	"github.com/gin-gonic/gin"

	"github.com/courseforge/courseforge-backend/internal/server"
)

func wireRouter(cfg Config, handlers Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ServiceName: cfg.ServiceName,
		CORSOrigins: cfg.CORSOrigins,

		CourseHandler:    handlers.Course,
		PipelineHandler:  handlers.Pipeline,
		StatusHandler:    handlers.Status,
		StageDataHandler: handlers.StageData,
		SSEHandler:       handlers.SSE,
	})
}
