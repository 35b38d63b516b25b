package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/courseforge/courseforge-backend/internal/handlers"
)

type RouterConfig struct {
	ServiceName string
	CORSOrigins []string

	CourseHandler    *handlers.CourseHandler
	PipelineHandler  *handlers.PipelineHandler
	StatusHandler    *handlers.StatusHandler
	StageDataHandler *handlers.StageDataHandler
	SSEHandler       *handlers.SSEHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(strings.TrimSpace(cfg.ServiceName)))

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/courses", cfg.CourseHandler.CreateCourse)
		api.GET("/courses/:id", cfg.CourseHandler.GetCourse)
		api.DELETE("/courses/:id", cfg.CourseHandler.DeleteCourse)

		api.POST("/courses/:id/stages/:stage/start", cfg.PipelineHandler.StartStage)
		api.POST("/courses/:id/stages/:stage/restart", cfg.PipelineHandler.RestartStage)
		api.POST("/courses/:id/stages/:stage/reset", cfg.PipelineHandler.ForceReset)

		api.GET("/courses/:id/status", cfg.StatusHandler.GetStatus)
		api.GET("/courses/:id/stages/:stage", cfg.StageDataHandler.GetStageData)
		api.GET("/courses/:id/events", cfg.SSEHandler.StreamCourseEvents)
	}

	// executor callbacks; deploy behind network policy, not exposed publicly
	internal := router.Group("/internal")
	{
		internal.POST("/tasks/:taskId/progress", cfg.PipelineHandler.ReportProgress)
		internal.POST("/tasks/:taskId/complete", cfg.PipelineHandler.CompleteTask)
	}

	return router
}
