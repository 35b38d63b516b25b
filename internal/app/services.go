package app

import (
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	redisclient "github.com/courseforge/courseforge-backend/internal/clients/redis"
	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/pipeline"
	"github.com/courseforge/courseforge-backend/internal/services"
	"github.com/courseforge/courseforge-backend/internal/sse"
	"github.com/courseforge/courseforge-backend/internal/temporalx"
	"github.com/courseforge/courseforge-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Notifier     pipeline.StageNotifier
	EventBus     redisclient.EventBus
	Registry     *pipeline.Registry
	Orchestrator *pipeline.Orchestrator
	Watchdog     *pipeline.Watchdog

	TemporalClient temporalsdkclient.Client
	TemporalWorker *temporalworker.Runner

	Course    services.CourseService
	Status    services.StatusService
	StageData services.StageDataService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, hub *sse.Hub) (Services, error) {
	log.Info("Wiring services...")
	var out Services

	if cfg.RedisAddr != "" {
		bus, err := redisclient.NewEventBus(log)
		if err != nil {
			log.Warn("redis event bus unavailable; events stay in-process", "error", err)
		} else {
			out.EventBus = bus
		}
	}
	out.Notifier = services.NewStageNotifier(log, hub, out.EventBus)

	out.Registry = pipeline.NewRegistry()

	switch cfg.DispatchMode {
	case DispatchModeTemporal:
		tc, err := temporalx.NewClient(log)
		if err != nil {
			return out, fmt.Errorf("init temporal client: %w", err)
		}
		if tc == nil {
			return out, fmt.Errorf("DISPATCH_MODE=temporal requires TEMPORAL_ADDRESS")
		}
		out.TemporalClient = tc

		dispatcher, err := temporalx.NewDispatcher(log, tc, "")
		if err != nil {
			return out, err
		}
		out.Orchestrator = pipeline.NewOrchestrator(
			db, log,
			r.Course, r.StageTask, r.RepoFile, r.DocumentAnalysis, r.Pathway, r.PathwayModule,
			dispatcher, out.Notifier, cfg.StaleAfter,
		)
		worker, err := temporalworker.NewRunner(log, tc, out.Registry, out.Orchestrator)
		if err != nil {
			return out, err
		}
		out.TemporalWorker = worker
	default:
		dispatcher := pipeline.NewLocalDispatcher(log, out.Registry, int64(cfg.MaxConcurrentStages))
		out.Orchestrator = pipeline.NewOrchestrator(
			db, log,
			r.Course, r.StageTask, r.RepoFile, r.DocumentAnalysis, r.Pathway, r.PathwayModule,
			dispatcher, out.Notifier, cfg.StaleAfter,
		)
		dispatcher.Bind(out.Orchestrator)
	}

	out.Watchdog = pipeline.NewWatchdog(log, r.StageTask, r.Course, out.Notifier, cfg.StaleAfter, cfg.SweepEvery)

	out.Course = services.NewCourseService(db, log, r.Course, r.StageTask, r.RepoFile, r.DocumentAnalysis, r.Pathway, r.PathwayModule)
	out.Status = services.NewStatusService(db, r.Course, r.StageTask)
	out.StageData = services.NewStageDataService(db, r.StageTask, r.RepoFile, r.DocumentAnalysis, r.Pathway, r.PathwayModule)

	return out, nil
}
