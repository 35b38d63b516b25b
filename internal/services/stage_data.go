package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/pipeline"
	"github.com/courseforge/courseforge-backend/internal/repos"
	"github.com/courseforge/courseforge-backend/internal/types"
)

// StageData is the persisted output of a completed stage, shaped per stage.
// Exactly one of the payload fields is populated.
type StageData struct {
	CourseID uuid.UUID                 `json:"course_id"`
	Stage    types.Stage               `json:"stage"`
	TaskID   uuid.UUID                 `json:"task_id"`
	Files    []*types.RepoFile         `json:"files,omitempty"`
	Docs     []*types.DocumentAnalysis `json:"documents,omitempty"`
	Pathways []*PathwayWithModules     `json:"pathways,omitempty"`
}

type PathwayWithModules struct {
	*types.Pathway
	Modules []*types.PathwayModule `json:"modules"`
}

type StageDataService interface {
	GetStageData(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, stage types.Stage) (*StageData, error)
}

type stageDataService struct {
	db         *gorm.DB
	taskRepo   repos.StageTaskRepo
	fileRepo   repos.RepoFileRepo
	docRepo    repos.DocumentAnalysisRepo
	pwRepo     repos.PathwayRepo
	moduleRepo repos.PathwayModuleRepo
}

func NewStageDataService(
	db *gorm.DB,
	taskRepo repos.StageTaskRepo,
	fileRepo repos.RepoFileRepo,
	docRepo repos.DocumentAnalysisRepo,
	pwRepo repos.PathwayRepo,
	moduleRepo repos.PathwayModuleRepo,
) StageDataService {
	return &stageDataService{
		db:         db,
		taskRepo:   taskRepo,
		fileRepo:   fileRepo,
		docRepo:    docRepo,
		pwRepo:     pwRepo,
		moduleRepo: moduleRepo,
	}
}

// GetStageData returns the output of a stage once its latest task has
// succeeded. Stages that never ran or are still in flight report
// ErrNotYetAvailable; a failed latest attempt reports ErrStageFailed with
// the task's error message.
func (s *stageDataService) GetStageData(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, stage types.Stage) (*StageData, error) {
	if !stage.Valid() {
		return nil, pipeline.ErrUnknownStage
	}
	task, err := s.taskRepo.GetLatestByCourseStage(ctx, tx, courseID, stage)
	if err != nil {
		return nil, fmt.Errorf("load latest task: %w", err)
	}
	if task == nil {
		return nil, pipeline.ErrNotYetAvailable
	}
	switch task.Status {
	case types.TaskStatusSucceeded:
	case types.TaskStatusFailed:
		return nil, fmt.Errorf("%w: %s", pipeline.ErrStageFailed, task.Error)
	default:
		return nil, pipeline.ErrNotYetAvailable
	}

	out := &StageData{CourseID: courseID, Stage: stage, TaskID: task.ID}
	switch stage {
	case types.StageIngest:
		out.Files, err = s.fileRepo.GetByCourseID(ctx, tx, courseID)
	case types.StageAnalyze:
		out.Docs, err = s.docRepo.GetByCourseID(ctx, tx, courseID)
	case types.StagePathways, types.StageGenerate:
		out.Pathways, err = s.loadPathways(ctx, tx, courseID)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s data: %w", stage, err)
	}
	return out, nil
}

func (s *stageDataService) loadPathways(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*PathwayWithModules, error) {
	pathways, err := s.pwRepo.GetByCourseID(ctx, tx, courseID)
	if err != nil {
		return nil, err
	}
	modules, err := s.moduleRepo.GetByCourseID(ctx, tx, courseID)
	if err != nil {
		return nil, err
	}
	byPathway := make(map[uuid.UUID][]*types.PathwayModule, len(pathways))
	for _, m := range modules {
		byPathway[m.PathwayID] = append(byPathway[m.PathwayID], m)
	}
	out := make([]*PathwayWithModules, 0, len(pathways))
	for _, pw := range pathways {
		out = append(out, &PathwayWithModules{Pathway: pw, Modules: byPathway[pw.ID]})
	}
	return out, nil
}
