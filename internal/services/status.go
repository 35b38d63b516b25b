package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/repos"
	"github.com/courseforge/courseforge-backend/internal/types"
)

// StatusView is what polling clients render: the stage the course is
// currently on (the first not-yet-succeeded one, or the last if all are
// done), its progress, and a per-stage status trail.
type StatusView struct {
	CourseID           uuid.UUID         `json:"course_id"`
	CourseStatus       string            `json:"course_status"`
	CurrentStage       types.Stage       `json:"current_stage"`
	CurrentTaskID      *uuid.UUID        `json:"current_task_id,omitempty"`
	StageStatuses      map[string]string `json:"stage_statuses"`
	ProgressPercentage int               `json:"progress_percentage"`
	CurrentStep        string            `json:"current_step"`
	ErrorMessage       string            `json:"error_message,omitempty"`
}

// StatusService is a pure read-side projection over courses and their stage
// tasks. Safe to call arbitrarily often and concurrently; clients poll it
// every couple of seconds.
type StatusService interface {
	GetStatus(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*StatusView, error)
}

type statusService struct {
	db         *gorm.DB
	courseRepo repos.CourseRepo
	taskRepo   repos.StageTaskRepo
}

func NewStatusService(db *gorm.DB, courseRepo repos.CourseRepo, taskRepo repos.StageTaskRepo) StatusService {
	return &statusService{
		db:         db,
		courseRepo: courseRepo,
		taskRepo:   taskRepo,
	}
}

const stageStatusNotStarted = "not_started"

func (s *statusService) GetStatus(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*StatusView, error) {
	courses, err := s.courseRepo.GetByIDs(ctx, tx, []uuid.UUID{courseID})
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if len(courses) == 0 || courses[0] == nil {
		return nil, gorm.ErrRecordNotFound
	}
	course := courses[0]

	tasks, err := s.taskRepo.ListLatestByCourse(ctx, tx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	view := &StatusView{
		CourseID:      course.ID,
		CourseStatus:  course.Status,
		StageStatuses: map[string]string{},
	}

	for _, stage := range types.Stages() {
		if task := tasks[stage]; task != nil {
			view.StageStatuses[string(stage)] = task.Status
		} else {
			view.StageStatuses[string(stage)] = stageStatusNotStarted
		}
	}

	// Current stage is the first one that has not succeeded, or the last
	// stage once everything is done.
	var current *types.StageTask
	view.CurrentStage = types.StageIngest
	for _, stage := range types.Stages() {
		task := tasks[stage]
		view.CurrentStage = stage
		current = task
		if task == nil || task.Status != types.TaskStatusSucceeded {
			break
		}
	}

	if current != nil {
		id := current.ID
		view.CurrentTaskID = &id
		view.ProgressPercentage = current.Progress
		view.CurrentStep = current.CurrentStep
		view.ErrorMessage = current.Error
	}

	return view, nil
}
