package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/repos"
	"github.com/courseforge/courseforge-backend/internal/types"
)

type CreateCourseInput struct {
	OwnerUserID uuid.UUID `json:"owner_user_id" binding:"required"`
	RepoURL     string    `json:"repo_url" binding:"required"`
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
}

type CourseService interface {
	Create(ctx context.Context, in CreateCourseInput) (*types.Course, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Course, error)
	// Delete removes a course along with its tasks and all stage data.
	Delete(ctx context.Context, id uuid.UUID) error
}

type courseService struct {
	db         *gorm.DB
	log        *logger.Logger
	courseRepo repos.CourseRepo
	taskRepo   repos.StageTaskRepo
	fileRepo   repos.RepoFileRepo
	docRepo    repos.DocumentAnalysisRepo
	pwRepo     repos.PathwayRepo
	moduleRepo repos.PathwayModuleRepo
}

func NewCourseService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courseRepo repos.CourseRepo,
	taskRepo repos.StageTaskRepo,
	fileRepo repos.RepoFileRepo,
	docRepo repos.DocumentAnalysisRepo,
	pwRepo repos.PathwayRepo,
	moduleRepo repos.PathwayModuleRepo,
) CourseService {
	return &courseService{
		db:         db,
		log:        baseLog.With("service", "CourseService"),
		courseRepo: courseRepo,
		taskRepo:   taskRepo,
		fileRepo:   fileRepo,
		docRepo:    docRepo,
		pwRepo:     pwRepo,
		moduleRepo: moduleRepo,
	}
}

func (s *courseService) Create(ctx context.Context, in CreateCourseInput) (*types.Course, error) {
	now := time.Now().UTC()
	course := &types.Course{
		ID:          uuid.New(),
		OwnerUserID: in.OwnerUserID,
		RepoURL:     in.RepoURL,
		Title:       in.Title,
		Description: in.Description,
		Status:      types.CourseStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.courseRepo.Create(ctx, nil, []*types.Course{course}); err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}
	s.log.Info("course created", "course_id", course.ID, "repo_url", course.RepoURL)
	return course, nil
}

func (s *courseService) Get(ctx context.Context, id uuid.UUID) (*types.Course, error) {
	courses, err := s.courseRepo.GetByIDs(ctx, nil, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 || courses[0] == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return courses[0], nil
}

func (s *courseService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.moduleRepo.DeleteByCourseID(ctx, tx, id); err != nil {
			return err
		}
		if err := s.pwRepo.DeleteByCourseID(ctx, tx, id); err != nil {
			return err
		}
		if err := s.docRepo.DeleteByCourseID(ctx, tx, id); err != nil {
			return err
		}
		if err := s.fileRepo.DeleteByCourseID(ctx, tx, id); err != nil {
			return err
		}
		if err := s.taskRepo.DeleteByCourseID(ctx, tx, id); err != nil {
			return err
		}
		return s.courseRepo.Delete(ctx, tx, id)
	})
	if err != nil {
		return fmt.Errorf("delete course %s: %w", id, err)
	}
	s.log.Info("course deleted", "course_id", id)
	return nil
}
