package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/types"
)

type PathwayModuleRepo interface {
	Create(ctx context.Context, tx *gorm.DB, modules []*types.PathwayModule) ([]*types.PathwayModule, error)
	GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.PathwayModule, error)
	GetByPathwayIDs(ctx context.Context, tx *gorm.DB, pathwayIDs []uuid.UUID) ([]*types.PathwayModule, error)
	// UpdateContent augments a module in place with generated markdown.
	UpdateContent(ctx context.Context, tx *gorm.DB, id uuid.UUID, contentMD string) error
	DeleteByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error
	// ClearContentByCourseID strips generated content without touching the
	// pathway structure, used when only the generate stage is re-run.
	ClearContentByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error
}

type pathwayModuleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPathwayModuleRepo(db *gorm.DB, baseLog *logger.Logger) PathwayModuleRepo {
	return &pathwayModuleRepo{
		db:  db,
		log: baseLog.With("repo", "PathwayModuleRepo"),
	}
}

func (r *pathwayModuleRepo) Create(ctx context.Context, tx *gorm.DB, modules []*types.PathwayModule) ([]*types.PathwayModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(modules) == 0 {
		return []*types.PathwayModule{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

func (r *pathwayModuleRepo) GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.PathwayModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.PathwayModule
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("\"index\" ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *pathwayModuleRepo) GetByPathwayIDs(ctx context.Context, tx *gorm.DB, pathwayIDs []uuid.UUID) ([]*types.PathwayModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.PathwayModule
	if len(pathwayIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("pathway_id IN ?", pathwayIDs).
		Order("\"index\" ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *pathwayModuleRepo) UpdateContent(ctx context.Context, tx *gorm.DB, id uuid.UUID, contentMD string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.PathwayModule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content_md":   contentMD,
			"generated_at": now,
			"updated_at":   now,
		}).Error
}

func (r *pathwayModuleRepo) DeleteByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Delete(&types.PathwayModule{}).Error
}

func (r *pathwayModuleRepo) ClearContentByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.PathwayModule{}).
		Where("course_id = ?", courseID).
		Updates(map[string]interface{}{
			"content_md":   "",
			"generated_at": nil,
			"updated_at":   time.Now(),
		}).Error
}
