package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/types"
)

type PathwayRepo interface {
	Create(ctx context.Context, tx *gorm.DB, pathways []*types.Pathway) ([]*types.Pathway, error)
	GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.Pathway, error)
	DeleteByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error
}

type pathwayRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPathwayRepo(db *gorm.DB, baseLog *logger.Logger) PathwayRepo {
	return &pathwayRepo{
		db:  db,
		log: baseLog.With("repo", "PathwayRepo"),
	}
}

func (r *pathwayRepo) Create(ctx context.Context, tx *gorm.DB, pathways []*types.Pathway) ([]*types.Pathway, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(pathways) == 0 {
		return []*types.Pathway{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&pathways).Error; err != nil {
		return nil, err
	}
	return pathways, nil
}

func (r *pathwayRepo) GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.Pathway, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Pathway
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

func (r *pathwayRepo) DeleteByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Delete(&types.Pathway{}).Error
}
