package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/types"
)

type DocumentAnalysisRepo interface {
	Create(ctx context.Context, tx *gorm.DB, docs []*types.DocumentAnalysis) ([]*types.DocumentAnalysis, error)
	GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.DocumentAnalysis, error)
	DeleteByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error
}

type documentAnalysisRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) DocumentAnalysisRepo {
	return &documentAnalysisRepo{
		db:  db,
		log: baseLog.With("repo", "DocumentAnalysisRepo"),
	}
}

func (r *documentAnalysisRepo) Create(ctx context.Context, tx *gorm.DB, docs []*types.DocumentAnalysis) ([]*types.DocumentAnalysis, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(docs) == 0 {
		return []*types.DocumentAnalysis{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentAnalysisRepo) GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.DocumentAnalysis, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DocumentAnalysis
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("importance DESC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentAnalysisRepo) DeleteByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Delete(&types.DocumentAnalysis{}).Error
}
