package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/types"
)

type RepoFileRepo interface {
	Create(ctx context.Context, tx *gorm.DB, files []*types.RepoFile) ([]*types.RepoFile, error)
	GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.RepoFile, error)
	DeleteByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error
}

type repoFileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepoFileRepo(db *gorm.DB, baseLog *logger.Logger) RepoFileRepo {
	return &repoFileRepo{
		db:  db,
		log: baseLog.With("repo", "RepoFileRepo"),
	}
}

func (r *repoFileRepo) Create(ctx context.Context, tx *gorm.DB, files []*types.RepoFile) ([]*types.RepoFile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(files) == 0 {
		return []*types.RepoFile{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (r *repoFileRepo) GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.RepoFile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.RepoFile
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("path ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repoFileRepo) DeleteByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Delete(&types.RepoFile{}).Error
}
