package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/types"
)

type StageTaskRepo interface {
	Create(ctx context.Context, tx *gorm.DB, tasks []*types.StageTask) ([]*types.StageTask, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.StageTask, error)
	// GetLatestByCourseStage returns the newest non-invalidated task for the
	// key, or nil. Invalidated rows are audit history and never count.
	GetLatestByCourseStage(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, stage types.Stage) (*types.StageTask, error)
	ListLatestByCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (map[types.Stage]*types.StageTask, error)
	// UpdateFieldsWhereStatus applies updates only while the row is in one of
	// the allowed statuses. Returns whether the write landed; callers use
	// this as their compare-and-swap primitive.
	UpdateFieldsWhereStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, allowed []string, updates map[string]interface{}) (bool, error)
	// AdvanceProgress applies a progress update with a monotonic floor: it
	// lands only while the task is running and the recorded percentage is
	// not above the new one. Late or duplicated deliveries are dropped.
	AdvanceProgress(ctx context.Context, tx *gorm.DB, id uuid.UUID, pct int, step string) (bool, error)
	InvalidateStages(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, stages []types.Stage) error
	// MarkStaleFailed flips running tasks whose heartbeat predates the cutoff
	// to failed and returns them.
	MarkStaleFailed(ctx context.Context, tx *gorm.DB, staleBefore time.Time, errMsg string) ([]*types.StageTask, error)
	DeleteByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error
}

type stageTaskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStageTaskRepo(db *gorm.DB, baseLog *logger.Logger) StageTaskRepo {
	return &stageTaskRepo{
		db:  db,
		log: baseLog.With("repo", "StageTaskRepo"),
	}
}

func (r *stageTaskRepo) Create(ctx context.Context, tx *gorm.DB, tasks []*types.StageTask) ([]*types.StageTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(tasks) == 0 {
		return []*types.StageTask{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *stageTaskRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.StageTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var task types.StageTask
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&task).Error
	if err != nil {
		return nil, err
	}
	if task.ID == uuid.Nil {
		return nil, nil
	}
	return &task, nil
}

func (r *stageTaskRepo) GetLatestByCourseStage(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, stage types.Stage) (*types.StageTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil || !stage.Valid() {
		return nil, nil
	}
	var task types.StageTask
	err := transaction.WithContext(ctx).
		Where("course_id = ? AND stage = ? AND invalidated_at IS NULL", courseID, stage).
		Order("created_at DESC").
		Limit(1).
		Find(&task).Error
	if err != nil {
		return nil, err
	}
	if task.ID == uuid.Nil {
		return nil, nil
	}
	return &task, nil
}

func (r *stageTaskRepo) ListLatestByCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (map[types.Stage]*types.StageTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	out := map[types.Stage]*types.StageTask{}
	if courseID == uuid.Nil {
		return out, nil
	}
	var rows []*types.StageTask
	err := transaction.WithContext(ctx).
		Where("course_id = ? AND invalidated_at IS NULL", courseID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, t := range rows {
		if t == nil {
			continue
		}
		if _, seen := out[t.Stage]; !seen {
			out[t.Stage] = t
		}
	}
	return out, nil
}

func (r *stageTaskRepo) UpdateFieldsWhereStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, allowed []string, updates map[string]interface{}) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(allowed) == 0 {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := transaction.WithContext(ctx).
		Model(&types.StageTask{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *stageTaskRepo) AdvanceProgress(ctx context.Context, tx *gorm.DB, id uuid.UUID, pct int, step string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&types.StageTask{}).
		Where("id = ? AND status = ? AND progress <= ?", id, types.TaskStatusRunning, pct).
		Updates(map[string]interface{}{
			"progress":     pct,
			"current_step": step,
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *stageTaskRepo) InvalidateStages(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, stages []types.Stage) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil || len(stages) == 0 {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.StageTask{}).
		Where("course_id = ? AND stage IN ? AND invalidated_at IS NULL", courseID, stages).
		Updates(map[string]interface{}{
			"invalidated_at": now,
			"updated_at":     now,
		}).Error
}

func (r *stageTaskRepo) MarkStaleFailed(ctx context.Context, tx *gorm.DB, staleBefore time.Time, errMsg string) ([]*types.StageTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var stale []*types.StageTask
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := lockForUpdate(txx).
			Where("status = ? AND invalidated_at IS NULL", types.TaskStatusRunning).
			Where("(heartbeat_at IS NOT NULL AND heartbeat_at < ?) OR (heartbeat_at IS NULL AND created_at < ?)", staleBefore, staleBefore).
			Find(&stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(stale))
		for _, t := range stale {
			ids = append(ids, t.ID)
		}
		now := time.Now()
		return txx.Model(&types.StageTask{}).
			Where("id IN ? AND status = ?", ids, types.TaskStatusRunning).
			Updates(map[string]interface{}{
				"status":       types.TaskStatusFailed,
				"error":        errMsg,
				"completed_at": now,
				"updated_at":   now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return stale, nil
}

func (r *stageTaskRepo) DeleteByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if courseID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Delete(&types.StageTask{}).Error
}
