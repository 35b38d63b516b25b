package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/types"
)

func SeedCourse(tb testing.TB, ctx context.Context, tx *gorm.DB, status string) *types.Course {
	tb.Helper()
	now := time.Now()
	c := &types.Course{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		RepoURL:     "https://example.com/org/repo.git",
		Title:       "course",
		Status:      status,
		Metadata:    datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	return c
}

func SeedTask(tb testing.TB, ctx context.Context, tx *gorm.DB, courseID uuid.UUID, stage types.Stage, status string) *types.StageTask {
	tb.Helper()
	now := time.Now()
	t := &types.StageTask{
		ID:        uuid.New(),
		CourseID:  courseID,
		Stage:     stage,
		Status:    status,
		Attempt:   1,
		Payload:   datatypes.JSON([]byte(`{}`)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == types.TaskStatusRunning {
		t.StartedAt = &now
		t.HeartbeatAt = &now
	}
	if status == types.TaskStatusSucceeded || status == types.TaskStatusFailed {
		t.CompletedAt = &now
	}
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		tb.Fatalf("seed task: %v", err)
	}
	return t
}
