package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/courseforge/courseforge-backend/internal/repos"
	"github.com/courseforge/courseforge-backend/internal/repos/testutil"
	"github.com/courseforge/courseforge-backend/internal/types"
)

// waitForTerminal polls until the task leaves the active states.
func waitForTerminal(t *testing.T, getByID func() (*types.StageTask, error)) *types.StageTask {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := getByID()
		if err != nil {
			t.Fatalf("reload task: %v", err)
		}
		if task != nil && types.TaskStatusTerminal(task.Status) {
			return task
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("task never reached a terminal state")
	return nil
}

func TestLocalDispatcherRunsExecutor(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()

	courseRepo := repos.NewCourseRepo(db, log)
	taskRepo := repos.NewStageTaskRepo(db, log)
	fileRepo := repos.NewRepoFileRepo(db, log)
	docRepo := repos.NewDocumentAnalysisRepo(db, log)
	pwRepo := repos.NewPathwayRepo(db, log)
	moduleRepo := repos.NewPathwayModuleRepo(db, log)

	reg := NewRegistry()
	reg.Register(types.StageIngest, ExecutorFunc(func(ctx context.Context, in ExecuteInput, onProgress ProgressFunc) (*ExecuteOutput, error) {
		onProgress(50, "scanning")
		return ingestOutput(), nil
	}))
	reg.Register(types.StageAnalyze, ExecutorFunc(func(ctx context.Context, in ExecuteInput, onProgress ProgressFunc) (*ExecuteOutput, error) {
		panic("model exploded")
	}))

	disp := NewLocalDispatcher(log, reg, 2)
	orch := NewOrchestrator(db, log, courseRepo, taskRepo, fileRepo, docRepo, pwRepo, moduleRepo, disp, nil, 2*time.Minute)
	disp.Bind(orch)

	course := testutil.SeedCourse(t, ctx, db, types.CourseStatusDraft)
	t.Cleanup(func() {
		_ = fileRepo.DeleteByCourseID(ctx, nil, course.ID)
		_ = taskRepo.DeleteByCourseID(ctx, nil, course.ID)
		_ = courseRepo.Delete(ctx, nil, course.ID)
	})

	task, _, err := orch.StartStage(ctx, course.ID, types.StageIngest, nil)
	if err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	done := waitForTerminal(t, func() (*types.StageTask, error) {
		return taskRepo.GetByID(ctx, nil, task.ID)
	})
	if done.Status != types.TaskStatusSucceeded {
		t.Fatalf("ingest task: status=%q error=%q", done.Status, done.Error)
	}
	files, err := fileRepo.GetByCourseID(ctx, nil, course.ID)
	if err != nil || len(files) != 2 {
		t.Fatalf("persisted files: len=%d err=%v", len(files), err)
	}

	// an executor panic fails the task instead of crashing the process
	task, _, err = orch.StartStage(ctx, course.ID, types.StageAnalyze, nil)
	if err != nil {
		t.Fatalf("StartStage(analyze): %v", err)
	}
	done = waitForTerminal(t, func() (*types.StageTask, error) {
		return taskRepo.GetByID(ctx, nil, task.ID)
	})
	if done.Status != types.TaskStatusFailed {
		t.Fatalf("analyze task: status=%q", done.Status)
	}
	if done.Error == "" {
		t.Fatalf("panic message not recorded")
	}
}

func TestLocalDispatcherMissingExecutor(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()

	courseRepo := repos.NewCourseRepo(db, log)
	taskRepo := repos.NewStageTaskRepo(db, log)

	disp := NewLocalDispatcher(log, NewRegistry(), 2)
	orch := NewOrchestrator(db, log,
		courseRepo, taskRepo,
		repos.NewRepoFileRepo(db, log), repos.NewDocumentAnalysisRepo(db, log),
		repos.NewPathwayRepo(db, log), repos.NewPathwayModuleRepo(db, log),
		disp, nil, 2*time.Minute)
	disp.Bind(orch)

	course := testutil.SeedCourse(t, ctx, db, types.CourseStatusDraft)
	t.Cleanup(func() {
		_ = taskRepo.DeleteByCourseID(ctx, nil, course.ID)
		_ = courseRepo.Delete(ctx, nil, course.ID)
	})

	task, _, err := orch.StartStage(ctx, course.ID, types.StageIngest, nil)
	if err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	got, err := taskRepo.GetByID(ctx, nil, task.ID)
	if err != nil || got == nil {
		t.Fatalf("reload task: %v", err)
	}
	if got.Status != types.TaskStatusFailed || !strings.Contains(got.Error, ErrNoExecutor.Error()) {
		t.Fatalf("status=%q error=%q", got.Status, got.Error)
	}
}
