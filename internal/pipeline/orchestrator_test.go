package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/repos"
	"github.com/courseforge/courseforge-backend/internal/repos/testutil"
	"github.com/courseforge/courseforge-backend/internal/types"
)

// captureDispatcher records dispatches without running anything, so tests
// drive the terminal transitions themselves.
type captureDispatcher struct {
	mu     sync.Mutex
	inputs []ExecuteInput
	err    error
}

func (d *captureDispatcher) Dispatch(ctx context.Context, task *types.StageTask, in ExecuteInput) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	d.inputs = append(d.inputs, in)
	return "test:" + task.ID.String(), nil
}

func (d *captureDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inputs)
}

type testEnv struct {
	db     *gorm.DB
	orch   *Orchestrator
	disp   *captureDispatcher
	course *types.Course

	courseRepo repos.CourseRepo
	taskRepo   repos.StageTaskRepo
	fileRepo   repos.RepoFileRepo
	docRepo    repos.DocumentAnalysisRepo
	pwRepo     repos.PathwayRepo
	moduleRepo repos.PathwayModuleRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)

	env := &testEnv{
		db:         db,
		disp:       &captureDispatcher{},
		courseRepo: repos.NewCourseRepo(db, log),
		taskRepo:   repos.NewStageTaskRepo(db, log),
		fileRepo:   repos.NewRepoFileRepo(db, log),
		docRepo:    repos.NewDocumentAnalysisRepo(db, log),
		pwRepo:     repos.NewPathwayRepo(db, log),
		moduleRepo: repos.NewPathwayModuleRepo(db, log),
	}
	env.orch = NewOrchestrator(db, log,
		env.courseRepo, env.taskRepo, env.fileRepo, env.docRepo, env.pwRepo, env.moduleRepo,
		env.disp, nil, 2*time.Minute)

	env.course = testutil.SeedCourse(t, context.Background(), db, types.CourseStatusDraft)
	t.Cleanup(func() {
		ctx := context.Background()
		_ = env.moduleRepo.DeleteByCourseID(ctx, nil, env.course.ID)
		_ = env.pwRepo.DeleteByCourseID(ctx, nil, env.course.ID)
		_ = env.docRepo.DeleteByCourseID(ctx, nil, env.course.ID)
		_ = env.fileRepo.DeleteByCourseID(ctx, nil, env.course.ID)
		_ = env.taskRepo.DeleteByCourseID(ctx, nil, env.course.ID)
		_ = env.courseRepo.Delete(ctx, nil, env.course.ID)
	})
	return env
}

func (e *testEnv) courseStatus(t *testing.T) string {
	t.Helper()
	rows, err := e.courseRepo.GetByIDs(context.Background(), nil, []uuid.UUID{e.course.ID})
	if err != nil || len(rows) == 0 {
		t.Fatalf("load course: %v", err)
	}
	return rows[0].Status
}

// runStage starts a stage and immediately completes it with the given output.
func (e *testEnv) runStage(t *testing.T, stage types.Stage, out *ExecuteOutput) *types.StageTask {
	t.Helper()
	ctx := context.Background()
	task, existing, err := e.orch.StartStage(ctx, e.course.ID, stage, nil)
	if err != nil || existing {
		t.Fatalf("StartStage(%s): existing=%v err=%v", stage, existing, err)
	}
	if err := e.orch.CompleteStageByTask(ctx, task.ID, out, nil); err != nil {
		t.Fatalf("CompleteStageByTask(%s): %v", stage, err)
	}
	return task
}

func ingestOutput() *ExecuteOutput {
	return &ExecuteOutput{Files: []IngestedFile{
		{Path: "README.md", Language: "markdown", Kind: "doc", SHA: "a1", SizeBytes: 10},
		{Path: "main.go", Language: "go", Kind: "source", SHA: "b2", SizeBytes: 20},
	}}
}

func analyzeOutput() *ExecuteOutput {
	return &ExecuteOutput{Documents: []AnalyzedDocument{
		{Path: "README.md", Title: "Readme", Summary: "overview", Topics: []string{"intro"}, Importance: 2},
	}}
}

func pathwaysOutput() *ExecuteOutput {
	return &ExecuteOutput{Pathways: []PathwayPlan{{
		Title:       "Track 1",
		Description: "main track",
		Modules: []ModulePlan{
			{Title: "Mod A", Summary: "a", SourcePaths: []string{"README.md"}},
			{Title: "Mod B", Summary: "b", SourcePaths: []string{"main.go"}},
		},
	}}}
}

func TestStartStageLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// stages after the first cannot start from a draft course
	if _, _, err := env.orch.StartStage(ctx, env.course.ID, types.StageAnalyze, nil); !errors.Is(err, ErrStageOutOfOrder) {
		t.Fatalf("analyze before ingest: %v", err)
	}

	task, existing, err := env.orch.StartStage(ctx, env.course.ID, types.StageIngest, map[string]any{"ref": "main"})
	if err != nil || existing {
		t.Fatalf("StartStage: existing=%v err=%v", existing, err)
	}
	if task.Status != types.TaskStatusRunning {
		t.Fatalf("task status after dispatch: %q", task.Status)
	}
	if env.disp.count() != 1 {
		t.Fatalf("dispatch count=%d", env.disp.count())
	}
	if got := env.courseStatus(t); got != "ingest_running" {
		t.Fatalf("course status=%q", got)
	}

	// a duplicate start is an idempotent success with the same identity
	dup, existing, err := env.orch.StartStage(ctx, env.course.ID, types.StageIngest, nil)
	if err != nil || !existing {
		t.Fatalf("duplicate start: existing=%v err=%v", existing, err)
	}
	if dup.ID != task.ID {
		t.Fatalf("duplicate start returned new task %s (want %s)", dup.ID, task.ID)
	}
	if env.disp.count() != 1 {
		t.Fatalf("duplicate start dispatched again")
	}

	if err := env.orch.CompleteStageByTask(ctx, task.ID, ingestOutput(), nil); err != nil {
		t.Fatalf("CompleteStageByTask: %v", err)
	}
	done, err := env.taskRepo.GetByID(ctx, nil, task.ID)
	if err != nil || done == nil {
		t.Fatalf("reload task: %v", err)
	}
	if done.Status != types.TaskStatusSucceeded || done.Progress != 100 || done.CompletedAt == nil {
		t.Fatalf("completed task: status=%q progress=%d", done.Status, done.Progress)
	}
	if got := env.courseStatus(t); got != "ingest_complete" {
		t.Fatalf("course status=%q", got)
	}
	files, err := env.fileRepo.GetByCourseID(ctx, nil, env.course.ID)
	if err != nil || len(files) != 2 {
		t.Fatalf("persisted files: len=%d err=%v", len(files), err)
	}

	// late duplicate completion from an at-least-once substrate is dropped
	if err := env.orch.CompleteStageByTask(ctx, task.ID, ingestOutput(), nil); !errors.Is(err, ErrTaskNotActive) {
		t.Fatalf("duplicate completion: %v", err)
	}

	// a succeeded stage rejects a plain start; re-runs go through restart
	if _, _, err := env.orch.StartStage(ctx, env.course.ID, types.StageIngest, nil); !errors.Is(err, ErrStageAlreadyComplete) {
		t.Fatalf("start after success: %v", err)
	}

	// and completion never auto-started the next stage
	if next, _ := env.taskRepo.GetLatestByCourseStage(ctx, nil, env.course.ID, types.StageAnalyze); next != nil {
		t.Fatalf("analyze auto-started: %v", next.ID)
	}

	// now the next stage may start
	if _, _, err := env.orch.StartStage(ctx, env.course.ID, types.StageAnalyze, nil); err != nil {
		t.Fatalf("start analyze: %v", err)
	}
}

func TestStartStageValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.orch.StartStage(ctx, uuid.New(), types.StageIngest, nil); !errors.Is(err, ErrCourseNotFound) {
		t.Fatalf("unknown course: %v", err)
	}
	if _, _, err := env.orch.StartStage(ctx, env.course.ID, types.Stage("bogus"), nil); !errors.Is(err, ErrUnknownStage) {
		t.Fatalf("unknown stage: %v", err)
	}
}

func TestProgressMonotonicUnderReordering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, _, err := env.orch.StartStage(ctx, env.course.ID, types.StageIngest, nil)
	if err != nil {
		t.Fatalf("StartStage: %v", err)
	}

	if applied, err := env.orch.ReportProgressByTask(ctx, task.ID, 40, "step b"); err != nil || !applied {
		t.Fatalf("progress 40: applied=%v err=%v", applied, err)
	}
	// an older report arriving late is dropped, not applied
	if applied, err := env.orch.ReportProgress(ctx, env.course.ID, types.StageIngest, 20, "step a"); err != nil {
		t.Fatalf("progress 20: %v", err)
	} else if applied {
		t.Fatalf("regressing progress applied")
	}
	got, _ := env.taskRepo.GetByID(ctx, nil, task.ID)
	if got.Progress != 40 || got.CurrentStep != "step b" {
		t.Fatalf("progress=%d step=%q", got.Progress, got.CurrentStep)
	}

	// progress after the terminal transition is dropped too
	if err := env.orch.CompleteStageByTask(ctx, task.ID, ingestOutput(), nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if applied, err := env.orch.ReportProgressByTask(ctx, task.ID, 99, "late"); err != nil || applied {
		t.Fatalf("late progress: applied=%v err=%v", applied, err)
	}
}

func TestExecutorErrorRecordedVerbatim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, _, err := env.orch.StartStage(ctx, env.course.ID, types.StageIngest, nil)
	if err != nil {
		t.Fatalf("StartStage: %v", err)
	}

	execErr := fmt.Errorf("clone failed: repository not found (exit 128)")
	if err := env.orch.CompleteStageByTask(ctx, task.ID, nil, execErr); err != nil {
		t.Fatalf("complete with error: %v", err)
	}

	got, _ := env.taskRepo.GetByID(ctx, nil, task.ID)
	if got.Status != types.TaskStatusFailed {
		t.Fatalf("status=%q", got.Status)
	}
	if got.Error != execErr.Error() {
		t.Fatalf("error not verbatim: %q", got.Error)
	}
	if status := env.courseStatus(t); status != "ingest_failed" {
		t.Fatalf("course status=%q", status)
	}

	// a failed stage is restartable with a plain start
	retry, existing, err := env.orch.StartStage(ctx, env.course.ID, types.StageIngest, nil)
	if err != nil || existing {
		t.Fatalf("restart after failure: existing=%v err=%v", existing, err)
	}
	if retry.ID == task.ID || retry.Attempt != task.Attempt+1 {
		t.Fatalf("retry task: id=%s attempt=%d", retry.ID, retry.Attempt)
	}
}

func TestDispatchFailureFailsTask(t *testing.T) {
	env := newTestEnv(t)
	env.disp.err = errors.New("substrate unavailable")
	ctx := context.Background()

	task, _, err := env.orch.StartStage(ctx, env.course.ID, types.StageIngest, nil)
	if err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	got, _ := env.taskRepo.GetByID(ctx, nil, task.ID)
	if got.Status != types.TaskStatusFailed {
		t.Fatalf("status=%q", got.Status)
	}
	if !strings.Contains(got.Error, "substrate unavailable") {
		t.Fatalf("error=%q", got.Error)
	}
}

func TestForceReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, _, err := env.orch.StartStage(ctx, env.course.ID, types.StageIngest, nil)
	if err != nil {
		t.Fatalf("StartStage: %v", err)
	}

	// a task still inside the staleness window is protected
	if _, err := env.orch.ForceReset(ctx, env.course.ID, types.StageIngest); !errors.Is(err, ErrTaskNotStale) {
		t.Fatalf("fresh reset: %v", err)
	}

	old := time.Now().Add(-10 * time.Minute)
	if err := env.db.Model(&types.StageTask{}).Where("id = ?", task.ID).
		Update("heartbeat_at", old).Error; err != nil {
		t.Fatalf("backdate heartbeat: %v", err)
	}

	reset, err := env.orch.ForceReset(ctx, env.course.ID, types.StageIngest)
	if err != nil {
		t.Fatalf("ForceReset: %v", err)
	}
	if reset.Status != types.TaskStatusFailed || !strings.Contains(reset.Error, "abandoned") {
		t.Fatalf("reset task: status=%q error=%q", reset.Status, reset.Error)
	}
	if status := env.courseStatus(t); status != "ingest_failed" {
		t.Fatalf("course status=%q", status)
	}

	// resetting an already-failed task is a no-op success
	again, err := env.orch.ForceReset(ctx, env.course.ID, types.StageIngest)
	if err != nil || again.ID != reset.ID {
		t.Fatalf("reset of failed task: %v", err)
	}

	// the stage is startable again
	fresh, existing, err := env.orch.StartStage(ctx, env.course.ID, types.StageIngest, nil)
	if err != nil || existing {
		t.Fatalf("start after reset: existing=%v err=%v", existing, err)
	}
	if err := env.orch.CompleteStageByTask(ctx, fresh.ID, ingestOutput(), nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// a succeeded stage cannot be force-reset
	if _, err := env.orch.ForceReset(ctx, env.course.ID, types.StageIngest); !errors.Is(err, ErrStageAlreadyComplete) {
		t.Fatalf("reset of succeeded stage: %v", err)
	}
}

func TestRestartStageInvalidatesDownstream(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.runStage(t, types.StageIngest, ingestOutput())
	env.runStage(t, types.StageAnalyze, analyzeOutput())
	env.runStage(t, types.StagePathways, pathwaysOutput())

	modules, err := env.moduleRepo.GetByCourseID(ctx, nil, env.course.ID)
	if err != nil || len(modules) != 2 {
		t.Fatalf("modules after pathways: len=%d err=%v", len(modules), err)
	}
	env.runStage(t, types.StageGenerate, &ExecuteOutput{Modules: []GeneratedModule{
		{ModuleID: modules[0].ID, ContentMD: "# Mod A\ncontent"},
	}})
	if status := env.courseStatus(t); status != types.CourseStatusReady {
		t.Fatalf("course status=%q", status)
	}

	// re-running analyze invalidates analyze..generate and wipes their data
	restarted, err := env.orch.RestartStage(ctx, env.course.ID, types.StageAnalyze, nil)
	if err != nil {
		t.Fatalf("RestartStage: %v", err)
	}
	if restarted.Status != types.TaskStatusRunning {
		t.Fatalf("restarted status=%q", restarted.Status)
	}
	if status := env.courseStatus(t); status != "analyze_running" {
		t.Fatalf("course status=%q", status)
	}

	for _, stage := range []types.Stage{types.StagePathways, types.StageGenerate} {
		if task, _ := env.taskRepo.GetLatestByCourseStage(ctx, nil, env.course.ID, stage); task != nil {
			t.Fatalf("%s task still valid after restart", stage)
		}
	}
	if docs, _ := env.docRepo.GetByCourseID(ctx, nil, env.course.ID); len(docs) != 0 {
		t.Fatalf("analyze data survived restart")
	}
	if pws, _ := env.pwRepo.GetByCourseID(ctx, nil, env.course.ID); len(pws) != 0 {
		t.Fatalf("pathways data survived restart")
	}
	// upstream output is untouched
	if files, _ := env.fileRepo.GetByCourseID(ctx, nil, env.course.ID); len(files) != 2 {
		t.Fatalf("ingest data lost on analyze restart")
	}

	// pathways cannot start until the new analyze run succeeds
	if _, _, err := env.orch.StartStage(ctx, env.course.ID, types.StagePathways, nil); !errors.Is(err, ErrStageOutOfOrder) {
		t.Fatalf("pathways after restart: %v", err)
	}

	// restarting a stage with an active task is rejected
	if _, err := env.orch.RestartStage(ctx, env.course.ID, types.StageAnalyze, nil); !errors.Is(err, ErrTaskNotStale) {
		t.Fatalf("restart of active stage: %v", err)
	}
}

func TestRestartGenerateKeepsPathwayTree(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.runStage(t, types.StageIngest, ingestOutput())
	env.runStage(t, types.StageAnalyze, analyzeOutput())
	env.runStage(t, types.StagePathways, pathwaysOutput())
	modules, _ := env.moduleRepo.GetByCourseID(ctx, nil, env.course.ID)
	env.runStage(t, types.StageGenerate, &ExecuteOutput{Modules: []GeneratedModule{
		{ModuleID: modules[0].ID, ContentMD: "content"},
	}})

	if _, err := env.orch.RestartStage(ctx, env.course.ID, types.StageGenerate, nil); err != nil {
		t.Fatalf("RestartStage(generate): %v", err)
	}

	// the tree survives; only generated content is cleared
	after, err := env.moduleRepo.GetByCourseID(ctx, nil, env.course.ID)
	if err != nil || len(after) != len(modules) {
		t.Fatalf("modules after generate restart: len=%d err=%v", len(after), err)
	}
	for _, m := range after {
		if m.ContentMD != "" || m.GeneratedAt != nil {
			t.Fatalf("module %s content survived generate restart", m.ID)
		}
	}
}

func TestWatchdogSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, _, err := env.orch.StartStage(ctx, env.course.ID, types.StageIngest, nil)
	if err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	old := time.Now().Add(-10 * time.Minute)
	if err := env.db.Model(&types.StageTask{}).Where("id = ?", task.ID).
		Update("heartbeat_at", old).Error; err != nil {
		t.Fatalf("backdate heartbeat: %v", err)
	}

	w := NewWatchdog(testutil.Logger(t), env.taskRepo, env.courseRepo, nil, 2*time.Minute, time.Hour)
	w.Sweep(ctx)

	got, _ := env.taskRepo.GetByID(ctx, nil, task.ID)
	if got.Status != types.TaskStatusFailed {
		t.Fatalf("status after sweep=%q", got.Status)
	}
	if status := env.courseStatus(t); status != "ingest_failed" {
		t.Fatalf("course status=%q", status)
	}
}
