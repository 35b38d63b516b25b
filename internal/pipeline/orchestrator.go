package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/repos"
	"github.com/courseforge/courseforge-backend/internal/types"
)

/*
Orchestrator drives a course through the four ordered generation stages.
It owns every mutation of stage_task rows and of Course.Status:
  - StartStage checks ordering and the at-most-one-active invariant under a
    course-row lock, creates the task, and hands it to the dispatcher. It
    returns immediately; it never waits for the stage to finish.
  - ReportProgress/CompleteStage are the only result paths back from the
    execution substrate. They are safe to call from another process as long
    as the task identity correlates, and they tolerate at-least-once
    delivery (duplicates and reordering are dropped, not applied).
  - Completing a stage never auto-starts the next one; users review output
    between stages and advancement is always client-initiated.
*/
type Orchestrator struct {
	db  *gorm.DB
	log *logger.Logger

	courseRepo  repos.CourseRepo
	taskRepo    repos.StageTaskRepo
	fileRepo    repos.RepoFileRepo
	docRepo     repos.DocumentAnalysisRepo
	pathwayRepo repos.PathwayRepo
	moduleRepo  repos.PathwayModuleRepo

	dispatcher Dispatcher
	notify     StageNotifier

	// staleAfter is the watchdog window: a running task whose heartbeat is
	// older than this counts as abandoned.
	staleAfter time.Duration
}

func NewOrchestrator(
	db *gorm.DB,
	baseLog *logger.Logger,
	courseRepo repos.CourseRepo,
	taskRepo repos.StageTaskRepo,
	fileRepo repos.RepoFileRepo,
	docRepo repos.DocumentAnalysisRepo,
	pathwayRepo repos.PathwayRepo,
	moduleRepo repos.PathwayModuleRepo,
	dispatcher Dispatcher,
	notify StageNotifier,
	staleAfter time.Duration,
) *Orchestrator {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	return &Orchestrator{
		db:          db,
		log:         baseLog.With("component", "Orchestrator"),
		courseRepo:  courseRepo,
		taskRepo:    taskRepo,
		fileRepo:    fileRepo,
		docRepo:     docRepo,
		pathwayRepo: pathwayRepo,
		moduleRepo:  moduleRepo,
		dispatcher:  dispatcher,
		notify:      notify,
		staleAfter:  staleAfter,
	}
}

func (o *Orchestrator) StaleAfter() time.Duration { return o.staleAfter }

// StartStage validates preconditions, creates the task record, and
// dispatches the executor. Returns the task and whether it was already
// running: a duplicate start is an idempotent success returning the existing
// task identity, because network retries from clients are expected.
func (o *Orchestrator) StartStage(ctx context.Context, courseID uuid.UUID, stage types.Stage, payload map[string]any) (*types.StageTask, bool, error) {
	if !stage.Valid() {
		return nil, false, ErrUnknownStage
	}

	var task *types.StageTask
	var existing bool

	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		course, err := o.courseRepo.GetByIDForUpdate(ctx, tx, courseID)
		if err != nil {
			return fmt.Errorf("load course: %w", err)
		}
		if course == nil {
			return ErrCourseNotFound
		}

		cur, err := o.taskRepo.GetLatestByCourseStage(ctx, tx, courseID, stage)
		if err != nil {
			return fmt.Errorf("load current task: %w", err)
		}
		if cur != nil && types.TaskStatusActive(cur.Status) {
			task = cur
			existing = true
			return nil
		}
		if cur != nil && cur.Status == types.TaskStatusSucceeded {
			return ErrStageAlreadyComplete
		}

		if prev, ok := stage.Prev(); ok {
			prevTask, err := o.taskRepo.GetLatestByCourseStage(ctx, tx, courseID, prev)
			if err != nil {
				return fmt.Errorf("load previous stage task: %w", err)
			}
			if prevTask == nil || prevTask.Status != types.TaskStatusSucceeded {
				return ErrStageOutOfOrder
			}
		}

		attempt := 1
		if cur != nil {
			attempt = cur.Attempt + 1
		}
		task = o.newTask(courseID, stage, attempt, payload)
		if _, err := o.taskRepo.Create(ctx, tx, []*types.StageTask{task}); err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return o.courseRepo.UpdateFields(ctx, tx, courseID, map[string]interface{}{
			"status": stage.RunningStatus(),
		})
	})
	if err != nil {
		return nil, false, err
	}
	if existing {
		return task, true, nil
	}

	o.dispatch(ctx, task)
	return task, false, nil
}

// RestartStage explicitly re-runs a stage that already reached a terminal
// state. Downstream stages consumed the now-stale output, so their tasks are
// invalidated and their data removed atomically with the new task's
// creation. The old task rows are kept for audit, never overwritten.
func (o *Orchestrator) RestartStage(ctx context.Context, courseID uuid.UUID, stage types.Stage, payload map[string]any) (*types.StageTask, error) {
	if !stage.Valid() {
		return nil, ErrUnknownStage
	}

	var task *types.StageTask
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		course, err := o.courseRepo.GetByIDForUpdate(ctx, tx, courseID)
		if err != nil {
			return fmt.Errorf("load course: %w", err)
		}
		if course == nil {
			return ErrCourseNotFound
		}

		cur, err := o.taskRepo.GetLatestByCourseStage(ctx, tx, courseID, stage)
		if err != nil {
			return fmt.Errorf("load current task: %w", err)
		}
		if cur == nil {
			return ErrTaskNotFound
		}
		if types.TaskStatusActive(cur.Status) {
			return fmt.Errorf("%w: reset the running task first", ErrTaskNotStale)
		}
		// Downstream work is also covered by active-task checks: nothing
		// downstream can be active while this stage is terminal, because
		// ordering means downstream stages started after this one succeeded
		// and a restart of this stage invalidates them here.
		downstream := stage.From()
		for _, s := range downstream[1:] {
			t, err := o.taskRepo.GetLatestByCourseStage(ctx, tx, courseID, s)
			if err != nil {
				return fmt.Errorf("load downstream task: %w", err)
			}
			if t != nil && types.TaskStatusActive(t.Status) {
				return fmt.Errorf("%w: downstream stage %s is active", ErrTaskNotStale, s)
			}
		}

		if err := o.taskRepo.InvalidateStages(ctx, tx, courseID, downstream); err != nil {
			return fmt.Errorf("invalidate tasks: %w", err)
		}
		if err := o.deleteStageData(ctx, tx, courseID, stage); err != nil {
			return fmt.Errorf("invalidate stage data: %w", err)
		}

		task = o.newTask(courseID, stage, cur.Attempt+1, payload)
		if _, err := o.taskRepo.Create(ctx, tx, []*types.StageTask{task}); err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return o.courseRepo.UpdateFields(ctx, tx, courseID, map[string]interface{}{
			"status": stage.RunningStatus(),
		})
	})
	if err != nil {
		return nil, err
	}

	o.dispatch(ctx, task)
	return task, nil
}

func (o *Orchestrator) newTask(courseID uuid.UUID, stage types.Stage, attempt int, payload map[string]any) *types.StageTask {
	now := time.Now()
	var pl datatypes.JSON
	if payload != nil {
		b, _ := json.Marshal(payload)
		pl = datatypes.JSON(b)
	} else {
		pl = datatypes.JSON([]byte(`{}`))
	}
	return &types.StageTask{
		ID:        uuid.New(),
		CourseID:  courseID,
		Stage:     stage,
		Status:    types.TaskStatusPending,
		Attempt:   attempt,
		Payload:   pl,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// dispatch flips the pending task to running and hands it to the substrate.
// A dispatch failure terminates the task immediately so the course is never
// stuck behind a phantom RUNNING row.
func (o *Orchestrator) dispatch(ctx context.Context, task *types.StageTask) {
	now := time.Now()
	ok, err := o.taskRepo.UpdateFieldsWhereStatus(ctx, nil, task.ID, []string{types.TaskStatusPending}, map[string]interface{}{
		"status":       types.TaskStatusRunning,
		"started_at":   now,
		"heartbeat_at": now,
	})
	if err != nil {
		o.log.Error("failed to mark task running", "task_id", task.ID, "error", err)
		return
	}
	if !ok {
		o.log.Warn("task left pending state before dispatch", "task_id", task.ID)
		return
	}
	task.Status = types.TaskStatusRunning
	task.StartedAt = &now
	task.HeartbeatAt = &now

	if o.notify != nil {
		o.notify.StageStarted(task)
	}

	var payload map[string]any
	_ = json.Unmarshal(task.Payload, &payload)
	in := ExecuteInput{
		TaskID:   task.ID,
		CourseID: task.CourseID,
		Stage:    task.Stage,
		Payload:  payload,
	}

	handle, err := o.dispatcher.Dispatch(ctx, task, in)
	if err != nil {
		o.failTask(ctx, task, fmt.Errorf("dispatch: %w", err))
		return
	}
	if handle != "" {
		_, _ = o.taskRepo.UpdateFieldsWhereStatus(ctx, nil, task.ID,
			[]string{types.TaskStatusRunning},
			map[string]interface{}{"executor_handle": handle})
		task.ExecutorHandle = handle
	}
}

// ReportProgress records a progress update for the stage's running task.
// Returns whether the update was applied; a lower-than-recorded percentage
// or a non-running task drops the update without error.
func (o *Orchestrator) ReportProgress(ctx context.Context, courseID uuid.UUID, stage types.Stage, pct int, step string) (bool, error) {
	task, err := o.taskRepo.GetLatestByCourseStage(ctx, nil, courseID, stage)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, ErrTaskNotFound
	}
	return o.ReportProgressByTask(ctx, task.ID, pct, step)
}

func (o *Orchestrator) ReportProgressByTask(ctx context.Context, taskID uuid.UUID, pct int, step string) (bool, error) {
	applied, err := o.taskRepo.AdvanceProgress(ctx, nil, taskID, pct, step)
	if err != nil {
		return false, err
	}
	if applied && o.notify != nil {
		if task, err := o.taskRepo.GetByID(ctx, nil, taskID); err == nil && task != nil {
			o.notify.StageProgress(task.CourseID, task.Stage, task.Progress, task.CurrentStep)
		}
	}
	return applied, nil
}

// CompleteStage is the terminal transition. On success the stage output is
// persisted and the course status flips to the stage's complete value; on
// error the executor's message is recorded verbatim and the stage becomes
// restartable. Nothing here advances to the next stage.
func (o *Orchestrator) CompleteStage(ctx context.Context, courseID uuid.UUID, stage types.Stage, out *ExecuteOutput, execErr error) error {
	task, err := o.taskRepo.GetLatestByCourseStage(ctx, nil, courseID, stage)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrTaskNotFound
	}
	return o.CompleteStageByTask(ctx, task.ID, out, execErr)
}

func (o *Orchestrator) CompleteStageByTask(ctx context.Context, taskID uuid.UUID, out *ExecuteOutput, execErr error) error {
	task, err := o.taskRepo.GetByID(ctx, nil, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrTaskNotFound
	}

	if execErr != nil {
		o.failTask(ctx, task, execErr)
		return nil
	}

	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := o.resultSummary(task.Stage, out)
		ok, err := o.taskRepo.UpdateFieldsWhereStatus(ctx, tx, task.ID, []string{types.TaskStatusRunning}, map[string]interface{}{
			"status":       types.TaskStatusSucceeded,
			"progress":     100,
			"current_step": "",
			"error":        "",
			"result":       result,
			"completed_at": now,
			"heartbeat_at": now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrTaskNotActive
		}
		if err := o.persistOutput(ctx, tx, task.CourseID, task.Stage, out); err != nil {
			return fmt.Errorf("persist stage output: %w", err)
		}
		return o.courseRepo.UpdateFields(ctx, tx, task.CourseID, map[string]interface{}{
			"status": task.Stage.CompleteStatus(),
		})
	})
	if err != nil {
		return err
	}

	if o.notify != nil {
		o.notify.StageDone(task.CourseID, task.Stage)
	}
	return nil
}

func (o *Orchestrator) failTask(ctx context.Context, task *types.StageTask, execErr error) {
	now := time.Now()
	msg := ""
	if execErr != nil {
		msg = execErr.Error()
	}
	ok, err := o.taskRepo.UpdateFieldsWhereStatus(ctx, nil, task.ID,
		[]string{types.TaskStatusPending, types.TaskStatusRunning},
		map[string]interface{}{
			"status":       types.TaskStatusFailed,
			"error":        msg,
			"completed_at": now,
		})
	if err != nil {
		o.log.Error("failed to mark task failed", "task_id", task.ID, "error", err)
		return
	}
	if !ok {
		// Already terminal; a late failure from an at-least-once substrate.
		return
	}
	if err := o.courseRepo.UpdateFields(ctx, nil, task.CourseID, map[string]interface{}{
		"status": task.Stage.FailedStatus(),
	}); err != nil {
		o.log.Error("failed to flip course status", "course_id", task.CourseID, "error", err)
	}
	if o.notify != nil {
		o.notify.StageFailed(task.CourseID, task.Stage, msg)
	}
}

// ForceReset is the escape hatch for a task stuck in RUNNING after its
// worker died. It only fires once the heartbeat is older than the watchdog
// window; a task that is still reporting progress is left alone. Resetting
// an already-failed task is a no-op success.
func (o *Orchestrator) ForceReset(ctx context.Context, courseID uuid.UUID, stage types.Stage) (*types.StageTask, error) {
	if !stage.Valid() {
		return nil, ErrUnknownStage
	}
	task, err := o.taskRepo.GetLatestByCourseStage(ctx, nil, courseID, stage)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}

	switch task.Status {
	case types.TaskStatusFailed:
		return task, nil
	case types.TaskStatusSucceeded:
		return nil, fmt.Errorf("%w: stage already succeeded, use restart", ErrStageAlreadyComplete)
	}

	ref := task.HeartbeatAt
	if ref == nil {
		ref = &task.CreatedAt
	}
	if time.Since(*ref) < o.staleAfter {
		return nil, ErrTaskNotStale
	}

	o.failTask(ctx, task, fmt.Errorf("abandoned: no progress heartbeat within %s", o.staleAfter))
	task, err = o.taskRepo.GetByID(ctx, nil, task.ID)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// persistOutput writes the stage-shaped payload. Re-running a stage lands
// here again, so existing rows for the course are replaced, not appended.
func (o *Orchestrator) persistOutput(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, stage types.Stage, out *ExecuteOutput) error {
	if out == nil {
		out = &ExecuteOutput{}
	}
	now := time.Now()

	switch stage {
	case types.StageIngest:
		if err := o.fileRepo.DeleteByCourseID(ctx, tx, courseID); err != nil {
			return err
		}
		files := make([]*types.RepoFile, 0, len(out.Files))
		for _, f := range out.Files {
			files = append(files, &types.RepoFile{
				ID:        uuid.New(),
				CourseID:  courseID,
				Path:      f.Path,
				Language:  f.Language,
				Kind:      f.Kind,
				SHA:       f.SHA,
				SizeBytes: f.SizeBytes,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		_, err := o.fileRepo.Create(ctx, tx, files)
		return err

	case types.StageAnalyze:
		if err := o.docRepo.DeleteByCourseID(ctx, tx, courseID); err != nil {
			return err
		}
		fileIDByPath := map[string]uuid.UUID{}
		existing, err := o.fileRepo.GetByCourseID(ctx, tx, courseID)
		if err != nil {
			return err
		}
		for _, f := range existing {
			fileIDByPath[f.Path] = f.ID
		}
		docs := make([]*types.DocumentAnalysis, 0, len(out.Documents))
		for _, d := range out.Documents {
			topics, _ := json.Marshal(d.Topics)
			doc := &types.DocumentAnalysis{
				ID:         uuid.New(),
				CourseID:   courseID,
				Title:      d.Title,
				Summary:    d.Summary,
				Topics:     datatypes.JSON(topics),
				Importance: d.Importance,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if id, ok := fileIDByPath[d.Path]; ok {
				fid := id
				doc.RepoFileID = &fid
			}
			docs = append(docs, doc)
		}
		_, err = o.docRepo.Create(ctx, tx, docs)
		return err

	case types.StagePathways:
		if err := o.moduleRepo.DeleteByCourseID(ctx, tx, courseID); err != nil {
			return err
		}
		if err := o.pathwayRepo.DeleteByCourseID(ctx, tx, courseID); err != nil {
			return err
		}
		pathways := make([]*types.Pathway, 0, len(out.Pathways))
		modules := make([]*types.PathwayModule, 0)
		for pi, p := range out.Pathways {
			pw := &types.Pathway{
				ID:          uuid.New(),
				CourseID:    courseID,
				Index:       pi,
				Title:       p.Title,
				Description: p.Description,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			pathways = append(pathways, pw)
			for mi, m := range p.Modules {
				paths, _ := json.Marshal(m.SourcePaths)
				modules = append(modules, &types.PathwayModule{
					ID:          uuid.New(),
					PathwayID:   pw.ID,
					CourseID:    courseID,
					Index:       mi,
					Title:       m.Title,
					Summary:     m.Summary,
					SourcePaths: datatypes.JSON(paths),
					CreatedAt:   now,
					UpdatedAt:   now,
				})
			}
		}
		if _, err := o.pathwayRepo.Create(ctx, tx, pathways); err != nil {
			return err
		}
		_, err := o.moduleRepo.Create(ctx, tx, modules)
		return err

	case types.StageGenerate:
		for _, m := range out.Modules {
			if err := o.moduleRepo.UpdateContent(ctx, tx, m.ModuleID, m.ContentMD); err != nil {
				return err
			}
		}
		return nil
	}
	return ErrUnknownStage
}

// deleteStageData removes the payloads a re-run of the given stage makes
// stale: its own output plus everything downstream.
func (o *Orchestrator) deleteStageData(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, stage types.Stage) error {
	switch stage {
	case types.StageIngest:
		if err := o.fileRepo.DeleteByCourseID(ctx, tx, courseID); err != nil {
			return err
		}
		fallthrough
	case types.StageAnalyze:
		if err := o.docRepo.DeleteByCourseID(ctx, tx, courseID); err != nil {
			return err
		}
		fallthrough
	case types.StagePathways:
		if err := o.moduleRepo.DeleteByCourseID(ctx, tx, courseID); err != nil {
			return err
		}
		if err := o.pathwayRepo.DeleteByCourseID(ctx, tx, courseID); err != nil {
			return err
		}
		return nil
	case types.StageGenerate:
		return o.moduleRepo.ClearContentByCourseID(ctx, tx, courseID)
	}
	return ErrUnknownStage
}

func (o *Orchestrator) resultSummary(stage types.Stage, out *ExecuteOutput) datatypes.JSON {
	if out == nil {
		return datatypes.JSON([]byte(`{}`))
	}
	var summary map[string]any
	switch stage {
	case types.StageIngest:
		summary = map[string]any{"files": len(out.Files)}
	case types.StageAnalyze:
		summary = map[string]any{"documents": len(out.Documents)}
	case types.StagePathways:
		mods := 0
		for _, p := range out.Pathways {
			mods += len(p.Modules)
		}
		summary = map[string]any{"pathways": len(out.Pathways), "modules": mods}
	case types.StageGenerate:
		summary = map[string]any{"modules_generated": len(out.Modules)}
	default:
		summary = map[string]any{}
	}
	b, _ := json.Marshal(summary)
	return datatypes.JSON(b)
}
