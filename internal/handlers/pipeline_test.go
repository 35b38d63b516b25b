package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/courseforge/courseforge-backend/internal/pipeline"
	"github.com/courseforge/courseforge-backend/internal/repos"
	"github.com/courseforge/courseforge-backend/internal/repos/testutil"
	"github.com/courseforge/courseforge-backend/internal/types"
)

// noopDispatcher accepts every task without running anything, so tests
// control completion via the internal callback endpoints.
type noopDispatcher struct{}

func (noopDispatcher) Dispatch(ctx context.Context, task *types.StageTask, in pipeline.ExecuteInput) (string, error) {
	return "noop:" + task.ID.String(), nil
}

func newPipelineRouter(t *testing.T) (*gin.Engine, *types.Course) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()

	courseRepo := repos.NewCourseRepo(db, log)
	taskRepo := repos.NewStageTaskRepo(db, log)
	orch := pipeline.NewOrchestrator(db, log,
		courseRepo, taskRepo,
		repos.NewRepoFileRepo(db, log), repos.NewDocumentAnalysisRepo(db, log),
		repos.NewPathwayRepo(db, log), repos.NewPathwayModuleRepo(db, log),
		noopDispatcher{}, nil, 2*time.Minute)

	course := testutil.SeedCourse(t, ctx, db, types.CourseStatusDraft)
	t.Cleanup(func() {
		_ = taskRepo.DeleteByCourseID(ctx, nil, course.ID)
		_ = courseRepo.Delete(ctx, nil, course.ID)
	})

	h := NewPipelineHandler(log, orch)
	router := gin.New()
	router.POST("/api/courses/:id/stages/:stage/start", h.StartStage)
	router.POST("/api/courses/:id/stages/:stage/restart", h.RestartStage)
	router.POST("/api/courses/:id/stages/:stage/reset", h.ForceReset)
	router.POST("/internal/tasks/:taskId/progress", h.ReportProgress)
	router.POST("/internal/tasks/:taskId/complete", h.CompleteTask)
	return router, course
}

func do(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPipelineHandlerStatusCodes(t *testing.T) {
	router, course := newPipelineRouter(t)
	base := "/api/courses/" + course.ID.String()

	if w := do(t, router, http.MethodPost, "/api/courses/not-a-uuid/stages/ingest/start", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad course id: %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, base+"/stages/bogus/start", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown stage: %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, base+"/stages/analyze/start", ""); w.Code != http.StatusConflict {
		t.Fatalf("out-of-order start: %d", w.Code)
	}

	w := do(t, router, http.MethodPost, base+"/stages/ingest/start", `{"payload":{"ref":"main"}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("first start: %d body=%s", w.Code, w.Body.String())
	}
	var started struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil || started.TaskID == "" {
		t.Fatalf("start response: %v %s", err, w.Body.String())
	}

	// duplicate start is 200 with the same task id
	w = do(t, router, http.MethodPost, base+"/stages/ingest/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("duplicate start: %d", w.Code)
	}
	var dup struct {
		TaskID string `json:"task_id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &dup)
	if dup.TaskID != started.TaskID {
		t.Fatalf("duplicate start task: %s want %s", dup.TaskID, started.TaskID)
	}

	// fresh running task may not be reset
	if w := do(t, router, http.MethodPost, base+"/stages/ingest/reset", ""); w.Code != http.StatusConflict {
		t.Fatalf("reset fresh task: %d", w.Code)
	}

	if w := do(t, router, http.MethodPost, "/internal/tasks/"+started.TaskID+"/progress", `{"progress":30,"step":"cloning"}`); w.Code != http.StatusOK {
		t.Fatalf("progress: %d body=%s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodPost, "/internal/tasks/"+started.TaskID+"/complete", `{"result":{"files":[{"path":"README.md"}]}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: %d body=%s", w.Code, w.Body.String())
	}

	// duplicate completion is acknowledged, not applied
	w = do(t, router, http.MethodPost, "/internal/tasks/"+started.TaskID+"/complete", `{"result":{"files":[{"path":"README.md"}]}}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"applied":false`) {
		t.Fatalf("duplicate complete: %d body=%s", w.Code, w.Body.String())
	}

	// succeeded stage rejects plain start but accepts restart
	if w := do(t, router, http.MethodPost, base+"/stages/ingest/start", ""); w.Code != http.StatusConflict {
		t.Fatalf("start after success: %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, base+"/stages/ingest/restart", ""); w.Code != http.StatusAccepted {
		t.Fatalf("restart: %d body=%s", w.Code, w.Body.String())
	}
}
