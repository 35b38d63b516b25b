package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/pipeline"
	"github.com/courseforge/courseforge-backend/internal/repos"
	"github.com/courseforge/courseforge-backend/internal/repos/testutil"
	"github.com/courseforge/courseforge-backend/internal/types"
)

func newStageDataService(gdb *gorm.DB, t *testing.T) StageDataService {
	t.Helper()
	log := testutil.Logger(t)
	return NewStageDataService(gdb,
		repos.NewStageTaskRepo(gdb, log),
		repos.NewRepoFileRepo(gdb, log),
		repos.NewDocumentAnalysisRepo(gdb, log),
		repos.NewPathwayRepo(gdb, log),
		repos.NewPathwayModuleRepo(gdb, log))
}

func TestStageDataAvailability(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	svc := newStageDataService(gdb, t)

	course := testutil.SeedCourse(t, ctx, tx, types.CourseStatusDraft)

	if _, err := svc.GetStageData(ctx, tx, course.ID, types.Stage("bogus")); !errors.Is(err, pipeline.ErrUnknownStage) {
		t.Fatalf("unknown stage: %v", err)
	}

	// never ran
	if _, err := svc.GetStageData(ctx, tx, course.ID, types.StageIngest); !errors.Is(err, pipeline.ErrNotYetAvailable) {
		t.Fatalf("absent stage: %v", err)
	}

	// still running
	task := testutil.SeedTask(t, ctx, tx, course.ID, types.StageIngest, types.TaskStatusRunning)
	if _, err := svc.GetStageData(ctx, tx, course.ID, types.StageIngest); !errors.Is(err, pipeline.ErrNotYetAvailable) {
		t.Fatalf("running stage: %v", err)
	}

	// failed, with the executor message attached
	if err := tx.Model(&types.StageTask{}).Where("id = ?", task.ID).
		Updates(map[string]interface{}{"status": types.TaskStatusFailed, "error": "clone failed"}).Error; err != nil {
		t.Fatalf("fail task: %v", err)
	}
	_, err := svc.GetStageData(ctx, tx, course.ID, types.StageIngest)
	if !errors.Is(err, pipeline.ErrStageFailed) {
		t.Fatalf("failed stage: %v", err)
	}
	if !strings.Contains(err.Error(), "clone failed") {
		t.Fatalf("failure message lost: %v", err)
	}
}

func TestStageDataPayloads(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	svc := newStageDataService(gdb, t)
	now := time.Now()

	course := testutil.SeedCourse(t, ctx, tx, types.CourseStatusReady)
	for _, stage := range types.Stages() {
		testutil.SeedTask(t, ctx, tx, course.ID, stage, types.TaskStatusSucceeded)
	}

	file := &types.RepoFile{
		ID: uuid.New(), CourseID: course.ID, Path: "README.md",
		Language: "markdown", Kind: "doc", SHA: "a1", SizeBytes: 12,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := tx.Create(file).Error; err != nil {
		t.Fatalf("seed file: %v", err)
	}
	doc := &types.DocumentAnalysis{
		ID: uuid.New(), CourseID: course.ID, RepoFileID: &file.ID,
		Title: "Readme", Summary: "overview", Importance: 2,
		Topics:    datatypes.JSON([]byte(`["intro"]`)),
		CreatedAt: now, UpdatedAt: now,
	}
	if err := tx.Create(doc).Error; err != nil {
		t.Fatalf("seed doc: %v", err)
	}
	pw := &types.Pathway{
		ID: uuid.New(), CourseID: course.ID, Index: 0,
		Title: "Track 1", Description: "main",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := tx.Create(pw).Error; err != nil {
		t.Fatalf("seed pathway: %v", err)
	}
	mod := &types.PathwayModule{
		ID: uuid.New(), PathwayID: pw.ID, CourseID: course.ID, Index: 0,
		Title: "Mod A", Summary: "a", ContentMD: "# Mod A",
		SourcePaths: datatypes.JSON([]byte(`["README.md"]`)),
		GeneratedAt: &now, CreatedAt: now, UpdatedAt: now,
	}
	if err := tx.Create(mod).Error; err != nil {
		t.Fatalf("seed module: %v", err)
	}

	data, err := svc.GetStageData(ctx, tx, course.ID, types.StageIngest)
	if err != nil {
		t.Fatalf("ingest data: %v", err)
	}
	if len(data.Files) != 1 || data.Files[0].Path != "README.md" {
		t.Fatalf("ingest payload: %+v", data.Files)
	}

	data, err = svc.GetStageData(ctx, tx, course.ID, types.StageAnalyze)
	if err != nil {
		t.Fatalf("analyze data: %v", err)
	}
	if len(data.Docs) != 1 || data.Docs[0].Title != "Readme" {
		t.Fatalf("analyze payload: %+v", data.Docs)
	}

	// pathways and generate both return the pathway tree; generate's view
	// carries the filled-in content
	for _, stage := range []types.Stage{types.StagePathways, types.StageGenerate} {
		data, err = svc.GetStageData(ctx, tx, course.ID, stage)
		if err != nil {
			t.Fatalf("%s data: %v", stage, err)
		}
		if len(data.Pathways) != 1 || data.Pathways[0].Title != "Track 1" {
			t.Fatalf("%s payload: %+v", stage, data.Pathways)
		}
		mods := data.Pathways[0].Modules
		if len(mods) != 1 || mods[0].ContentMD != "# Mod A" {
			t.Fatalf("%s modules: %+v", stage, mods)
		}
	}
}
