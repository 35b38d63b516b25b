package types

import "testing"

func TestStageOrder(t *testing.T) {
	stages := Stages()
	want := []Stage{StageIngest, StageAnalyze, StagePathways, StageGenerate}
	if len(stages) != len(want) {
		t.Fatalf("Stages() len=%d want=%d", len(stages), len(want))
	}
	for i, s := range want {
		if stages[i] != s {
			t.Fatalf("Stages()[%d]=%s want=%s", i, stages[i], s)
		}
		if s.Index() != i {
			t.Fatalf("%s.Index()=%d want=%d", s, s.Index(), i)
		}
		if !s.Valid() {
			t.Fatalf("%s not valid", s)
		}
	}

	if _, ok := StageIngest.Prev(); ok {
		t.Fatalf("ingest has a previous stage")
	}
	if prev, ok := StageGenerate.Prev(); !ok || prev != StagePathways {
		t.Fatalf("generate.Prev()=%s ok=%v", prev, ok)
	}
	if next, ok := StageIngest.Next(); !ok || next != StageAnalyze {
		t.Fatalf("ingest.Next()=%s ok=%v", next, ok)
	}
	if _, ok := StageGenerate.Next(); ok {
		t.Fatalf("generate has a next stage")
	}
}

func TestStageFrom(t *testing.T) {
	from := StageAnalyze.From()
	want := []Stage{StageAnalyze, StagePathways, StageGenerate}
	if len(from) != len(want) {
		t.Fatalf("From() len=%d want=%d", len(from), len(want))
	}
	for i := range want {
		if from[i] != want[i] {
			t.Fatalf("From()[%d]=%s want=%s", i, from[i], want[i])
		}
	}
	if Stage("bogus").From() != nil {
		t.Fatalf("bogus.From() should be nil")
	}
}

func TestParseStage(t *testing.T) {
	for _, s := range Stages() {
		got, err := ParseStage(string(s))
		if err != nil || got != s {
			t.Fatalf("ParseStage(%q)=%s err=%v", s, got, err)
		}
	}
	if _, err := ParseStage("bogus"); err == nil {
		t.Fatalf("ParseStage accepted bogus")
	}
}

func TestStageCourseStatuses(t *testing.T) {
	if got := StageIngest.RunningStatus(); got != "ingest_running" {
		t.Fatalf("RunningStatus=%q", got)
	}
	if got := StagePathways.FailedStatus(); got != "pathways_failed" {
		t.Fatalf("FailedStatus=%q", got)
	}
	if got := StageAnalyze.CompleteStatus(); got != "analyze_complete" {
		t.Fatalf("CompleteStatus=%q", got)
	}
	// the last stage completes the whole course
	if got := StageGenerate.CompleteStatus(); got != CourseStatusReady {
		t.Fatalf("generate CompleteStatus=%q", got)
	}
}
