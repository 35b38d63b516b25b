package types

import "fmt"

// Stage is one of the four ordered phases that turn a source repository
// into a generated course. The order is fixed: a stage may only start once
// the previous one has succeeded.
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageAnalyze  Stage = "analyze"
	StagePathways Stage = "pathways"
	StageGenerate Stage = "generate"
)

var stageOrder = []Stage{StageIngest, StageAnalyze, StagePathways, StageGenerate}

func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

func ParseStage(s string) (Stage, error) {
	for _, st := range stageOrder {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Index returns the position of the stage in the fixed order, or -1.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool { return s.Index() >= 0 }

// Prev returns the stage that must have succeeded before this one may
// start. ok is false for the first stage.
func (s Stage) Prev() (Stage, bool) {
	i := s.Index()
	if i <= 0 {
		return "", false
	}
	return stageOrder[i-1], true
}

func (s Stage) Next() (Stage, bool) {
	i := s.Index()
	if i < 0 || i >= len(stageOrder)-1 {
		return "", false
	}
	return stageOrder[i+1], true
}

// From returns this stage and every stage after it, used when a re-run
// invalidates downstream work.
func (s Stage) From() []Stage {
	i := s.Index()
	if i < 0 {
		return nil
	}
	out := make([]Stage, len(stageOrder)-i)
	copy(out, stageOrder[i:])
	return out
}

// Course status values derived from the stage lifecycle.
func (s Stage) RunningStatus() string { return string(s) + "_running" }
func (s Stage) FailedStatus() string  { return string(s) + "_failed" }
func (s Stage) CompleteStatus() string {
	if s == StageGenerate {
		return CourseStatusReady
	}
	return string(s) + "_complete"
}
