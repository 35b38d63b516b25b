package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/types"
)

// ProgressFunc is handed to an executor so it can report how far along the
// unit of work is. Deliveries may be duplicated or arrive out of order; the
// orchestrator applies a monotonic floor, so executors do not need to care.
type ProgressFunc func(pct int, step string)

// ExecuteInput is everything a stage executor receives. Payload carries the
// client-supplied stage input verbatim.
type ExecuteInput struct {
	TaskID   uuid.UUID
	CourseID uuid.UUID
	Stage    types.Stage
	Payload  map[string]any
}

// IngestedFile is one file the ingest executor discovered in the repository.
type IngestedFile struct {
	Path      string `json:"path"`
	Language  string `json:"language"`
	Kind      string `json:"kind"`
	SHA       string `json:"sha"`
	SizeBytes int64  `json:"size_bytes"`
}

// AnalyzedDocument is the analyze executor's verdict on one ingested file,
// keyed back to it by path.
type AnalyzedDocument struct {
	Path       string   `json:"path"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Topics     []string `json:"topics"`
	Importance int      `json:"importance"`
}

// ModulePlan is one planned unit inside a pathway; content stays empty until
// the generate stage.
type ModulePlan struct {
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	SourcePaths []string `json:"source_paths"`
}

// PathwayPlan is one learning track the pathways executor synthesized.
type PathwayPlan struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Modules     []ModulePlan `json:"modules"`
}

// GeneratedModule carries generated markdown for an existing pathway module.
type GeneratedModule struct {
	ModuleID  uuid.UUID `json:"module_id"`
	ContentMD string    `json:"content_md"`
}

// ExecuteOutput is the stage-shaped result of a successful execution. Only
// the field matching the executed stage is read.
type ExecuteOutput struct {
	Files     []IngestedFile     `json:"files,omitempty"`
	Documents []AnalyzedDocument `json:"documents,omitempty"`
	Pathways  []PathwayPlan      `json:"pathways,omitempty"`
	Modules   []GeneratedModule  `json:"modules,omitempty"`
}

// Executor runs one stage's unit of work to completion. Implementations are
// supplied by the AI/processing collaborator and must tolerate being invoked
// again for the same (course, stage) after a prior failure.
type Executor interface {
	Execute(ctx context.Context, in ExecuteInput, onProgress ProgressFunc) (*ExecuteOutput, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, in ExecuteInput, onProgress ProgressFunc) (*ExecuteOutput, error)

func (f ExecutorFunc) Execute(ctx context.Context, in ExecuteInput, onProgress ProgressFunc) (*ExecuteOutput, error) {
	return f(ctx, in, onProgress)
}

// Registry maps stages to their executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[types.Stage]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[types.Stage]Executor)}
}

func (r *Registry) Register(stage types.Stage, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[stage] = exec
}

func (r *Registry) Get(stage types.Stage) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[stage]
	return exec, ok
}
