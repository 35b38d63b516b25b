package executors

import (
	"context"
	"fmt"

	"github.com/courseforge/courseforge-backend/internal/pipeline"
	"github.com/courseforge/courseforge-backend/internal/types"
)

// RegisterStubs wires deterministic placeholder executors for every stage.
// They are meant for development and demos: real deployments run AI workers
// behind the Temporal dispatcher or report through the /internal callbacks.
func RegisterStubs(reg *pipeline.Registry) {
	reg.Register(types.StageIngest, pipeline.ExecutorFunc(ingestStub))
	reg.Register(types.StageAnalyze, pipeline.ExecutorFunc(analyzeStub))
	reg.Register(types.StagePathways, pipeline.ExecutorFunc(pathwaysStub))
	reg.Register(types.StageGenerate, pipeline.ExecutorFunc(generateStub))
}

// payloadPaths pulls a "paths" string list out of the stage payload.
func payloadPaths(payload map[string]any) []string {
	raw, ok := payload["paths"].([]any)
	if !ok {
		return nil
	}
	paths := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			paths = append(paths, s)
		}
	}
	return paths
}

func ingestStub(ctx context.Context, in pipeline.ExecuteInput, onProgress pipeline.ProgressFunc) (*pipeline.ExecuteOutput, error) {
	paths := payloadPaths(in.Payload)
	if len(paths) == 0 {
		paths = []string{"README.md", "main.go"}
	}
	out := &pipeline.ExecuteOutput{}
	for i, p := range paths {
		out.Files = append(out.Files, pipeline.IngestedFile{
			Path:      p,
			Language:  "unknown",
			Kind:      "source",
			SHA:       fmt.Sprintf("stub-%d", i),
			SizeBytes: int64(len(p)),
		})
		onProgress((i+1)*100/len(paths), "ingesting "+p)
	}
	return out, nil
}

func analyzeStub(ctx context.Context, in pipeline.ExecuteInput, onProgress pipeline.ProgressFunc) (*pipeline.ExecuteOutput, error) {
	paths := payloadPaths(in.Payload)
	if len(paths) == 0 {
		paths = []string{"README.md", "main.go"}
	}
	out := &pipeline.ExecuteOutput{}
	for i, p := range paths {
		out.Documents = append(out.Documents, pipeline.AnalyzedDocument{
			Path:       p,
			Title:      p,
			Summary:    "placeholder analysis of " + p,
			Topics:     []string{"overview"},
			Importance: 1,
		})
		onProgress((i+1)*100/len(paths), "analyzing "+p)
	}
	return out, nil
}

func pathwaysStub(ctx context.Context, in pipeline.ExecuteInput, onProgress pipeline.ProgressFunc) (*pipeline.ExecuteOutput, error) {
	onProgress(50, "planning pathway")
	return &pipeline.ExecuteOutput{
		Pathways: []pipeline.PathwayPlan{{
			Title:       "Getting Started",
			Description: "placeholder learning track",
			Modules: []pipeline.ModulePlan{
				{Title: "Introduction", Summary: "placeholder module", SourcePaths: payloadPaths(in.Payload)},
			},
		}},
	}, nil
}

// generateStub emits no content: it has no handle on the module ids created
// by the pathways stage. A real generate executor reads them back first.
func generateStub(ctx context.Context, in pipeline.ExecuteInput, onProgress pipeline.ProgressFunc) (*pipeline.ExecuteOutput, error) {
	onProgress(100, "generation complete")
	return &pipeline.ExecuteOutput{}, nil
}
