package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/pipedeck/pipedeck/internal/api"
	"github.com/pipedeck/pipedeck/internal/client"
)

// List returns all registered pipelines.
func (h *Helper) List(ctx context.Context) ([]api.Pipeline, error) {
	var pipelines []api.Pipeline
	if err := h.client.Get(ctx, "/api/v1/pipeline", &pipelines); err != nil {
		return nil, err
	}
	return pipelines, nil
}

// Get returns one pipeline.
func (h *Helper) Get(ctx context.Context, id int) (*api.Pipeline, error) {
	var p api.Pipeline
	if err := h.client.Get(ctx, fmt.Sprintf("/api/v1/pipeline/%d", id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// LatestRuns returns every pipeline with its latest run for the overview.
func (h *Helper) LatestRuns(ctx context.Context) ([]api.PipelineWithLatestRun, error) {
	var out []api.PipelineWithLatestRun
	if err := h.client.Get(ctx, "/api/v1/pipeline/latest", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Run returns one pipeline run.
func (h *Helper) Run(ctx context.Context, pipelineID, runID int) (*api.PipelineRun, error) {
	var run api.PipelineRun
	if err := h.client.Get(ctx, fmt.Sprintf("/api/v1/pipelinerun/%d/%d", pipelineID, runID), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Runs returns all runs of a pipeline.
func (h *Helper) Runs(ctx context.Context, pipelineID int) ([]api.PipelineRun, error) {
	var runs []api.PipelineRun
	if err := h.client.Get(ctx, fmt.Sprintf("/api/v1/pipelinerun/%d", pipelineID), &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// JobLog returns the log of a run. Polling callers pass client.HideProgressBar.
func (h *Helper) JobLog(ctx context.Context, pipelineID, runID int, opts ...client.RequestOption) (*api.JobLog, error) {
	var log api.JobLog
	path := fmt.Sprintf("/api/v1/pipelinerun/%d/%d/log", pipelineID, runID)
	if err := h.client.Get(ctx, path, &log, opts...); err != nil {
		return nil, err
	}
	return &log, nil
}

// defaultBranch is used when a pipeline names no branch.
const defaultBranch = "refs/heads/master"

// Create registers a new pipeline. The backend compiles it asynchronously.
func (h *Helper) Create(ctx context.Context, req api.CreatePipeline) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Repo.URL = strings.TrimSpace(req.Repo.URL)
	if req.Name == "" || req.Repo.URL == "" {
		return fmt.Errorf("name and repo URL are required")
	}
	if req.Repo.SelectedBranch == "" {
		req.Repo.SelectedBranch = defaultBranch
	}

	if err := h.client.Post(ctx, "/api/v1/pipeline", req, nil); err != nil {
		h.notifier.OnError(err)
		return err
	}
	h.notifier.OnSuccess("Pipeline created", fmt.Sprintf("Pipeline %q is being compiled.", req.Name))
	return nil
}
