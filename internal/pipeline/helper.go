package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/pipedeck/pipedeck/internal/api"
	"github.com/pipedeck/pipedeck/internal/client"
	"github.com/pipedeck/pipedeck/internal/menu"
	"github.com/pipedeck/pipedeck/internal/state"
)

// Location is a navigation target inside the console.
type Location struct {
	Path  string
	Query url.Values
}

// String renders the location as path?query.
func (l Location) String() string {
	if len(l.Query) == 0 {
		return l.Path
	}
	return l.Path + "?" + l.Query.Encode()
}

// Navigator moves the user to another view.
type Navigator interface {
	Navigate(loc Location)
}

// Notifier is the global outcome handler.
type Notifier interface {
	OnError(err error)
	OnSuccess(title, message string)
}

// Helper decides how a pipeline is started and issues start/pull requests.
type Helper struct {
	client   *client.Client
	state    *state.App
	notifier Notifier
	logger   *slog.Logger
}

// NewHelper creates a pipeline action helper.
func NewHelper(c *client.Client, app *state.App, notifier Notifier, logger *slog.Logger) *Helper {
	return &Helper{
		client:   c,
		state:    app,
		notifier: notifier,
		logger:   logger,
	}
}

// NeedsParams reports whether any job argument must be entered by the user.
// The scan stops at the first argument that is not vault-typed.
func NeedsParams(p api.Pipeline) bool {
	for _, job := range p.Jobs {
		for _, arg := range job.Args {
			if !arg.IsVault() {
				return true
			}
		}
	}
	return false
}

// RequiredArgs lists the user-supplied arguments of all jobs, in job order.
func RequiredArgs(p api.Pipeline) []api.Argument {
	var args []api.Argument
	for _, job := range p.Jobs {
		for _, arg := range job.Args {
			if !arg.IsVault() {
				args = append(args, arg)
			}
		}
	}
	return args
}

// ParamsLocation is the parameter-entry view for a pipeline.
func ParamsLocation(p api.Pipeline) Location {
	return Location{
		Path: menu.ParamsPath,
		Query: url.Values{
			"pipelineid": {strconv.Itoa(p.ID)},
			"docker":     {strconv.FormatBool(p.Docker)},
		},
	}
}

// DetailLocation is the detail view of one run.
func DetailLocation(pipelineID, runID int) Location {
	return Location{
		Path: menu.DetailPath,
		Query: url.Values{
			"pipelineid": {strconv.Itoa(pipelineID)},
			"runid":      {strconv.Itoa(runID)},
		},
	}
}

// DecideAndStart starts the pipeline directly unless one of its jobs takes a
// non-vault argument, in which case the user is sent to the parameter view
// and nothing is started.
func (h *Helper) DecideAndStart(ctx context.Context, nav Navigator, p api.Pipeline) error {
	if NeedsParams(p) {
		h.logger.Debug("Pipeline needs parameters", "pipeline_id", p.ID)
		nav.Navigate(ParamsLocation(p))
		return nil
	}
	_, err := h.Start(ctx, nav, p)
	return err
}

// Start issues one start request. On success the user is taken to the run's
// detail view; on failure polling stops and the error goes to the notifier.
func (h *Helper) Start(ctx context.Context, nav Navigator, p api.Pipeline) (*api.PipelineRun, error) {
	return h.start(ctx, nav, p, api.StartRequest{Docker: p.Docker})
}

// StartWithArgs starts a pipeline with the values entered in the parameter view.
func (h *Helper) StartWithArgs(ctx context.Context, nav Navigator, p api.Pipeline, args []api.Argument) (*api.PipelineRun, error) {
	return h.start(ctx, nav, p, api.StartRequest{Docker: p.Docker, Args: args})
}

func (h *Helper) start(ctx context.Context, nav Navigator, p api.Pipeline, body api.StartRequest) (*api.PipelineRun, error) {
	var run api.PipelineRun
	path := fmt.Sprintf("/api/v1/pipeline/%d/start", p.ID)
	if err := h.client.Post(ctx, path, body, &run); err != nil {
		h.fail(err)
		return nil, err
	}

	h.logger.Info("Pipeline started", "pipeline_id", p.ID, "run_id", run.ID)
	if run.ID > 0 {
		nav.Navigate(DetailLocation(p.ID, run.ID))
	}
	return &run, nil
}

// Pull asks the backend to re-fetch the pipeline source.
func (h *Helper) Pull(ctx context.Context, p api.Pipeline) error {
	path := fmt.Sprintf("/api/v1/pipeline/%d/pull", p.ID)
	if err := h.client.Post(ctx, path, api.PullRequest{Docker: p.Docker}, nil); err != nil {
		h.fail(err)
		return err
	}

	h.logger.Info("Pipeline pulled", "pipeline_id", p.ID)
	h.notifier.OnSuccess("Successfully pulled new code", fmt.Sprintf("Pipeline %q has been updated successfully.", p.Name))
	return nil
}

func (h *Helper) fail(err error) {
	if n := h.state.ClearIntervals(); n > 0 {
		h.logger.Debug("Stopped pollers after failure", "count", n)
	}
	h.notifier.OnError(err)
}
