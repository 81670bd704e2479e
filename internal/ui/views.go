package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/pipedeck/pipedeck/internal/api"
	"github.com/pipedeck/pipedeck/internal/menu"
	"github.com/pipedeck/pipedeck/internal/notify"
	"github.com/pipedeck/pipedeck/internal/repoauth"
)

// PipelineTypes are the languages the backend can compile pipelines from.
var PipelineTypes = []string{"golang", "java", "python", "cpp", "ruby", "nodejs"}

// RunView is the view model for a run row or the run detail page.
type RunView struct {
	ID                int
	PipelineID        int
	Status            string
	StatusClass       string
	StartReason       string
	StartedAt         string
	StartedAtRelative string
	Duration          string
	Finished          bool
	Jobs              []JobView
}

// JobView is the view model for one job of a run.
type JobView struct {
	Title       string
	Description string
	Status      string
	StatusClass string
}

// PipelineView is the view model for a pipeline with its latest run.
type PipelineView struct {
	ID        int
	Name      string
	Type      string
	Docker    bool
	Repo      string
	Created   string
	NeedsArgs bool
	Latest    *RunView
}

// CreateForm is the view model for the pipeline creation form.
type CreateForm struct {
	Name       string
	Type       string
	RepoURL    string
	RepoShort  string
	AuthMethod string
	Username   string
	Branch     string
	Branches   []string
}

// ArgView is one input of the parameter form.
type ArgView struct {
	Index       int
	Key         string
	Description string
	Type        string
	Value       string
}

// SettingsView is the view model of the settings page.
type SettingsView struct {
	BackendURL    string
	StorageDriver string
	DataDir       string
	KeySource     string
	PollInterval  time.Duration
}

// PageData is the data passed to the base template.
type PageData struct {
	Page          string
	Title         string
	Menu          []menu.Entry
	Notifications []notify.Notification
	Busy          bool
	User          string
	SessionExpiry string
	CSRF          string
	Refresh       int
	Error         string

	Pipelines []PipelineView
	Pipeline  PipelineView
	Run       RunView
	Log       string
	Args      []ArgView
	Form      CreateForm
	Types     []string
	Settings  SettingsView
	Secrets   []SecretView
	SecretKey string
}

// SecretView is one vault entry with its value masked.
type SecretView struct {
	Key    string
	Masked string
}

func toPipelineView(p api.Pipeline, latest *api.PipelineRun) PipelineView {
	view := PipelineView{
		ID:      p.ID,
		Name:    p.Name,
		Type:    fallbackString(p.Type, "n/a"),
		Docker:  p.Docker,
		Created: formatTime(p.Created),
	}
	if p.Repo != nil {
		view.Repo = p.Repo.URL
	}
	if latest != nil && latest.ID > 0 {
		run := toRunView(*latest)
		view.Latest = &run
	}
	return view
}

func toRunView(run api.PipelineRun) RunView {
	view := RunView{
		ID:                run.ID,
		PipelineID:        run.PipelineID,
		Status:            fallbackString(run.Status, "unknown"),
		StatusClass:       statusClass(run.Status),
		StartReason:       fallbackString(run.StartReason, "manual"),
		StartedAt:         formatTime(run.StartDate),
		StartedAtRelative: relativeTime(run.StartDate),
		Duration:          runDuration(run.StartDate, run.FinishDate),
		Finished:          runFinished(run.Status),
	}
	for _, job := range run.Jobs {
		view.Jobs = append(view.Jobs, JobView{
			Title:       job.Title,
			Description: job.Description,
			Status:      fallbackString(job.Status, "waiting"),
			StatusClass: statusClass(job.Status),
		})
	}
	return view
}

func toArgViews(args []api.Argument) []ArgView {
	views := make([]ArgView, len(args))
	for i, arg := range args {
		views[i] = ArgView{
			Index:       i,
			Key:         arg.Key,
			Description: fallbackString(arg.Description, arg.Key),
			Type:        arg.Type,
			Value:       arg.Value,
		}
	}
	return views
}

func newCreateForm() CreateForm {
	return CreateForm{
		Type:       PipelineTypes[0],
		AuthMethod: repoauth.MethodPublic,
		Branch:     "refs/heads/master",
	}
}

func runFinished(status string) bool {
	switch status {
	case "success", "failed", "cancelled":
		return true
	}
	return false
}

func statusClass(status string) string {
	switch status {
	case "success":
		return "ok"
	case "failed", "cancelled":
		return "bad"
	case "running", "scheduled":
		return "running"
	default:
		return "idle"
	}
}

func runDuration(start, finish time.Time) string {
	if start.IsZero() {
		return "n/a"
	}
	if finish.IsZero() || finish.Before(start) {
		return "running"
	}
	return finish.Sub(start).Round(time.Second).String()
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "n/a"
	}
	return value.Format(time.RFC3339)
}

func relativeTime(value time.Time) string {
	if value.IsZero() {
		return "never"
	}
	d := time.Since(value)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func fallbackString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
