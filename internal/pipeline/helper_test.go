package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pipedeck/pipedeck/internal/api"
	"github.com/pipedeck/pipedeck/internal/client"
	"github.com/pipedeck/pipedeck/internal/repoauth"
	"github.com/pipedeck/pipedeck/internal/state"
)

type recordingNav struct {
	visited []string
}

func (r *recordingNav) Navigate(loc Location) { r.visited = append(r.visited, loc.String()) }

type recordingNotifier struct {
	errors    []error
	successes []string
}

func (r *recordingNotifier) OnError(err error)           { r.errors = append(r.errors, err) }
func (r *recordingNotifier) OnSuccess(title, msg string) { r.successes = append(r.successes, msg) }

type backend struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
	handler  http.HandlerFunc
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.requests = append(b.requests, r.Method+" "+r.URL.Path)
	b.bodies = append(b.bodies, string(body))
	b.mu.Unlock()
	b.handler(w, r)
}

func (b *backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

func (b *backend) Bodies() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.bodies...)
}

func newTestHelper(t *testing.T, handler http.HandlerFunc) (*Helper, *backend, *recordingNotifier, *state.App) {
	t.Helper()
	be := &backend{handler: handler}
	srv := httptest.NewServer(be)
	t.Cleanup(srv.Close)

	app := state.New()
	notifier := &recordingNotifier{}
	h := NewHelper(client.New(srv.URL, nil), app, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h, be, notifier, app
}

func created(run api.PipelineRun) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(run)
	}
}

func TestDecideAndStartStartsDirectly(t *testing.T) {
	tests := []struct {
		name     string
		pipeline api.Pipeline
	}{
		{name: "no jobs", pipeline: api.Pipeline{ID: 42}},
		{name: "jobs without args", pipeline: api.Pipeline{ID: 42, Jobs: []api.Job{{Title: "build"}, {Title: "test"}}}},
		{name: "only vault args", pipeline: api.Pipeline{ID: 42, Jobs: []api.Job{
			{Args: []api.Argument{{Type: "vault", Key: "token"}}},
			{Args: []api.Argument{{Type: "vault", Key: "password"}}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, be, notifier, _ := newTestHelper(t, created(api.PipelineRun{ID: 7, PipelineID: 42}))
			nav := &recordingNav{}

			if err := h.DecideAndStart(context.Background(), nav, tt.pipeline); err != nil {
				t.Fatalf("DecideAndStart: %v", err)
			}

			if len(be.Requests()) != 1 || be.Requests()[0] != "POST /api/v1/pipeline/42/start" {
				t.Fatalf("expected one start request, got %v", be.Requests())
			}
			if be.Bodies()[0] != "{\"docker\":false}\n" && be.Bodies()[0] != `{"docker":false}` {
				t.Fatalf("unexpected start body %q", be.Bodies()[0])
			}
			if len(nav.visited) != 1 || nav.visited[0] != "/pipeline/detail?pipelineid=42&runid=7" {
				t.Fatalf("expected navigation to detail view, got %v", nav.visited)
			}
			if len(notifier.errors) != 0 {
				t.Fatalf("unexpected errors %v", notifier.errors)
			}
		})
	}
}

func TestDecideAndStartRedirectsToParams(t *testing.T) {
	tests := []struct {
		name     string
		pipeline api.Pipeline
		want     string
	}{
		{
			name:     "string arg",
			pipeline: api.Pipeline{ID: 42, Jobs: []api.Job{{Args: []api.Argument{{Type: "string"}}}}},
			want:     "/pipeline/params?docker=false&pipelineid=42",
		},
		{
			name: "non-vault arg after vault args in a later job",
			pipeline: api.Pipeline{ID: 9, Docker: true, Jobs: []api.Job{
				{Args: []api.Argument{{Type: "vault"}}},
				{},
				{Args: []api.Argument{{Type: "vault"}, {Type: "textarea"}, {Type: "boolean"}}},
			}},
			want: "/pipeline/params?docker=true&pipelineid=9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, be, _, _ := newTestHelper(t, created(api.PipelineRun{ID: 1}))
			nav := &recordingNav{}

			if err := h.DecideAndStart(context.Background(), nav, tt.pipeline); err != nil {
				t.Fatalf("DecideAndStart: %v", err)
			}
			if len(be.Requests()) != 0 {
				t.Fatalf("no request may be issued, got %v", be.Requests())
			}
			if len(nav.visited) != 1 || nav.visited[0] != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, nav.visited)
			}
		})
	}
}

func TestStartWithoutRunIDDoesNotNavigate(t *testing.T) {
	h, _, _, _ := newTestHelper(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	nav := &recordingNav{}

	if _, err := h.Start(context.Background(), nav, api.Pipeline{ID: 3}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(nav.visited) != 0 {
		t.Fatalf("expected no navigation, got %v", nav.visited)
	}
}

func TestStartWithArgsSendsArgs(t *testing.T) {
	h, be, _, _ := newTestHelper(t, created(api.PipelineRun{ID: 2}))
	nav := &recordingNav{}

	args := []api.Argument{{Type: "string", Key: "env", Value: "prod"}}
	if _, err := h.StartWithArgs(context.Background(), nav, api.Pipeline{ID: 5, Docker: true}, args); err != nil {
		t.Fatalf("StartWithArgs: %v", err)
	}

	var body api.StartRequest
	if err := json.Unmarshal([]byte(be.Bodies()[0]), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Docker || len(body.Args) != 1 || body.Args[0].Value != "prod" {
		t.Fatalf("unexpected start body %+v", body)
	}
}

func TestFailuresClearIntervalsAndNotify(t *testing.T) {
	failing := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pipeline not found with the given id", http.StatusNotFound)
	}

	for _, op := range []string{"start", "pull"} {
		t.Run(op, func(t *testing.T) {
			h, _, notifier, app := newTestHelper(t, failing)
			stopped := 0
			app.AppendInterval(state.IntervalFunc(func() { stopped++ }))
			app.AppendInterval(state.IntervalFunc(func() { stopped++ }))
			nav := &recordingNav{}

			var err error
			if op == "start" {
				_, err = h.Start(context.Background(), nav, api.Pipeline{ID: 1})
			} else {
				err = h.Pull(context.Background(), api.Pipeline{ID: 1})
			}

			var respErr *client.ResponseError
			if !errors.As(err, &respErr) || respErr.Status != http.StatusNotFound {
				t.Fatalf("expected 404 response error, got %v", err)
			}
			if app.Intervals() != 0 || stopped != 2 {
				t.Fatalf("expected every interval stopped, got %d left and %d stopped", app.Intervals(), stopped)
			}
			if len(notifier.errors) != 1 {
				t.Fatalf("expected exactly one error notification, got %d", len(notifier.errors))
			}
			if len(nav.visited) != 0 {
				t.Fatalf("failure must not navigate")
			}
		})
	}
}

func TestPullNotifiesSuccess(t *testing.T) {
	h, be, notifier, _ := newTestHelper(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if err := h.Pull(context.Background(), api.Pipeline{ID: 4, Name: "go-example", Docker: true}); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if be.Requests()[0] != "POST /api/v1/pipeline/4/pull" {
		t.Fatalf("unexpected request %v", be.Requests())
	}
	if be.Bodies()[0] != "{\"docker\":true}" {
		t.Fatalf("unexpected pull body %q", be.Bodies()[0])
	}
	if len(notifier.successes) != 1 || notifier.successes[0] != `Pipeline "go-example" has been updated successfully.` {
		t.Fatalf("unexpected success notifications %v", notifier.successes)
	}
}

func TestRequiredArgs(t *testing.T) {
	p := api.Pipeline{Jobs: []api.Job{
		{Args: []api.Argument{{Type: "vault", Key: "a"}, {Type: "string", Key: "b"}}},
		{Args: []api.Argument{{Type: "boolean", Key: "c"}}},
	}}
	args := RequiredArgs(p)
	if len(args) != 2 || args[0].Key != "b" || args[1].Key != "c" {
		t.Fatalf("unexpected required args %+v", args)
	}
}

func TestFollowUntilFinished(t *testing.T) {
	calls := 0
	h, _, _, app := newTestHelper(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(api.JobLog{Log: "step", Finished: calls >= 3})
	})

	var seen int
	err := h.Follow(context.Background(), 1, 2, time.Millisecond, func(l *api.JobLog) { seen++ })
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if seen != 3 {
		t.Fatalf("expected 3 polls, got %d", seen)
	}
	if app.Intervals() != 0 {
		t.Fatalf("finished poller must unregister itself")
	}
}

func TestFollowStopsOnClearIntervals(t *testing.T) {
	h, _, _, app := newTestHelper(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.JobLog{Log: "running"})
	})

	done := make(chan error, 1)
	first := make(chan struct{})
	var once sync.Once
	go func() {
		done <- h.Follow(context.Background(), 1, 1, time.Hour, func(*api.JobLog) {
			once.Do(func() { close(first) })
		})
	}()

	<-first
	for app.Intervals() == 0 {
		time.Sleep(time.Millisecond)
	}
	app.ClearIntervals()

	select {
	case err := <-done:
		if !errors.Is(err, ErrPollingStopped) {
			t.Fatalf("expected ErrPollingStopped, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Follow did not stop after ClearIntervals")
	}
}

func TestBranchesRejectsInvalidAuth(t *testing.T) {
	_, err := Branches(context.Background(), "https://github.com/org/repo", repoauth.Options{Method: "basic"})
	if err == nil {
		t.Fatalf("expected validation error before contacting the remote")
	}
}

func TestCreateValidatesInput(t *testing.T) {
	h, be, _, _ := newTestHelper(t, func(w http.ResponseWriter, r *http.Request) {})
	if err := h.Create(context.Background(), api.CreatePipeline{Name: " "}); err == nil {
		t.Fatalf("expected validation error")
	}
	if len(be.Requests()) != 0 {
		t.Fatalf("invalid create must not reach the backend")
	}
}

func TestWatchPullsOnNewCommit(t *testing.T) {
	h, be, notifier, app := newTestHelper(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	heads := []string{"a1", "a1", "b2", "b2", "c3"}
	calls := 0
	var pulled []string
	w := &Watcher{
		Helper:   h,
		Interval: time.Millisecond,
		Head: func(ctx context.Context, repoURL, branch string, opts repoauth.Options) (string, error) {
			if branch != "refs/heads/main" {
				t.Errorf("unexpected branch %q", branch)
			}
			if calls >= len(heads) {
				return heads[len(heads)-1], nil
			}
			head := heads[calls]
			calls++
			return head, nil
		},
		OnPull: func(commit string) {
			pulled = append(pulled, commit)
			if commit == heads[len(heads)-1] {
				cancel()
			}
		},
	}

	p := api.Pipeline{ID: 8, Name: "api", Repo: &api.GitRepo{URL: "https://github.com/org/api", SelectedBranch: "refs/heads/main"}}
	if err := w.Watch(ctx, p); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if len(pulled) != 2 || pulled[0] != "b2" || pulled[1] != "c3" {
		t.Fatalf("expected pulls for b2 and c3, got %v", pulled)
	}
	if len(be.Requests()) != 2 || be.Requests()[0] != "POST /api/v1/pipeline/8/pull" {
		t.Fatalf("unexpected requests %v", be.Requests())
	}
	if len(notifier.successes) != 2 {
		t.Fatalf("expected a success banner per pull, got %d", len(notifier.successes))
	}
	if app.Intervals() != 0 {
		t.Fatalf("watcher must unregister its ticker")
	}
}

func TestWatchStopsWhenPullFails(t *testing.T) {
	h, _, notifier, _ := newTestHelper(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	heads := []string{"a1", "b2"}
	calls := 0
	w := &Watcher{
		Helper:   h,
		Interval: time.Millisecond,
		Head: func(context.Context, string, string, repoauth.Options) (string, error) {
			head := heads[calls]
			calls++
			return head, nil
		},
	}

	err := w.Watch(context.Background(), api.Pipeline{ID: 1, Repo: &api.GitRepo{URL: "https://github.com/org/api"}})
	var respErr *client.ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("expected the pull error, got %v", err)
	}
	if len(notifier.errors) != 1 {
		t.Fatalf("expected one error banner, got %d", len(notifier.errors))
	}
}

func TestWatchRequiresRepository(t *testing.T) {
	h, _, _, _ := newTestHelper(t, func(w http.ResponseWriter, r *http.Request) {})
	w := &Watcher{Helper: h}
	if err := w.Watch(context.Background(), api.Pipeline{ID: 1, Name: "api"}); err == nil {
		t.Fatalf("expected error for pipeline without repository")
	}
}
