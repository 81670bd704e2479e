package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pipedeck/pipedeck/internal/api"
	"github.com/pipedeck/pipedeck/internal/repoauth"
)

// DefaultWatchInterval is how often the source branch is checked when no
// interval is given.
const DefaultWatchInterval = time.Minute

// HeadFunc resolves the commit a remote branch points to.
type HeadFunc func(ctx context.Context, repoURL, branch string, opts repoauth.Options) (string, error)

// Watcher pulls a pipeline whenever the head of its source branch moves.
type Watcher struct {
	Helper   *Helper
	Auth     repoauth.Options
	Interval time.Duration
	// Head defaults to RemoteHead.
	Head HeadFunc
	// OnPull, if set, sees every commit that triggered a successful pull.
	OnPull func(commit string)
}

// Watch polls until ctx ends, the interval registry is cleared or a pull
// fails. The first head seen is the baseline and triggers nothing. Failed
// lookups are logged and retried on the next tick.
func (w *Watcher) Watch(ctx context.Context, p api.Pipeline) error {
	if p.Repo == nil || p.Repo.URL == "" {
		return fmt.Errorf("pipeline %q has no source repository", p.Name)
	}
	branch := p.Repo.SelectedBranch
	if branch == "" {
		branch = defaultBranch
	}
	head := w.Head
	if head == nil {
		head = RemoteHead
	}
	every := w.Interval
	if every <= 0 {
		every = DefaultWatchInterval
	}

	logger := w.Helper.logger.With("pipeline_id", p.ID, "repo", repoauth.ShortName(p.Repo.URL), "branch", branch)
	ticker, stopped, release := w.Helper.registerTicker(every)
	defer release()

	last := ""
	for {
		commit, err := head(ctx, p.Repo.URL, branch, w.Auth)
		switch {
		case err != nil:
			logger.Warn("Failed to resolve remote head", "error", err)
		case last == "":
			logger.Info("Watching pipeline source", "commit", commit)
			last = commit
		case commit != last:
			logger.Info("New commit detected", "commit", commit, "previous", last)
			if err := w.Helper.Pull(ctx, p); err != nil {
				return err
			}
			last = commit
			if w.OnPull != nil {
				w.OnPull(commit)
			}
		default:
			logger.Debug("No new commit detected", "commit", commit)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopped:
			return ErrPollingStopped
		case <-ticker.C:
		}
	}
}
