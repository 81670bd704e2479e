package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pipedeck/pipedeck/internal/api"
	"github.com/pipedeck/pipedeck/internal/client"
	"github.com/pipedeck/pipedeck/internal/state"
)

// DefaultPollInterval is used when Follow gets a non-positive interval.
const DefaultPollInterval = 2 * time.Second

// ErrPollingStopped is returned by Follow when the interval registry was cleared.
var ErrPollingStopped = errors.New("polling stopped")

// Follow polls the job log of a run until it finishes, ctx ends, or every
// registered interval is cleared. fn sees each fetched log. The poller is
// registered in the interval registry for the whole loop.
func (h *Helper) Follow(ctx context.Context, pipelineID, runID int, every time.Duration, fn func(*api.JobLog)) error {
	if every <= 0 {
		every = DefaultPollInterval
	}

	ticker, stopped, release := h.registerTicker(every)
	defer release()

	for {
		log, err := h.JobLog(ctx, pipelineID, runID, client.HideProgressBar())
		if err != nil {
			h.fail(err)
			return err
		}
		fn(log)
		if log.Finished {
			return nil
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

// registerTicker starts a ticker and registers it in the interval registry.
// stopped is closed when the registry is cleared; release unregisters it.
func (h *Helper) registerTicker(every time.Duration) (*time.Ticker, <-chan struct{}, func()) {
	ticker := time.NewTicker(every)
	stopped := make(chan struct{})
	var once sync.Once
	id := h.state.AppendInterval(state.IntervalFunc(func() {
		once.Do(func() {
			ticker.Stop()
			close(stopped)
		})
	}))
	release := func() {
		h.state.RemoveInterval(id)
		once.Do(func() { ticker.Stop() })
	}
	return ticker, stopped, release
}
