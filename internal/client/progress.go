package client

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Tracker counts in-flight requests that asked for the progress indicator.
// The web console reads Active to render its busy marker.
type Tracker struct {
	mu     sync.Mutex
	active int
	onIdle func()
}

// NewTracker creates a tracker. onIdle, if set, runs whenever the count drops to zero.
func NewTracker(onIdle func()) *Tracker {
	return &Tracker{onIdle: onIdle}
}

func (t *Tracker) Start() {
	t.mu.Lock()
	t.active++
	t.mu.Unlock()
}

func (t *Tracker) Done() {
	t.mu.Lock()
	if t.active > 0 {
		t.active--
	}
	idle := t.active == 0
	t.mu.Unlock()
	if idle && t.onIdle != nil {
		t.onIdle()
	}
}

// Active returns the number of running indicators.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

var spinnerFrames = []string{"|", "/", "-", "\\"}

// Spinner draws a terminal progress indicator while at least one request runs.
type Spinner struct {
	out   io.Writer
	every time.Duration

	mu     sync.Mutex
	active int
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewSpinner creates a spinner writing to out (usually stderr).
func NewSpinner(out io.Writer) *Spinner {
	return &Spinner{out: out, every: 120 * time.Millisecond}
}

func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active++
	if s.active > 1 {
		return
	}
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.stop)
}

func (s *Spinner) Done() {
	s.mu.Lock()
	if s.active == 0 {
		s.mu.Unlock()
		return
	}
	s.active--
	if s.active > 0 {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Spinner) run(stop <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-stop:
			fmt.Fprint(s.out, "\r \r")
			return
		case <-ticker.C:
			fmt.Fprintf(s.out, "\r%s", spinnerFrames[frame%len(spinnerFrames)])
			frame++
		}
	}
}
