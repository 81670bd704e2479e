package state

import (
	"sync"

	"github.com/pipedeck/pipedeck/internal/api"
)

// EventKind identifies a state change.
type EventKind string

const (
	SessionChanged   EventKind = "session_changed"
	IntervalsCleared EventKind = "intervals_cleared"
)

// Event is published to subscribers after every state mutation.
type Event struct {
	Kind    EventKind
	Session *api.Session
	Cleared int
}

// Interval is a handle on a running poller. Stop must be safe to call more than once.
type Interval interface {
	Stop()
}

// IntervalFunc adapts a function to the Interval interface.
type IntervalFunc func()

// Stop calls f.
func (f IntervalFunc) Stop() { f() }

// App holds the session and the registry of polling intervals.
// It is only mutated through its command methods.
type App struct {
	mu          sync.Mutex
	session     *api.Session
	intervals   map[int]Interval
	nextID      int
	subscribers []chan Event
}

// New creates an empty application state.
func New() *App {
	return &App{intervals: make(map[int]Interval)}
}

// Session returns a copy of the current session, or nil when logged out.
func (a *App) Session() *api.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	s := *a.session
	return &s
}

// SetSession publishes a new session.
func (a *App) SetSession(s api.Session) {
	a.mu.Lock()
	a.session = &s
	copied := s
	a.mu.Unlock()
	a.publish(Event{Kind: SessionChanged, Session: &copied})
}

// ClearSession drops the current session.
func (a *App) ClearSession() {
	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()
	a.publish(Event{Kind: SessionChanged})
}

// AppendInterval registers a poller and returns its id.
func (a *App) AppendInterval(iv Interval) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	a.intervals[a.nextID] = iv
	return a.nextID
}

// RemoveInterval drops a single poller without stopping it. Pollers call this
// when they finish on their own.
func (a *App) RemoveInterval(id int) {
	a.mu.Lock()
	delete(a.intervals, id)
	a.mu.Unlock()
}

// ClearIntervals stops every registered poller and empties the registry.
// Clearing an empty registry is a no-op.
func (a *App) ClearIntervals() int {
	a.mu.Lock()
	cleared := a.intervals
	a.intervals = make(map[int]Interval)
	a.mu.Unlock()

	for _, iv := range cleared {
		iv.Stop()
	}
	if len(cleared) > 0 {
		a.publish(Event{Kind: IntervalsCleared, Cleared: len(cleared)})
	}
	return len(cleared)
}

// Intervals returns the number of registered pollers.
func (a *App) Intervals() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.intervals)
}

// Subscribe returns a channel receiving every subsequent event. Slow subscribers
// miss events rather than block mutations.
func (a *App) Subscribe(buffer int) <-chan Event {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	a.mu.Lock()
	a.subscribers = append(a.subscribers, ch)
	a.mu.Unlock()
	return ch
}

func (a *App) publish(ev Event) {
	a.mu.Lock()
	subs := append([]chan Event(nil), a.subscribers...)
	a.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
