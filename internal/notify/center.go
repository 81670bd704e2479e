package notify

import (
	"sync"
	"time"
)

// DefaultCenterSize bounds how many pending banners the web console keeps.
const DefaultCenterSize = 20

// Center queues notifications until the next page render picks them up.
type Center struct {
	mu      sync.Mutex
	pending []Notification
	max     int
}

// NewCenter creates a queue holding at most max notifications; the oldest are
// dropped first.
func NewCenter(max int) *Center {
	if max <= 0 {
		max = DefaultCenterSize
	}
	return &Center{max: max}
}

func (c *Center) Show(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, n)
	if over := len(c.pending) - c.max; over > 0 {
		c.pending = append([]Notification(nil), c.pending[over:]...)
	}
}

// Drain returns the banners that are still within their display duration and
// empties the queue. Several banners may be visible at once.
func (c *Center) Drain(now time.Time) []Notification {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	visible := make([]Notification, 0, len(pending))
	for _, n := range pending {
		if now.Sub(n.CreatedAt) <= n.Duration {
			visible = append(visible, n)
		}
	}
	return visible
}

// Len returns the number of queued notifications.
func (c *Center) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
