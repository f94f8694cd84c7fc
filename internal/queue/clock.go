package queue

import (
	"sync"
	"time"
)

// stampClock hands out strictly increasing UTC timestamps at microsecond
// precision, the resolution PostgreSQL keeps.
type stampClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newStampClock(now func() time.Time) *stampClock {
	if now == nil {
		now = time.Now
	}
	return &stampClock{now: now}
}

func (c *stampClock) Stamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
