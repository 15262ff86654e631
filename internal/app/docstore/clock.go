package docstore

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing UTC commit times.
type Clock struct {
	mu   sync.Mutex
	last time.Time

	// Now is the time source; nil means time.Now.
	Now func() time.Time
}

// Next returns a commit time later than every previous one.
// base, when non-zero, is used instead of the clock's own source (for example
// a database server's time).
func (c *Clock) Next(base time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := base
	if now.IsZero() {
		if c.Now != nil {
			now = c.Now()
		} else {
			now = time.Now()
		}
	}
	now = now.UTC()

	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}
