package engine

import (
	"sync"

	"github.com/seantiz/runbook/internal/model"
)

// cacheCapacity bounds the per-execution output cache. Long-lived scripts
// would otherwise grow it without limit.
const cacheCapacity = 1000

// eventCache is a fixed-capacity circular buffer of output events. It lets a
// consumer that reattaches to a running or finished execution catch up on
// recent output. Oldest entries are evicted first once the cap is exceeded.
type eventCache struct {
	mu       sync.RWMutex
	buf      []model.Event
	capacity int
	pos      int // next write position
	full     bool
}

func newEventCache(capacity int) *eventCache {
	return &eventCache{
		buf:      make([]model.Event, capacity),
		capacity: capacity,
	}
}

// Add appends an event, evicting the oldest entry when full.
func (c *eventCache) Add(ev model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf[c.pos] = ev
	c.pos = (c.pos + 1) % c.capacity
	if c.pos == 0 {
		c.full = true
	}
}

// Snapshot returns all cached events in insertion order, oldest first.
func (c *eventCache) Snapshot() []model.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.full {
		out := make([]model.Event, c.pos)
		copy(out, c.buf[:c.pos])
		return out
	}

	out := make([]model.Event, c.capacity)
	copy(out, c.buf[c.pos:])
	copy(out[c.capacity-c.pos:], c.buf[:c.pos])
	return out
}

// Len returns the number of cached events.
func (c *eventCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.full {
		return c.capacity
	}
	return c.pos
}
