package timing

import (
	"sync"
	"time"
)

// Clock is a pausable stopwatch. Elapsed is the capture timestamp of
// every frame and input event; it only advances while the clock runs.
type Clock struct {
	mu      sync.Mutex
	now     func() time.Time
	started time.Time
	elapsed time.Duration
	running bool
}

// NewClock returns a stopped clock at zero.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Start resumes the clock. Starting a running clock does nothing.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.started = c.now()
	c.running = true
}

// Pause freezes Elapsed until the next Start.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.elapsed += c.now().Sub(c.started)
	c.running = false
}

// Reset stops the clock and sets it back to zero.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed = 0
	c.running = false
}

func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return c.elapsed
	}
	return c.elapsed + c.now().Sub(c.started)
}
