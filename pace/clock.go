// Package pace provides the repeating clock that drives frame delivery.
//
// A Clock fires a callback at a fixed interval and moves through four
// states: Idle until started, Running while ticking, Paused while
// suspended, Done after stop. Pausing and resuming do not preserve phase;
// resuming starts a fresh interval.
package pace

import (
	"sync"
	"time"
)

// State is the clock lifecycle position.
type State int32

const (
	Idle State = iota
	Running
	Paused
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Done:
		return "done"
	}
	return "unknown"
}

// Clock fires fn once per interval on its own goroutine. The callback runs
// inline with ticking, so a slow callback delays subsequent ticks rather
// than stacking them. One tick may race a concurrent Stop and land after
// it; callbacks must tolerate a single late tick.
type Clock struct {
	interval time.Duration
	fn       func()

	mu    sync.Mutex
	state State
	kick  chan struct{}
	stop  chan struct{}
}

// New builds an Idle clock. Like time.NewTicker it panics on a
// non-positive interval; a nil fn panics as well.
func New(interval time.Duration, fn func()) *Clock {
	if interval <= 0 {
		panic("pace: non-positive interval")
	}
	if fn == nil {
		panic("pace: nil tick function")
	}
	return &Clock{
		interval: interval,
		fn:       fn,
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Start begins ticking. Only an Idle clock starts; all other states no-op.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return
	}
	c.state = Running
	go c.run()
}

// Pause suspends ticking until Resume. Effective only while Running.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return
	}
	c.state = Paused
	c.notify()
}

// Resume restarts ticking with a fresh interval. Effective only while
// Paused.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Paused {
		return
	}
	c.state = Running
	c.notify()
}

// Stop ends the clock permanently. Idempotent, non-blocking; the tick
// goroutine exits on its own shortly after.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Done {
		return
	}
	c.state = Done
	close(c.stop)
}

// State returns the current lifecycle position.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// notify wakes the run loop so it re-reads state. Buffered so a wake is
// never lost; callers hold c.mu.
func (c *Clock) notify() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *Clock) run() {
	t := time.NewTicker(c.interval)
	defer func() { t.Stop() }()
	for {
		switch c.State() {
		case Running:
			select {
			case <-t.C:
				if c.State() == Running {
					c.fn()
				}
			case <-c.kick:
			case <-c.stop:
				return
			}
		case Paused:
			t.Stop()
			select {
			case <-c.kick:
				t = time.NewTicker(c.interval)
			case <-c.stop:
				return
			}
		default:
			return
		}
	}
}
