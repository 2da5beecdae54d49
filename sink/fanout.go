package sink

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zsiec/cadence/feed"
)

// DefaultQueueDepth is the per-target frame queue length used when none is
// configured. At audio rate (100 frames/s) it absorbs well over half a
// second of a stalled target before frames drop.
const DefaultQueueDepth = 64

// Fanout copies each delivered frame to every attached target. Each target
// gets its own buffered queue drained by its own goroutine, so one slow
// target never stalls the paced clock or its neighbors. When a queue is
// full the oldest queued frame is dropped and counted, keeping targets at
// the live edge rather than falling ever further behind.
//
// All targets receive the same frame slice; targets must treat it as
// read-only and must not retain it past their Deliver call.
type Fanout struct {
	log   *slog.Logger
	depth int

	mu      sync.RWMutex
	targets map[string]*target
	closed  bool
}

// target binds one sink to its queue and drain goroutine.
type target struct {
	name string
	sink feed.Sink
	ch   chan []byte
	done chan struct{}

	delivered atomic.Int64
	dropped   atomic.Int64
	errs      atomic.Int64
}

// TargetStats is a point-in-time snapshot of one target's delivery
// counters.
type TargetStats struct {
	Name      string `json:"name"`
	Delivered int64  `json:"delivered"`
	Dropped   int64  `json:"dropped"`
	Errors    int64  `json:"errors"`
}

// FanoutOpt configures a Fanout.
type FanoutOpt func(*Fanout)

// FanoutOptQueueDepth sets the per-target queue length.
func FanoutOptQueueDepth(n int) FanoutOpt {
	return func(f *Fanout) {
		if n > 0 {
			f.depth = n
		}
	}
}

// NewFanout builds an empty Fanout. A nil logger falls back to
// slog.Default().
func NewFanout(log *slog.Logger, opts ...FanoutOpt) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	f := &Fanout{
		log:     log.With("component", "fanout"),
		depth:   DefaultQueueDepth,
		targets: make(map[string]*target),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Attach registers a named target and starts its drain goroutine. A name
// already in use or a closed Fanout reports false.
func (f *Fanout) Attach(name string, s feed.Sink) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	if _, exists := f.targets[name]; exists {
		f.log.Warn("target already attached", "name", name)
		return false
	}
	t := &target{
		name: name,
		sink: s,
		ch:   make(chan []byte, f.depth),
		done: make(chan struct{}),
	}
	f.targets[name] = t
	go f.drain(t)
	f.log.Debug("target attached", "name", name)
	return true
}

// Detach removes a target, waiting for its queue to drain. Unknown names
// are ignored.
func (f *Fanout) Detach(name string) {
	f.mu.Lock()
	t, ok := f.targets[name]
	if ok {
		delete(f.targets, name)
		close(t.ch)
	}
	f.mu.Unlock()

	if ok {
		<-t.done
		f.log.Debug("target detached", "name", name,
			"delivered", t.delivered.Load(), "dropped", t.dropped.Load())
	}
}

// Deliver queues frame for every target. Never blocks: a full target queue
// sheds its oldest frame to make room.
func (f *Fanout) Deliver(frame []byte) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, t := range f.targets {
		select {
		case t.ch <- frame:
			continue
		default:
		}
		// Queue full: shed the oldest frame, then try once more. The
		// second attempt can still lose to the drain goroutine, in which
		// case the new frame drops instead of the old one.
		select {
		case <-t.ch:
			t.dropped.Add(1)
		default:
		}
		select {
		case t.ch <- frame:
		default:
			t.dropped.Add(1)
		}
	}
	return nil
}

// Close detaches every target and rejects future attaches. Safe to call
// more than once.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	targets := make([]*target, 0, len(f.targets))
	for name, t := range f.targets {
		delete(f.targets, name)
		close(t.ch)
		targets = append(targets, t)
	}
	f.mu.Unlock()

	for _, t := range targets {
		<-t.done
	}
}

// Targets reports the number of attached targets.
func (f *Fanout) Targets() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.targets)
}

// Stats snapshots the delivery counters of every attached target.
func (f *Fanout) Stats() []TargetStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]TargetStats, 0, len(f.targets))
	for _, t := range f.targets {
		out = append(out, TargetStats{
			Name:      t.name,
			Delivered: t.delivered.Load(),
			Dropped:   t.dropped.Load(),
			Errors:    t.errs.Load(),
		})
	}
	return out
}

func (f *Fanout) drain(t *target) {
	defer close(t.done)
	for frame := range t.ch {
		if err := t.sink.Deliver(frame); err != nil {
			t.errs.Add(1)
			f.log.Warn("target rejected frame", "name", t.name, "error", err)
			continue
		}
		t.delivered.Add(1)
	}
}
