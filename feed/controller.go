// Package feed implements paced frame delivery: one Controller owns at most
// one session binding a byte source, a frame reassembler and a fixed-rate
// clock. Each clock tick pops the oldest complete frame and hands it to the
// session's sink; ticks with nothing buffered are no-ops, so delivery stays
// paced through transient underrun instead of blocking.
//
// The controller serializes every entry point (source callbacks, clock
// ticks, user calls) behind one mutex, so session state needs no further
// locking. Hooks and sink calls run inline on the goroutine that caused
// them and must not call back into the controller.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/looplab/fsm"

	"github.com/zsiec/cadence/media"
	"github.com/zsiec/cadence/pace"
	"github.com/zsiec/cadence/rebuffer"
	"github.com/zsiec/cadence/source"
)

// Lifecycle states. Idle means no session has ever been configured;
// finished is terminal for a session but a new Start leaves it again.
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StatePaused   = "paused"
	StateFinished = "finished"
)

// Sink consumes one frame per delivery tick. Deliver runs inline on the
// paced clock and is expected to be cheap; a returned error is logged and
// counted, not fatal to the session.
type Sink interface {
	Deliver(frame []byte) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(frame []byte) error

func (f SinkFunc) Deliver(frame []byte) error { return f(frame) }

// Controller drives paced delivery sessions. Replacing the source via a
// second Start tears the previous session down completely before the new
// one is built; two sessions never run concurrently under one controller.
type Controller struct {
	log   *slog.Logger
	hooks Hooks
	stats StatsRecorder

	mu      sync.Mutex
	machine *fsm.FSM
	sess    *session
}

// session binds one source to one reassembler and one clock. It is guarded
// by the controller mutex; done marks it torn down so late clock ticks and
// straggling source callbacks become no-ops.
type session struct {
	src       source.Source
	reasm     *rebuffer.Reassembler
	clock     *pace.Clock
	sink      Sink
	startup   *Startup
	kind      media.Kind
	geom      media.Geometry
	done      bool
	delivered int64
	underruns int64
	sinkErrs  int64
}

// Opt configures a Controller.
type Opt func(*Controller)

// OptStats installs a stats recorder. The default discards everything.
func OptStats(rec StatsRecorder) Opt {
	return func(c *Controller) {
		if rec != nil {
			c.stats = rec
		}
	}
}

// New builds an idle Controller. A nil logger falls back to slog.Default().
func New(log *slog.Logger, hooks Hooks, opts ...Opt) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		log:   log.With("component", "feed"),
		hooks: hooks,
		stats: NopStats{},
	}
	c.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: "start", Src: []string{StateIdle, StateRunning, StatePaused, StateFinished}, Dst: StateRunning},
			{Name: "pause", Src: []string{StateRunning}, Dst: StatePaused},
			{Name: "resume", Src: []string{StatePaused}, Dst: StateRunning},
			{Name: "finish", Src: []string{StateRunning, StatePaused}, Dst: StateFinished},
		},
		fsm.Callbacks{
			"after_pause":  func(_ context.Context, _ *fsm.Event) { c.firePause(true) },
			"after_resume": func(_ context.Context, _ *fsm.Event) { c.firePause(false) },
			"after_finish": func(_ context.Context, _ *fsm.Event) { c.fireFinish() },
		},
	)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start tears down any existing session and begins a new one draining src
// at the configured rate. Configuration problems fail fast with an error
// and leave any existing session untouched. The returned Startup completes
// with nil on the first readiness transition and with the source error if
// the source fails first; a Startup superseded by a later Start or Stop is
// abandoned, so callers bound their wait with a context of their own.
func (c *Controller) Start(src source.Source, cfg Config) (*Startup, error) {
	geom, rcfg, err := cfg.session()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil {
		c.teardown(c.sess, "superseded")
		c.sess = nil
	}

	sess := &session{
		src:     src,
		sink:    cfg.Sink,
		startup: newStartup(),
		kind:    cfg.Format.Kind(),
		geom:    geom,
	}

	reasm, err := rebuffer.New(src, rcfg, rebuffer.Events{
		Ready:      func() { c.onReady(sess) },
		AlmostDone: func() { c.onAlmostDone(sess) },
	})
	if err != nil {
		return nil, err
	}
	sess.reasm = reasm
	sess.clock = pace.New(geom.Interval(), func() { c.tick(sess) })

	err = src.Start(source.Events{
		Data: func(chunk []byte) { c.onData(sess, chunk) },
		End:  func() { c.onEnd(sess) },
		Err:  func(err error) { c.onSourceError(sess, err) },
	})
	if err != nil {
		sess.done = true
		sess.clock.Stop()
		c.machine.SetState(StateIdle)
		return nil, err
	}

	c.sess = sess
	c.transition("start")
	c.stats.SessionStarted(sess.kind, geom)
	c.log.Info("session started",
		"kind", sess.kind,
		"rate", geom.Rate,
		"itemsize", geom.ItemSize,
		"minbuffer", rcfg.MinBuffer,
		"maxbuffer", rcfg.MaxBuffer)
	sess.clock.Start()
	return sess.startup, nil
}

// Pause stops the clock. Effective only while running.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.machine.Current() != StateRunning {
		return
	}
	c.sess.clock.Pause()
	c.transition("pause")
}

// Resume restarts the clock after Pause. A no-op once the session finished.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.machine.Current() != StatePaused {
		return
	}
	c.sess.clock.Resume()
	c.transition("resume")
}

// Stop tears the session down immediately: the clock stops, buffered frames
// and any partial tail are discarded, the source is destroyed, and the
// finish hook fires right away. Stopping is not an error; a pending Startup
// is abandoned. Without a session Stop is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return
	}
	sess := c.sess
	c.teardown(sess, "stopped")
	c.sess = nil
	c.transition("finish")
	c.logSessionEnd(sess, "stopped")
}

// Playing reports whether the clock is actively ticking.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current() == StateRunning
}

// Paused reports whether the session is explicitly paused.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current() == StatePaused
}

// Finished reports whether no session is active. True before the first
// Start, after a natural finish, after Stop, and after a source error.
func (c *Controller) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess == nil
}

// State returns the lifecycle state name.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// Depth reports the number of complete frames currently buffered.
func (c *Controller) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return 0
	}
	return c.sess.reasm.Remain()
}

// tick runs once per clock interval: pop the oldest frame and forward it,
// or record an underrun. A session that has ended and fully drained
// finishes here, which keeps the finish ordering behind any frames still
// owed to the sink.
func (c *Controller) tick(sess *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess.done || sess != c.sess || c.machine.Current() != StateRunning {
		return // stale tick from a stopped or paused clock
	}

	frame, ok := sess.reasm.Pop()
	if ok {
		if err := sess.sink.Deliver(frame); err != nil {
			sess.sinkErrs++
			c.log.Warn("sink rejected frame", "error", err)
		}
		sess.delivered++
		c.stats.FrameOut(len(frame))
	} else {
		sess.underruns++
		c.stats.Underrun()
	}
	c.stats.Depth(sess.reasm.Remain())

	if sess.reasm.Drained() {
		c.teardown(sess, "drained")
		c.sess = nil
		c.transition("finish")
		c.logSessionEnd(sess, "drained")
	}
}

func (c *Controller) onData(sess *session, chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess.done || sess != c.sess {
		return
	}
	sess.reasm.Push(chunk)
	c.stats.ChunkIn(len(chunk))
	c.stats.Depth(sess.reasm.Remain())
}

func (c *Controller) onEnd(sess *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess.done || sess != c.sess {
		return
	}
	c.log.Debug("source ended", "buffered", sess.reasm.Remain())
	sess.reasm.End()
}

// onSourceError handles a fatal source failure: the pending startup is
// rejected with the original error, readiness is forced (the reassembler
// fires the ready edge), the error hook fires, and the session is forced
// to finished. No reconnection is attempted.
func (c *Controller) onSourceError(sess *session, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess.done || sess != c.sess {
		return
	}
	sess.startup.complete(err)
	sess.reasm.Fail(err)
	c.log.Error("source failed", "error", err)
	if c.hooks.OnError != nil {
		c.hooks.OnError(err)
	}
	c.teardown(sess, "error")
	c.sess = nil
	c.transition("finish")
	c.logSessionEnd(sess, "error")
}

// onReady fires on the readiness rising edge. The first one completes the
// startup; an error path completes it first, making this a no-op.
func (c *Controller) onReady(sess *session) {
	sess.startup.complete(nil)
	if c.hooks.OnReady != nil {
		c.hooks.OnReady()
	}
}

func (c *Controller) onAlmostDone(sess *session) {
	if c.hooks.OnAlmostDone != nil {
		c.hooks.OnAlmostDone()
	}
}

// teardown releases the session's clock, buffer and source. It fires no
// hooks itself; callers decide whether a finish transition follows.
func (c *Controller) teardown(sess *session, reason string) {
	sess.done = true
	sess.clock.Stop()
	sess.reasm.Destroy()
	c.stats.SessionEnded(reason)
}

// transition drives the lifecycle machine. Callers guard preconditions, so
// a transition error here means a state-machine bug worth surfacing.
func (c *Controller) transition(event string) {
	if err := c.machine.Event(context.Background(), event); err != nil {
		c.log.Error("lifecycle transition failed", "event", event, "state", c.machine.Current(), "error", err)
	}
}

func (c *Controller) firePause(paused bool) {
	if c.hooks.OnPause != nil {
		c.hooks.OnPause(paused)
	}
	c.log.Debug("pause state changed", "paused", paused)
}

func (c *Controller) fireFinish() {
	if c.hooks.OnFinish != nil {
		c.hooks.OnFinish()
	}
}

func (c *Controller) logSessionEnd(sess *session, reason string) {
	c.log.Info("session finished",
		"reason", reason,
		"delivered", sess.delivered,
		"underruns", sess.underruns,
		"sink_errors", sess.sinkErrs)
}
