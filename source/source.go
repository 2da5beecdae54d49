// Package source defines the byte-source contract feeding a cadence
// session: a cooperative, pausable push stream. A source delivers
// arbitrarily sized chunks in arrival order, signals end-of-stream or a
// fatal error exactly once, and honors pause/resume requests between
// chunks. Two implementations ship with the package: Reader adapts any
// io.Reader, Push is driven directly by caller code.
package source

import "errors"

var (
	ErrStarted   = errors.New("source: already started")
	ErrDestroyed = errors.New("source: destroyed")
)

// Events receives a source's push notifications. Chunk buffers handed to
// Data are only valid for the duration of the callback; receivers that keep
// bytes must copy them. After End or Err fires, no further events follow.
// Nil handlers are skipped.
type Events struct {
	Data func(chunk []byte)
	End  func()
	Err  func(err error)
}

// Source is a cooperative pausable push stream. Start begins delivery and
// may be called at most once. Pause and Resume take effect between chunks;
// a chunk already being read when Pause lands is still delivered. Destroy
// releases the source immediately and stops all future events.
type Source interface {
	Start(ev Events) error
	Pause()
	Resume()
	Paused() bool
	Destroy()
}
