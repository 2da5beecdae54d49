package feed

import (
	"context"
	"sync"
)

// Startup is the deferred result of Start. It completes with nil once the
// session first reports ready (enough buffered frames, or a source that
// ended early) and with the source error if the source fails before then.
// Completion is terminal for the Startup; the session itself keeps running
// after a successful one. A Startup belonging to a superseded or stopped
// session never completes, so waiters pass a context to bound themselves.
type Startup struct {
	once sync.Once
	err  error
	done chan struct{}
}

func newStartup() *Startup {
	return &Startup{done: make(chan struct{})}
}

func (s *Startup) complete(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Done is closed once the startup completed either way. After Done, Err
// holds the outcome.
func (s *Startup) Done() <-chan struct{} { return s.done }

// Err returns the completion outcome: nil for ready, the source error for
// failure. Only meaningful after Done is closed.
func (s *Startup) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the startup completes or ctx ends, whichever is first.
func (s *Startup) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
