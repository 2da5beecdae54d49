package source

import "sync"

// Push is a Source driven directly by caller code: the owner feeds bytes
// with Push and terminates with End or Fail. One goroutine is expected to
// drive it. Pause is cooperative only — the owner consults Paused between
// pushes and throttles itself; pushes while paused are still forwarded so
// no bytes are lost.
type Push struct {
	mu        sync.Mutex
	ev        Events
	started   bool
	ended     bool
	destroyed bool
	paused    bool
}

// NewPush returns an idle push source.
func NewPush() *Push {
	return &Push{}
}

func (p *Push) Start(ev Events) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrDestroyed
	}
	if p.started {
		return ErrStarted
	}
	p.started = true
	p.ev = ev
	return nil
}

// Push forwards one chunk. Ignored before Start and after End, Fail or
// Destroy.
func (p *Push) Push(chunk []byte) {
	p.mu.Lock()
	ev, live := p.ev, p.live()
	p.mu.Unlock()
	if live && ev.Data != nil {
		ev.Data(chunk)
	}
}

// End signals end-of-stream. At most one of End and Fail fires.
func (p *Push) End() {
	p.mu.Lock()
	ev, live := p.ev, p.live()
	p.ended = true
	p.mu.Unlock()
	if live && ev.End != nil {
		ev.End()
	}
}

// Fail signals a fatal source error.
func (p *Push) Fail(err error) {
	p.mu.Lock()
	ev, live := p.ev, p.live()
	p.ended = true
	p.mu.Unlock()
	if live && ev.Err != nil {
		ev.Err(err)
	}
}

func (p *Push) live() bool {
	return p.started && !p.ended && !p.destroyed
}

func (p *Push) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *Push) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

func (p *Push) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Destroy silences the source. Idempotent.
func (p *Push) Destroy() {
	p.mu.Lock()
	p.destroyed = true
	p.mu.Unlock()
}
