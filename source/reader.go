package source

import (
	"errors"
	"io"
	"sync"
)

// DefaultChunkSize is the read buffer size used by Reader when none is
// configured. Matches a typical network receive buffer; reassembly does not
// care about chunk boundaries, so the value only affects call frequency.
const DefaultChunkSize = 4096

// Reader adapts an io.Reader into a pausable push Source. A single read
// loop goroutine pulls chunks and pushes them to the Events handlers; the
// pause gate is checked between reads, so one in-flight chunk may still be
// delivered after Pause returns. If the underlying reader is also an
// io.Closer, Destroy closes it, which unblocks a pending Read.
type Reader struct {
	r         io.Reader
	chunkSize int

	mu        sync.Mutex
	wake      *sync.Cond
	started   bool
	paused    bool
	destroyed bool
}

// ReaderOpt configures a Reader.
type ReaderOpt func(*Reader)

// ReaderOptChunkSize sets the read buffer size.
func ReaderOptChunkSize(n int) ReaderOpt {
	return func(r *Reader) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// NewReader wraps r. Delivery does not begin until Start is called.
func NewReader(r io.Reader, opts ...ReaderOpt) *Reader {
	src := &Reader{r: r, chunkSize: DefaultChunkSize}
	src.wake = sync.NewCond(&src.mu)
	for _, opt := range opts {
		opt(src)
	}
	return src
}

// Start launches the read loop. It returns ErrStarted on a second call and
// ErrDestroyed if the source was already destroyed.
func (s *Reader) Start(ev Events) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	if s.started {
		return ErrStarted
	}
	s.started = true
	go s.run(ev)
	return nil
}

func (s *Reader) run(ev Events) {
	buf := make([]byte, s.chunkSize)
	for {
		s.mu.Lock()
		for s.paused && !s.destroyed {
			s.wake.Wait()
		}
		if s.destroyed {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		n, err := s.r.Read(buf)
		if n > 0 && !s.gone() {
			if ev.Data != nil {
				ev.Data(buf[:n])
			}
		}
		if err != nil {
			if s.gone() {
				return
			}
			if errors.Is(err, io.EOF) {
				if ev.End != nil {
					ev.End()
				}
			} else if ev.Err != nil {
				ev.Err(err)
			}
			return
		}
	}
}

func (s *Reader) gone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Pause stops the read loop before its next read. Safe to call from inside
// a Data callback.
func (s *Reader) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume lifts a pause.
func (s *Reader) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.wake.Broadcast()
}

func (s *Reader) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Destroy stops the loop and closes the underlying reader if it is an
// io.Closer. Idempotent. No events fire after the loop observes the
// destruction.
func (s *Reader) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.mu.Unlock()
	s.wake.Broadcast()
	if c, ok := s.r.(io.Closer); ok {
		c.Close()
	}
}
