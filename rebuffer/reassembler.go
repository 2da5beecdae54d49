// Package rebuffer turns an arbitrarily chunked byte stream into fixed-size
// frames and applies watermark backpressure to the producing source.
//
// A Reassembler keeps a FIFO queue of complete frames plus at most one
// partially filled tail. Incoming chunks carry no alignment guarantee: one
// chunk may finish the tail, span several frame boundaries, or leave a new
// partial tail, all in one call. Backpressure counts complete frames only.
// When the count rises above the high watermark the bound source is paused;
// once a pause issued here drains below the high watermark, the source is
// resumed. Readiness (enough buffered frames to sustain paced delivery) is
// edge-triggered: the Ready and AlmostDone events fire only when the value
// changes.
//
// A Reassembler is not safe for concurrent use. Callers serialize access;
// the feed package does so with the session mutex.
package rebuffer

import (
	"errors"
	"fmt"
)

var (
	ErrItemSize   = errors.New("rebuffer: invalid frame size")
	ErrWatermarks = errors.New("rebuffer: invalid watermarks")
)

// Config sizes a Reassembler. ItemSize is the frame size in bytes.
// MinBuffer and MaxBuffer are the low and high watermarks in whole frames;
// MinBuffer may be zero, meaning readiness from the first moment.
type Config struct {
	ItemSize  int
	MinBuffer int
	MaxBuffer int
}

// Events receives edge-triggered readiness transitions. Ready fires when
// enough frames are buffered (or the source has ended); AlmostDone fires
// when the buffer drops back below the low watermark before the source has
// ended. Handlers run synchronously on the goroutine mutating the
// Reassembler. Nil handlers are skipped.
type Events struct {
	Ready      func()
	AlmostDone func()
}

// SourceControl is the slice of the source contract the Reassembler drives:
// pause and resume for backpressure, destroy on teardown.
type SourceControl interface {
	Pause()
	Resume()
	Paused() bool
	Destroy()
}

// Reassembler accumulates chunks into frames. See the package comment for
// the buffering model.
type Reassembler struct {
	src      SourceControl
	itemSize int
	min      int
	max      int
	ev       Events

	queue [][]byte // complete frames, oldest first
	tail  []byte   // partial frame, itemSize cap, nil when empty
	fill  int      // bytes present in tail

	ready      bool
	ended      bool // end-of-source or error seen
	done       bool // destroyed
	err        error
	selfPaused bool // we paused the source and still owe it a resume
}

// New builds a Reassembler bound to src. A nil src disables backpressure
// and teardown forwarding, which is useful for direct-driven tests. Initial
// readiness is evaluated immediately, so a zero MinBuffer fires Ready from
// inside New.
func New(src SourceControl, cfg Config, ev Events) (*Reassembler, error) {
	if cfg.ItemSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrItemSize, cfg.ItemSize)
	}
	if cfg.MinBuffer < 0 || cfg.MaxBuffer <= 0 || cfg.MaxBuffer < cfg.MinBuffer {
		return nil, fmt.Errorf("%w: min %d, max %d", ErrWatermarks, cfg.MinBuffer, cfg.MaxBuffer)
	}
	r := &Reassembler{
		src:      src,
		itemSize: cfg.ItemSize,
		min:      cfg.MinBuffer,
		max:      cfg.MaxBuffer,
		ev:       ev,
	}
	r.recompute()
	return r, nil
}

// Push processes one chunk: top up the tail, slice off complete frames,
// keep any remainder as the new tail. The chunk buffer is never retained.
// Pushes after end or destroy are dropped.
func (r *Reassembler) Push(chunk []byte) {
	if r.done || r.ended {
		return
	}

	if r.fill > 0 {
		n := copy(r.tail[r.fill:], chunk)
		r.fill += n
		chunk = chunk[n:]
		if r.fill == r.itemSize {
			r.queue = append(r.queue, r.tail)
			r.tail = nil
			r.fill = 0
		}
	}

	for len(chunk) >= r.itemSize {
		frame := make([]byte, r.itemSize)
		copy(frame, chunk)
		r.queue = append(r.queue, frame)
		chunk = chunk[r.itemSize:]
	}

	if len(chunk) > 0 {
		r.tail = make([]byte, r.itemSize)
		r.fill = copy(r.tail, chunk)
	}

	if len(r.queue) > r.max {
		r.pauseSource()
	} else {
		r.recompute()
	}
}

// Pop dequeues the oldest complete frame. The partial tail is never
// returned. After a pop drains below the high watermark, a source paused by
// this Reassembler is resumed.
func (r *Reassembler) Pop() ([]byte, bool) {
	if r.done || len(r.queue) == 0 {
		return nil, false
	}
	frame := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]

	if r.selfPaused && len(r.queue) < r.max {
		r.selfPaused = false
		if r.src != nil {
			r.src.Resume()
		}
	} else {
		r.recompute()
	}
	return frame, true
}

// End records end-of-source and forces readiness true, so a consumer
// waiting for the low watermark proceeds even on a short stream.
func (r *Reassembler) End() {
	if r.done || r.ended {
		return
	}
	r.ended = true
	r.recompute()
}

// Fail records a fatal source error. Like End it forces readiness; the
// error is retained for Err.
func (r *Reassembler) Fail(err error) {
	if r.done || r.ended {
		return
	}
	r.err = err
	r.ended = true
	r.recompute()
}

// Destroy tears the Reassembler down: buffered frames and the tail are
// discarded, the bound source is destroyed. No events fire. Idempotent;
// afterwards Push is dropped and Pop reports no frames.
func (r *Reassembler) Destroy() {
	if r.done {
		return
	}
	r.done = true
	r.ended = true
	r.ready = true
	r.queue = nil
	r.tail = nil
	r.fill = 0
	if r.src != nil {
		r.src.Destroy()
	}
}

// Remain reports the number of complete frames buffered. The partial tail
// is excluded.
func (r *Reassembler) Remain() int { return len(r.queue) }

// Ready reports whether enough frames are buffered for paced delivery, or
// the source has ended. Once the source ends, Ready stays true.
func (r *Reassembler) Ready() bool { return r.ready }

// Ended reports whether end-of-source or a source error has been seen.
// Frames may still be queued; see Drained.
func (r *Reassembler) Ended() bool { return r.ended }

// Drained reports whether the source has ended and every complete frame has
// been popped. A partial tail never holds a session open.
func (r *Reassembler) Drained() bool { return r.ended && len(r.queue) == 0 }

// Err returns the recorded source error, if any.
func (r *Reassembler) Err() error { return r.err }

// Tail returns a copy of the partially filled tail, or nil when the stream
// is frame-aligned. Useful for inspecting trailing bytes before teardown.
func (r *Reassembler) Tail() []byte {
	if r.fill == 0 {
		return nil
	}
	t := make([]byte, r.fill)
	copy(t, r.tail[:r.fill])
	return t
}

func (r *Reassembler) pauseSource() {
	if r.selfPaused {
		return
	}
	r.selfPaused = true
	if r.src != nil {
		r.src.Pause()
	}
}

func (r *Reassembler) recompute() {
	ready := r.ended || len(r.queue) >= r.min
	if ready == r.ready {
		return
	}
	r.ready = ready
	if ready {
		if r.ev.Ready != nil {
			r.ev.Ready()
		}
	} else if r.ev.AlmostDone != nil {
		r.ev.AlmostDone()
	}
}
