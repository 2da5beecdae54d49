// Package sink provides frame consumers for paced delivery: a Writer that
// appends frames to any io.Writer, and a Fanout that copies one feed's
// frames to many attached sinks with per-sink queues.
//
// Every type here satisfies feed.Sink. Deliver runs inline on the feed's
// paced clock, so implementations keep the hot path short: Writer does one
// Write call, Fanout does one non-blocking channel send per target.
package sink

import (
	"io"
	"sync"
	"sync/atomic"
)

// Writer delivers frames to an io.Writer. Safe for use as a feed sink;
// writes are serialized. The frame slice is not retained.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	frames atomic.Int64
	bytes  atomic.Int64
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Deliver writes one frame. A short write is reported as an error by the
// underlying writer contract.
func (s *Writer) Deliver(frame []byte) error {
	s.mu.Lock()
	_, err := s.w.Write(frame)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.frames.Add(1)
	s.bytes.Add(int64(len(frame)))
	return nil
}

// Frames reports how many frames were written successfully.
func (s *Writer) Frames() int64 { return s.frames.Load() }

// Bytes reports how many bytes were written successfully.
func (s *Writer) Bytes() int64 { return s.bytes.Load() }
