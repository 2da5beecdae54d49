package source

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestReader_DeliversAllBytesInOrder(t *testing.T) {
	data := make([]byte, 10*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})

	src := NewReader(bytes.NewReader(data), ReaderOptChunkSize(700))
	err := src.Start(Events{
		Data: func(b []byte) {
			mu.Lock()
			got = append(got, b...)
			mu.Unlock()
		},
		End: func() { close(done) },
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for end of stream")
	}

	mu.Lock()
	defer mu.Unlock()
	if !bytes.Equal(got, data) {
		t.Errorf("received %d bytes, want %d byte round-trip", len(got), len(data))
	}
}

func TestReader_StartTwice(t *testing.T) {
	src := NewReader(bytes.NewReader(nil))
	if err := src.Start(Events{}); err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	if err := src.Start(Events{}); !errors.Is(err, ErrStarted) {
		t.Errorf("second Start() error = %v, want %v", err, ErrStarted)
	}
}

func TestReader_PauseGatesDelivery(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	chunks := make(chan []byte, 16)
	var src *Reader
	src = NewReader(pr)
	defer func() { src.Destroy() }()
	err := src.Start(Events{
		Data: func(b []byte) {
			src.Pause()
			chunks <- append([]byte(nil), b...)
		},
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	go pw.Write([]byte("first"))
	select {
	case b := <-chunks:
		if string(b) != "first" {
			t.Fatalf("chunk = %q, want %q", b, "first")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first chunk")
	}
	if !src.Paused() {
		t.Fatal("source should report paused")
	}

	// The loop parked at the gate before issuing another read, so this
	// write must not be delivered until Resume.
	wrote := make(chan struct{})
	go func() {
		pw.Write([]byte("second"))
		close(wrote)
	}()
	select {
	case b := <-chunks:
		t.Fatalf("chunk %q delivered while paused", b)
	case <-time.After(100 * time.Millisecond):
	}

	src.Resume()
	select {
	case b := <-chunks:
		if string(b) != "second" {
			t.Errorf("chunk = %q, want %q", b, "second")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk after resume")
	}
	<-wrote
}

func TestReader_ErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	src := NewReader(io.MultiReader(bytes.NewReader([]byte("abc")), &failReader{err: boom}))

	var got []byte
	errCh := make(chan error, 1)
	err := src.Start(Events{
		Data: func(b []byte) { got = append(got, b...) },
		Err:  func(err error) { errCh <- err },
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, boom) {
			t.Errorf("error = %v, want %v", err, boom)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for source error")
	}
	if string(got) != "abc" {
		t.Errorf("bytes before error = %q, want %q", got, "abc")
	}
}

func TestReader_DestroySilencesEvents(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	events := make(chan string, 16)
	src := NewReader(pr)
	err := src.Start(Events{
		Data: func([]byte) { events <- "data" },
		End:  func() { events <- "end" },
		Err:  func(error) { events <- "err" },
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	src.Destroy()
	src.Destroy() // idempotent

	select {
	case ev := <-events:
		t.Errorf("event %q after Destroy", ev)
	case <-time.After(100 * time.Millisecond):
	}

	if err := src.Start(Events{}); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Start() after Destroy error = %v, want %v", err, ErrDestroyed)
	}
}

type failReader struct{ err error }

func (r *failReader) Read([]byte) (int, error) { return 0, r.err }
