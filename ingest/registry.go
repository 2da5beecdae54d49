// Package ingest is the rendezvous between byte receivers (SRT, QUIC, or
// anything else that can write) and the feed layer. A receiver publishes a
// key plus a media format and gets a writable Publication back; the
// registry builds a pausable source over an in-process pipe and hands it to
// the configured handler, which typically wires it into a feed controller.
// Backpressure propagates naturally: when the feed pauses its source, the
// pipe fills and the receiver's Write blocks.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/cadence/media"
	"github.com/zsiec/cadence/source"
)

// ErrDuplicateKey rejects a second publication under a key that is still
// live.
var ErrDuplicateKey = errors.New("ingest: key already publishing")

// Handler receives each new publication together with the source built over
// its byte stream. Invoked on its own goroutine; it owns the source's
// lifecycle from there.
type Handler func(pub *Publication, src *source.Reader)

// PublicationStats is a snapshot of one publication's receive counters.
type PublicationStats struct {
	Key           string `json:"key"`
	BytesReceived int64  `json:"bytesReceived"`
	WriteCount    int64  `json:"writeCount"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr,omitempty"`
}

// Publication is one live ingest stream. The receiving side calls Write for
// each payload it gets and finishes with Close (clean end) or Fail (error,
// forwarded to the feed's source). All three are safe from one receiving
// goroutine.
type Publication struct {
	Key       string
	Format    media.Format
	StartedAt time.Time

	pw *io.PipeWriter

	bytesReceived atomic.Int64
	writeCount    atomic.Int64
	remoteAddr    atomic.Value
}

// Write forwards one payload into the feed pipe, blocking while the feed's
// backpressure holds the source paused.
func (p *Publication) Write(b []byte) (int, error) {
	n, err := p.pw.Write(b)
	if n > 0 {
		p.bytesReceived.Add(int64(n))
		p.writeCount.Add(1)
	}
	return n, err
}

// Close signals a clean end of stream to the consuming source.
func (p *Publication) Close() error { return p.pw.Close() }

// Fail signals a receive failure. The consuming source surfaces err as its
// fatal source error.
func (p *Publication) Fail(err error) { p.pw.CloseWithError(err) }

// SetRemoteAddr records the publisher's address for diagnostics.
func (p *Publication) SetRemoteAddr(addr string) { p.remoteAddr.Store(addr) }

// Stats snapshots the receive counters.
func (p *Publication) Stats() PublicationStats {
	addr, _ := p.remoteAddr.Load().(string)
	return PublicationStats{
		Key:           p.Key,
		BytesReceived: p.bytesReceived.Load(),
		WriteCount:    p.writeCount.Load(),
		ConnectedAt:   p.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(p.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// Registry tracks live publications by key.
type Registry struct {
	log     *slog.Logger
	handler Handler

	mu   sync.RWMutex
	pubs map[string]*Publication
}

// NewRegistry builds a Registry dispatching new publications to handler. A
// nil logger falls back to slog.Default().
func NewRegistry(handler Handler, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:     log.With("component", "ingest"),
		handler: handler,
		pubs:    make(map[string]*Publication),
	}
}

// Publish registers a new publication. The returned Publication is the
// write side; the matching source goes to the handler on its own goroutine.
// A key still live from an earlier Publish is rejected with
// ErrDuplicateKey.
func (r *Registry) Publish(key string, format media.Format) (*Publication, error) {
	if key == "" {
		return nil, fmt.Errorf("ingest: empty key")
	}
	pr, pw := io.Pipe()
	pub := &Publication{
		Key:       key,
		Format:    format,
		StartedAt: time.Now(),
		pw:        pw,
	}

	r.mu.Lock()
	if _, exists := r.pubs[key]; exists {
		r.mu.Unlock()
		pw.Close()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}
	r.pubs[key] = pub
	r.mu.Unlock()

	r.log.Info("publication opened", "key", key, "kind", format.Kind())
	if r.handler != nil {
		go r.handler(pub, source.NewReader(pr))
	}
	return pub, nil
}

// Unpublish removes a publication, closing its pipe so the consuming
// source sees end of stream. Unknown keys are ignored.
func (r *Registry) Unpublish(key string) {
	r.mu.Lock()
	pub, ok := r.pubs[key]
	if ok {
		delete(r.pubs, key)
	}
	r.mu.Unlock()

	if ok {
		pub.pw.Close()
		stats := pub.Stats()
		r.log.Info("publication closed", "key", key,
			"bytes", stats.BytesReceived, "writes", stats.WriteCount,
			"uptime_ms", stats.UptimeMs)
	}
}

// Get returns the live publication for key.
func (r *Registry) Get(key string) (*Publication, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pubs[key]
	return p, ok
}

// List snapshots the stats of every live publication.
func (r *Registry) List() []PublicationStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PublicationStats, 0, len(r.pubs))
	for _, p := range r.pubs {
		out = append(out, p.Stats())
	}
	return out
}
