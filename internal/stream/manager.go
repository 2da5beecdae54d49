// Package stream tracks the lifecycle of active feeds: one Feed per ingest
// key, bundling the paced controller, its fanout, and its counters so the
// API and the ingest layer share a single view.
package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/cadence/feed"
	"github.com/zsiec/cadence/media"
	"github.com/zsiec/cadence/sink"
	sinkwebrtc "github.com/zsiec/cadence/sink/webrtc"
)

// ErrDuplicateKey rejects a second feed under a live key.
var ErrDuplicateKey = errors.New("stream: feed already exists")

// Feed bundles the resources of one live feed. Track is non-nil only for
// feeds whose format can ride a WebRTC audio track.
type Feed struct {
	Key        string
	Kind       media.Kind
	StartedAt  time.Time
	Controller *feed.Controller
	Fanout     *sink.Fanout
	Stats      *FeedStats
	Track      *sinkwebrtc.AudioTrack
}

// FeedOpt customizes a feed at creation time.
type FeedOpt func(*Feed)

// WithTrack attaches the feed's WebRTC audio track.
func WithTrack(track *sinkwebrtc.AudioTrack) FeedOpt {
	return func(f *Feed) { f.Track = track }
}

// Manager is the keyed registry of active feeds.
type Manager struct {
	log   *slog.Logger
	mu    sync.RWMutex
	feeds map[string]*Feed
}

// NewManager creates a Manager. A nil logger falls back to slog.Default().
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:   log.With("component", "stream-manager"),
		feeds: make(map[string]*Feed),
	}
}

// Create registers a new feed. The manager takes ownership of the
// controller and fanout: Remove stops and closes them.
func (m *Manager) Create(key string, kind media.Kind, ctrl *feed.Controller, fan *sink.Fanout, stats *FeedStats, opts ...FeedOpt) (*Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.feeds[key]; ok {
		m.log.Warn("feed already exists, rejecting duplicate", "key", key)
		return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}

	f := &Feed{
		Key:        key,
		Kind:       kind,
		StartedAt:  time.Now(),
		Controller: ctrl,
		Fanout:     fan,
		Stats:      stats,
	}
	for _, opt := range opts {
		opt(f)
	}
	m.feeds[key] = f
	m.log.Info("feed created", "key", key, "kind", kind)
	return f, nil
}

// Get returns the feed for key.
func (m *Manager) Get(key string) (*Feed, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.feeds[key]
	return f, ok
}

// Remove tears a feed down: the controller stops (discarding buffered
// frames), the fanout closes, and the key becomes reusable. Reports
// whether a feed existed.
func (m *Manager) Remove(key string) bool {
	m.mu.Lock()
	f, ok := m.feeds[key]
	if ok {
		delete(m.feeds, key)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	if f.Controller != nil {
		f.Controller.Stop()
	}
	if f.Fanout != nil {
		f.Fanout.Close()
	}
	m.log.Info("feed removed", "key", key, "uptime", time.Since(f.StartedAt).Round(time.Millisecond))
	return true
}

// List returns all active feeds.
func (m *Manager) List() []*Feed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	feeds := make([]*Feed, 0, len(m.feeds))
	for _, f := range m.feeds {
		feeds = append(feeds, f)
	}
	return feeds
}

// Snapshots returns the stats snapshot of every active feed.
func (m *Manager) Snapshots() []FeedSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]FeedSnapshot, 0, len(m.feeds))
	for _, f := range m.feeds {
		if f.Stats != nil {
			out = append(out, f.Stats.Snapshot())
		}
	}
	return out
}
