package stream

import (
	"sync/atomic"

	"github.com/zsiec/cadence/internal/metrics"
	"github.com/zsiec/cadence/media"
)

// FeedStats accumulates per-feed delivery counters. It implements
// feed.StatsRecorder, so a controller built with feed.OptStats(stats)
// reports into it directly; the same numbers are mirrored into Prometheus
// when a *metrics.Metrics is attached.
type FeedStats struct {
	key  string
	kind media.Kind
	m    *metrics.Metrics

	sessions   atomic.Int64
	chunksIn   atomic.Int64
	bytesIn    atomic.Int64
	framesOut  atomic.Int64
	bytesOut   atomic.Int64
	underruns  atomic.Int64
	depth      atomic.Int64
	lastReason atomic.Value // string
}

// FeedSnapshot is the JSON form of FeedStats served by the API.
type FeedSnapshot struct {
	Key            string `json:"key"`
	Kind           string `json:"kind"`
	Sessions       int64  `json:"sessions"`
	ChunksIn       int64  `json:"chunksIn"`
	BytesIn        int64  `json:"bytesIn"`
	FramesOut      int64  `json:"framesOut"`
	BytesOut       int64  `json:"bytesOut"`
	Underruns      int64  `json:"underruns"`
	BufferedFrames int64  `json:"bufferedFrames"`
	LastEndReason  string `json:"lastEndReason,omitempty"`
}

// NewFeedStats builds a recorder for one feed. m may be nil.
func NewFeedStats(key string, kind media.Kind, m *metrics.Metrics) *FeedStats {
	return &FeedStats{key: key, kind: kind, m: m}
}

// SessionStarted implements feed.StatsRecorder.
func (s *FeedStats) SessionStarted(kind media.Kind, _ media.Geometry) {
	s.sessions.Add(1)
	s.m.RecordFeedStart()
}

// SessionEnded implements feed.StatsRecorder.
func (s *FeedStats) SessionEnded(reason string) {
	s.lastReason.Store(reason)
	s.m.RecordFeedEnd(reason)
}

// ChunkIn implements feed.StatsRecorder.
func (s *FeedStats) ChunkIn(bytes int) {
	s.chunksIn.Add(1)
	s.bytesIn.Add(int64(bytes))
	s.m.RecordIngest(bytes)
}

// FrameOut implements feed.StatsRecorder.
func (s *FeedStats) FrameOut(bytes int) {
	s.framesOut.Add(1)
	s.bytesOut.Add(int64(bytes))
	s.m.RecordFrameOut(string(s.kind), bytes)
}

// Underrun implements feed.StatsRecorder.
func (s *FeedStats) Underrun() {
	s.underruns.Add(1)
	s.m.RecordUnderrun(string(s.kind))
}

// Depth implements feed.StatsRecorder.
func (s *FeedStats) Depth(frames int) {
	s.depth.Store(int64(frames))
	s.m.RecordDepth(string(s.kind), frames)
}

// Snapshot returns a point-in-time copy of the counters.
func (s *FeedStats) Snapshot() FeedSnapshot {
	reason, _ := s.lastReason.Load().(string)
	return FeedSnapshot{
		Key:            s.key,
		Kind:           string(s.kind),
		Sessions:       s.sessions.Load(),
		ChunksIn:       s.chunksIn.Load(),
		BytesIn:        s.bytesIn.Load(),
		FramesOut:      s.framesOut.Load(),
		BytesOut:       s.bytesOut.Load(),
		Underruns:      s.underruns.Load(),
		BufferedFrames: s.depth.Load(),
		LastEndReason:  reason,
	}
}
