package feed

import "github.com/zsiec/cadence/media"

// StatsRecorder receives delivery accounting from a Controller. Methods are
// called with the controller lock held and must not block. Session end
// reasons: "drained", "stopped", "error", "superseded".
type StatsRecorder interface {
	SessionStarted(kind media.Kind, geom media.Geometry)
	SessionEnded(reason string)
	ChunkIn(bytes int)
	FrameOut(bytes int)
	Underrun()
	Depth(frames int)
}

// NopStats discards all recordings. It is the default recorder.
type NopStats struct{}

func (NopStats) SessionStarted(media.Kind, media.Geometry) {}
func (NopStats) SessionEnded(string)                       {}
func (NopStats) ChunkIn(int)                               {}
func (NopStats) FrameOut(int)                              {}
func (NopStats) Underrun()                                 {}
func (NopStats) Depth(int)                                 {}
