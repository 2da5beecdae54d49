// Package webrtc bridges paced audio feeds into pion WebRTC tracks.
//
// A feed carrying G.711 bytes (μ-law or A-law, 8 kHz, 8-bit, mono) maps
// directly onto an RTP audio track: the payload is raw bytes, so each
// 10 ms frame popped by the paced clock becomes exactly one sample write,
// with no transcoding. Other audio formats have no raw RTP mapping and are
// rejected up front; video feeds are distributed as raw frames elsewhere.
package webrtc

import (
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/zsiec/cadence/media"
)

// ErrFormat reports an audio format that cannot ride an RTP track without
// transcoding.
var ErrFormat = errors.New("webrtc: format not representable as G.711")

// g711Rate is the only sample rate G.711 defines.
const g711Rate = 8000

// AudioTrack delivers a feed's frames into a webrtc.TrackLocalStaticSample.
// Attach it to a feed as the sink (directly or behind a fanout) and add
// Track to any number of peer connections.
type AudioTrack struct {
	track    *webrtc.TrackLocalStaticSample
	duration time.Duration
}

// NewAudioTrack builds a track for a G.711 feed. mimeType selects the
// companding law: webrtc.MimeTypePCMU or webrtc.MimeTypePCMA. The format
// must be 8 kHz, 8-bit, mono; anything else fails with ErrFormat.
func NewAudioTrack(id, streamID, mimeType string, format media.AudioFormat) (*AudioTrack, error) {
	if mimeType != webrtc.MimeTypePCMU && mimeType != webrtc.MimeTypePCMA {
		return nil, fmt.Errorf("%w: mime type %q", ErrFormat, mimeType)
	}
	if format.SampleRate != g711Rate || format.BitsPerSample != 8 || format.ChannelCount != 1 {
		return nil, fmt.Errorf("%w: %d Hz / %d-bit / %d ch", ErrFormat,
			format.SampleRate, format.BitsPerSample, format.ChannelCount)
	}
	geom, err := format.Geometry()
	if err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  mimeType,
		ClockRate: g711Rate,
		Channels:  1,
	}, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("webrtc: create track: %w", err)
	}
	return &AudioTrack{
		track:    track,
		duration: geom.Interval(),
	}, nil
}

// Track exposes the underlying pion track for PeerConnection.AddTrack.
func (a *AudioTrack) Track() *webrtc.TrackLocalStaticSample { return a.track }

// Deliver writes one frame as a media sample. Before the track is bound to
// a negotiated peer connection, pion silently discards samples, which is
// the behavior a live feed wants: frames delivered while nobody listens
// simply vanish.
func (a *AudioTrack) Deliver(frame []byte) error {
	return a.track.WriteSample(pionmedia.Sample{
		Data:     frame,
		Duration: a.duration,
	})
}
