// Package media defines the frame geometry types that flow through the
// cadence delivery pipeline, from ingest through paced delivery to sinks.
//
// A feed is built around a Geometry: a fixed delivery rate in frames per
// second and a fixed frame size in bytes. Geometries are derived from the
// domain parameters of the media being carried (sample rate, bit depth and
// channel count for raw PCM audio; dimensions and frame rate for planar
// 4:2:0 video) and stay constant for the life of a session.
package media

import (
	"errors"
	"fmt"
	"time"
)

// AudioTickRate is the fixed delivery rate for audio feeds, in frames per
// second. Every audio frame spans 10ms, the granularity real-time audio
// sinks consume.
const AudioTickRate = 100

// Sentinel errors for geometry validation. Callers distinguish configuration
// failure modes with errors.Is; all of them are caller programming errors,
// detected before any session resources are built.
var (
	ErrSampleRate = errors.New("media: invalid sample rate")
	ErrBitDepth   = errors.New("media: invalid bits per sample")
	ErrChannels   = errors.New("media: invalid channel count")
	ErrDimensions = errors.New("media: invalid video dimensions")
	ErrFrameRate  = errors.New("media: invalid frame rate")
)

// Kind labels the two media families a feed can carry.
type Kind string

const (
	Audio Kind = "audio"
	Video Kind = "video"
)

// Geometry fixes the two numbers a delivery session is built around: how
// many frames leave per second and how many bytes each frame holds.
type Geometry struct {
	Rate     int // frames per second
	ItemSize int // bytes per frame
}

// Interval returns the clock period between consecutive frames.
func (g Geometry) Interval() time.Duration {
	return time.Second / time.Duration(g.Rate)
}

// BytesPerSecond returns the steady-state throughput of a feed with this
// geometry.
func (g Geometry) BytesPerSecond() int {
	return g.Rate * g.ItemSize
}

// Format derives a delivery geometry from media-domain parameters.
type Format interface {
	Kind() Kind
	Geometry() (Geometry, error)
}

// AudioFormat describes a raw interleaved PCM stream. Delivery always runs
// at AudioTickRate, so one frame holds SampleRate/100 samples per channel.
type AudioFormat struct {
	SampleRate    int
	BitsPerSample int
	ChannelCount  int
}

func (f AudioFormat) Kind() Kind { return Audio }

// Geometry validates the format and computes the frame geometry. The sample
// rate must divide evenly into AudioTickRate ticks so every frame carries a
// whole number of samples.
func (f AudioFormat) Geometry() (Geometry, error) {
	switch {
	case f.SampleRate <= 0:
		return Geometry{}, fmt.Errorf("%w: %d", ErrSampleRate, f.SampleRate)
	case f.SampleRate%AudioTickRate != 0:
		return Geometry{}, fmt.Errorf("%w: %d not divisible by %d ticks/s", ErrSampleRate, f.SampleRate, AudioTickRate)
	case f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0:
		return Geometry{}, fmt.Errorf("%w: %d", ErrBitDepth, f.BitsPerSample)
	case f.ChannelCount <= 0:
		return Geometry{}, fmt.Errorf("%w: %d", ErrChannels, f.ChannelCount)
	}
	bytesPerSample := f.BitsPerSample / 8
	samplesPerFrame := f.SampleRate / AudioTickRate
	return Geometry{
		Rate:     AudioTickRate,
		ItemSize: bytesPerSample * samplesPerFrame * f.ChannelCount,
	}, nil
}

// VideoFormat describes a raw planar 4:2:0 (I420) stream. Delivery runs at
// the configured frame rate; one frame is one complete picture.
type VideoFormat struct {
	Width     int
	Height    int
	FrameRate int
}

func (f VideoFormat) Kind() Kind { return Video }

func (f VideoFormat) Geometry() (Geometry, error) {
	switch {
	case f.Width <= 0 || f.Height <= 0:
		return Geometry{}, fmt.Errorf("%w: %dx%d", ErrDimensions, f.Width, f.Height)
	case f.FrameRate <= 0:
		return Geometry{}, fmt.Errorf("%w: %d", ErrFrameRate, f.FrameRate)
	}
	return Geometry{
		Rate:     f.FrameRate,
		ItemSize: I420Size(f.Width, f.Height),
	}, nil
}

// I420Size returns the byte size of one planar 4:2:0 picture: a full
// resolution luma plane plus two chroma planes at half resolution in each
// dimension, rounded up for odd sizes.
func I420Size(width, height int) int {
	luma := width * height
	chroma := ((width + 1) / 2) * ((height + 1) / 2)
	return luma + 2*chroma
}
