package main

import (
	"fmt"
	"math"

	"github.com/zsiec/cadence/media"
)

// generator produces the raw bytes of frame i for one format.
type generator interface {
	frame(i int) []byte
}

func newGenerator(format media.Format, freq float64) (generator, error) {
	switch f := format.(type) {
	case media.AudioFormat:
		return &sineGen{format: f, freq: freq}, nil
	case media.VideoFormat:
		return &barGen{format: f}, nil
	default:
		return nil, fmt.Errorf("no generator for format %T", format)
	}
}

// sineGen synthesizes a continuous sine tone. Phase carries across frames
// so tick boundaries are click-free.
type sineGen struct {
	format media.AudioFormat
	freq   float64
}

func (g *sineGen) frame(i int) []byte {
	samplesPerFrame := g.format.SampleRate / media.AudioTickRate
	bytesPerSample := g.format.BitsPerSample / 8
	buf := make([]byte, samplesPerFrame*bytesPerSample*g.format.ChannelCount)

	pos := 0
	for s := 0; s < samplesPerFrame; s++ {
		n := i*samplesPerFrame + s
		v := math.Sin(2 * math.Pi * g.freq * float64(n) / float64(g.format.SampleRate))
		for c := 0; c < g.format.ChannelCount; c++ {
			switch g.format.BitsPerSample {
			case 8:
				buf[pos] = byte(128 + v*127)
			case 16:
				u := int16(v * math.MaxInt16)
				buf[pos] = byte(u)
				buf[pos+1] = byte(u >> 8)
			case 32:
				u := int32(v * math.MaxInt32)
				buf[pos] = byte(u)
				buf[pos+1] = byte(u >> 8)
				buf[pos+2] = byte(u >> 16)
				buf[pos+3] = byte(u >> 24)
			}
			pos += bytesPerSample
		}
	}
	return buf
}

// barGen renders an I420 frame with a vertical white bar sweeping left to
// right, one pixel column per frame.
type barGen struct {
	format media.VideoFormat
}

func (g *barGen) frame(i int) []byte {
	w, h := g.format.Width, g.format.Height
	cw, ch := (w+1)/2, (h+1)/2
	buf := make([]byte, w*h+2*cw*ch)

	// Mid-gray luma, neutral chroma.
	for p := 0; p < w*h; p++ {
		buf[p] = 0x40
	}
	for p := w * h; p < len(buf); p++ {
		buf[p] = 0x80
	}

	bar := i % w
	for y := 0; y < h; y++ {
		buf[y*w+bar] = 0xEB
	}
	return buf
}
