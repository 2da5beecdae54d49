package media

import (
	"errors"
	"testing"
	"time"
)

func TestAudioFormat_Geometry(t *testing.T) {
	tests := []struct {
		name     string
		format   AudioFormat
		itemSize int
	}{
		{"cd stereo", AudioFormat{SampleRate: 44100, BitsPerSample: 16, ChannelCount: 2}, 1764},
		{"studio stereo", AudioFormat{SampleRate: 48000, BitsPerSample: 16, ChannelCount: 2}, 1920},
		{"narrowband mono", AudioFormat{SampleRate: 8000, BitsPerSample: 8, ChannelCount: 1}, 80},
		{"wideband mono", AudioFormat{SampleRate: 16000, BitsPerSample: 16, ChannelCount: 1}, 320},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := tt.format.Geometry()
			if err != nil {
				t.Fatalf("Geometry() error: %v", err)
			}
			if g.Rate != AudioTickRate {
				t.Errorf("rate = %d, want %d", g.Rate, AudioTickRate)
			}
			if g.ItemSize != tt.itemSize {
				t.Errorf("itemsize = %d, want %d", g.ItemSize, tt.itemSize)
			}
		})
	}
}

func TestAudioFormat_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		format AudioFormat
		want   error
	}{
		{"zero sample rate", AudioFormat{BitsPerSample: 16, ChannelCount: 2}, ErrSampleRate},
		{"negative sample rate", AudioFormat{SampleRate: -8000, BitsPerSample: 16, ChannelCount: 1}, ErrSampleRate},
		{"indivisible sample rate", AudioFormat{SampleRate: 22050, BitsPerSample: 16, ChannelCount: 1}, ErrSampleRate},
		{"zero bit depth", AudioFormat{SampleRate: 48000, ChannelCount: 2}, ErrBitDepth},
		{"non-byte bit depth", AudioFormat{SampleRate: 48000, BitsPerSample: 12, ChannelCount: 2}, ErrBitDepth},
		{"zero channels", AudioFormat{SampleRate: 48000, BitsPerSample: 16}, ErrChannels},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.format.Geometry(); !errors.Is(err, tt.want) {
				t.Errorf("Geometry() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVideoFormat_Geometry(t *testing.T) {
	tests := []struct {
		name     string
		format   VideoFormat
		itemSize int
	}{
		{"sd", VideoFormat{Width: 640, Height: 480, FrameRate: 30}, 460800},
		{"hd", VideoFormat{Width: 1280, Height: 720, FrameRate: 30}, 1382400},
		{"odd dimensions", VideoFormat{Width: 9, Height: 5, FrameRate: 10}, 75},
		{"single column", VideoFormat{Width: 1, Height: 3, FrameRate: 1}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := tt.format.Geometry()
			if err != nil {
				t.Fatalf("Geometry() error: %v", err)
			}
			if g.Rate != tt.format.FrameRate {
				t.Errorf("rate = %d, want %d", g.Rate, tt.format.FrameRate)
			}
			if g.ItemSize != tt.itemSize {
				t.Errorf("itemsize = %d, want %d", g.ItemSize, tt.itemSize)
			}
		})
	}
}

func TestVideoFormat_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		format VideoFormat
		want   error
	}{
		{"zero width", VideoFormat{Height: 480, FrameRate: 30}, ErrDimensions},
		{"negative height", VideoFormat{Width: 640, Height: -1, FrameRate: 30}, ErrDimensions},
		{"zero frame rate", VideoFormat{Width: 640, Height: 480}, ErrFrameRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.format.Geometry(); !errors.Is(err, tt.want) {
				t.Errorf("Geometry() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGeometry_Interval(t *testing.T) {
	tests := []struct {
		rate int
		want time.Duration
	}{
		{100, 10 * time.Millisecond},
		{30, 33333333 * time.Nanosecond},
		{25, 40 * time.Millisecond},
	}
	for _, tt := range tests {
		g := Geometry{Rate: tt.rate, ItemSize: 1}
		if got := g.Interval(); got != tt.want {
			t.Errorf("Interval() at %d/s = %v, want %v", tt.rate, got, tt.want)
		}
	}
}
