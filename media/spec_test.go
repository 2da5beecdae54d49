package media

import (
	"errors"
	"testing"
)

func TestParseSpec_Audio(t *testing.T) {
	f, err := ParseSpec("t=audio,sr=48000,bd=16,ch=2")
	if err != nil {
		t.Fatalf("ParseSpec() error: %v", err)
	}
	af, ok := f.(AudioFormat)
	if !ok {
		t.Fatalf("ParseSpec() returned %T, want AudioFormat", f)
	}
	want := AudioFormat{SampleRate: 48000, BitsPerSample: 16, ChannelCount: 2}
	if af != want {
		t.Errorf("ParseSpec() = %+v, want %+v", af, want)
	}
}

func TestParseSpec_Video(t *testing.T) {
	f, err := ParseSpec("t=video,fps=30,w=1280,h=720")
	if err != nil {
		t.Fatalf("ParseSpec() error: %v", err)
	}
	vf, ok := f.(VideoFormat)
	if !ok {
		t.Fatalf("ParseSpec() returned %T, want VideoFormat", f)
	}
	want := VideoFormat{Width: 1280, Height: 720, FrameRate: 30}
	if vf != want {
		t.Errorf("ParseSpec() = %+v, want %+v", vf, want)
	}
}

func TestParseSpec_Whitespace(t *testing.T) {
	f, err := ParseSpec(" t=audio, sr=8000, bd=8, ch=1 ")
	if err != nil {
		t.Fatalf("ParseSpec() error: %v", err)
	}
	if f.Kind() != Audio {
		t.Errorf("Kind() = %v, want audio", f.Kind())
	}
}

func TestParseSpec_Invalid(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{"empty", ""},
		{"missing type", "sr=48000,bd=16,ch=2"},
		{"unknown type", "t=timecode"},
		{"missing audio key", "t=audio,sr=48000,bd=16"},
		{"missing video key", "t=video,fps=30,w=1280"},
		{"audio with video keys", "t=audio,sr=48000,bd=16,ch=2,w=640"},
		{"non-numeric value", "t=video,fps=abc,w=1280,h=720"},
		{"bare key", "t=audio,sr,bd=16,ch=2"},
		{"duplicate key", "t=audio,sr=48000,sr=44100,bd=16,ch=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSpec(tt.spec); !errors.Is(err, ErrSpec) {
				t.Errorf("ParseSpec(%q) error = %v, want ErrSpec", tt.spec, err)
			}
		})
	}
}

func TestSpec_RoundTrip(t *testing.T) {
	formats := []Format{
		AudioFormat{SampleRate: 48000, BitsPerSample: 16, ChannelCount: 2},
		VideoFormat{Width: 640, Height: 480, FrameRate: 25},
	}
	for _, f := range formats {
		spec, err := Spec(f)
		if err != nil {
			t.Fatalf("Spec(%+v) error: %v", f, err)
		}
		back, err := ParseSpec(spec)
		if err != nil {
			t.Fatalf("ParseSpec(%q) error: %v", spec, err)
		}
		if back != f {
			t.Errorf("round trip of %+v via %q = %+v", f, spec, back)
		}
	}
}

type customFormat struct{}

func (customFormat) Kind() Kind                 { return Audio }
func (customFormat) Geometry() (Geometry, error) { return Geometry{Rate: 1, ItemSize: 1}, nil }

func TestSpec_CustomFormatRejected(t *testing.T) {
	if _, err := Spec(customFormat{}); !errors.Is(err, ErrSpec) {
		t.Errorf("Spec(custom) error = %v, want ErrSpec", err)
	}
}
