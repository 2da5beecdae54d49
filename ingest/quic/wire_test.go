package quic

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/cadence/media"
)

func TestHeader_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		format media.Format
	}{
		{"audio", "studio-a", media.AudioFormat{SampleRate: 48000, BitsPerSample: 16, ChannelCount: 2}},
		{"video", "cam/1", media.VideoFormat{Width: 640, Height: 360, FrameRate: 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := EncodeHeader(tt.key, tt.format)
			if err != nil {
				t.Fatalf("EncodeHeader() error: %v", err)
			}

			payload := []byte("frame bytes follow")
			r := bufio.NewReader(bytes.NewReader(append(wire, payload...)))

			key, format, err := DecodeHeader(r)
			if err != nil {
				t.Fatalf("DecodeHeader() error: %v", err)
			}
			if key != tt.key {
				t.Errorf("key = %q, want %q", key, tt.key)
			}
			if format != tt.format {
				t.Errorf("format = %+v, want %+v", format, tt.format)
			}

			// The reader must sit exactly at the first payload byte.
			rest := make([]byte, len(payload))
			if _, err := r.Read(rest); err != nil {
				t.Fatalf("read payload: %v", err)
			}
			if !bytes.Equal(rest, payload) {
				t.Errorf("payload after header = %q, want %q", rest, payload)
			}
		})
	}
}

func TestEncodeHeader_Invalid(t *testing.T) {
	audio := media.AudioFormat{SampleRate: 8000, BitsPerSample: 8, ChannelCount: 1}
	if _, err := EncodeHeader("", audio); !errors.Is(err, ErrHeader) {
		t.Errorf("empty key: error = %v, want ErrHeader", err)
	}
	if _, err := EncodeHeader(strings.Repeat("k", maxKeyLen+1), audio); !errors.Is(err, ErrHeader) {
		t.Errorf("oversized key: error = %v, want ErrHeader", err)
	}
	if _, err := EncodeHeader("key", nil); err == nil {
		t.Error("nil format: EncodeHeader succeeded")
	}
}

func TestDecodeHeader_Invalid(t *testing.T) {
	goodSpec := "t=audio,sr=8000,bd=8,ch=1"

	build := func(magic, version uint64, key, spec string) []byte {
		var buf []byte
		buf = quicvarint.Append(buf, magic)
		buf = quicvarint.Append(buf, version)
		buf = quicvarint.Append(buf, uint64(len(key)))
		buf = append(buf, key...)
		buf = quicvarint.Append(buf, uint64(len(spec)))
		buf = append(buf, spec...)
		return buf
	}

	tests := []struct {
		name string
		wire []byte
	}{
		{"empty", nil},
		{"bad magic", build(0xBEEF, headerVersion, "k", goodSpec)},
		{"future version", build(headerMagic, headerVersion+1, "k", goodSpec)},
		{"empty key", build(headerMagic, headerVersion, "", goodSpec)},
		{"bad spec", build(headerMagic, headerVersion, "k", "t=smellovision")},
		{"truncated key", build(headerMagic, headerVersion, "k", goodSpec)[:4]},
		{"oversized key claim", func() []byte {
			var buf []byte
			buf = quicvarint.Append(buf, headerMagic)
			buf = quicvarint.Append(buf, headerVersion)
			buf = quicvarint.Append(buf, maxKeyLen+1)
			return buf
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(bytes.NewReader(tt.wire))
			if _, _, err := DecodeHeader(r); !errors.Is(err, ErrHeader) {
				t.Errorf("DecodeHeader() error = %v, want ErrHeader", err)
			}
		})
	}
}
