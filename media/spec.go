package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSpec reports a malformed format spec string.
var ErrSpec = errors.New("media: invalid format spec")

// ParseSpec parses the textual format description used wherever a media
// format travels as a string: SRT streamids, the QUIC ingest header, and
// command-line flags. The syntax is a comma-separated key=value list:
//
//	t=audio,sr=48000,bd=16,ch=2
//	t=video,fps=30,w=1280,h=720
//
// Keys: t (audio|video), sr sample rate, bd bits per sample, ch channels,
// fps frame rate, w width, h height. Unknown keys are rejected. The
// returned format is validated only for shape; geometry validation happens
// when the format is used.
func ParseSpec(spec string) (Format, error) {
	fields := map[string]string{}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok || v == "" {
			return nil, fmt.Errorf("%w: %q", ErrSpec, part)
		}
		if _, dup := fields[k]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrSpec, k)
		}
		fields[k] = v
	}

	switch fields["t"] {
	case "audio":
		f := AudioFormat{}
		var err error
		if f.SampleRate, err = specInt(fields, "sr"); err != nil {
			return nil, err
		}
		if f.BitsPerSample, err = specInt(fields, "bd"); err != nil {
			return nil, err
		}
		if f.ChannelCount, err = specInt(fields, "ch"); err != nil {
			return nil, err
		}
		if err := rejectUnknown(fields, "t", "sr", "bd", "ch"); err != nil {
			return nil, err
		}
		return f, nil
	case "video":
		f := VideoFormat{}
		var err error
		if f.FrameRate, err = specInt(fields, "fps"); err != nil {
			return nil, err
		}
		if f.Width, err = specInt(fields, "w"); err != nil {
			return nil, err
		}
		if f.Height, err = specInt(fields, "h"); err != nil {
			return nil, err
		}
		if err := rejectUnknown(fields, "t", "fps", "w", "h"); err != nil {
			return nil, err
		}
		return f, nil
	case "":
		return nil, fmt.Errorf("%w: missing t=audio|video", ErrSpec)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrSpec, fields["t"])
	}
}

// Spec renders a format back into the textual form ParseSpec accepts.
// Formats outside the two built-in types are rejected; custom Format
// implementations do not travel as strings.
func Spec(f Format) (string, error) {
	switch f := f.(type) {
	case AudioFormat:
		return fmt.Sprintf("t=audio,sr=%d,bd=%d,ch=%d", f.SampleRate, f.BitsPerSample, f.ChannelCount), nil
	case VideoFormat:
		return fmt.Sprintf("t=video,fps=%d,w=%d,h=%d", f.FrameRate, f.Width, f.Height), nil
	default:
		return "", fmt.Errorf("%w: unsupported format %T", ErrSpec, f)
	}
}

func specInt(fields map[string]string, key string) (int, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing key %q", ErrSpec, key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: key %q: %q is not a number", ErrSpec, key, v)
	}
	return n, nil
}

func rejectUnknown(fields map[string]string, known ...string) error {
	for k := range fields {
		found := false
		for _, ok := range known {
			if k == ok {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unknown key %q", ErrSpec, k)
		}
	}
	return nil
}
