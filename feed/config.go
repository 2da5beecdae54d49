package feed

import (
	"errors"
	"fmt"

	"github.com/zsiec/cadence/media"
	"github.com/zsiec/cadence/rebuffer"
)

var (
	ErrNoFormat = errors.New("feed: media format required")
	ErrNoSink   = errors.New("feed: sink required")
	ErrWindow   = errors.New("feed: invalid buffer window")
)

// Config describes one delivery session. Buffer and MaxBuffer are seconds
// of media: Buffer is the low-watermark target that must accumulate before
// the session reports ready, MaxBuffer the ceiling above which the source
// is paused. Both are converted to whole frames at the format's rate.
type Config struct {
	Format    media.Format
	Buffer    float64
	MaxBuffer float64
	Sink      Sink
}

// session validates the config and derives the session geometry and
// reassembler sizing. All failures here are caller programming errors
// caught before any session resources exist.
func (cfg Config) session() (media.Geometry, rebuffer.Config, error) {
	if cfg.Format == nil {
		return media.Geometry{}, rebuffer.Config{}, ErrNoFormat
	}
	if cfg.Sink == nil {
		return media.Geometry{}, rebuffer.Config{}, ErrNoSink
	}
	geom, err := cfg.Format.Geometry()
	if err != nil {
		return media.Geometry{}, rebuffer.Config{}, err
	}
	if cfg.Buffer < 0 || cfg.MaxBuffer <= 0 || cfg.MaxBuffer < cfg.Buffer {
		return media.Geometry{}, rebuffer.Config{}, fmt.Errorf("%w: buffer %gs, maxbuffer %gs", ErrWindow, cfg.Buffer, cfg.MaxBuffer)
	}

	rcfg := rebuffer.Config{
		ItemSize:  geom.ItemSize,
		MinBuffer: int(cfg.Buffer * float64(geom.Rate)),
		MaxBuffer: int(cfg.MaxBuffer * float64(geom.Rate)),
	}
	if rcfg.MaxBuffer < 1 {
		return media.Geometry{}, rebuffer.Config{}, fmt.Errorf("%w: maxbuffer %gs holds no complete frame at %d/s", ErrWindow, cfg.MaxBuffer, geom.Rate)
	}
	return geom, rcfg, nil
}
