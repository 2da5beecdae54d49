package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/cadence/media"
)

// dialTimeout bounds the SRT handshake when publishing to a remote
// listener.
const dialTimeout = 10 * time.Second

// payloadSize is the maximum SRT payload per send.
const payloadSize = 1316

// Caller publishes a local byte stream to a remote SRT listener in caller
// mode. It is the counterpart of Server, used by test-signal tools and by
// deployments that push feeds toward a central cadence instance.
type Caller struct {
	log *slog.Logger
}

// NewCaller builds a Caller. A nil logger falls back to slog.Default().
func NewCaller(log *slog.Logger) *Caller {
	if log == nil {
		log = slog.Default()
	}
	return &Caller{log: log.With("component", "srt-caller")}
}

// StreamID renders the streamid a cadence Server expects for key and
// format.
func StreamID(key string, format media.Format) (string, error) {
	spec, err := media.Spec(format)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%sr=%s,%s", streamIDPrefix, key, spec), nil
}

// Publish dials addr and streams r until EOF, ctx cancellation, or a send
// failure. It blocks for the duration of the stream; a clean EOF returns
// nil.
func (c *Caller) Publish(ctx context.Context, addr, key string, format media.Format, r io.Reader) error {
	streamID, err := StreamID(key, format)
	if err != nil {
		return err
	}

	cfg := srtgo.DefaultConfig()
	cfg.Latency = latencyNs
	cfg.StreamID = streamID

	conn, err := c.dial(ctx, addr, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.log.Info("publishing", "addr", addr, "key", key, "kind", format.Kind())

	var sent int64
	buf := make([]byte, payloadSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return fmt.Errorf("SRT send: %w", werr)
			}
			sent += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.log.Info("publish complete", "key", key, "bytes", sent)
				return nil
			}
			return fmt.Errorf("read source: %w", err)
		}
	}
}

// dial runs the blocking srtgo handshake on its own goroutine so it can be
// abandoned on timeout or ctx cancellation.
func (c *Caller) dial(ctx context.Context, addr string, cfg srtgo.Config) (*srtgo.Conn, error) {
	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(addr, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("SRT dial %s: %w", addr, res.err)
		}
		return res.conn, nil
	case <-timer.C:
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, fmt.Errorf("SRT dial %s timed out after %s", addr, dialTimeout)
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
