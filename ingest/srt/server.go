// Package srt ingests raw media streams over SRT. Publishers encode the
// feed key and frame geometry in the SRT streamid; payload bytes flow
// straight into the ingest registry with no container parsing.
package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/cadence/ingest"
	"github.com/zsiec/cadence/media"
)

// readBufferSize is the SRT socket read buffer. SRT delivers payloads of at
// most 1316 bytes; one read can drain several.
const readBufferSize = 1316 * 10

// latencyNs is the SRT latency setting in nanoseconds (120ms).
const latencyNs = 120_000_000

// Streamid syntax follows the SRT access control convention:
//
//	#!::r=<key>,t=audio,sr=48000,bd=16,ch=2
//	#!::r=<key>,t=video,fps=30,w=1280,h=720
//	<key>
//
// The bare form uses the server's default format. A missing key or a
// malformed format spec rejects the handshake.
const streamIDPrefix = "#!::"

// Server accepts SRT publish connections and turns each into a registry
// publication.
type Server struct {
	log        *slog.Logger
	addr       string
	registry   *ingest.Registry
	defaultFmt media.Format
}

// NewServer builds a Server listening on addr. defaultFmt is applied to
// bare-key streamids; nil means geometry is mandatory in the streamid. A
// nil logger falls back to slog.Default().
func NewServer(addr string, registry *ingest.Registry, defaultFmt media.Format, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:        log.With("component", "srt-server"),
		addr:       addr,
		registry:   registry,
		defaultFmt: defaultFmt,
	}
}

// Start accepts publish connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = latencyNs

	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return fmt.Errorf("SRT listen on %s: %w", s.addr, err)
	}
	s.log.Info("listening", "addr", s.addr)

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if _, _, err := parseStreamID(req.StreamID, s.defaultFmt); err != nil {
			s.log.Warn("rejecting handshake", "streamid", req.StreamID, "error", err)
			return srtgo.RejPeer
		}
		return 0
	})

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		key, format, err := parseStreamID(conn.StreamID(), s.defaultFmt)
		if err != nil {
			// The accept hook vetted the streamid; a failure here means it
			// changed between handshake and accept.
			s.log.Warn("dropping connection", "streamid", conn.StreamID(), "error", err)
			conn.Close()
			continue
		}
		s.log.Info("publish", "key", key, "kind", format.Kind(), "remote", conn.RemoteAddr())

		go s.handleConnection(ctx, conn, key, format)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn *srtgo.Conn, key string, format media.Format) {
	defer conn.Close()

	pub, err := s.registry.Publish(key, format)
	if err != nil {
		s.log.Warn("publish rejected", "key", key, "error", err)
		return
	}
	pub.SetRemoteAddr(conn.RemoteAddr().String())
	defer s.registry.Unpublish(key)

	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.log.Debug("read error", "key", key, "error", err)
				pub.Fail(fmt.Errorf("srt: receive: %w", err))
				return
			}
			return
		}
		if _, err := pub.Write(buf[:n]); err != nil {
			s.log.Debug("publication write error", "key", key, "error", err)
			return
		}
	}
}

// parseStreamID extracts the feed key and media format from an SRT
// streamid. See the streamIDPrefix comment for the accepted forms.
func parseStreamID(streamID string, def media.Format) (string, media.Format, error) {
	if !strings.HasPrefix(streamID, streamIDPrefix) {
		key := strings.TrimPrefix(streamID, "/")
		if key == "" {
			return "", nil, fmt.Errorf("srt: empty streamid")
		}
		if strings.ContainsAny(key, ",=") {
			return "", nil, fmt.Errorf("srt: streamid %q missing %q prefix", streamID, streamIDPrefix)
		}
		if def == nil {
			return "", nil, fmt.Errorf("srt: streamid %q carries no geometry and no default format is set", streamID)
		}
		return key, def, nil
	}

	body := strings.TrimPrefix(streamID, streamIDPrefix)
	var key string
	var specParts []string
	for _, part := range strings.Split(body, ",") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(part), "r="); ok {
			key = v
			continue
		}
		specParts = append(specParts, part)
	}
	if key == "" {
		return "", nil, fmt.Errorf("srt: streamid %q has no r=<key>", streamID)
	}
	if len(specParts) == 0 {
		if def == nil {
			return "", nil, fmt.Errorf("srt: streamid %q carries no geometry and no default format is set", streamID)
		}
		return key, def, nil
	}
	format, err := media.ParseSpec(strings.Join(specParts, ","))
	if err != nil {
		return "", nil, fmt.Errorf("srt: streamid %q: %w", streamID, err)
	}
	return key, format, nil
}
