package quic

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/cadence/certs"
	"github.com/zsiec/cadence/ingest"
)

// ALPN is the application protocol publishers must negotiate.
const ALPN = "cadence-raw/1"

// Application error codes sent with CloseWithError when a publication is
// refused.
const (
	errCodeBadHeader quic.ApplicationErrorCode = 1
	errCodeDuplicate quic.ApplicationErrorCode = 2
	errCodeInternal  quic.ApplicationErrorCode = 3
)

// headerTimeout bounds how long a fresh connection may sit without sending
// its ingest header.
const headerTimeout = 10 * time.Second

// Server accepts QUIC publish connections, one publication per connection.
type Server struct {
	log      *slog.Logger
	addr     string
	cert     *certs.CertInfo
	registry *ingest.Registry
}

// NewServer builds a Server listening on addr with the given certificate.
// A nil logger falls back to slog.Default().
func NewServer(addr string, cert *certs.CertInfo, registry *ingest.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:      log.With("component", "quic-server"),
		addr:     addr,
		cert:     cert,
		registry: registry,
	}
}

// Start accepts publish connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{s.cert.TLSCert},
		NextProtos:   []string{ALPN},
	}
	l, err := quic.ListenAddr(s.addr, tlsConf, &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("QUIC listen on %s: %w", s.addr, err)
	}
	defer l.Close()
	s.log.Info("listening", "addr", s.addr, "alpn", ALPN)

	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("QUIC accept: %w", err)
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn quic.Connection) {
	headerCtx, cancel := context.WithTimeout(ctx, headerTimeout)
	stream, err := conn.AcceptStream(headerCtx)
	cancel()
	if err != nil {
		s.log.Debug("no publish stream", "remote", conn.RemoteAddr(), "error", err)
		conn.CloseWithError(errCodeBadHeader, "no publish stream")
		return
	}

	br := bufio.NewReader(stream)
	key, format, err := DecodeHeader(br)
	if err != nil {
		s.log.Warn("bad ingest header", "remote", conn.RemoteAddr(), "error", err)
		conn.CloseWithError(errCodeBadHeader, "bad ingest header")
		return
	}

	pub, err := s.registry.Publish(key, format)
	if err != nil {
		code := errCodeInternal
		if errors.Is(err, ingest.ErrDuplicateKey) {
			code = errCodeDuplicate
		}
		s.log.Warn("publish rejected", "key", key, "error", err)
		conn.CloseWithError(code, err.Error())
		return
	}
	pub.SetRemoteAddr(conn.RemoteAddr().String())
	defer s.registry.Unpublish(key)
	s.log.Info("publish", "key", key, "kind", format.Kind(), "remote", conn.RemoteAddr())

	// Cancelling the context tears the connection down, which unblocks the
	// read loop below.
	go func() {
		<-ctx.Done()
		conn.CloseWithError(0, "shutting down")
	}()

	buf := make([]byte, 32*1024)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			if _, werr := pub.Write(buf[:n]); werr != nil {
				s.log.Debug("publication write error", "key", key, "error", werr)
				conn.CloseWithError(errCodeInternal, "feed closed")
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Stream FIN: clean end of publication.
				conn.CloseWithError(0, "")
				return
			}
			if ctx.Err() == nil {
				s.log.Debug("stream read error", "key", key, "error", err)
				pub.Fail(fmt.Errorf("quic: receive: %w", err))
			}
			return
		}
	}
}
