// Package quic ingests raw media streams over a bare QUIC connection. A
// publisher opens one unidirectional byte stream: a small varint-framed
// header names the feed key and frame geometry, and everything after it is
// payload until the stream FIN.
package quic

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/cadence/media"
)

// Wire header, all fields varint-framed:
//
//	[magic] [version] [key length] [key bytes] [spec length] [spec bytes]
//
// The spec string uses the media.ParseSpec syntax.
const (
	headerMagic   uint64 = 0xCADE
	headerVersion uint64 = 1
)

// Field limits keep a malicious header from forcing large allocations.
const (
	maxKeyLen  = 256
	maxSpecLen = 256
)

// ErrHeader reports a malformed or unsupported ingest header.
var ErrHeader = errors.New("quic: invalid ingest header")

// EncodeHeader renders the ingest header for key and format.
func EncodeHeader(key string, format media.Format) ([]byte, error) {
	if key == "" || len(key) > maxKeyLen {
		return nil, fmt.Errorf("%w: key length %d", ErrHeader, len(key))
	}
	spec, err := media.Spec(format)
	if err != nil {
		return nil, err
	}

	var buf []byte
	buf = quicvarint.Append(buf, headerMagic)
	buf = quicvarint.Append(buf, headerVersion)
	buf = quicvarint.Append(buf, uint64(len(key)))
	buf = append(buf, key...)
	buf = quicvarint.Append(buf, uint64(len(spec)))
	buf = append(buf, spec...)
	return buf, nil
}

// DecodeHeader reads and validates an ingest header from the front of a
// stream. On success the reader is positioned at the first payload byte.
func DecodeHeader(r *bufio.Reader) (string, media.Format, error) {
	magic, err := quicvarint.Read(r)
	if err != nil {
		return "", nil, fmt.Errorf("%w: read magic: %w", ErrHeader, err)
	}
	if magic != headerMagic {
		return "", nil, fmt.Errorf("%w: bad magic %#x", ErrHeader, magic)
	}
	version, err := quicvarint.Read(r)
	if err != nil {
		return "", nil, fmt.Errorf("%w: read version: %w", ErrHeader, err)
	}
	if version != headerVersion {
		return "", nil, fmt.Errorf("%w: unsupported version %d", ErrHeader, version)
	}

	key, err := readString(r, maxKeyLen, "key")
	if err != nil {
		return "", nil, err
	}
	if key == "" {
		return "", nil, fmt.Errorf("%w: empty key", ErrHeader)
	}
	spec, err := readString(r, maxSpecLen, "spec")
	if err != nil {
		return "", nil, err
	}
	format, err := media.ParseSpec(spec)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrHeader, err)
	}
	return key, format, nil
}

func readString(r *bufio.Reader, maxLen uint64, field string) (string, error) {
	n, err := quicvarint.Read(r)
	if err != nil {
		return "", fmt.Errorf("%w: read %s length: %w", ErrHeader, field, err)
	}
	if n > maxLen {
		return "", fmt.Errorf("%w: %s length %d exceeds %d", ErrHeader, field, n, maxLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrHeader, field, err)
	}
	return string(buf), nil
}
