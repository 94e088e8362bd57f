// Package protocol implements wireline's wire format: a length-prefixed
// framing layer, and the semicolon-delimited command grammar carried inside
// each frame's payload.
package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// MaxFrameSize is the hard cap on a single frame's payload, in bytes.
const MaxFrameSize = 10 * 1024 * 1024 // 10 MiB

var (
	// ErrFrameTooLarge is returned by DecodeFrame when the declared payload
	// length exceeds MaxFrameSize, and by EncodeFrame when asked to write a
	// payload larger than the cap.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size (10 MiB)")

	// ErrConnectionClosed is returned when a frame read or write is cut short
	// by a peer close or any I/O error on the underlying transport.
	ErrConnectionClosed = errors.New("protocol: connection closed")
)

// EncodeFrame writes payload to w as a single frame: a 4-byte big-endian
// length prefix followed by the payload bytes. The write is all-or-nothing
// from the caller's perspective: on any error the frame is considered not
// sent and the caller should treat the connection as closed.
//
// EncodeFrame never interprets payload; it may contain any bytes, including
// ones that would be invalid command-grammar text.
func EncodeFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)

	if _, err := w.Write(buf); err != nil {
		return ErrConnectionClosed
	}
	return nil
}

// DecodeFrame reads a single frame from r: a 4-byte big-endian length prefix
// followed by exactly that many payload bytes. It fails with
// ErrConnectionClosed on short read or peer close, and with ErrFrameTooLarge
// when the declared length exceeds MaxFrameSize.
func DecodeFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, ErrConnectionClosed
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, ErrConnectionClosed
		}
	}
	return payload, nil
}
