package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte(""),
		[]byte("CONNECT;alice\n"),
		bytes.Repeat([]byte("x"), 1<<20),
	}

	for _, payload := range cases {
		var buf bytes.Buffer
		require.NoError(t, EncodeFrame(&buf, payload))

		decoded, err := DecodeFrame(&buf)
		require.NoError(t, err)
		// The wire carries bytes only, so a nil payload and an empty one both
		// decode to the same zero-length slice; compare contents.
		assert.True(t, bytes.Equal(payload, decoded), "round trip mismatch: got %d bytes, want %d", len(decoded), len(payload))
	}
}

func TestDecodeFrameShortHeader(t *testing.T) {
	_, err := DecodeFrame(bytes.NewReader([]byte{0, 0}))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestDecodeFrameShortBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeFrame(&buf, []byte("hello")))

	truncated := buf.Bytes()[:len(buf.Bytes())-2]
	_, err := DecodeFrame(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestDecodeFrameTooLarge(t *testing.T) {
	var header [4]byte
	header[0] = 0xFF // declares a length far beyond MaxFrameSize
	_, err := DecodeFrame(bytes.NewReader(header[:]))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestEncodeFrameTooLarge(t *testing.T) {
	oversized := make([]byte, MaxFrameSize+1)
	err := EncodeFrame(io.Discard, oversized)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestEncodeFrameExactCap(t *testing.T) {
	exact := make([]byte, MaxFrameSize)
	var buf bytes.Buffer
	require.NoError(t, EncodeFrame(&buf, exact))

	decoded, err := DecodeFrame(&buf)
	require.NoError(t, err)
	assert.Len(t, decoded, MaxFrameSize)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestEncodeFrameWriteFailure(t *testing.T) {
	err := EncodeFrame(failingWriter{}, []byte("hi"))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}
