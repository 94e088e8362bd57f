package server

import (
	"sync"

	"github.com/wireline-chat/wireline/pkg/protocol"
)

// fakeConn is an in-memory frameConn double: writes land in Sent, and reads
// are served from a channel the test feeds directly, so session and
// dispatcher logic can be exercised without a real socket.
type fakeConn struct {
	mu     sync.Mutex
	Sent   [][]byte
	reads  chan []byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan []byte, 16)}
}

func (f *fakeConn) WriteFrame(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return protocol.ErrConnectionClosed
	}
	cp := append([]byte(nil), payload...)
	f.Sent = append(f.Sent, cp)
	return nil
}

func (f *fakeConn) ReadFrame() ([]byte, error) {
	payload, ok := <-f.reads
	if !ok {
		return nil, protocol.ErrConnectionClosed
	}
	return payload, nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.reads)
	}
	return nil
}

func (f *fakeConn) lastSent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return nil
	}
	return f.Sent[len(f.Sent)-1]
}

func (f *fakeConn) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}
