package server

import (
	"net"
	"sync"

	"github.com/wireline-chat/wireline/pkg/protocol"
)

// safeConn wraps a net.Conn with a write mutex so that the session's own
// writes (replies), the dispatcher's deliveries and the heartbeat's PINGs can
// never interleave their frame bytes on the wire. Reads need no synchronization:
// each connection has exactly one reader, the session's own loop.
type safeConn struct {
	conn net.Conn
	mu   sync.Mutex
}

func newSafeConn(conn net.Conn) *safeConn {
	return &safeConn{conn: conn}
}

// WriteFrame encodes and sends payload as a single frame, synchronized
// against concurrent writers.
func (sc *safeConn) WriteFrame(payload []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return protocol.EncodeFrame(sc.conn, payload)
}

// ReadFrame reads the next frame from the connection.
func (sc *safeConn) ReadFrame() ([]byte, error) {
	return protocol.DecodeFrame(sc.conn)
}

func (sc *safeConn) Close() error {
	return sc.conn.Close()
}

func (sc *safeConn) RemoteAddr() net.Addr {
	return sc.conn.RemoteAddr()
}
