package server

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/wireline-chat/wireline/pkg/protocol"
)

// upgrader accepts WebSocket connections from any origin — the gateway is
// meant for trusted reference clients running in a browser during
// development, not for exposing the service to arbitrary web pages.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn tunnels the same length-prefixed frame protocol used over TCP
// through a WebSocket connection: each WriteFrame call encodes one frame
// (length prefix plus payload) into a single binary WebSocket message, and
// ReadFrame decodes one binary message the same way. This keeps Handlers
// and Session entirely unaware of which transport a given session uses.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (w *wsConn) WriteFrame(payload []byte) error {
	var buf bytes.Buffer
	if err := protocol.EncodeFrame(&buf, payload); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes())
}

func (w *wsConn) ReadFrame() ([]byte, error) {
	msgType, data, err := w.conn.ReadMessage()
	if err != nil {
		return nil, protocol.ErrConnectionClosed
	}
	if msgType != websocket.BinaryMessage {
		return nil, fmt.Errorf("server: unexpected websocket message type %d", msgType)
	}
	return protocol.DecodeFrame(bytes.NewReader(data))
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

// HandleWebSocket upgrades an HTTP request to a WebSocket connection and
// runs it through the same session loop as a TCP connection — a browser
// client sees the identical CONNECT/SEND/MESSAGE grammar a TCP client does.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}

	if s.maxConnections > 0 && s.activeConns.Load() >= int64(s.maxConnections) {
		conn.Close()
		return
	}
	s.trackConnect()

	id := s.nextSessionID.Add(1)
	sess := newSession(id, newWSConn(conn), r.RemoteAddr)
	s.pool.Submit(func() { s.runSession(sess) })
}
