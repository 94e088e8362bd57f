// Package client implements the reference library for connecting to a
// wireline server: a symmetric frame codec, a sender/listener goroutine
// split, and an event stream the calling application drives a UI from.
package client

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wireline-chat/wireline/pkg/protocol"
)

// countingReader and countingWriter wrap the raw socket so Connection can
// report lifetime byte counts without the codec needing to know about them.
type countingReader struct {
	r       io.Reader
	counter *atomic.Uint64
}

func (cr countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.counter.Add(uint64(n))
	}
	return n, err
}

type countingWriter struct {
	w       io.Writer
	counter *atomic.Uint64
}

func (cw countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		cw.counter.Add(uint64(n))
	}
	return n, err
}

// ServerEventType classifies the events Connection delivers on its Events
// channel: every server reply and every asynchronous push is one of these.
type ServerEventType int

const (
	EventOK ServerEventType = iota
	EventError
	EventMessage
	EventUsers
	EventLog
	EventDisconnected
)

// ServerEvent is one decoded server frame (or the terminal closed signal)
// delivered to the application.
type ServerEvent struct {
	Type    ServerEventType
	Text    string   // OK/ERROR/LOG payload, or the close reason
	From    string   // MESSAGE sender
	Subject string   // MESSAGE subject
	Body    string   // MESSAGE body
	Sent    time.Time
	Users   []string // USERS roster
}

// Connection is a single TCP connection to a wireline server: a sender
// goroutine draining an outgoing queue and a listener goroutine decoding
// frames into ServerEvents, mirroring the server's own per-connection
// read/dispatch loop on the client side.
type Connection struct {
	addr string
	conn net.Conn

	outgoing chan []byte
	events   chan ServerEvent

	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64

	mu     sync.Mutex
	closed bool

	wg sync.WaitGroup
}

// Dial connects to host:port and starts the sender and listener goroutines.
func Dial(host string, port int) (*Connection, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}

	c := &Connection{
		addr:     addr,
		conn:     conn,
		outgoing: make(chan []byte, 64),
		events:   make(chan ServerEvent, 64),
	}
	c.wg.Add(2)
	go c.sendLoop()
	go c.listenLoop()
	return c, nil
}

// Events returns the channel of decoded server events. It is closed after
// an EventDisconnected event has been delivered.
func (c *Connection) Events() <-chan ServerEvent {
	return c.events
}

// Connect sends CONNECT;username. The reply arrives as an OK or ERROR
// ServerEvent on Events(), not as a return value, since delivery is
// asynchronous with respect to the write.
func (c *Connection) Connect(username string) error {
	return c.send(protocol.Build("CONNECT", username))
}

// Send issues SEND to,subject,body. to == "all" broadcasts.
func (c *Connection) Send(to, subject, body string) error {
	return c.send(protocol.Build("SEND", to, subject, body))
}

// Pong replies to a server PING.
func (c *Connection) Pong() error {
	return c.send(protocol.Build("PONG"))
}

// ListUsers requests the current roster.
func (c *Connection) ListUsers() error {
	return c.send(protocol.Build("LIST_USERS"))
}

// GetLog requests the server's recent log tail.
func (c *Connection) GetLog() error {
	return c.send(protocol.Build("GET_LOG"))
}

// Disconnect sends DISCONNECT and closes the connection.
func (c *Connection) Disconnect() error {
	_ = c.send(protocol.Build("DISCONNECT"))
	return c.Close()
}

func (c *Connection) send(payload []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client: connection closed")
	}
	c.mu.Unlock()

	select {
	case c.outgoing <- payload:
		return nil
	default:
		return fmt.Errorf("client: outgoing queue full")
	}
}

// Close shuts both goroutines down and closes the socket. Idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.outgoing)
	err := c.conn.Close()
	c.wg.Wait()
	return err
}

// BytesSent and BytesReceived report lifetime byte counts on the wire.
func (c *Connection) BytesSent() uint64     { return c.bytesSent.Load() }
func (c *Connection) BytesReceived() uint64 { return c.bytesReceived.Load() }

func (c *Connection) sendLoop() {
	defer c.wg.Done()
	for payload := range c.outgoing {
		if err := protocol.EncodeFrame(countingWriter{c.conn, &c.bytesSent}, payload); err != nil {
			return
		}
	}
}

func (c *Connection) listenLoop() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		payload, err := protocol.DecodeFrame(countingReader{c.conn, &c.bytesReceived})
		if err != nil {
			c.events <- ServerEvent{Type: EventDisconnected, Text: "connection closed"}
			return
		}

		if verb, _, err := protocol.Parse(payload); err == nil && strings.ToUpper(verb) == "PING" {
			_ = c.Pong()
			continue
		}

		event, ok := decodeEvent(payload)
		if ok {
			c.events <- event
		}
	}
}

// decodeEvent turns one decoded frame payload into a ServerEvent, reporting
// false for frames the client library doesn't surface to the application.
// PING is handled by listenLoop before it ever reaches here (it replies with
// PONG automatically); this case only guards callers that decode a PING
// payload directly.
func decodeEvent(payload []byte) (ServerEvent, bool) {
	verb, args, err := protocol.Parse(payload)
	if err != nil {
		return ServerEvent{}, false
	}

	switch strings.ToUpper(verb) {
	case "OK":
		return ServerEvent{Type: EventOK, Text: firstArg(args)}, true
	case "ERROR":
		return ServerEvent{Type: EventError, Text: firstArg(args)}, true
	case "MESSAGE":
		if len(args) < 4 {
			return ServerEvent{}, false
		}
		sec, _ := strconv.ParseInt(args[3], 10, 64)
		return ServerEvent{
			Type:    EventMessage,
			From:    args[0],
			Subject: args[1],
			Body:    args[2],
			Sent:    time.Unix(sec, 0),
		}, true
	case "USERS":
		var users []string
		if joined := firstArg(args); joined != "" {
			users = strings.Split(joined, ",")
		}
		return ServerEvent{Type: EventUsers, Users: users}, true
	case "LOG":
		return ServerEvent{Type: EventLog, Text: firstArg(args)}, true
	case "PING":
		return ServerEvent{}, false
	default:
		return ServerEvent{}, false
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
