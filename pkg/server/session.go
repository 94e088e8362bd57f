package server

import (
	"sync"
	"sync/atomic"
	"time"
)

// sessionState is the session's position in its lifecycle: accepted,
// authenticated, closed.
type sessionState int32

const (
	stateAccepted sessionState = iota
	stateAuthenticated
	stateClosed
)

// frameConn is the minimal transport a Session needs: something that can
// send and receive whole frames and be closed. safeConn implements it for
// plain TCP; wsConn implements it for the WebSocket gateway.
type frameConn interface {
	WriteFrame(payload []byte) error
	ReadFrame() ([]byte, error)
	Close() error
}

// Session holds per-connection state for one client, TCP or WebSocket. A
// session with a bound username appears exactly once in the Registry; an
// unauthenticated session never appears there at all.
type Session struct {
	ID   uint64
	conn frameConn

	state atomic.Int32 // sessionState

	mu             sync.RWMutex
	username       string // empty until CONNECT succeeds
	lastPong       time.Time
	waitingForPong bool

	remoteAddr string
}

func newSession(id uint64, conn frameConn, remoteAddr string) *Session {
	s := &Session{
		ID:         id,
		conn:       conn,
		remoteAddr: remoteAddr,
	}
	s.state.Store(int32(stateAccepted))
	return s
}

// Username returns the session's bound username, or "" if it hasn't
// authenticated yet.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// IsAuthenticated reports whether CONNECT has succeeded for this session.
func (s *Session) IsAuthenticated() bool {
	return sessionState(s.state.Load()) == stateAuthenticated
}

// bindUsername transitions the session from accepted to authenticated,
// recording its username and initializing last-pong to now so the
// heartbeat supervisor doesn't immediately consider it overdue.
func (s *Session) bindUsername(username string, now time.Time) {
	s.mu.Lock()
	s.username = username
	s.lastPong = now
	s.waitingForPong = false
	s.mu.Unlock()
	s.state.Store(int32(stateAuthenticated))
}

// markClosed transitions the session to closed. Idempotent.
func (s *Session) markClosed() {
	s.state.Store(int32(stateClosed))
}

// IsClosed reports whether the session has been torn down.
func (s *Session) IsClosed() bool {
	return sessionState(s.state.Load()) == stateClosed
}

// RecordPong updates last-pong to now and clears the waiting-for-pong flag.
func (s *Session) RecordPong(now time.Time) {
	s.mu.Lock()
	s.lastPong = now
	s.waitingForPong = false
	s.mu.Unlock()
}

// MarkWaitingForPong records that a PING was just sent to this session.
func (s *Session) MarkWaitingForPong() {
	s.mu.Lock()
	s.waitingForPong = true
	s.mu.Unlock()
}

// PongAge returns how long it has been since the last PONG (or since
// authentication, if no PONG has arrived yet), as of now.
func (s *Session) PongAge(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastPong)
}

// WriteFrame sends a framed payload to this session's connection.
func (s *Session) WriteFrame(payload []byte) error {
	return s.conn.WriteFrame(payload)
}

// ReadFrame reads the next frame from this session's connection.
func (s *Session) ReadFrame() ([]byte, error) {
	return s.conn.ReadFrame()
}

// Close closes the session's underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// RemoteAddr returns the session's remote address, captured at accept time.
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}
