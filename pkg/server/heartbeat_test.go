package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireline-chat/wireline/pkg/protocol"
)

func TestBroadcastPingSendsFramedPingToEverySession(t *testing.T) {
	reg, _ := newTestRegistry(t)
	conn := newFakeConn()
	sess := newSession(1, conn, "127.0.0.1:1")
	require.Equal(t, ClaimOK, reg.TryClaim("alice", sess))

	hb := NewHeartbeat(reg, DefaultRuntimeConfig(), nil, func(string, *Session) {})
	hb.broadcastPing()

	require.Equal(t, 1, conn.sentCount())
	verb, _, err := protocol.Parse(conn.lastSent())
	require.NoError(t, err)
	assert.Equal(t, "PING", verb)

	sess.mu.RLock()
	waiting := sess.waitingForPong
	sess.mu.RUnlock()
	assert.True(t, waiting)
}

func TestSweepTimeoutsEvictsOverdueSessions(t *testing.T) {
	reg, _ := newTestRegistry(t)
	conn := newFakeConn()
	sess := newSession(1, conn, "127.0.0.1:1")
	require.Equal(t, ClaimOK, reg.TryClaim("dave", sess))
	sess.bindUsername("dave", time.Now().Add(-2*time.Hour))

	cfg := DefaultRuntimeConfig()
	require.NoError(t, cfg.Set(KeyHeartbeatTimeoutS, "10"))

	var evicted string
	hb := NewHeartbeat(reg, cfg, nil, func(username string, s *Session) {
		evicted = username
		reg.Remove(username, s)
	})
	hb.sweepTimeouts()

	assert.Equal(t, "dave", evicted)
	_, ok := reg.Lookup("dave")
	assert.False(t, ok)
}

func TestSweepTimeoutsSparesRecentPong(t *testing.T) {
	reg, _ := newTestRegistry(t)
	conn := newFakeConn()
	sess := newSession(1, conn, "127.0.0.1:1")
	require.Equal(t, ClaimOK, reg.TryClaim("alice", sess))
	sess.bindUsername("alice", time.Now())

	cfg := DefaultRuntimeConfig()
	require.NoError(t, cfg.Set(KeyHeartbeatTimeoutS, "90"))

	evictCalled := false
	hb := NewHeartbeat(reg, cfg, nil, func(string, *Session) { evictCalled = true })
	hb.sweepTimeouts()

	assert.False(t, evictCalled)
}

func TestHeartbeatStopEndsRunPromptly(t *testing.T) {
	reg, _ := newTestRegistry(t)
	cfg := DefaultRuntimeConfig()
	require.NoError(t, cfg.Set(KeyHeartbeatIntervalS, "3600"))

	hb := NewHeartbeat(reg, cfg, nil, func(string, *Session) {})
	done := make(chan struct{})
	go func() {
		hb.Run()
		close(done)
	}()

	hb.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
