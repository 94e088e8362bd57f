package server

import (
	"time"

	"github.com/wireline-chat/wireline/pkg/protocol"
)

// Heartbeat is the supervisor running a periodic PING broadcast followed by
// a PONG-timeout sweep. Session eviction mirrors the normal disconnect path
// — remove from the registry, close the socket — and is reported through
// the same EvictFunc the caller uses for kicks and bans.
type Heartbeat struct {
	registry *Registry
	config   *RuntimeConfig
	metrics  *Metrics
	evict    EvictFunc
	stop     chan struct{}
}

// EvictFunc removes a session from the registry and closes its connection.
// The server supplies this so Heartbeat doesn't need to know about
// presence notifications or session bookkeeping beyond "make it go away".
type EvictFunc func(username string, sess *Session)

// NewHeartbeat creates a Heartbeat supervisor. It does not start running
// until Run is called in its own goroutine.
func NewHeartbeat(registry *Registry, config *RuntimeConfig, metrics *Metrics, evict EvictFunc) *Heartbeat {
	return &Heartbeat{
		registry: registry,
		config:   config,
		metrics:  metrics,
		evict:    evict,
		stop:     make(chan struct{}),
	}
}

// Stop signals Run to exit at its next sleep boundary.
func (h *Heartbeat) Stop() {
	close(h.stop)
}

// Run executes the heartbeat loop until Stop is called.
func (h *Heartbeat) Run() {
	for {
		interval := time.Duration(h.config.GetInt(KeyHeartbeatIntervalS)) * time.Second
		if !h.sleep(interval) {
			return
		}

		h.broadcastPing()

		checkDelay := time.Duration(h.config.GetInt(KeyHeartbeatCheckDelayS)) * time.Second
		if !h.sleep(checkDelay) {
			return
		}

		h.sweepTimeouts()
	}
}

// sleep waits for d or Stop, whichever comes first, returning false if it
// was woken by Stop.
func (h *Heartbeat) sleep(d time.Duration) bool {
	select {
	case <-h.stop:
		return false
	case <-time.After(d):
		return true
	}
}

// broadcastPing sends a framed PING to every registered session. The
// (username, socket) pairs are snapshotted under the registry lock and the
// lock is released before any socket I/O happens. waiting-for-pong is then
// set per-session, each under its own short critical section.
func (h *Heartbeat) broadcastPing() {
	ping := protocol.Build("PING")
	for _, entry := range h.registry.Snapshot() {
		if err := entry.Session.WriteFrame(ping); err != nil {
			continue
		}
		entry.Session.MarkWaitingForPong()
	}
}

// sweepTimeouts evicts every session whose last PONG is older than
// HEARTBEAT_TIMEOUT_S.
func (h *Heartbeat) sweepTimeouts() {
	timeout := time.Duration(h.config.GetInt(KeyHeartbeatTimeoutS)) * time.Second
	now := time.Now()

	for _, entry := range h.registry.Snapshot() {
		if entry.Session.PongAge(now) <= timeout {
			continue
		}
		if h.metrics != nil {
			h.metrics.sessionsEvicted.WithLabelValues("heartbeat_timeout").Inc()
		}
		h.evict(entry.Username, entry.Session)
	}
}
