package server

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wireline-chat/wireline/pkg/protocol"
)

// Handlers implements the command dispatch table: one entry per verb,
// operating on the shared registry, ban list, queue, config and metrics.
// A Handlers is shared by every session task.
type Handlers struct {
	registry *Registry
	banList  *BanList
	queue    *Queue
	config   *RuntimeConfig
	metrics  *Metrics
	logger   *Logger
	logPath  string

	connects         atomic.Int64
	messagesReceived atomic.Int64
}

// NewHandlers wires a Handlers to its collaborators. logPath is the file
// GET_LOG reads its tail from; it may be empty if log tailing is disabled.
func NewHandlers(registry *Registry, banList *BanList, queue *Queue, config *RuntimeConfig, metrics *Metrics, logger *Logger, logPath string) *Handlers {
	return &Handlers{
		registry: registry,
		banList:  banList,
		queue:    queue,
		config:   config,
		metrics:  metrics,
		logger:   logger,
		logPath:  logPath,
	}
}

// Dispatch handles one decoded command frame for sess, returning the
// (already framed) reply to send, if any, and whether the session should be
// closed after the reply is written.
func (h *Handlers) Dispatch(sess *Session, payload []byte) (reply []byte, closeAfter bool) {
	verb, args, err := protocol.Parse(payload)
	if err != nil {
		if errors.Is(err, protocol.ErrEmptyPayload) {
			return nil, false
		}
		return nil, false
	}

	switch strings.ToUpper(verb) {
	case "CONNECT":
		return h.handleConnect(sess, args)
	case "DISCONNECT":
		return h.handleDisconnect(sess, args)
	case "SEND":
		return h.handleSend(sess, args)
	case "PING":
		return h.handlePing(sess, args)
	case "PONG":
		return h.handlePong(sess, args)
	case "LIST_USERS":
		return h.handleListUsers(sess, args)
	case "GET_LOG":
		return h.handleGetLog(sess, args)
	default:
		return protocol.Build("ERROR", fmt.Sprintf("Unknown command: %s", verb)), false
	}
}

func (h *Handlers) handleConnect(sess *Session, args []string) (reply []byte, closeAfter bool) {
	if len(args) < 1 {
		return nil, false
	}
	username := args[0]

	if err := protocol.ValidateUsername(username, int(h.config.GetInt(KeyMaxUsernameLength))); err != nil {
		return protocol.Build("ERROR", err.Error()), false
	}

	switch h.registry.TryClaim(username, sess) {
	case ClaimBanned:
		h.recordConnectAttempt("banned")
		h.logger.Info("CONNECT from %s rejected: %s is banned", sess.RemoteAddr(), username)
		return protocol.Build("ERROR", "You are banned from this server"), true
	case ClaimTaken:
		h.recordConnectAttempt("taken")
		return protocol.Build("ERROR", fmt.Sprintf("Username '%s' is already taken", username)), false
	}

	sess.bindUsername(username, time.Now())
	h.connects.Add(1)
	h.recordConnectAttempt("ok")
	if h.metrics != nil {
		h.metrics.sessionsCreated.Inc()
		h.metrics.activeSessions.Set(float64(h.registry.Count()))
	}
	h.logger.Info("%s connected from %s", username, sess.RemoteAddr())
	return protocol.Build("OK", fmt.Sprintf("Connected as %s", username)), false
}

// Connects returns the lifetime count of successful CONNECTs.
func (h *Handlers) Connects() int64 {
	return h.connects.Load()
}

// MessagesReceived returns the lifetime count of SEND attempts that reached
// this handler, including ones later rejected for validation — it counts
// attempts, not successful deliveries.
func (h *Handlers) MessagesReceived() int64 {
	return h.messagesReceived.Load()
}

func (h *Handlers) recordConnectAttempt(outcome string) {
	if h.metrics != nil {
		h.metrics.connectAttempts.WithLabelValues(outcome).Inc()
	}
}

func (h *Handlers) handleDisconnect(sess *Session, _ []string) (reply []byte, closeAfter bool) {
	h.evict(sess)
	return nil, true
}

// evict removes sess from the registry (if it was registered) and marks it
// closed. It does not close the underlying socket — callers do that once
// they're done writing any final reply.
func (h *Handlers) evict(sess *Session) {
	username := sess.Username()
	if username != "" {
		h.registry.Remove(username, sess)
		h.logger.Info("%s disconnected", username)
	}
	sess.markClosed()
	if h.metrics != nil {
		h.metrics.activeSessions.Set(float64(h.registry.Count()))
	}
}

func (h *Handlers) handleSend(sess *Session, args []string) (reply []byte, closeAfter bool) {
	if !sess.IsAuthenticated() {
		return protocol.Build("ERROR", "Not authenticated"), false
	}
	if len(args) < 3 {
		return protocol.Build("ERROR", "Malformed SEND command"), false
	}

	h.messagesReceived.Add(1)
	if h.metrics != nil {
		h.metrics.messagesReceived.Inc()
	}

	to := args[0]
	subject := protocol.Sanitize(args[1])
	body := protocol.Sanitize(strings.Join(args[2:], protocol.Delimiter))

	if err := protocol.ValidateSubject(subject, int(h.config.GetInt(KeyMaxSubjectLength))); err != nil {
		return protocol.Build("ERROR", err.Error()), false
	}
	if err := protocol.ValidateBody(body); err != nil {
		return protocol.Build("ERROR", err.Error()), false
	}

	from := sess.Username()
	now := time.Now()

	if to == "all" {
		for _, username := range h.registry.Usernames() {
			if username == from {
				continue
			}
			h.enqueue(Message{From: from, To: username, Subject: subject, Body: body, Timestamp: now})
		}
		return protocol.Build("OK", "Broadcast sent"), false
	}

	if _, ok := h.registry.Lookup(to); !ok {
		return protocol.Build("ERROR", fmt.Sprintf("User '%s' does not exist or is offline", to)), false
	}

	if !h.enqueue(Message{From: from, To: to, Subject: subject, Body: body, Timestamp: now}) {
		return protocol.Build("ERROR", "Failed to send message: queue full or dispatcher error"), false
	}
	return protocol.Build("OK", "Message sent"), false
}

// enqueue adds msg to the queue and records a drop in metrics on failure.
func (h *Handlers) enqueue(msg Message) bool {
	ok := h.queue.Enqueue(msg)
	if !ok && h.metrics != nil {
		h.metrics.messagesDropped.WithLabelValues(h.queue.policyLabel()).Inc()
	}
	return ok
}

func (h *Handlers) handlePing(sess *Session, _ []string) (reply []byte, closeAfter bool) {
	if !sess.IsAuthenticated() {
		return protocol.Build("ERROR", "Not authenticated"), false
	}
	return protocol.Build("PONG"), false
}

func (h *Handlers) handlePong(sess *Session, _ []string) (reply []byte, closeAfter bool) {
	sess.RecordPong(time.Now())
	return nil, false
}

func (h *Handlers) handleListUsers(sess *Session, _ []string) (reply []byte, closeAfter bool) {
	if !sess.IsAuthenticated() {
		return protocol.Build("ERROR", "Not authenticated"), false
	}
	return protocol.Build("USERS", strings.Join(h.registry.Usernames(), ",")), false
}

func (h *Handlers) handleGetLog(sess *Session, _ []string) (reply []byte, closeAfter bool) {
	if !sess.IsAuthenticated() {
		return protocol.Build("ERROR", "Not authenticated"), false
	}
	if h.logPath == "" {
		return protocol.Build("ERROR", "Log unavailable"), false
	}
	text, err := tailFile(h.logPath, 50)
	if err != nil {
		return protocol.Build("ERROR", "Failed to read log"), false
	}
	return protocol.Build("LOG", text), false
}
