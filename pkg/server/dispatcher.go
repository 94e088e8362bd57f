package server

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/wireline-chat/wireline/pkg/protocol"
)

// Dispatcher is the routing component: a single worker draining Queue,
// resolving each message's recipient through the Registry, and writing the
// delivery frame to that recipient's socket.
type Dispatcher struct {
	queue    *Queue
	registry *Registry
	config   *RuntimeConfig
	metrics  *Metrics
	done     chan struct{}

	delivered atomic.Int64
}

// NewDispatcher wires a Dispatcher to its queue and registry. metrics may
// be nil in tests that don't care about counters.
func NewDispatcher(queue *Queue, registry *Registry, config *RuntimeConfig, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		registry: registry,
		config:   config,
		metrics:  metrics,
		done:     make(chan struct{}),
	}
}

// dispatchDelay is the default sleep before each dequeue-and-act cycle.
// RuntimeConfig has no knob for this, so it is a package-level default
// rather than a validated key.
const dispatchDelay = 10 * time.Millisecond

// Run drains the queue until it is closed. It is meant to run in its own
// goroutine for the lifetime of the server; Stop (via Queue.Close) is what
// makes it return.
func (d *Dispatcher) Run() {
	for {
		time.Sleep(dispatchDelay)

		msg, ok := d.queue.Dequeue()
		if !ok {
			close(d.done)
			return
		}
		d.deliver(msg)

		if d.metrics != nil {
			d.metrics.queueDepth.Set(float64(d.queue.Len()))
		}
	}
}

// Done is closed once Run has observed queue closure and returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// deliver resolves msg's recipient and writes the delivery frame, or — if
// the recipient disconnected between enqueue and dispatch — sends an
// asynchronous ERROR back to the sender.
func (d *Dispatcher) deliver(msg Message) {
	recipient, ok := d.registry.Lookup(msg.To)
	if !ok {
		d.notifySenderUndelivered(msg)
		return
	}

	payload := protocol.Build("MESSAGE", msg.From, msg.Subject, msg.Body, strconv.FormatInt(msg.Timestamp.Unix(), 10))
	if err := recipient.WriteFrame(payload); err != nil {
		// The recipient's own session loop will discover the failed
		// connection on its next read and is the sole destroyer of that
		// session; the dispatcher never closes or removes one itself.
		return
	}

	d.delivered.Add(1)
	if d.metrics != nil {
		d.metrics.messagesSent.Inc()
	}
}

// Delivered returns the lifetime count of successfully delivered messages.
func (d *Dispatcher) Delivered() int64 {
	return d.delivered.Load()
}

func (d *Dispatcher) notifySenderUndelivered(msg Message) {
	sender, ok := d.registry.Lookup(msg.From)
	if !ok {
		return
	}
	reason := fmt.Sprintf("Message to '%s' could not be delivered: user disconnected", msg.To)
	_ = sender.WriteFrame(protocol.Build("ERROR", reason))
}
