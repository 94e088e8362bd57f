package server

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wireline-chat/wireline/pkg/protocol"
)

// AdminConsole reads operator commands — lines beginning with "/" — from an
// input stream and applies their effects to a Server, writing human-readable
// results to an output stream. It is the one component in this package
// meant to be driven directly from a CLI's stdin/stdout.
type AdminConsole struct {
	server *Server
	out    io.Writer
}

// NewAdminConsole creates a console bound to server, writing output to out.
func NewAdminConsole(server *Server, out io.Writer) *AdminConsole {
	return &AdminConsole{server: server, out: out}
}

// Run reads commands from in until it's closed or /stop is issued.
func (c *AdminConsole) Run(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			continue
		}
		if c.Execute(line) == cmdStop {
			return
		}
	}
}

type cmdOutcome int

const (
	cmdOK cmdOutcome = iota
	cmdStop
)

// Execute parses and applies one console command line, writing its result
// to the console's output stream.
func (c *AdminConsole) Execute(line string) cmdOutcome {
	fields := strings.Fields(line)
	verb := fields[0]
	args := fields[1:]

	switch verb {
	case "/help":
		c.printf("Commands: /help /broadcast <msg> /send <user> <msg> /list /kick <user> /ban <user> /unban <user> /stats /set <key> <value> /config /reset /stop")

	case "/broadcast":
		if len(args) < 1 {
			c.printf("usage: /broadcast <msg>")
			return cmdOK
		}
		c.broadcast(strings.Join(args, " "))

	case "/send":
		if len(args) < 2 {
			c.printf("usage: /send <user> <msg>")
			return cmdOK
		}
		c.sendTo(args[0], strings.Join(args[1:], " "))

	case "/list":
		names := c.server.registry.Usernames()
		c.printf("%d connected: %s", len(names), strings.Join(names, ", "))

	case "/kick":
		if len(args) < 1 {
			c.printf("usage: /kick <user>")
			return cmdOK
		}
		if c.server.EvictUsername(args[0]) {
			c.printf("kicked %s", args[0])
		} else {
			c.printf("%s is not connected", args[0])
		}

	case "/ban":
		if len(args) < 1 {
			c.printf("usage: /ban <user>")
			return cmdOK
		}
		c.ban(args[0])

	case "/unban":
		if len(args) < 1 {
			c.printf("usage: /unban <user>")
			return cmdOK
		}
		removed, err := c.server.banList.Remove(args[0])
		if err != nil {
			c.printf("error: %v", err)
		} else if removed {
			c.printf("unbanned %s", args[0])
		} else {
			c.printf("%s was not banned", args[0])
		}

	case "/stats":
		c.printStats()

	case "/set":
		if len(args) < 2 {
			c.printf("usage: /set <key> <value>")
			return cmdOK
		}
		if err := c.server.config.Set(configKey(args[0]), args[1]); err != nil {
			c.printf("error: %v", err)
		} else {
			c.printf("%s = %s", args[0], args[1])
		}

	case "/config":
		for _, kv := range c.server.config.Snapshot() {
			c.printf("%s = %s", kv[0], kv[1])
		}

	case "/reset":
		if err := c.server.config.Reset(); err != nil {
			c.printf("config reset to defaults (save failed: %v)", err)
		} else {
			c.printf("config reset to defaults")
		}

	case "/stop":
		c.printf("stopping")
		c.server.Stop()
		return cmdStop

	default:
		c.printf("unknown command: %s", verb)
	}
	return cmdOK
}

func (c *AdminConsole) broadcast(msg string) {
	from := "admin"
	now := time.Now()
	for _, username := range c.server.registry.Usernames() {
		c.server.queue.Enqueue(Message{From: from, To: username, Subject: "Admin", Body: msg, Timestamp: now})
	}
	c.printf("broadcast queued")
}

func (c *AdminConsole) sendTo(username, msg string) {
	if _, ok := c.server.registry.Lookup(username); !ok {
		c.printf("%s is not connected", username)
		return
	}
	c.server.queue.Enqueue(Message{From: "admin", To: username, Subject: "Admin", Body: msg, Timestamp: time.Now()})
	c.printf("queued to %s", username)
}

// ban persists the ban and, if the user is currently connected, notifies
// and disconnects them immediately — banning alone doesn't evict a live
// session, so the console always pairs it with a kick.
func (c *AdminConsole) ban(username string) {
	added, err := c.server.banList.Add(username)
	if err != nil {
		c.printf("error: %v", err)
		return
	}
	if sess, ok := c.server.registry.Lookup(username); ok {
		sess.WriteFrame(protocol.Build("ERROR", "You have been banned by admin"))
		c.server.evictSession(username, sess)
	}
	if added {
		c.printf("banned %s", username)
	} else {
		c.printf("%s was already banned", username)
	}
}

func (c *AdminConsole) printStats() {
	c.printf("connected: %d  queued: %d  banned: %d  peak: %d  received: %d  sent: %d",
		c.server.registry.Count(), c.server.queue.Len(), len(c.server.banList.Usernames()),
		c.server.PeakConnections(), c.server.handlers.MessagesReceived(), c.server.dispatcher.Delivered())
}

func (c *AdminConsole) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}
