// Command wireline is a minimal line-based reference client for the
// wireline message server: it authenticates, prints incoming messages and
// roster/log replies, and accepts a small set of slash commands for
// sending.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/wireline-chat/wireline/pkg/client"
)

func main() {
	var host string
	var port int
	var help bool

	flag.StringVar(&host, "server", "127.0.0.1", "server address")
	flag.StringVar(&host, "s", "127.0.0.1", "server address (shorthand)")
	flag.IntVar(&port, "port", 8080, "server port")
	flag.IntVar(&port, "p", 8080, "server port (shorthand)")
	flag.BoolVar(&help, "help", false, "show usage")
	flag.BoolVar(&help, "h", false, "show usage (shorthand)")
	flag.Parse()

	if help {
		flag.Usage()
		os.Exit(0)
	}

	fmt.Print("username: ")
	stdin := bufio.NewScanner(os.Stdin)
	if !stdin.Scan() {
		os.Exit(1)
	}
	username := strings.TrimSpace(stdin.Text())

	conn, err := client.Dial(host, port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wireline: %v\n", err)
		os.Exit(1)
	}

	state := client.NewState()
	go printEvents(conn, state)

	if err := conn.Connect(username); err != nil {
		fmt.Fprintf(os.Stderr, "wireline: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("type a message as: <user> <text>, /all <text>, /users, /log, /quit")
	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}
		switch {
		case line == "/quit":
			conn.Disconnect()
			return
		case line == "/users":
			conn.ListUsers()
		case line == "/log":
			conn.GetLog()
		case strings.HasPrefix(line, "/all "):
			conn.Send("all", "chat", strings.TrimPrefix(line, "/all "))
		default:
			parts := strings.SplitN(line, " ", 2)
			if len(parts) != 2 {
				fmt.Println("usage: <user> <text>")
				continue
			}
			conn.Send(parts[0], "chat", parts[1])
		}
	}
	conn.Disconnect()
}

func printEvents(conn *client.Connection, state *client.State) {
	for event := range conn.Events() {
		state.Apply(event)
		switch event.Type {
		case client.EventOK:
			fmt.Printf("OK: %s\n", event.Text)
		case client.EventError:
			fmt.Printf("ERROR: %s\n", event.Text)
		case client.EventMessage:
			fmt.Printf("[%s] %s: %s\n", event.Subject, event.From, event.Body)
		case client.EventUsers:
			fmt.Printf("users: %s\n", strings.Join(event.Users, ", "))
		case client.EventLog:
			fmt.Printf("log:\n%s\n", event.Text)
		case client.EventDisconnected:
			fmt.Printf("disconnected: %s\n", event.Text)
			os.Exit(0)
		}
	}
}
