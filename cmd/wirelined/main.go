// Command wirelined runs the wireline message server: it accepts
// connections, routes store-and-forward messages, supervises heartbeats,
// and drives an operator console over stdin until told to stop.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wireline-chat/wireline/pkg/server"
)

func main() {
	var port int
	var connections int
	var verbose bool
	var help bool

	flag.IntVar(&port, "port", 8080, "listen port")
	flag.IntVar(&port, "p", 8080, "listen port (shorthand)")
	flag.IntVar(&connections, "connections", 100, "maximum concurrent connections")
	flag.IntVar(&connections, "c", 100, "maximum concurrent connections (shorthand)")
	flag.BoolVar(&verbose, "verbose", false, "enable debug logging")
	flag.BoolVar(&verbose, "v", false, "enable debug logging (shorthand)")
	flag.BoolVar(&help, "help", false, "show usage")
	flag.BoolVar(&help, "h", false, "show usage (shorthand)")
	flag.Parse()

	if help {
		flag.Usage()
		os.Exit(0)
	}

	srv, err := server.NewServer(server.Options{
		Port:           port,
		MaxConnections: connections,
		ConfigPath:     "config.toml",
		BanlistPath:    "banlist",
		LogPath:        "server.log",
		Verbose:        verbose,
		MetricsAddr:    ":9090",
		StatsPath:      "stats.db",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "wirelined: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(port); err != nil {
		fmt.Fprintf(os.Stderr, "wirelined: %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	console := server.NewAdminConsole(srv, os.Stdout)
	go console.Run(os.Stdin)

	select {
	case <-sig:
		srv.Logger().Info("received shutdown signal")
	case <-srv.Stopped():
	}

	srv.Stop()
	os.Exit(0)
}
