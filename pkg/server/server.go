package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// lifecycleState is the server's position in {OFF, STARTING, RUNNING,
// STOPPING}. Start and Stop are the only transitions; both are no-ops (or
// errors) outside their expected source state.
type lifecycleState int32

const (
	lifecycleOff lifecycleState = iota
	lifecycleStarting
	lifecycleRunning
	lifecycleStopping
)

// Server owns every long-lived component — registry, ban list, queue,
// dispatcher, heartbeat, worker pool, accept loop — and the single
// lifecycle state machine that starts and stops them together.
type Server struct {
	state atomic.Int32

	listener        net.Listener
	maxConnections  int
	activeConns     atomic.Int64
	peakConnections atomic.Int64

	registry   *Registry
	banList    *BanList
	queue      *Queue
	config     *RuntimeConfig
	metrics    *Metrics
	handlers   *Handlers
	dispatcher *Dispatcher
	heartbeat  *Heartbeat
	pool       *WorkerPool
	logger     *Logger

	nextSessionID atomic.Uint64

	metricsAddr string
	httpServer  *http.Server

	stats   *StatsStore
	statsWG sync.WaitGroup

	logFile *os.File
	stopped chan struct{}
}

// Options configures a new Server. An empty ConfigPath keeps the runtime
// config in memory only, at its defaults; BanlistPath and LogPath must name
// files that can be created or opened, or NewServer fails. MaxConnections
// of 0 means no limit.
type Options struct {
	Port           int
	MaxConnections int
	ConfigPath     string
	BanlistPath    string
	LogPath        string
	Verbose        bool
	MetricsAddr    string // empty disables the /metrics HTTP server
	StatsPath      string // empty disables counter persistence
}

// NewServer constructs a Server in the OFF state, loading its runtime
// config and ban list from disk (creating defaults if either is absent).
func NewServer(opts Options) (*Server, error) {
	config, err := LoadRuntimeConfigFile(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("server: load config: %w", err)
	}

	banList, err := LoadBanList(opts.BanlistPath)
	if err != nil {
		return nil, fmt.Errorf("server: load ban list: %w", err)
	}

	logger, logFile, err := OpenLogFile(opts.LogPath, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("server: open log: %w", err)
	}

	metrics := NewMetrics()
	registry := NewRegistry(banList)
	queue := NewQueue(int(config.GetInt(KeyMaxQueueSize)), PolicyReject)
	handlers := NewHandlers(registry, banList, queue, config, metrics, logger, opts.LogPath)
	dispatcher := NewDispatcher(queue, registry, config, metrics)

	var stats *StatsStore
	if opts.StatsPath != "" {
		stats, err = OpenStatsStore(opts.StatsPath)
		if err != nil {
			return nil, fmt.Errorf("server: open stats store: %w", err)
		}
		if prior, err := stats.Get("sessions_created"); err == nil && prior > 0 {
			logger.Info("resuming counters: %d prior sessions recorded", prior)
		}
	}

	s := &Server{
		maxConnections: opts.MaxConnections,
		registry:       registry,
		banList:        banList,
		queue:          queue,
		config:         config,
		metrics:        metrics,
		handlers:       handlers,
		dispatcher:     dispatcher,
		logger:         logger,
		metricsAddr:    opts.MetricsAddr,
		stats:          stats,
		logFile:        logFile,
		stopped:        make(chan struct{}),
	}
	if stats != nil {
		seed := func(name string, counter *atomic.Int64) {
			if v, err := stats.Get(name); err == nil {
				counter.Store(v)
			}
		}
		seed("sessions_created", &handlers.connects)
		seed("messages_delivered", &dispatcher.delivered)
		seed("messages_received", &handlers.messagesReceived)
		seed("peak_connections", &s.peakConnections)
	}
	s.heartbeat = NewHeartbeat(registry, config, metrics, s.evictSession)
	s.pool = NewWorkerPool(int(config.GetInt(KeyThreadPoolSize)))

	// Heartbeat reads its keys live on every cycle, so it needs no
	// callback. The queue's capacity and the pool's worker count are read
	// once at construction, not on every use, so they need to be pushed
	// explicitly whenever /set or /reset lands one of these two keys.
	config.OnEdit(func() {
		queue.SetCapacity(int(config.GetInt(KeyMaxQueueSize)))
		s.pool.Resize(int(config.GetInt(KeyThreadPoolSize)))
	})

	return s, nil
}

// trackConnect increments the active connection count and advances the
// lifetime peak high-water mark if the new count is a new high. Shared by
// the TCP accept loop and the WebSocket upgrade handler so both transports
// contribute to the same peak.
func (s *Server) trackConnect() {
	n := s.activeConns.Add(1)
	for {
		peak := s.peakConnections.Load()
		if n <= peak || s.peakConnections.CompareAndSwap(peak, n) {
			return
		}
	}
}

// PeakConnections returns the lifetime high-water mark of concurrent
// connections, across both TCP and WebSocket transports.
func (s *Server) PeakConnections() int64 {
	return s.peakConnections.Load()
}

// evictSession is the heartbeat supervisor's EvictFunc and the mechanism
// behind the console's /kick and /ban: remove from the registry and close
// the socket, exactly as a normal disconnect would.
func (s *Server) evictSession(username string, sess *Session) {
	s.registry.Remove(username, sess)
	sess.markClosed()
	sess.Close()
	s.logger.Info("%s evicted", username)
	if s.metrics != nil {
		s.metrics.activeSessions.Set(float64(s.registry.Count()))
	}
	s.maybeAutoStop()
}

// maybeAutoStop stops the server once the last client has left, if
// AUTO_STOP_WHEN_NO_CLIENTS is enabled. It runs from whichever goroutine
// just removed the last registry entry (a session teardown or an eviction),
// so Stop is dispatched onto its own goroutine rather than called inline —
// Stop's pool.Stop() waits for every worker goroutine to return, including
// the one that might be running this very call.
func (s *Server) maybeAutoStop() {
	if !s.config.GetBool(KeyAutoStopWhenNoClients) {
		return
	}
	if s.registry.Count() > 0 {
		return
	}
	go s.Stop()
}

// Start transitions the server from OFF to RUNNING: it binds the listen
// socket, then spawns the accept loop, the dispatcher worker, the heartbeat
// supervisor, and the worker pool. It returns once the listen socket is
// bound; everything else runs in the background.
func (s *Server) Start(port int) error {
	if !s.state.CompareAndSwap(int32(lifecycleOff), int32(lifecycleStarting)) {
		return fmt.Errorf("server: already started")
	}

	addr := fmt.Sprintf(":%d", port)
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				opErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}

	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		s.state.Store(int32(lifecycleOff))
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.state.Store(int32(lifecycleRunning))
	s.logger.Info("listening on %s (max connections %d, pool size %d)", addr, s.maxConnections, s.pool.size)

	s.pool.Start()
	go s.dispatcher.Run()
	go s.heartbeat.Run()
	go s.acceptLoop()
	if s.metricsAddr != "" {
		s.startMetricsServer()
	}
	if s.stats != nil {
		s.statsWG.Add(1)
		go s.statsFlushLoop()
	}

	return nil
}

// statsFlushLoop periodically snapshots lifetime counters into the stats
// store so a restart resumes from the last known totals rather than zero.
// It exits once the server has stopped.
func (s *Server) statsFlushLoop() {
	defer s.statsWG.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopped:
			return
		case <-ticker.C:
			s.flushStats()
		}
	}
}

func (s *Server) flushStats() {
	if err := s.stats.Set("sessions_created", s.handlers.Connects()); err != nil {
		s.logger.Error("flush stats: %v", err)
	}
	if err := s.stats.Set("messages_delivered", s.dispatcher.Delivered()); err != nil {
		s.logger.Error("flush stats: %v", err)
	}
	if err := s.stats.Set("messages_received", s.handlers.MessagesReceived()); err != nil {
		s.logger.Error("flush stats: %v", err)
	}
	if err := s.stats.Set("peak_connections", s.PeakConnections()); err != nil {
		s.logger.Error("flush stats: %v", err)
	}
}

func (s *Server) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/ws", s.HandleWebSocket)
	s.httpServer = &http.Server{Addr: s.metricsAddr, Handler: mux}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server: %v", err)
		}
	}()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if lifecycleState(s.state.Load()) == lifecycleStopping {
				return
			}
			s.logger.Error("accept: %v", err)
			continue
		}

		if s.maxConnections > 0 && s.activeConns.Load() >= int64(s.maxConnections) {
			conn.Close()
			continue
		}
		s.trackConnect()

		id := s.nextSessionID.Add(1)
		sess := newSession(id, newSafeConn(conn), conn.RemoteAddr().String())
		s.pool.Submit(func() { s.runSession(sess) })
	}
}

// runSession drives one connection's read loop until the codec reports
// closure or a handler asks to close, then tears the session down.
func (s *Server) runSession(sess *Session) {
	defer func() {
		s.handlers.evict(sess)
		sess.Close()
		s.activeConns.Add(-1)
		s.maybeAutoStop()
	}()

	for {
		payload, err := sess.ReadFrame()
		if err != nil {
			return
		}

		reply, closeAfter := s.handlers.Dispatch(sess, payload)
		if reply != nil {
			if werr := sess.WriteFrame(reply); werr != nil {
				return
			}
		}
		if closeAfter {
			return
		}
	}
}

// Stop idempotently transitions RUNNING to STOPPING and back to OFF,
// closing the listen socket, every session socket, and the dispatcher and
// heartbeat loops cooperatively rather than exiting the process.
func (s *Server) Stop() error {
	if !s.state.CompareAndSwap(int32(lifecycleRunning), int32(lifecycleStopping)) {
		return nil
	}

	s.logger.Info("stopping")
	if s.listener != nil {
		s.listener.Close()
	}

	for _, entry := range s.registry.Snapshot() {
		entry.Session.Close()
	}

	s.queue.Close()
	s.heartbeat.Stop()
	s.pool.Stop()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}

	s.state.Store(int32(lifecycleOff))
	close(s.stopped)
	if s.stats != nil {
		s.statsWG.Wait()
		s.flushStats()
		s.stats.Close()
	}
	s.logger.Info("stopped")
	if s.logFile != nil {
		s.logFile.Close()
	}
	return nil
}

// Stopped is closed once Stop has finished tearing the server down.
func (s *Server) Stopped() <-chan struct{} {
	return s.stopped
}

// Registry exposes the session registry for the operator console.
func (s *Server) Registry() *Registry { return s.registry }

// BanList exposes the ban list for the operator console.
func (s *Server) BanList() *BanList { return s.banList }

// Config exposes the runtime config for the operator console.
func (s *Server) Config() *RuntimeConfig { return s.config }

// Queue exposes the routing queue for the operator console's /stats.
func (s *Server) Queue() *Queue { return s.queue }

// Metrics exposes the metrics registry for the operator console's /stats.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Logger exposes the server's logger for the operator console.
func (s *Server) Logger() *Logger { return s.logger }

// EvictUsername closes and removes username's session, if any — the
// mechanism behind the operator console's /kick.
func (s *Server) EvictUsername(username string) bool {
	sess, ok := s.registry.Lookup(username)
	if !ok {
		return false
	}
	s.evictSession(username, sess)
	return true
}
