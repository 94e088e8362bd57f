package server

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireline-chat/wireline/pkg/protocol"
)

// testClient is a thin TCP harness for the end-to-end scenarios below: it
// talks the real wire protocol to a live Server instead of calling into
// package internals directly.
type testClient struct {
	t    *testing.T
	conn net.Conn
}

func dialTestServer(t *testing.T, port int) *testClient {
	t.Helper()
	var conn net.Conn
	var err error
	require.Eventually(t, func() bool {
		conn, err = net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(verb string, args ...string) {
	c.t.Helper()
	require.NoError(c.t, protocol.EncodeFrame(c.conn, protocol.Build(verb, args...)))
}

func (c *testClient) recv() (string, []string) {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	payload, err := protocol.DecodeFrame(c.conn)
	require.NoError(c.t, err)
	verb, args, err := protocol.Parse(payload)
	require.NoError(c.t, err)
	return verb, args
}

func (c *testClient) close() {
	c.conn.Close()
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startTestServer(t *testing.T) (*Server, int) {
	t.Helper()
	dir := t.TempDir()
	srv, err := NewServer(Options{
		MaxConnections: 10,
		ConfigPath:     dir + "/config.toml",
		BanlistPath:    dir + "/banlist",
		LogPath:        dir + "/server.log",
	})
	require.NoError(t, err)

	port := freePort(t)
	require.NoError(t, srv.Start(port))
	t.Cleanup(func() { srv.Stop() })
	return srv, port
}

func TestServerHandshakeScenario(t *testing.T) {
	_, port := startTestServer(t)
	c := dialTestServer(t, port)
	defer c.close()

	c.send("CONNECT", "alice")
	verb, args := c.recv()
	assert.Equal(t, "OK", verb)
	assert.Equal(t, "Connected as alice", args[0])
}

func TestServerDirectDeliveryScenario(t *testing.T) {
	_, port := startTestServer(t)
	alice := dialTestServer(t, port)
	defer alice.close()
	bob := dialTestServer(t, port)
	defer bob.close()

	alice.send("CONNECT", "alice")
	alice.recv()
	bob.send("CONNECT", "bob")
	bob.recv()

	alice.send("SEND", "bob", "Hi", "hello there")
	verb, args := alice.recv()
	assert.Equal(t, "OK", verb)
	assert.Equal(t, "Message sent", args[0])

	verb, args = bob.recv()
	assert.Equal(t, "MESSAGE", verb)
	assert.Equal(t, []string{"alice", "Hi", "hello there"}, args[:3])
}

func TestServerBroadcastScenario(t *testing.T) {
	_, port := startTestServer(t)
	alice := dialTestServer(t, port)
	defer alice.close()
	bob := dialTestServer(t, port)
	defer bob.close()
	carol := dialTestServer(t, port)
	defer carol.close()

	alice.send("CONNECT", "alice")
	alice.recv()
	bob.send("CONNECT", "bob")
	bob.recv()
	carol.send("CONNECT", "carol")
	carol.recv()

	alice.send("SEND", "all", "News", "hi everyone")
	verb, _ := alice.recv()
	assert.Equal(t, "OK", verb)

	verb, args := bob.recv()
	assert.Equal(t, "MESSAGE", verb)
	assert.Equal(t, "alice", args[0])

	verb, args = carol.recv()
	assert.Equal(t, "MESSAGE", verb)
	assert.Equal(t, "alice", args[0])
}

func TestServerUsernameTakenScenario(t *testing.T) {
	_, port := startTestServer(t)
	alice := dialTestServer(t, port)
	defer alice.close()
	impostor := dialTestServer(t, port)
	defer impostor.close()

	alice.send("CONNECT", "alice")
	alice.recv()

	impostor.send("CONNECT", "alice")
	verb, _ := impostor.recv()
	assert.Equal(t, "ERROR", verb)
}

func TestServerConfigSetHotReloadsQueueCapacity(t *testing.T) {
	srv, _ := startTestServer(t)
	// 10 is the smallest value MAX_QUEUE_SIZE accepts.
	const capacity = 10
	require.NoError(t, srv.Config().Set(KeyMaxQueueSize, strconv.Itoa(capacity)))

	q := srv.Queue()
	newMsg := func() Message {
		return Message{From: "a", To: "b", Subject: "s", Body: "hi", Timestamp: time.Now()}
	}
	for i := 0; i < capacity; i++ {
		require.True(t, q.Enqueue(newMsg()))
	}
	assert.False(t, q.Enqueue(newMsg()), "queue capacity should already reflect the hot-reloaded MAX_QUEUE_SIZE")
}

func TestServerAutoStopsWhenLastClientDisconnects(t *testing.T) {
	srv, port := startTestServer(t)
	require.NoError(t, srv.Config().Set(KeyAutoStopWhenNoClients, "true"))

	c := dialTestServer(t, port)
	defer c.close()
	c.send("CONNECT", "alice")
	c.recv()

	c.send("DISCONNECT")

	select {
	case <-srv.Stopped():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not auto-stop after its last client disconnected")
	}
}

func TestServerDoesNotAutoStopWhenDisabled(t *testing.T) {
	srv, port := startTestServer(t)
	c := dialTestServer(t, port)
	defer c.close()
	c.send("CONNECT", "alice")
	c.recv()

	c.send("DISCONNECT")

	select {
	case <-srv.Stopped():
		t.Fatal("server should not auto-stop while AUTO_STOP_WHEN_NO_CLIENTS is false")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestServerStopClosesListenerAndSessions(t *testing.T) {
	srv, port := startTestServer(t)
	c := dialTestServer(t, port)
	defer c.close()
	c.send("CONNECT", "alice")
	c.recv()

	require.NoError(t, srv.Stop())

	c.conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err := c.conn.Read(buf)
	assert.Error(t, err, "session socket should be closed after Stop")
}
