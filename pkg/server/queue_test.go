package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(to string) Message {
	return Message{From: "alice", To: to, Subject: "s", Body: "b", Timestamp: time.Now()}
}

func TestQueueRejectPolicyFullDropsNewest(t *testing.T) {
	q := NewQueue(2, PolicyReject)
	assert.True(t, q.Enqueue(msg("a")))
	assert.True(t, q.Enqueue(msg("b")))
	assert.False(t, q.Enqueue(msg("c")))
	assert.Equal(t, 2, q.Len())
}

func TestQueueDropOldestAlwaysAccepts(t *testing.T) {
	q := NewQueue(2, PolicyDropOldest)
	require.True(t, q.Enqueue(msg("a")))
	require.True(t, q.Enqueue(msg("b")))
	assert.True(t, q.Enqueue(msg("c")))

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "b", first.To, "oldest entry (a) was evicted to make room for c")
}

func TestQueueDropNewestRejectsButKeepsContents(t *testing.T) {
	q := NewQueue(1, PolicyDropNewest)
	require.True(t, q.Enqueue(msg("a")))
	assert.False(t, q.Enqueue(msg("b")))

	got, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", got.To)
}

func TestQueueFIFOOrderUnderReject(t *testing.T) {
	q := NewQueue(10, PolicyReject)
	for _, to := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(msg(to)))
	}
	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.To)
	}
}

func TestQueueCloseWakesDequeue(t *testing.T) {
	q := NewQueue(10, PolicyReject)
	done := make(chan struct{})
	go func() {
		_, ok := q.Dequeue()
		assert.False(t, ok)
		close(done)
	}()

	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake up after Close")
	}
}

func TestQueueEnqueueAfterCloseFails(t *testing.T) {
	q := NewQueue(10, PolicyReject)
	q.Close()
	assert.False(t, q.Enqueue(msg("a")))
}

func TestQueueSetCapacityAffectsFutureEnqueues(t *testing.T) {
	q := NewQueue(1, PolicyReject)
	require.True(t, q.Enqueue(msg("a")))
	q.SetCapacity(2)
	assert.True(t, q.Enqueue(msg("b")))
	assert.False(t, q.Enqueue(msg("c")))
}
