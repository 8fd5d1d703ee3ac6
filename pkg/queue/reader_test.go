package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/pkg/proto"
)

func enqueueResponse(t *testing.T, broker Broker, userID, result string) {
	t.Helper()
	task := proto.NewTaskMessage("some task", userID, "")
	resp := proto.NewResponseMessage(task, "test-agent", result)
	body, err := resp.ToJSON()
	require.NoError(t, err)
	_, err = broker.Send(context.Background(), proto.ResponseQueue, body)
	require.NoError(t, err)
}

func TestFetchFilterByUser(t *testing.T) {
	broker := newFakeBroker()
	enqueueResponse(t, broker, "alice", "for alice")
	enqueueResponse(t, broker, "bob", "for bob")
	enqueueResponse(t, broker, "alice", "also for alice")

	reader := NewResponseReader(broker, 10*time.Millisecond)

	records, err := reader.Fetch(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, "alice", rec.UserID)
		assert.Equal(t, "test-agent", rec.AgentUsed)
	}

	// Bob's message was abandoned, not consumed.
	depth, err := broker.Depth(context.Background(), proto.ResponseQueue)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	records, err = reader.Fetch(context.Background(), "bob", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "for bob", records[0].Response)
}

func TestFetchFilterAll(t *testing.T) {
	broker := newFakeBroker()
	enqueueResponse(t, broker, "alice", "a")
	enqueueResponse(t, broker, "bob", "b")

	reader := NewResponseReader(broker, 10*time.Millisecond)

	records, err := reader.Fetch(context.Background(), FilterAll, 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	depth, err := broker.Depth(context.Background(), proto.ResponseQueue)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestFetchRespectsMax(t *testing.T) {
	broker := newFakeBroker()
	for i := 0; i < 5; i++ {
		enqueueResponse(t, broker, "alice", "r")
	}

	reader := NewResponseReader(broker, 10*time.Millisecond)

	records, err := reader.Fetch(context.Background(), "alice", 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	// The rest stays queued for the next poll.
	records, err = reader.Fetch(context.Background(), "alice", 10)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestFetchSkipsUnparseable(t *testing.T) {
	broker := newFakeBroker()
	_, err := broker.Send(context.Background(), proto.ResponseQueue, []byte("garbage"))
	require.NoError(t, err)
	enqueueResponse(t, broker, "alice", "good")

	reader := NewResponseReader(broker, 10*time.Millisecond)

	records, err := reader.Fetch(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "good", records[0].Response)

	// The unparseable message stays for out-of-band inspection.
	depth, err := broker.Depth(context.Background(), proto.ResponseQueue)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestFetchTerminatesWithOnlyForeignMessages(t *testing.T) {
	// All messages belong to another user. Abandoned messages become visible
	// again immediately, so without redelivery tracking this would never end.
	broker := newFakeBroker()
	for i := 0; i < 3; i++ {
		enqueueResponse(t, broker, "bob", "for bob")
	}

	reader := NewResponseReader(broker, 10*time.Millisecond)

	done := make(chan struct{})
	var records []ResponseRecord
	go func() {
		defer close(done)
		records, _ = reader.Fetch(context.Background(), "alice", 10)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch did not terminate")
	}
	assert.Empty(t, records)

	depth, err := broker.Depth(context.Background(), proto.ResponseQueue)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
}

func TestFetchEmptyQueue(t *testing.T) {
	reader := NewResponseReader(newFakeBroker(), 10*time.Millisecond)

	records, err := reader.Fetch(context.Background(), "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchPartialOnReceiveError(t *testing.T) {
	broker := newFakeBroker()
	enqueueResponse(t, broker, "alice", "first")

	reader := NewResponseReader(broker, 10*time.Millisecond)

	// First batch succeeds; then the transport fails.
	records, err := reader.Fetch(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	broker.mu.Lock()
	broker.recvErr = ErrUnavailable
	broker.mu.Unlock()

	records, err = reader.Fetch(context.Background(), "alice", 10)
	require.Error(t, err)
	assert.Empty(t, records)
}
