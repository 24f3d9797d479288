package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFIFO(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a"))
	require.NoError(t, q.Enqueue(ctx, "b"))
	d, _ := q.Depth(ctx)
	assert.Equal(t, int64(2), d)

	m, ok, err := q.Dequeue(ctx, "w0", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", m.JobID)
	m, ok, _ = q.Dequeue(ctx, "w0", time.Second)
	require.True(t, ok)
	assert.Equal(t, "b", m.JobID)
	assert.NoError(t, q.Ack(ctx, m))
}

func TestMemoryDequeueTimesOut(t *testing.T) {
	q := NewMemory()
	_, ok, err := q.Dequeue(context.Background(), "w0", 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDequeueWakesOnEnqueue(t *testing.T) {
	q := NewMemory()
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Enqueue(context.Background(), "late")
	}()
	m, ok, err := q.Dequeue(context.Background(), "w0", 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "late", m.JobID)
}

func TestMemoryClose(t *testing.T) {
	q := NewMemory()
	require.NoError(t, q.Enqueue(context.Background(), "a"))
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Enqueue(context.Background(), "b"), ErrClosed)

	_, ok, err := q.Dequeue(context.Background(), "w0", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "queued items drain after close")
	_, _, err = q.Dequeue(context.Background(), "w0", time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryDequeueCancelled(t *testing.T) {
	q := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := q.Dequeue(ctx, "w0", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMessageFrom(t *testing.T) {
	m := messageFrom(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"job_id": "abc"}})
	assert.Equal(t, Message{ID: "1-0", JobID: "abc"}, m)
	assert.Equal(t, "", messageFrom(redis.XMessage{ID: "2-0"}).JobID)
}

func TestIsBusyGroupErr(t *testing.T) {
	assert.True(t, isBusyGroupErr(errors.New("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, isBusyGroupErr(errors.New("ERR other")))
	assert.False(t, isBusyGroupErr(nil))
}
