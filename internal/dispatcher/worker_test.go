package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/drawcompress/internal/queue"
)

type dlQueue struct {
	*queue.Memory
	mu   sync.Mutex
	dead []string
}

func (q *dlQueue) DeadLetter(_ context.Context, msg queue.Message, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, msg.JobID+":"+reason)
	return nil
}

func TestWorkerRunsEveryJob(t *testing.T) {
	q := queue.NewMemory()
	var mu sync.Mutex
	seen := map[string]bool{}
	done := make(chan struct{}, 10)
	w := New(Config{Concurrency: 3, PollTimeout: 20 * time.Millisecond}, q, func(_ context.Context, id string) error {
		mu.Lock()
		seen[id] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	w.Start(context.Background())
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Enqueue(context.Background(), id))
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	require.NoError(t, w.Stop(context.Background()))
	assert.Len(t, seen, 4)
}

func TestWorkerDeadLettersFailures(t *testing.T) {
	q := &dlQueue{Memory: queue.NewMemory()}
	done := make(chan struct{})
	w := New(Config{Concurrency: 1, PollTimeout: 20 * time.Millisecond}, q, func(context.Context, string) error {
		defer close(done)
		return errors.New("bad pdf")
	})
	w.Start(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), "x"))
	<-done
	require.NoError(t, w.Stop(context.Background()))
	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Equal(t, []string{"x:bad pdf"}, q.dead)
}

func TestStopCancelsRunningJob(t *testing.T) {
	q := queue.NewMemory()
	started := make(chan struct{})
	w := New(Config{Concurrency: 1, PollTimeout: 20 * time.Millisecond}, q, func(ctx context.Context, _ string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	w.Start(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), "long"))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, w.Stop(ctx))
	assert.NoError(t, w.Stop(ctx), "second stop is a no-op")
}
