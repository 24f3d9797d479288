// Package queue carries job tokens from Submit to the worker pool.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Message is one dequeued job token. ID identifies the delivery for Ack.
type Message struct {
	ID    string
	JobID string
}

// Queue is implemented by Memory and RedisQueue.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	// Dequeue waits up to timeout for a message. ok is false when none
	// arrived.
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (msg Message, ok bool, err error)
	Ack(ctx context.Context, msg Message) error
	Depth(ctx context.Context) (int64, error)
	Close() error
}

var ErrClosed = errors.New("queue closed")

// Memory is an unbounded in-process FIFO.
type Memory struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
	closed bool
}

func NewMemory() *Memory {
	return &Memory{notify: make(chan struct{}, 1)}
}

func (q *Memory) Enqueue(_ context.Context, jobID string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, jobID)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *Memory) pop() (string, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false, q.closed
	}
	id := q.items[0]
	q.items = q.items[1:]
	if len(q.items) > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return id, true, q.closed
}

func (q *Memory) Dequeue(ctx context.Context, _ string, timeout time.Duration) (Message, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		id, ok, closed := q.pop()
		if ok {
			return Message{ID: id, JobID: id}, true, nil
		}
		if closed {
			return Message{}, false, ErrClosed
		}
		select {
		case <-ctx.Done():
			return Message{}, false, ctx.Err()
		case <-timer.C:
			return Message{}, false, nil
		case <-q.notify:
		}
	}
}

func (q *Memory) Ack(context.Context, Message) error { return nil }

func (q *Memory) Depth(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// Close makes Enqueue fail; queued items can still be drained.
func (q *Memory) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}
