package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue on Redis Streams + a consumer group. Failed
// jobs are copied to <stream>:dlq.
type RedisQueue struct {
	client    *redis.Client
	Stream    string
	Group     string
	DLQStream string
}

// NewRedisQueue connects to Redis and ensures stream & group.
func NewRedisQueue(redisURL, stream, group string) (*RedisQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	q := &RedisQueue{
		client:    c,
		Stream:    stream,
		Group:     group,
		DLQStream: stream + ":dlq",
	}
	// MKSTREAM creates the stream if missing
	if err := c.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil && !isBusyGroupErr(err) {
		return nil, fmt.Errorf("xgroup create: %w", err)
	}
	return q, nil
}

func isBusyGroupErr(err error) bool {
	if err == nil {
		return false
	}
	// go-redis may return a generic error string from Redis
	return strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP")
}

func (q *RedisQueue) Close() error { return q.client.Close() }

// Ping checks redis connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }

// Enqueue adds a single-field entry {job_id: <id>} to the stream.
func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.Stream,
		Values: map[string]any{"job_id": jobID},
	}).Err()
}

// Dequeue reads one message for consumer from the group. The message stays
// pending until Ack.
func (q *RedisQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (Message, bool, error) {
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.Group,
		Consumer: consumer,
		Streams:  []string{q.Stream, ">"},
		Count:    1,
		Block:    timeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Message{}, false, nil
		}
		return Message{}, false, err
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return Message{}, false, nil
	}
	return messageFrom(res[0].Messages[0]), true, nil
}

func messageFrom(m redis.XMessage) Message {
	msg := Message{ID: m.ID}
	switch t := m.Values["job_id"].(type) {
	case string:
		msg.JobID = t
	case []byte:
		msg.JobID = string(t)
	}
	return msg
}

// Ack marks a message as processed.
func (q *RedisQueue) Ack(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		return nil
	}
	return q.client.XAck(ctx, q.Stream, q.Group, msg.ID).Err()
}

// DeadLetter records a failed job with its reason.
func (q *RedisQueue) DeadLetter(ctx context.Context, msg Message, reason string) error {
	return q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.DLQStream, Values: map[string]any{"job_id": msg.JobID, "reason": reason}}).Err()
}

// Depth returns the stream length.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.XLen(ctx, q.Stream).Result()
}

// Depths returns approximate stream and dlq lengths for metrics.
func (q *RedisQueue) Depths(ctx context.Context) (int64, int64, error) {
	pipe := q.client.Pipeline()
	xlen := pipe.XLen(ctx, q.Stream)
	dxlen := pipe.XLen(ctx, q.DLQStream)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return xlen.Val(), dxlen.Val(), nil
}
