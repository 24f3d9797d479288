package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/drawcompress/internal/jobs"
)

// RedisStatus mirrors job snapshots into hashes at job:<id>:status. Output
// bytes are never written; result_key points at the archived copy if any.
type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
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
	return &RedisStatus{client: c, keyNS: "job", ttl: ttl}, nil
}

func (s *RedisStatus) key(jobID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }

func statusFields(st jobs.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"status":      string(st.State),
		"stage":       st.Stage,
		"progress":    st.Progress,
		"error":       st.Error,
		"created":     st.Created.Format(time.RFC3339Nano),
		"updated":     st.Updated.Format(time.RFC3339Nano),
		"result_key":  st.ResultKey,
		"output_size": st.OutputSize(),
	}
}

func (s *RedisStatus) Set(ctx context.Context, st jobs.Snapshot) error {
	k := s.key(st.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, statusFields(st))
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (jobs.Snapshot, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil {
		return jobs.Snapshot{}, false, err
	}
	if len(res) == 0 {
		return jobs.Snapshot{}, false, nil
	}
	return parseStatus(jobID, res), true, nil
}

func parseStatus(jobID string, res map[string]string) jobs.Snapshot {
	st := jobs.Snapshot{
		ID:        jobID,
		State:     jobs.State(res["status"]),
		Stage:     res["stage"],
		Error:     res["error"],
		ResultKey: res["result_key"],
	}
	if p, err := strconv.Atoi(res["progress"]); err == nil {
		st.Progress = p
	}
	if t, err := time.Parse(time.RFC3339Nano, res["created"]); err == nil {
		st.Created = t
	}
	if t, err := time.Parse(time.RFC3339Nano, res["updated"]); err == nil {
		st.Updated = t
	}
	return st
}

func (s *RedisStatus) Delete(ctx context.Context, jobID string) error {
	return s.client.Del(ctx, s.key(jobID)).Err()
}

func (s *RedisStatus) Close() error { return s.client.Close() }

// Ping checks redis connectivity.
func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

// Client returns the underlying Redis client
func (s *RedisStatus) Client() *redis.Client { return s.client }
