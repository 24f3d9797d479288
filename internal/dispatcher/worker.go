// Package dispatcher runs the worker pool that drains the job queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/drawcompress/internal/metrics"
	"github.com/local/drawcompress/internal/queue"
)

// Handler executes one job. The returned error is logged and, when the queue
// supports it, dead-lettered; the message is acked either way.
type Handler func(ctx context.Context, jobID string) error

// DeadLetterer is implemented by queues that keep failed jobs.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, msg queue.Message, reason string) error
}

type Config struct {
	Concurrency int
	// PollTimeout is how long one Dequeue call blocks.
	PollTimeout time.Duration
}

// Worker is a fixed-size pool of queue consumers.
type Worker struct {
	cfg    Config
	q      queue.Queue
	handle Handler
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func New(cfg Config, q queue.Queue, h Handler) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	return &Worker{cfg: cfg, q: q, handle: h, stop: make(chan struct{})}
}

// Start launches the consumers. Jobs run under a context derived from ctx
// that Stop cancels.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
}

// Stop cancels running jobs and waits for the consumers to exit or ctx to
// expire.
func (w *Worker) Stop(ctx context.Context) error {
	w.once.Do(func() {
		close(w.stop)
		if w.cancel != nil {
			w.cancel()
		}
	})
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(ctx context.Context, id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("worker-%d", id)
	log.Info().Int("worker", id).Msg("worker started")
	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("worker stopped")
			return
		default:
		}

		msg, ok, err := w.q.Dequeue(ctx, consumer, w.cfg.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
				log.Info().Int("worker", id).Msg("worker stopped")
				return
			}
			log.Error().Err(err).Msg("queue dequeue error")
			select {
			case <-w.stop:
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if !ok {
			continue
		}
		w.process(ctx, id, msg)
	}
}

func (w *Worker) process(ctx context.Context, id int, msg queue.Message) {
	if d, err := w.q.Depth(ctx); err == nil {
		metrics.SetQueueDepth("pending", d)
	}
	herr := w.handle(ctx, msg.JobID)
	ackCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if herr != nil {
		log.Warn().Err(herr).Int("worker", id).Str("job_id", msg.JobID).Msg("job failed")
		if dl, ok := w.q.(DeadLetterer); ok {
			if err := dl.DeadLetter(ackCtx, msg, herr.Error()); err != nil {
				log.Error().Err(err).Str("job_id", msg.JobID).Msg("dead-letter failed")
			}
		}
	}
	if err := w.q.Ack(ackCtx, msg); err != nil {
		log.Error().Err(err).Str("job_id", msg.JobID).Msg("ack failed")
	}
}
