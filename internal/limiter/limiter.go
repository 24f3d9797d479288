// Package limiter bounds concurrent use of an external tool and backs off
// after repeated failures.
package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

type Options struct {
	Name        string
	MaxInflight int
	// Threshold is the number of consecutive failures that opens the
	// breaker. Zero disables the breaker.
	Threshold   int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Limiter is an in-process admission gate with a failure breaker.
type Limiter struct {
	name        string
	sem         *semaphore.Weighted
	threshold   int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	mu        sync.Mutex
	failures  int
	openUntil time.Time
	now       func() time.Time
}

func New(opts Options) *Limiter {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 2
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 30 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Minute
	}
	return &Limiter{
		name:        opts.Name,
		sem:         semaphore.NewWeighted(int64(opts.MaxInflight)),
		threshold:   opts.Threshold,
		baseBackoff: opts.BaseBackoff,
		maxBackoff:  opts.MaxBackoff,
		now:         time.Now,
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { l.sem.Release(1) }, nil
}

// IsOpen returns true if the breaker is open (cooldown active).
func (l *Limiter) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now().Before(l.openUntil)
}

// Failure records a failed run; once Threshold consecutive failures are seen
// the breaker opens with a backoff that doubles up to MaxBackoff.
func (l *Limiter) Failure() {
	if l.threshold <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures++
	if l.failures < l.threshold {
		return
	}
	d := l.baseBackoff
	for i := l.threshold; i < l.failures && d < l.maxBackoff; i++ {
		d *= 2
	}
	if d > l.maxBackoff {
		d = l.maxBackoff
	}
	l.openUntil = l.now().Add(d)
	log.Warn().Str("tool", l.name).Int("failures", l.failures).Dur("cooldown", d).Msg("breaker opened")
}

// Success resets the breaker.
func (l *Limiter) Success() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = 0
	l.openUntil = time.Time{}
}
