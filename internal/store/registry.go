package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/drawcompress/internal/jobs"
)

// Mirror receives a copy of every snapshot so other processes can poll job
// state. Mirror failures never affect the registry.
type Mirror interface {
	Set(ctx context.Context, snap jobs.Snapshot) error
	Delete(ctx context.Context, jobID string) error
}

// Registry is the in-process job table. Every change replaces the stored
// snapshot with a modified copy, so snapshots handed out are never mutated.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*jobs.Snapshot
	subs   map[string][]chan jobs.Snapshot
	mirror Mirror
	now    func() time.Time
}

func NewRegistry(mirror Mirror) *Registry {
	return &Registry{
		jobs:   map[string]*jobs.Snapshot{},
		subs:   map[string][]chan jobs.Snapshot{},
		mirror: mirror,
		now:    time.Now,
	}
}

// Create registers a new job. Created and Updated default to now.
func (r *Registry) Create(snap jobs.Snapshot) (jobs.Snapshot, error) {
	r.mu.Lock()
	if _, exists := r.jobs[snap.ID]; exists {
		r.mu.Unlock()
		return jobs.Snapshot{}, fmt.Errorf("job %s already registered", snap.ID)
	}
	if snap.Created.IsZero() {
		snap.Created = r.now()
	}
	snap.Updated = snap.Created
	stored := snap
	r.jobs[snap.ID] = &stored
	r.mu.Unlock()
	r.mirrorSet(stored)
	return stored, nil
}

// Get returns the current snapshot of a job.
func (r *Registry) Get(id string) (jobs.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.jobs[id]
	if !ok {
		return jobs.Snapshot{}, false
	}
	return *s, true
}

// Update applies fn to a copy of the job and stores the copy. Progress never
// decreases, a terminal job is never changed again, Output survives only in
// the done state and Error only in the error state.
func (r *Registry) Update(id string, fn func(*jobs.Snapshot)) (jobs.Snapshot, error) {
	r.mu.Lock()
	prev, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return jobs.Snapshot{}, jobs.ErrJobNotFound
	}
	if prev.State.Terminal() {
		r.mu.Unlock()
		return *prev, nil
	}
	next := *prev
	fn(&next)
	next.ID = prev.ID
	next.Created = prev.Created
	if next.Progress < prev.Progress {
		next.Progress = prev.Progress
	}
	if next.Progress > jobs.ProgressDone {
		next.Progress = jobs.ProgressDone
	}
	if next.State != jobs.StateDone {
		next.Output = nil
	}
	if next.State != jobs.StateError {
		next.Error = ""
	}
	next.Updated = r.now()
	r.jobs[id] = &next
	for _, ch := range r.subs[id] {
		offer(ch, next)
	}
	r.mu.Unlock()
	r.mirrorSet(next)
	return next, nil
}

// offer delivers s, replacing an undelivered older snapshot.
func offer(ch chan jobs.Snapshot, s jobs.Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// Subscribe returns a channel carrying the latest snapshot after every
// change. The current snapshot is delivered first. The channel is closed
// when the job is evicted or cancel is called.
func (r *Registry) Subscribe(id string) (<-chan jobs.Snapshot, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.jobs[id]
	if !ok {
		return nil, nil, jobs.ErrJobNotFound
	}
	ch := make(chan jobs.Snapshot, 1)
	ch <- *s
	r.subs[id] = append(r.subs[id], ch)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			list := r.subs[id]
			for i, c := range list {
				if c == ch {
					r.subs[id] = append(list[:i], list[i+1:]...)
					close(ch)
					break
				}
			}
			if len(r.subs[id]) == 0 {
				delete(r.subs, id)
			}
		})
	}
	return ch, cancel, nil
}

// EvictOlderThan removes every job created before now-maxAge, whatever its
// state, and returns the removed snapshots.
func (r *Registry) EvictOlderThan(maxAge time.Duration) []jobs.Snapshot {
	cutoff := r.now().Add(-maxAge)
	var out []jobs.Snapshot
	r.mu.Lock()
	for id, s := range r.jobs {
		if s.Created.After(cutoff) {
			continue
		}
		out = append(out, *s)
		delete(r.jobs, id)
		for _, ch := range r.subs[id] {
			close(ch)
		}
		delete(r.subs, id)
	}
	r.mu.Unlock()
	if r.mirror != nil {
		for _, s := range out {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := r.mirror.Delete(ctx, s.ID); err != nil {
				log.Warn().Err(err).Str("job_id", s.ID).Msg("status mirror delete failed")
			}
			cancel()
		}
	}
	return out
}

// Counts returns the number of jobs per state.
func (r *Registry) Counts() map[jobs.State]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[jobs.State]int{}
	for _, s := range r.jobs {
		out[s.State]++
	}
	return out
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func (r *Registry) mirrorSet(s jobs.Snapshot) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.mirror.Set(ctx, s); err != nil {
		log.Warn().Err(err).Str("job_id", s.ID).Msg("status mirror update failed")
	}
}
