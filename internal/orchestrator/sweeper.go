package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Sweeper periodically evicts expired jobs and removes job directories that
// no registered job owns (left behind by an earlier process).
type Sweeper struct {
	o        *Orchestrator
	interval time.Duration
	maxAge   time.Duration

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (o *Orchestrator) NewSweeper(interval, maxAge time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Sweeper{o: o, interval: interval, maxAge: maxAge, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start launches the sweep loop. The first sweep happens after one interval.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight sweep. Safe to call twice.
func (s *Sweeper) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

// Sweep runs one eviction pass.
func (s *Sweeper) Sweep() int {
	n := s.o.EvictExpired(s.maxAge)
	s.o.cleanupOrphans(s.maxAge)
	return n
}

// cleanupOrphans removes job directories under TempDir whose job is not in
// the registry, and stray upload files, once they are older than maxAge.
func (o *Orchestrator) cleanupOrphans(maxAge time.Duration) {
	entries, err := os.ReadDir(o.cfg.TempDir)
	if err != nil {
		return
	}
	now := time.Now()
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			if _, err := uuid.Parse(name); err != nil {
				continue
			}
			if _, ok := o.deps.Registry.Get(name); ok {
				continue
			}
		} else if !strings.HasPrefix(name, uploadPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		p := filepath.Join(o.cfg.TempDir, name)
		if err := os.RemoveAll(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("orphan cleanup failed")
			continue
		}
		log.Debug().Str("path", p).Msg("removed orphaned temp file")
	}
}
