// Package orchestrator owns the job lifecycle: submission, the processing
// pipeline run by the worker pool, status and result lookup, eviction and
// the HTTP surface around them.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/drawcompress/internal/classifier"
	"github.com/local/drawcompress/internal/jobs"
	"github.com/local/drawcompress/internal/metrics"
	"github.com/local/drawcompress/internal/pdfdoc"
	"github.com/local/drawcompress/internal/queue"
	"github.com/local/drawcompress/internal/store"
)

// Assembler builds the working document of a job.
type Assembler interface {
	Assemble(ctx context.Context, src []byte, s jobs.Settings, rep jobs.Reporter) (*pdfdoc.Result, error)
}

// Distiller re-distills a document. It never fails: on any problem the input
// comes back unchanged.
type Distiller interface {
	Distill(ctx context.Context, in []byte, extreme bool) []byte
}

// Optimizer rewrites a document structurally. Same contract as Distiller.
type Optimizer interface {
	Optimize(ctx context.Context, in []byte) []byte
}

// Archive stores finished documents outside the process.
type Archive interface {
	Put(ctx context.Context, key string, data []byte) error
}

type Dependencies struct {
	Registry  *store.Registry
	Queue     queue.Queue
	Assembler Assembler
	Distiller Distiller
	Optimizer Optimizer
	Opener    classifier.Opener
	// Archive is optional.
	Archive Archive
	// PageCounter is optional. When set, Submit rejects a page list that
	// selects nothing before the job is created.
	PageCounter func(path string) (int, error)
}

type Config struct {
	// TempDir holds one directory per job with its input file.
	TempDir string
	// ArchivePrefix is prepended to archived result keys.
	ArchivePrefix string
	// MaxUploadBytes bounds request bodies of /compress and /analyze.
	MaxUploadBytes int64
}

const DefaultMaxUploadBytes = 600 << 20

type Orchestrator struct {
	cfg  Config
	deps Dependencies
}

func New(cfg Config, deps Dependencies) *Orchestrator {
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "drawcompress")
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "results/"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if deps.Registry == nil {
		deps.Registry = store.NewRegistry(nil)
	}
	return &Orchestrator{cfg: cfg, deps: deps}
}

// Submit validates settings, moves sourcePath into the job's directory,
// registers a queued job and schedules it. The returned token identifies
// the job for every other call.
func (o *Orchestrator) Submit(ctx context.Context, sourcePath string, s jobs.Settings) (string, error) {
	s, err := s.Normalize()
	if err != nil {
		return "", err
	}
	if err := o.checkPages(sourcePath, s.Pages); err != nil {
		return "", err
	}
	id := uuid.NewString()
	dir := o.jobDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job dir: %w", err)
	}
	input := filepath.Join(dir, "input.pdf")
	if err := moveFile(sourcePath, input); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("stage input: %w", err)
	}
	if _, err := o.deps.Registry.Create(jobs.Snapshot{
		ID:        id,
		State:     jobs.StateQueued,
		InputPath: input,
		Settings:  s,
	}); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	if err := o.deps.Queue.Enqueue(ctx, id); err != nil {
		o.fail(id, fmt.Errorf("enqueue: %w", err))
		return "", fmt.Errorf("enqueue: %w", err)
	}
	log.Info().Str("job_id", id).Int("quality", s.Quality).Int("max_dimension", s.MaxDimension).
		Str("mode", string(s.Mode)).Bool("extreme", s.Extreme).Ints("pages", s.Pages).Msg("job queued")
	return id, nil
}

// checkPages runs page selection against the source's page count. A source
// that cannot be counted is left to the pipeline, which selects again.
func (o *Orchestrator) checkPages(path string, pages []int) error {
	if len(pages) == 0 || o.deps.PageCounter == nil {
		return nil
	}
	n, err := o.deps.PageCounter(path)
	if err != nil {
		log.Debug().Err(err).Str("file", path).Msg("page count unavailable")
		return nil
	}
	_, err = pdfdoc.SelectPages(pages, n)
	return err
}

// GetStatus returns the current snapshot of a job.
func (o *Orchestrator) GetStatus(_ context.Context, id string) (jobs.Snapshot, error) {
	snap, ok := o.deps.Registry.Get(id)
	if !ok {
		return jobs.Snapshot{}, jobs.ErrJobNotFound
	}
	return snap, nil
}

// GetResult returns the finished document of a done job.
func (o *Orchestrator) GetResult(ctx context.Context, id string) ([]byte, error) {
	snap, err := o.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap.State != jobs.StateDone || len(snap.Output) == 0 {
		return nil, jobs.ErrResultNotReady
	}
	return snap.Output, nil
}

// EvictExpired drops jobs created more than maxAge ago together with their
// input files and returns how many were removed.
func (o *Orchestrator) EvictExpired(maxAge time.Duration) int {
	evicted := o.deps.Registry.EvictOlderThan(maxAge)
	for _, s := range evicted {
		if err := o.removeInput(s); err != nil {
			log.Warn().Err(err).Str("job_id", s.ID).Msg("cleanup error")
		}
	}
	if len(evicted) > 0 {
		log.Info().Int("evicted", len(evicted)).Dur("max_age", maxAge).Msg("expired jobs evicted")
	}
	o.publishCounts()
	return len(evicted)
}

// Analyze classifies every page of the PDF at path.
func (o *Orchestrator) Analyze(ctx context.Context, path string) (*classifier.Analysis, error) {
	if o.deps.Opener == nil {
		return nil, errors.New("analyzer not configured")
	}
	return classifier.Analyze(ctx, o.deps.Opener, path)
}

// Subscribe streams snapshots of a job; see store.Registry.Subscribe.
func (o *Orchestrator) Subscribe(id string) (<-chan jobs.Snapshot, func(), error) {
	return o.deps.Registry.Subscribe(id)
}

func (o *Orchestrator) jobDir(id string) string { return filepath.Join(o.cfg.TempDir, id) }

// removeInput deletes the job's input and, when it lives in a job directory
// of ours, the directory itself.
func (o *Orchestrator) removeInput(s jobs.Snapshot) error {
	if s.InputPath == "" {
		return nil
	}
	dir := filepath.Dir(s.InputPath)
	if dir == o.jobDir(s.ID) {
		return os.RemoveAll(dir)
	}
	if err := os.Remove(s.InputPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (o *Orchestrator) publishCounts() {
	counts := o.deps.Registry.Counts()
	for _, st := range []jobs.State{jobs.StateQueued, jobs.StateRunning, jobs.StateDone, jobs.StateError} {
		metrics.SetRegistryJobs(string(st), counts[st])
	}
}
