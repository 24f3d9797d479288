package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/drawcompress/internal/jobs"
	"github.com/local/drawcompress/internal/logger"
	"github.com/local/drawcompress/internal/metrics"
)

// Run executes the job identified by jobID. It is the worker pool handler:
// tokens this process does not know, or jobs that already left the queued
// state, are skipped. Failures and panics are recorded on the job and
// returned.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (err error) {
	l := logger.ForJob(jobID)
	snap, ok := o.deps.Registry.Get(jobID)
	if !ok {
		l.Warn().Msg("unknown job token; skipping")
		return nil
	}
	if snap.State != jobs.StateQueued {
		l.Debug().Str("status", string(snap.State)).Msg("job already started; skipping")
		return nil
	}
	ctx = l.WithContext(ctx)
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			l.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("job panicked")
			err = fmt.Errorf("internal error: %v", rec)
		}
		if err != nil {
			l.Error().Err(err).Msg("job failed")
			o.fail(jobID, err)
			metrics.ObserveJob("error", time.Since(start))
		}
		o.publishCounts()
	}()

	o.report(jobID, l)(jobs.StageInitializing, jobs.ProgressInitializing)
	src, err := os.ReadFile(snap.InputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	out, err := o.process(ctx, jobID, src, snap.Settings, l)
	if err != nil {
		return err
	}

	key := o.archive(ctx, jobID, out, l)
	if _, err := o.deps.Registry.Update(jobID, func(s *jobs.Snapshot) {
		s.State = jobs.StateDone
		s.Stage = ""
		s.Progress = jobs.ProgressDone
		s.Output = out
		s.ResultKey = key
	}); err != nil && !errors.Is(err, jobs.ErrJobNotFound) {
		return err
	}
	metrics.ObserveJob("done", time.Since(start))
	metrics.ObserveRatio(len(src), len(out))
	l.Info().Str("final_size", fmt.Sprintf("%.2f MB", float64(len(out))/1024/1024)).
		Int("input_bytes", len(src)).Int("output_bytes", len(out)).Dur("took", time.Since(start)).Msg("job complete")
	return nil
}

// process runs assemble, re-distill and optimize in order.
func (o *Orchestrator) process(ctx context.Context, jobID string, src []byte, s jobs.Settings, l zerolog.Logger) ([]byte, error) {
	rep := o.report(jobID, l)
	res, err := o.deps.Assembler.Assemble(ctx, src, s, rep)
	if err != nil {
		return nil, err
	}
	out := res.Data

	if o.deps.Distiller != nil {
		rep(jobs.StageGhostscript, jobs.ProgressGhostscript)
		out = o.deps.Distiller.Distill(ctx, out, s.Extreme)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.deps.Optimizer != nil {
		rep(jobs.StageOptimizing, jobs.ProgressOptimizing)
		out = o.deps.Optimizer.Optimize(ctx, out)
	}
	return out, ctx.Err()
}

// report returns a Reporter that moves the job to running with the given
// stage and progress.
func (o *Orchestrator) report(jobID string, l zerolog.Logger) jobs.ReporterFunc {
	return func(stage string, progress int) {
		snap, err := o.deps.Registry.Update(jobID, func(s *jobs.Snapshot) {
			s.State = jobs.StateRunning
			s.Stage = stage
			s.Progress = progress
		})
		if err != nil {
			return
		}
		l.Debug().Str("stage", snap.Stage).Int("progress", snap.Progress).Msg("progress")
	}
}

func (o *Orchestrator) fail(jobID string, err error) {
	_, _ = o.deps.Registry.Update(jobID, func(s *jobs.Snapshot) {
		s.State = jobs.StateError
		s.Error = err.Error()
	})
}

// archive uploads the result when an archive is configured. Upload failures
// only cost the archived copy.
func (o *Orchestrator) archive(ctx context.Context, jobID string, data []byte, l zerolog.Logger) string {
	if o.deps.Archive == nil {
		return ""
	}
	key := o.cfg.ArchivePrefix + jobID + ".pdf"
	if err := o.deps.Archive.Put(ctx, key, data); err != nil {
		l.Warn().Err(err).Str("key", key).Msg("result archive failed")
		return ""
	}
	return key
}
