package pdfdoc

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/local/drawcompress/internal/imagecodec"
	"github.com/local/drawcompress/internal/jobs"
	"github.com/local/drawcompress/internal/logger"
	"github.com/local/drawcompress/internal/metrics"
)

// Assembler builds the working document of a job: page subset, optional
// extreme cleanup, image recompression and the structural save.
type Assembler struct {
	// ImageConcurrency bounds parallel image recompression. Zero means
	// GOMAXPROCS.
	ImageConcurrency int
}

// Result is the output of Assemble.
type Result struct {
	Data     []byte
	Pages    int
	Images   int
	Replaced int
}

// Assemble runs the document steps in order and reports stage transitions to
// rep. Only page selection, page copy, parse, save and cancellation fail the
// call; cleanup and per-image problems are logged and skipped.
func (a *Assembler) Assemble(ctx context.Context, src []byte, s jobs.Settings, rep jobs.Reporter) (*Result, error) {
	if rep == nil {
		rep = jobs.Discard
	}
	l := logger.Ctx(ctx)
	s, err := s.Normalize()
	if err != nil {
		return nil, err
	}

	doc, r := a.loadPages(src, s.Pages, rep, l)
	if err := r.check(l); err != nil {
		return nil, err
	}
	res := &Result{Pages: doc.PageCount()}

	if s.Extreme {
		rep.Report(jobs.StageCleanup, jobs.ProgressCleanup)
		if err := a.cleanup(doc, l).check(l); err != nil {
			return nil, err
		}
	}

	rep.Report(jobs.StageImages, jobs.ProgressImages)
	start := time.Now()
	r = a.recompressImages(ctx, doc, s, rep, l, res)
	metrics.ObserveStage("images", time.Since(start))
	if err := r.check(l); err != nil {
		return nil, err
	}

	rep.Report(jobs.StageSaving, jobs.ProgressSaving)
	start = time.Now()
	data, err := doc.Bytes()
	metrics.ObserveStage("save", time.Since(start))
	if err := stepResult("save", err).check(l); err != nil {
		return nil, err
	}
	res.Data = data
	l.Info().Int("pages", res.Pages).Int("images", res.Images).Int("replaced", res.Replaced).
		Int("bytes", len(data)).Msg("document assembled")
	return res, nil
}

func stepResult(step string, err error) StepResult {
	if err != nil {
		return stepFatal(step, fmt.Errorf("%s: %w", step, err))
	}
	return stepOK(step)
}

func (a *Assembler) loadPages(src []byte, pages []int, rep jobs.Reporter, l zerolog.Logger) (*Document, StepResult) {
	doc, err := Parse(src)
	if err != nil {
		return nil, stepFatal("pages", err)
	}
	if len(pages) == 0 {
		rep.Report(jobs.StageAllPages, jobs.ProgressPages)
		return doc, stepOK("pages")
	}
	sel, err := SelectPages(pages, doc.PageCount())
	if err != nil {
		return nil, stepFatal("pages", err)
	}
	rep.Report(jobs.StageExtracting(len(sel)), jobs.ProgressPages)
	out, err := CopyPages(src, sel, l)
	if err != nil {
		return nil, stepFatal("pages", err)
	}
	doc, err = Parse(out)
	if err != nil {
		return nil, stepFatal("pages", &jobs.PageCopyError{Pages: sel, Err: err})
	}
	return doc, stepOK("pages")
}

func (a *Assembler) cleanup(doc *Document, l zerolog.Logger) StepResult {
	var errs []error
	n, err := doc.StripAnnotations()
	if err != nil {
		errs = append(errs, fmt.Errorf("annotations: %w", err))
	} else if n > 0 {
		l.Info().Int("annotations", n).Msg("annotations removed")
	}
	removed, err := doc.RemoveScriptAttachments()
	if err != nil {
		errs = append(errs, fmt.Errorf("attachments: %w", err))
	}
	for _, name := range removed {
		l.Info().Str("file", name).Msg("removed embedded script")
	}
	if len(errs) > 0 {
		return stepWarning("cleanup", errors.Join(errs...))
	}
	return stepOK("cleanup")
}

func (a *Assembler) recompressImages(ctx context.Context, doc *Document, s jobs.Settings, rep jobs.Reporter, l zerolog.Logger, res *Result) StepResult {
	objs, err := doc.ImageObjects()
	if err != nil {
		return stepWarning("images", fmt.Errorf("enumerate images: %w", err))
	}
	total := len(objs)
	res.Images = total
	l.Info().Int("images", total).Msg("found unique images")
	if total == 0 {
		return stepOK("images")
	}

	opts := imagecodec.Options{MaxDimension: s.MaxDimension, Mode: s.Mode, Quality: s.Quality, Extreme: s.Extreme}
	limit := a.ImageConcurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	var (
		mu       sync.Mutex
		done     int
		replaced atomic.Int32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, nr := range objs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := recompressOne(doc, nr, opts); err != nil {
				metrics.IncImage("skipped")
				l.Warn().Err(err).Int("object", nr).Msg("image recompress skipped")
			} else {
				metrics.IncImage("replaced")
				replaced.Add(1)
			}
			mu.Lock()
			done++
			rep.Report(jobs.StageImages, jobs.ImageProgress(done, total))
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	res.Replaced = int(replaced.Load())
	if err != nil {
		return stepFatal("images", err)
	}
	return stepOK("images")
}

func recompressOne(doc *Document, nr int, opts imagecodec.Options) error {
	img, err := doc.DecodeImage(nr)
	if err != nil {
		return err
	}
	enc, err := imagecodec.Recompress(img, opts)
	if err != nil {
		return &ImageError{ObjNr: nr, Reason: "encode", Err: err}
	}
	return doc.ReplaceImage(nr, enc)
}
