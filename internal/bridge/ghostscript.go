// Package bridge wraps the external engines a job pipes its output through:
// Ghostscript re-distillation and pdfcpu structural optimisation. Both are
// byte-stream transforms that hand back their input when they cannot run.
package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/local/drawcompress/internal/limiter"
	"github.com/local/drawcompress/internal/logger"
	"github.com/local/drawcompress/internal/metrics"
)

const toolGhostscript = "ghostscript"

// DefaultBinaries are tried in order on PATH.
var DefaultBinaries = []string{"gs", "gswin64c", "gswin32c"}

// ToolUnavailableError means the tool could not be started at all.
type ToolUnavailableError struct {
	Tool   string
	Reason string
}

func (e *ToolUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %s", e.Tool, e.Reason)
}

// ToolFailureError means the tool ran and did not produce usable output.
type ToolFailureError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolFailureError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Tool)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ToolFailureError) Unwrap() error { return e.Err }

var errEmptyOutput = errors.New("empty output")

var baseArgs = []string{
	"-sDEVICE=pdfwrite",
	"-dNOPAUSE",
	"-dQUIET",
	"-dBATCH",
	"-sOutputFile=%stdout",
	"-dDetectDuplicateImages=true",
	"-dColorImageDownsampleType=/Bicubic",
	"-dGrayImageDownsampleType=/Bicubic",
	"-dMonoImageDownsampleType=/Subsample",
}

// Mono images stay at 300 dpi in the extreme profile so linework survives
// the 72 dpi colour and gray downsampling.
var extremeArgs = []string{
	"-dCompatibilityLevel=1.6",
	"-dPDFSETTINGS=/screen",
	"-dSubsetFonts=true",
	"-dCompressFonts=true",
	"-dAutoFilterMonoImages=false",
	"-sMonoImageFilter=/JBIG2Encode",
	"-dDownsampleColorImages=true",
	"-dDownsampleGrayImages=true",
	"-dDownsampleMonoImages=true",
	"-dColorImageResolution=72",
	"-dGrayImageResolution=72",
	"-dMonoImageResolution=300",
}

var balancedArgs = []string{
	"-dCompatibilityLevel=1.6",
	"-dPDFSETTINGS=/ebook",
	"-dSubsetFonts=true",
	"-dCompressFonts=true",
	"-dDownsampleColorImages=true",
	"-dDownsampleGrayImages=true",
	"-dDownsampleMonoImages=true",
	"-dColorImageResolution=150",
	"-dGrayImageResolution=150",
	"-dMonoImageResolution=600",
}

// Args returns the Ghostscript command line for a profile, reading the PDF
// from stdin.
func Args(extreme bool) []string {
	args := append([]string(nil), baseArgs...)
	if extreme {
		args = append(args, extremeArgs...)
	} else {
		args = append(args, balancedArgs...)
	}
	return append(args, "-")
}

// Ghostscript re-distills PDFs through the gs binary.
type Ghostscript struct {
	Binaries []string
	Limiter  *limiter.Limiter
	// Timeout bounds one run. Zero means no limit beyond the caller's ctx.
	Timeout time.Duration
}

// Find returns the first candidate binary found on PATH.
func (g *Ghostscript) Find() (string, error) {
	bins := g.Binaries
	if len(bins) == 0 {
		bins = DefaultBinaries
	}
	for _, b := range bins {
		if p, err := exec.LookPath(b); err == nil {
			return p, nil
		}
	}
	return "", &ToolUnavailableError{Tool: toolGhostscript, Reason: "none of " + strings.Join(bins, ", ") + " found on PATH"}
}

// Run re-distills in and returns typed errors on every failure.
func (g *Ghostscript) Run(ctx context.Context, in []byte, extreme bool) ([]byte, error) {
	bin, err := g.Find()
	if err != nil {
		return nil, err
	}
	if g.Limiter != nil {
		if g.Limiter.IsOpen() {
			return nil, &ToolUnavailableError{Tool: toolGhostscript, Reason: "cooling down after repeated failures"}
		}
		release, err := g.Limiter.Acquire(ctx)
		if err != nil {
			return nil, &ToolUnavailableError{Tool: toolGhostscript, Reason: err.Error()}
		}
		defer release()
	}
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, Args(extreme)...)
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		fe := &ToolFailureError{Tool: toolGhostscript, Stderr: trimOutput(stderr.String()), Err: err}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			fe.ExitCode = ee.ExitCode()
		}
		g.failure()
		return nil, fe
	}
	if stdout.Len() == 0 {
		g.failure()
		return nil, &ToolFailureError{Tool: toolGhostscript, Err: errEmptyOutput}
	}
	if g.Limiter != nil {
		g.Limiter.Success()
	}
	return stdout.Bytes(), nil
}

func (g *Ghostscript) failure() {
	if g.Limiter != nil {
		g.Limiter.Failure()
	}
}

// Distill is Run with fallback: any failure returns in unchanged.
func (g *Ghostscript) Distill(ctx context.Context, in []byte, extreme bool) []byte {
	l := logger.Ctx(ctx)
	start := time.Now()
	out, err := g.Run(ctx, in, extreme)
	metrics.ObserveStage("ghostscript", time.Since(start))
	if err != nil {
		var ue *ToolUnavailableError
		if errors.As(err, &ue) {
			metrics.IncToolRun(toolGhostscript, "unavailable")
		} else {
			metrics.IncToolRun(toolGhostscript, "failed")
		}
		l.Warn().Err(err).Str("tool", toolGhostscript).Msg("skipping Ghostscript compression")
		return in
	}
	metrics.IncToolRun(toolGhostscript, "ok")
	l.Info().Str("tool", toolGhostscript).Bool("extreme", extreme).Int("in", len(in)).Int("out", len(out)).Msg("Ghostscript compression done")
	return out
}

func trimOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
