package bridge

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/local/drawcompress/internal/logger"
	"github.com/local/drawcompress/internal/metrics"
)

const toolOptimizer = "pdfcpu"

// Optimizer runs pdfcpu's structural optimisation in process: unreferenced
// resources removed, duplicate streams merged, object and xref streams
// written. pdfcpu does not linearize.
type Optimizer struct{}

// Run optimises in and reports failures.
func (Optimizer) Run(ctx context.Context, in []byte) (out []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &ToolFailureError{Tool: toolOptimizer, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	var buf bytes.Buffer
	if err := api.Optimize(bytes.NewReader(in), &buf, conf); err != nil {
		return nil, &ToolFailureError{Tool: toolOptimizer, Err: err}
	}
	if buf.Len() == 0 {
		return nil, &ToolFailureError{Tool: toolOptimizer, Err: errEmptyOutput}
	}
	return buf.Bytes(), nil
}

// Optimize is Run with fallback: any failure returns in unchanged.
func (o Optimizer) Optimize(ctx context.Context, in []byte) []byte {
	l := logger.Ctx(ctx)
	start := time.Now()
	out, err := o.Run(ctx, in)
	metrics.ObserveStage("optimize", time.Since(start))
	if err != nil {
		metrics.IncToolRun(toolOptimizer, "failed")
		l.Error().Err(err).Str("tool", toolOptimizer).Msg("optimize failed; keeping previous bytes")
		return in
	}
	metrics.IncToolRun(toolOptimizer, "ok")
	l.Info().Str("tool", toolOptimizer).Int("in", len(in)).Int("out", len(out)).Msg("structure optimized")
	return out
}
