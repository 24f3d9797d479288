package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/local/drawcompress/internal/bridge"
	"github.com/local/drawcompress/internal/imagecodec"
	"github.com/local/drawcompress/internal/jobs"
	"github.com/local/drawcompress/internal/orchestrator"
	"github.com/local/drawcompress/internal/pagetext"
	"github.com/local/drawcompress/internal/pdfdoc"
	"github.com/local/drawcompress/internal/queue"
)

var (
	compressOutput  string
	compressQuality int
	compressMaxDim  int
	compressMode    string
	compressPages   []int
	compressExtreme bool
	compressGS      []string
	compressQuiet   bool
)

var compressCmd = &cobra.Command{
	Use:   "compress <pdf>",
	Short: "Extract and compress a drawing set",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompress,
}

func init() {
	f := compressCmd.Flags()
	f.StringVarP(&compressOutput, "output", "o", "", "output PDF path (required)")
	f.IntVarP(&compressQuality, "quality", "q", jobs.DefaultQuality, "JPEG quality, clamped to 20..95")
	f.IntVar(&compressMaxDim, "max-dimension", jobs.DefaultMaxDimension, "longest image side in pixels")
	f.StringVarP(&compressMode, "mode", "m", string(imagecodec.ModeGeneral), "drawing mode: general, line_art or mixed")
	f.IntSliceVarP(&compressPages, "pages", "p", nil, "1-based pages to keep, in order (default all)")
	f.BoolVarP(&compressExtreme, "extreme", "x", false, "strip annotations and scripts, bilevel images, /screen profile")
	f.StringSliceVar(&compressGS, "gs", bridge.DefaultBinaries, "Ghostscript binaries to try")
	f.BoolVar(&compressQuiet, "quiet", false, "do not print progress")
	_ = compressCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(compressCmd)
}

func runCompress(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	work, err := os.MkdirTemp("", "drawctl-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(work)

	// Submit takes ownership of its input, so hand it a copy.
	staged := filepath.Join(work, "source.pdf")
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	if err := os.WriteFile(staged, data, 0o600); err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Config{TempDir: work}, orchestrator.Dependencies{
		Queue:       queue.NewMemory(),
		Assembler:   &pdfdoc.Assembler{},
		Distiller:   &bridge.Ghostscript{Binaries: compressGS},
		Optimizer:   bridge.Optimizer{},
		PageCounter: pagetext.PageCount,
	})
	id, err := orch.Submit(ctx, staged, jobs.Settings{
		Quality:      compressQuality,
		MaxDimension: compressMaxDim,
		Mode:         imagecodec.Mode(compressMode),
		Extreme:      compressExtreme,
		Pages:        compressPages,
	})
	if err != nil {
		return err
	}

	updates, cancel, err := orch.Subscribe(id)
	if err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range updates {
			if !compressQuiet && s.State == jobs.StateRunning {
				fmt.Fprintf(os.Stderr, "\r%3d%% %-40s", s.Progress, s.StatusLabel())
			}
		}
	}()
	runErr := orch.Run(ctx, id)
	cancel()
	<-done
	if !compressQuiet {
		fmt.Fprintln(os.Stderr)
	}
	if runErr != nil {
		return runErr
	}

	out, err := orch.GetResult(ctx, id)
	if err != nil {
		return err
	}
	if err := os.WriteFile(compressOutput, out, 0o644); err != nil {
		return err
	}
	fmt.Printf("%s: %s -> %s (%s)\n", compressOutput, mb(len(data)), mb(len(out)), ratio(len(data), len(out)))
	return nil
}

func mb(n int) string { return fmt.Sprintf("%.2f MB", float64(n)/1024/1024) }

func ratio(in, out int) string {
	if in == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%% of input", 100*float64(out)/float64(in))
}
