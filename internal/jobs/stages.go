package jobs

import "fmt"

// Stage labels and the progress reported when each stage starts.
const (
	StageInitializing = "Initializing..."
	StageAllPages     = "Processing all pages..."
	StageCleanup      = "Cleaning annotations & attachments..."
	StageImages       = "Recompressing images..."
	StageSaving       = "Saving document..."
	StageGhostscript  = "Applying Ghostscript compression..."
	StageOptimizing   = "Optimizing final PDF structure..."
)

const (
	ProgressInitializing = 5
	ProgressPages        = 10
	ProgressCleanup      = 15
	ProgressImages       = 20
	ProgressSaving       = 82
	ProgressGhostscript  = 90
	ProgressOptimizing   = 95
	ProgressDone         = 100
)

// StageExtracting labels the page-subset copy.
func StageExtracting(n int) string { return fmt.Sprintf("Extracting %d selected pages...", n) }

// ImageProgress maps the i-th of total recompressed images onto 20..80.
func ImageProgress(i, total int) int {
	if total < 1 {
		total = 1
	}
	if i > total {
		i = total
	}
	return ProgressImages + i*60/total
}

// Reporter receives stage transitions from long-running steps.
type Reporter interface {
	Report(stage string, progress int)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(stage string, progress int)

func (f ReporterFunc) Report(stage string, progress int) { f(stage, progress) }

// Discard is a Reporter that drops every update.
var Discard Reporter = ReporterFunc(func(string, int) {})
