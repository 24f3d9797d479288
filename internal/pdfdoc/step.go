package pdfdoc

import "github.com/rs/zerolog"

// StepStatus grades the outcome of one assembly step.
type StepStatus int

const (
	StepOK StepStatus = iota
	// StepWarning means the step degraded but the job continues.
	StepWarning
	// StepFatal fails the job.
	StepFatal
)

func (s StepStatus) String() string {
	switch s {
	case StepOK:
		return "ok"
	case StepWarning:
		return "warning"
	case StepFatal:
		return "fatal"
	}
	return "unknown"
}

// StepResult is returned by every assembly step and checked by the
// assembler before moving on.
type StepResult struct {
	Step   string
	Status StepStatus
	Err    error
}

func stepOK(step string) StepResult { return StepResult{Step: step, Status: StepOK} }

func stepWarning(step string, err error) StepResult {
	return StepResult{Step: step, Status: StepWarning, Err: err}
}

func stepFatal(step string, err error) StepResult {
	return StepResult{Step: step, Status: StepFatal, Err: err}
}

// check logs warnings and returns the error of a fatal step.
func (r StepResult) check(logger zerolog.Logger) error {
	switch r.Status {
	case StepWarning:
		logger.Warn().Err(r.Err).Str("step", r.Step).Msg("step degraded")
	case StepFatal:
		return r.Err
	}
	return nil
}
