package jobs

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrResultNotReady = errors.New("result not ready")
)

// ValidationError reports bad user input: settings, page lists, uploads.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// PageCopyError is returned when pages cannot be copied into the working
// document even after navigation metadata was stripped.
type PageCopyError struct {
	Pages []int
	Err   error
}

func (e *PageCopyError) Error() string {
	return fmt.Sprintf("copy %d pages: %v", len(e.Pages), e.Err)
}

func (e *PageCopyError) Unwrap() error { return e.Err }

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
