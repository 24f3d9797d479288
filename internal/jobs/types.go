package jobs

import (
	"time"

	"github.com/local/drawcompress/internal/imagecodec"
)

// State is the lifecycle state of a compression job.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateError   State = "error"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool { return s == StateDone || s == StateError }

// Settings are the user-facing knobs of a compression job.
type Settings struct {
	Quality      int             `json:"quality"`
	MaxDimension int             `json:"max_dimension"`
	Mode         imagecodec.Mode `json:"drawing_mode"`
	Extreme      bool            `json:"extreme"`
	// Pages is an ordered 1-based subset; empty means every page.
	Pages []int `json:"pages,omitempty"`
}

const (
	DefaultQuality      = 60
	DefaultMaxDimension = 1000
)

// DefaultSettings mirrors the defaults of the /compress form.
func DefaultSettings() Settings {
	return Settings{Quality: DefaultQuality, MaxDimension: DefaultMaxDimension, Mode: imagecodec.ModeGeneral}
}

// Normalize clamps quality and validates the remaining fields.
func (s Settings) Normalize() (Settings, error) {
	s.Quality = imagecodec.ClampQuality(s.Quality)
	if s.MaxDimension <= 0 {
		return s, &ValidationError{Message: "max_dimension must be positive"}
	}
	mode, err := imagecodec.ParseMode(string(s.Mode))
	if err != nil {
		return s, &ValidationError{Message: err.Error()}
	}
	s.Mode = mode
	if len(s.Pages) > 0 {
		s.Pages = append([]int(nil), s.Pages...)
	}
	return s, nil
}

// Snapshot is an immutable view of a job. Registries replace snapshots
// wholesale; a snapshot handed out is never mutated afterwards.
type Snapshot struct {
	ID        string    `json:"job_id"`
	State     State     `json:"status"`
	Stage     string    `json:"stage"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
	InputPath string    `json:"-"`
	Output    []byte    `json:"-"`
	ResultKey string    `json:"result_key,omitempty"`
	Settings  Settings  `json:"settings"`
}

// StatusLabel is what clients poll: the stage label while running, the
// state name otherwise.
func (s Snapshot) StatusLabel() string {
	if s.State == StateRunning && s.Stage != "" {
		return s.Stage
	}
	return string(s.State)
}

// OutputSize returns the size of the finished document in bytes.
func (s Snapshot) OutputSize() int { return len(s.Output) }
