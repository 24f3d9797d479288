package imagecodec

import (
	"fmt"
	"strings"
)

// Mode selects how an embedded raster is re-encoded.
type Mode string

const (
	ModeGeneral Mode = "general"
	ModeLineArt Mode = "line_art"
	ModeMixed   Mode = "mixed"
)

// ParseMode accepts the drawing_mode values understood by the service.
// An empty string maps to ModeGeneral.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeGeneral:
		return ModeGeneral, nil
	case ModeLineArt:
		return ModeLineArt, nil
	case ModeMixed:
		return ModeMixed, nil
	}
	return "", fmt.Errorf("unknown drawing mode %q", s)
}

// Format is the encoding of a recompressed image stream.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatCCITTG4 Format = "ccitt-g4"
)

const (
	MinQuality = 20
	MaxQuality = 95
)

// ClampQuality bounds q to the JPEG quality range accepted by the pipeline.
func ClampQuality(q int) int {
	if q < MinQuality {
		return MinQuality
	}
	if q > MaxQuality {
		return MaxQuality
	}
	return q
}

// Options controls a single Recompress call.
type Options struct {
	MaxDimension int
	Mode         Mode
	Quality      int
	Extreme      bool
}

// Bilevel reports whether the options force 1-bit Group 4 output.
func (o Options) Bilevel() bool { return o.Extreme || o.Mode == ModeLineArt }

// Encoded is a re-encoded image ready to be embedded as an image XObject.
type Encoded struct {
	Data       []byte
	Format     Format
	Width      int
	Height     int
	Components int
}

// BitsPerComponent returns the sample depth of the encoded stream.
func (e *Encoded) BitsPerComponent() int {
	if e.Format == FormatCCITTG4 {
		return 1
	}
	return 8
}
