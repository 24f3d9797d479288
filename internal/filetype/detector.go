// Package filetype checks uploads by magic bytes.
package filetype

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const pdfMIME = "application/pdf"

// Info is the result of a detection.
type Info struct {
	MIMEType  string
	Extension string
	// Supported is true when the content is a PDF.
	Supported bool
}

// Detector checks uploads. Only PDFs are supported; the filename must carry
// a .pdf extension and the content must sniff as PDF.
type Detector struct{}

func New() *Detector { return &Detector{} }

// Detect sniffs the first bytes of r. The reader is consumed.
func (d *Detector) Detect(r io.Reader) (*Info, error) {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := &Info{MIMEType: mtype.String(), Extension: mtype.Extension(), Supported: mtype.Is(pdfMIME)}
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Msg("detected file type")
	return info, nil
}

// DetectFile is Detect on a file path.
func (d *Detector) DetectFile(path string) (*Info, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	return &Info{MIMEType: mtype.String(), Extension: mtype.Extension(), Supported: mtype.Is(pdfMIME)}, nil
}

// HasPDFName reports whether filename ends in .pdf, ignoring case.
func HasPDFName(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}
