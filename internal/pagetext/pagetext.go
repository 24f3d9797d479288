// Package pagetext extracts per-page text for drawing classification: the
// whole page through MuPDF and the title-block corner from positioned glyphs.
package pagetext

import (
	"bytes"
	"fmt"
	"os"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"github.com/local/drawcompress/internal/classifier"
)

// Opener implements classifier.Opener on top of go-fitz and ledongthuc/pdf.
type Opener struct {
	// Region is the title-block rectangle as page-size fractions measured
	// from the top-left corner. Zero value means DefaultRegion.
	Region Region
}

// Open opens path with MuPDF for page count and full text. The glyph reader
// for the title block is optional: if it cannot parse the file, title-block
// text is empty and classification relies on the full text.
func (o Opener) Open(path string) (classifier.Doc, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open with mupdf: %w", err)
	}
	d := &Doc{fitz: doc, region: o.Region}
	if d.region == (Region{}) {
		d.region = DefaultRegion
	}
	f, r, err := openGlyphReader(path)
	if err != nil {
		log.Debug().Err(err).Str("file", path).Msg("title block reader unavailable")
	} else {
		d.file, d.glyphs = f, r
	}
	return d, nil
}

func openGlyphReader(path string) (f *os.File, r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parse pdf: %v", rec)
		}
	}()
	return pdf.Open(path)
}

// Doc is an open drawing set.
type Doc struct {
	fitz   *fitz.Document
	file   *os.File
	glyphs *pdf.Reader
	region Region
}

func (d *Doc) NumPage() int { return d.fitz.NumPage() }

// PageText returns the full text and title-block text of the 0-based page i.
func (d *Doc) PageText(i int) (string, string, error) {
	full, err := d.fitz.Text(i)
	if err != nil {
		return "", "", fmt.Errorf("page %d text: %w", i+1, err)
	}
	if d.glyphs == nil {
		return full, "", nil
	}
	corner, err := regionText(d.glyphs, i, d.region)
	if err != nil {
		log.Debug().Err(err).Int("page", i+1).Msg("title block text unavailable")
		return full, "", nil
	}
	return full, corner, nil
}

func (d *Doc) Close() error {
	if d.file != nil {
		_ = d.file.Close()
	}
	return d.fitz.Close()
}

// PageCount returns the number of pages of the PDF at path.
func PageCount(path string) (int, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, fmt.Errorf("open with mupdf: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

var readinessPDF = minimalPDF()

// minimalPDF is a blank one-page document with a correct xref table, so
// MuPDF opens it without repairing.
func minimalPDF() []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 72 72] >>",
	}
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

// Probe opens a one-page document in memory to check that MuPDF works.
func Probe() error {
	doc, err := fitz.NewFromMemory(readinessPDF)
	if err != nil {
		return fmt.Errorf("open with mupdf: %w", err)
	}
	defer doc.Close()
	if n := doc.NumPage(); n != 1 {
		return fmt.Errorf("mupdf probe: got %d pages", n)
	}
	return nil
}
