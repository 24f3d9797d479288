package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Doc abstracts a PDF document for per-page text extraction.
type Doc interface {
	NumPage() int
	// PageText returns the full text and the title-block text of the
	// 0-based page i.
	PageText(i int) (full, titleBlock string, err error)
	Close() error
}

// Opener abstracts opening a PDF path into a Doc.
type Opener interface {
	Open(path string) (Doc, error)
}

// Analysis is the per-discipline breakdown of a drawing set.
type Analysis struct {
	TotalPages int             `json:"total_pages"`
	Sections   map[Label][]int `json:"sections"`
}

// NewAnalysis returns an analysis with every category present and empty.
func NewAnalysis(total int) *Analysis {
	a := &Analysis{TotalPages: total, Sections: make(map[Label][]int, len(Labels))}
	for _, l := range Labels {
		a.Sections[l] = []int{}
	}
	return a
}

// Analyze classifies every page of the PDF at path. Page numbers in the
// result are 1-based and ascending within each category. A page whose text
// cannot be read is classified from empty text.
func Analyze(ctx context.Context, opener Opener, path string) (*Analysis, error) {
	start := time.Now()
	doc, err := opener.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	a := NewAnalysis(n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		full, corner, err := doc.PageText(i)
		if err != nil {
			log.Debug().Err(err).Int("page", i+1).Msg("page text unavailable; classifying as empty")
			full, corner = "", ""
		}
		l := Classify(Page{Full: full, TitleBlock: corner})
		a.Sections[l] = append(a.Sections[l], i+1)
	}
	log.Info().Str("file", path).Int("total_pages", n).Dur("took", time.Since(start)).Msg("analyzed drawing set")
	return a, nil
}
