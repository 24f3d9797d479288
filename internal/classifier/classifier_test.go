package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		page Page
		want Label
	}{
		{"title block sheet number", Page{TitleBlock: "SHEET A-101", Full: "HVAC LAYOUT"}, Architectural},
		{"title block beats full text", Page{TitleBlock: "S2.1", Full: "SHEET M-201"}, Structural},
		{"lowercase input", Page{TitleBlock: "e 401"}, Electrical},
		{"range class accepts comma", Page{TitleBlock: "P,3"}, Plumbing},
		{"cover sheet number", Page{TitleBlock: "G001"}, CoverTitle},
		{"fire protection prefix", Page{TitleBlock: "FP-2"}, FireSafety},
		{"plain F prefix", Page{TitleBlock: "F1"}, FireSafety},
		{"needs word boundary", Page{TitleBlock: "BA1 XS2"}, Other},
		{"full text sheet number", Page{Full: "PROJECT 12 / L-3 PLANTING"}, Landscape},
		{"discipline keyword order", Page{Full: "MECHANICAL AND ELECTRICAL COORDINATION"}, Mechanical},
		{"fire keywords first", Page{Full: "SPRINKLER LAYOUT AT FLOOR PLAN"}, FireSafety},
		{"architectural keyword", Page{Full: "FIRST FLOOR PLAN"}, Architectural},
		{"admin fallback", Page{Full: "DOOR SCHEDULE"}, Schedules},
		{"cover beats schedule", Page{Full: "SHEET INDEX AND SCHEDULE"}, CoverTitle},
		{"details", Page{Full: "TYPICAL CONNECTION"}, Details},
		{"nothing matches", Page{Full: "NOTHING TO SEE"}, Other},
		{"empty", Page{}, Other},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.page))
		})
	}
}

type fakePage struct {
	full, corner string
	err          error
}

type fakeDoc struct {
	pages  []fakePage
	closed bool
}

func (d *fakeDoc) NumPage() int { return len(d.pages) }
func (d *fakeDoc) PageText(i int) (string, string, error) {
	p := d.pages[i]
	return p.full, p.corner, p.err
}
func (d *fakeDoc) Close() error { d.closed = true; return nil }

type fakeOpener struct {
	doc *fakeDoc
	err error
}

func (o fakeOpener) Open(string) (Doc, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.doc, nil
}

func TestAnalyzeThreePageSet(t *testing.T) {
	doc := &fakeDoc{pages: []fakePage{
		{full: "COVER SHEET", corner: ""},
		{full: "FIRST FLOOR PLAN", corner: "A-101"},
		{full: "HVAC LAYOUT", corner: "M-201"},
	}}
	a, err := Analyze(context.Background(), fakeOpener{doc: doc}, "set.pdf")
	require.NoError(t, err)

	assert.Equal(t, 3, a.TotalPages)
	assert.Equal(t, []int{1}, a.Sections[CoverTitle])
	assert.Equal(t, []int{2}, a.Sections[Architectural])
	assert.Equal(t, []int{3}, a.Sections[Mechanical])
	assert.Len(t, a.Sections, len(Labels))
	assert.Equal(t, []int{}, a.Sections[Structural])
	assert.True(t, doc.closed)
}

func TestAnalyzePageErrorsBecomeOther(t *testing.T) {
	doc := &fakeDoc{pages: []fakePage{
		{full: "A-1", err: errors.New("broken content stream")},
		{full: "S-1"},
	}}
	a, err := Analyze(context.Background(), fakeOpener{doc: doc}, "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, a.Sections[Other])
	assert.Equal(t, []int{2}, a.Sections[Structural])
}

func TestAnalyzeEveryPageOnce(t *testing.T) {
	doc := &fakeDoc{}
	for i := 0; i < 25; i++ {
		doc.pages = append(doc.pages, fakePage{full: []string{"A1", "DETAIL", "", "E-2", "LEGEND"}[i%5]})
	}
	a, err := Analyze(context.Background(), fakeOpener{doc: doc}, "x.pdf")
	require.NoError(t, err)

	seen := map[int]int{}
	for _, pages := range a.Sections {
		for _, p := range pages {
			seen[p]++
		}
	}
	assert.Len(t, seen, 25)
	for p, n := range seen {
		assert.Equalf(t, 1, n, "page %d", p)
	}
}

func TestAnalyzeOpenError(t *testing.T) {
	_, err := Analyze(context.Background(), fakeOpener{err: errors.New("not a pdf")}, "x.pdf")
	assert.Error(t, err)
}

func TestAnalyzeHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Analyze(ctx, fakeOpener{doc: &fakeDoc{pages: []fakePage{{}}}}, "x.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}
