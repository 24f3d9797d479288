package pagetext

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Region is a rectangle in page-size fractions, origin at the top-left.
type Region struct {
	X0, Y0, X1, Y1 float64
}

// DefaultRegion is the bottom-right title block: (0.7w, 0.7h) to (w, h).
var DefaultRegion = Region{X0: 0.7, Y0: 0.7, X1: 1, Y1: 1}

type box struct {
	llx, lly, urx, ury float64
}

func (b box) width() float64  { return b.urx - b.llx }
func (b box) height() float64 { return b.ury - b.lly }

var letterBox = box{0, 0, 612, 792}

// geometry is the visible area of a page and its clockwise display rotation.
type geometry struct {
	box    box
	rotate int
}

// pageGeometry resolves MediaBox, CropBox and Rotate, each of which may be
// inherited from an ancestor Pages node. The crop box is clipped to the
// media box.
func pageGeometry(page pdf.Value) geometry {
	var media, crop *box
	rotate, haveRotate := 0, false
	v := page
	for i := 0; i < 32 && !v.IsNull(); i++ {
		if media == nil {
			media = boxEntry(v, "MediaBox")
		}
		if crop == nil {
			crop = boxEntry(v, "CropBox")
		}
		if r := v.Key("Rotate"); !haveRotate && r.Kind() == pdf.Integer {
			rotate, haveRotate = int(r.Int64()), true
		}
		v = v.Key("Parent")
	}
	g := geometry{box: letterBox, rotate: normalizeRotation(rotate)}
	if media != nil {
		g.box = *media
	}
	if crop != nil {
		c := box{
			llx: math.Max(crop.llx, g.box.llx), lly: math.Max(crop.lly, g.box.lly),
			urx: math.Min(crop.urx, g.box.urx), ury: math.Min(crop.ury, g.box.ury),
		}
		if c.width() > 0 && c.height() > 0 {
			g.box = c
		}
	}
	return g
}

func boxEntry(v pdf.Value, key string) *box {
	a := v.Key(key)
	if a.Kind() != pdf.Array || a.Len() != 4 {
		return nil
	}
	b := box{a.Index(0).Float64(), a.Index(1).Float64(), a.Index(2).Float64(), a.Index(3).Float64()}
	if b.llx > b.urx {
		b.llx, b.urx = b.urx, b.llx
	}
	if b.lly > b.ury {
		b.lly, b.ury = b.ury, b.lly
	}
	if b.width() <= 0 || b.height() <= 0 {
		return nil
	}
	return &b
}

// normalizeRotation maps any multiple of 90 onto 0, 90, 180 or 270.
// Other values are treated as 0, as viewers do.
func normalizeRotation(deg int) int {
	if deg%90 != 0 {
		return 0
	}
	return ((deg % 360) + 360) % 360
}

type glyph struct {
	x, y, w, size float64
	s             string
}

// contains reports whether a glyph origin lies inside the region of the page
// as displayed: rotation applied, y measured downward from the top edge.
func (r Region) contains(g geometry, gl glyph) bool {
	u := (gl.x - g.box.llx) / g.box.width()
	v := (g.box.ury - gl.y) / g.box.height()
	fx, fy := u, v
	switch g.rotate {
	case 90:
		fx, fy = 1-v, u
	case 180:
		fx, fy = 1-u, 1-v
	case 270:
		fx, fy = v, 1-u
	}
	return fx >= r.X0 && fx <= r.X1 && fy >= r.Y0 && fy <= r.Y1
}

func regionText(rd *pdf.Reader, i int, r Region) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d glyphs: %v", i+1, rec)
		}
	}()
	if i < 0 || i >= rd.NumPage() {
		return "", fmt.Errorf("page %d out of range", i+1)
	}
	p := rd.Page(i + 1)
	if p.V.IsNull() {
		return "", fmt.Errorf("page %d missing", i+1)
	}
	geo := pageGeometry(p.V)
	var in []glyph
	for _, t := range p.Content().Text {
		g := glyph{x: t.X, y: t.Y, w: t.W, size: t.FontSize, s: t.S}
		if r.contains(geo, g) {
			in = append(in, g)
		}
	}
	return joinGlyphs(in), nil
}

// joinGlyphs orders glyphs top-to-bottom then left-to-right and joins them
// into lines. A glyph joins the current line when its baseline is within half
// a font size of the line's first glyph.
func joinGlyphs(gs []glyph) string {
	if len(gs) == 0 {
		return ""
	}
	sort.SliceStable(gs, func(a, b int) bool { return gs[a].y > gs[b].y })

	var lines [][]glyph
	for _, g := range gs {
		n := len(lines)
		if n > 0 && math.Abs(lines[n-1][0].y-g.y) <= lineTolerance(lines[n-1][0], g) {
			lines[n-1] = append(lines[n-1], g)
			continue
		}
		lines = append(lines, []glyph{g})
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		sort.SliceStable(line, func(a, b int) bool { return line[a].x < line[b].x })
		var sb strings.Builder
		for k, g := range line {
			if k > 0 {
				prev := line[k-1]
				if g.x-(prev.x+advance(prev)) > 0.25*size(prev) && !strings.HasSuffix(prev.s, " ") && !strings.HasPrefix(g.s, " ") {
					sb.WriteByte(' ')
				}
			}
			sb.WriteString(g.s)
		}
		out = append(out, sb.String())
	}
	return strings.Join(out, "\n")
}

func size(g glyph) float64 {
	if g.size > 0 {
		return g.size
	}
	return 10
}

func advance(g glyph) float64 {
	if g.w > 0 {
		return g.w
	}
	return 0.5 * size(g) * float64(len([]rune(g.s)))
}

func lineTolerance(a, b glyph) float64 {
	return 0.5 * math.Max(size(a), size(b))
}
