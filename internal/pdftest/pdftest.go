// Package pdftest builds small, valid PDF documents for tests: text placed at
// fixed coordinates, shared or form-nested image XObjects, annotations and
// embedded files.
package pdftest

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/local/drawcompress/internal/imagecodec"
)

// Text is a string drawn with Helvetica at (X, Y) in PDF user space.
type Text struct {
	X, Y float64
	Size float64
	S    string
}

// Image is an image XObject. Data is already encoded according to Filter.
type Image struct {
	Width, Height int
	ColorSpace    string // a name such as DeviceRGB, or a literal array "[...]"
	BPC           int
	Filter        string // "", FlateDecode, DCTDecode or CCITTFaxDecode
	DecodeParms   string // literal dictionary, e.g. "<< /K -1 >>"
	ImageMask     bool
	Data          []byte
}

// Page is one sheet. Images and FormImages index Doc.Images; FormImages are
// drawn through a single form XObject.
type Page struct {
	Width, Height float64
	Texts         []Text
	Images        []int
	FormImages    []int
	Links         int
	Notes         int
	// Rotate is the /Rotate entry in degrees; CropBox, when set, is
	// [llx lly urx ury].
	Rotate  int
	CropBox []float64
}

// Attachment is an embedded file registered in the EmbeddedFiles name tree.
type Attachment struct {
	Name string
	Data []byte
}

// Doc describes a document to build.
type Doc struct {
	Pages       []Page
	Images      []Image
	Attachments []Attachment
	Outline     bool
}

// FlateRGB returns img as an 8-bit DeviceRGB image compressed with Flate.
func FlateRGB(img image.Image) Image {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	raw := make([]byte, 0, b.Dx()*b.Dy()*3)
	for i := 0; i < len(rgba.Pix); i += 4 {
		raw = append(raw, rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2])
	}
	return Image{Width: b.Dx(), Height: b.Dy(), ColorSpace: "DeviceRGB", BPC: 8, Filter: "FlateDecode", Data: deflate(raw)}
}

// JPEG returns img as a DCT-encoded DeviceRGB image.
func JPEG(img image.Image) Image {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	b := img.Bounds()
	return Image{Width: b.Dx(), Height: b.Dy(), ColorSpace: "DeviceRGB", BPC: 8, Filter: "DCTDecode", Data: buf.Bytes()}
}

// Indexed returns an 8-bit palette image over DeviceRGB, Flate compressed.
// index picks the palette entry of each pixel.
func Indexed(w, h int, palette []color.RGBA, index func(x, y int) byte) Image {
	lookup := make([]byte, 0, len(palette)*3)
	for _, c := range palette {
		lookup = append(lookup, c.R, c.G, c.B)
	}
	raw := make([]byte, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			raw = append(raw, index(x, y))
		}
	}
	return Image{
		Width: w, Height: h, BPC: 8, Filter: "FlateDecode", Data: deflate(raw),
		ColorSpace: fmt.Sprintf("[/Indexed /DeviceRGB %d <%X>]", len(palette)-1, lookup),
	}
}

// CCITT returns a Group 4 encoded 1-bit DeviceGray image, as scanners write
// them. black reports the ink pixels.
func CCITT(w, h int, black func(x, y int) bool) Image {
	return Image{
		Width: w, Height: h, ColorSpace: "DeviceGray", BPC: 1, Filter: "CCITTFaxDecode",
		DecodeParms: fmt.Sprintf("<< /K -1 /Columns %d /Rows %d >>", w, h),
		Data:        imagecodec.EncodeG4(w, h, black),
	}
}

// Stencil returns a 1-bit image mask.
func Stencil(w, h int) Image {
	raw := make([]byte, (w+7)/8*h)
	return Image{Width: w, Height: h, BPC: 1, ImageMask: true, Filter: "FlateDecode", Data: deflate(raw)}
}

func deflate(p []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write(p)
	_ = zw.Close()
	return buf.Bytes()
}

type builder struct {
	objs [][]byte
}

func (b *builder) reserve() int {
	b.objs = append(b.objs, nil)
	return len(b.objs)
}

func (b *builder) set(n int, body string) { b.objs[n-1] = []byte(body) }

func (b *builder) setStream(n int, dict string, data []byte) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<< %s /Length %d >>\nstream\n", dict, len(data))
	buf.Write(data)
	buf.WriteString("\nendstream")
	b.objs[n-1] = buf.Bytes()
}

func (b *builder) bytes(root int) []byte {
	var out bytes.Buffer
	out.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")
	offsets := make([]int, len(b.objs))
	for i, body := range b.objs {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n", i+1)
		out.Write(body)
		out.WriteString("\nendobj\n")
	}
	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f \n", len(b.objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.objs)+1, root, xref)
	return out.Bytes()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

// Bytes renders the document.
func (d Doc) Bytes() []byte {
	b := &builder{}
	catalog := b.reserve()
	pages := b.reserve()
	font := b.reserve()
	b.set(font, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	images := make([]int, len(d.Images))
	for i, img := range d.Images {
		images[i] = b.reserve()
		var dict string
		if img.ImageMask {
			dict = fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ImageMask true /BitsPerComponent 1", img.Width, img.Height)
		} else {
			cs := img.ColorSpace
			if !strings.HasPrefix(cs, "[") {
				cs = "/" + cs
			}
			dict = fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace %s /BitsPerComponent %d", img.Width, img.Height, cs, img.BPC)
		}
		if img.Filter != "" {
			dict += " /Filter /" + img.Filter
		}
		if img.DecodeParms != "" {
			dict += " /DecodeParms " + img.DecodeParms
		}
		b.setStream(images[i], dict, img.Data)
	}

	kids := make([]string, 0, len(d.Pages))
	var firstPage int
	for pi, p := range d.Pages {
		w, h := p.Width, p.Height
		if w == 0 {
			w, h = 612, 792
		}
		page := b.reserve()
		if pi == 0 {
			firstPage = page
		}
		content := b.reserve()
		kids = append(kids, fmt.Sprintf("%d 0 R", page))

		var cs strings.Builder
		var xobjs []string
		for _, t := range p.Texts {
			size := t.Size
			if size == 0 {
				size = 12
			}
			fmt.Fprintf(&cs, "BT /F1 %g Tf 1 0 0 1 %g %g Tm (%s) Tj ET\n", size, t.X, t.Y, escape(t.S))
		}
		for k, idx := range p.Images {
			name := fmt.Sprintf("Im%d", k)
			xobjs = append(xobjs, fmt.Sprintf("/%s %d 0 R", name, images[idx]))
			fmt.Fprintf(&cs, "q 100 0 0 100 %d 100 cm /%s Do Q\n", 10+k*110, name)
		}
		if len(p.FormImages) > 0 {
			form := b.reserve()
			var fcs strings.Builder
			var fx []string
			for k, idx := range p.FormImages {
				name := fmt.Sprintf("Fi%d", k)
				fx = append(fx, fmt.Sprintf("/%s %d 0 R", name, images[idx]))
				fmt.Fprintf(&fcs, "q 50 0 0 50 %d 0 cm /%s Do Q\n", k*60, name)
			}
			b.setStream(form, fmt.Sprintf("/Type /XObject /Subtype /Form /BBox [0 0 %g %g] /Resources << /XObject << %s >> >>", w, h, strings.Join(fx, " ")), []byte(fcs.String()))
			xobjs = append(xobjs, fmt.Sprintf("/Fm0 %d 0 R", form))
			cs.WriteString("q 1 0 0 1 0 400 cm /Fm0 Do Q\n")
		}
		b.setStream(content, "", []byte(cs.String()))

		var annots []string
		for k := 0; k < p.Links; k++ {
			a := b.reserve()
			b.set(a, fmt.Sprintf("<< /Type /Annot /Subtype /Link /Rect [%d 10 %d 30] /Border [0 0 0] /A << /S /URI /URI (https://example.com/%d) >> >>", 10+k*30, 30+k*30, k))
			annots = append(annots, fmt.Sprintf("%d 0 R", a))
		}
		for k := 0; k < p.Notes; k++ {
			a := b.reserve()
			b.set(a, fmt.Sprintf("<< /Type /Annot /Subtype /Text /Rect [%d 50 %d 70] /Contents (note %d) >>", 10+k*30, 30+k*30, k))
			annots = append(annots, fmt.Sprintf("%d 0 R", a))
		}

		res := fmt.Sprintf("/Font << /F1 %d 0 R >>", font)
		if len(xobjs) > 0 {
			res += " /XObject << " + strings.Join(xobjs, " ") + " >>"
		}
		body := fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %g %g] /Resources << %s >> /Contents %d 0 R", pages, w, h, res, content)
		if len(annots) > 0 {
			body += " /Annots [" + strings.Join(annots, " ") + "]"
		}
		if p.Rotate != 0 {
			body += fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		if len(p.CropBox) == 4 {
			body += fmt.Sprintf(" /CropBox [%g %g %g %g]", p.CropBox[0], p.CropBox[1], p.CropBox[2], p.CropBox[3])
		}
		b.set(page, body+" >>")
	}
	b.set(pages, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids)))

	cat := fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R", pages)
	if len(d.Attachments) > 0 {
		var names []string
		for _, a := range d.Attachments {
			ef := b.reserve()
			b.setStream(ef, "/Type /EmbeddedFile", a.Data)
			spec := b.reserve()
			b.set(spec, fmt.Sprintf("<< /Type /Filespec /F (%s) /UF (%s) /EF << /F %d 0 R >> >>", escape(a.Name), escape(a.Name), ef))
			names = append(names, fmt.Sprintf("(%s) %d 0 R", escape(a.Name), spec))
		}
		cat += " /Names << /EmbeddedFiles << /Names [" + strings.Join(names, " ") + "] >> >>"
	}
	if d.Outline && firstPage > 0 {
		outlines := b.reserve()
		item := b.reserve()
		b.set(outlines, fmt.Sprintf("<< /Type /Outlines /First %d 0 R /Last %d 0 R /Count 1 >>", item, item))
		b.set(item, fmt.Sprintf("<< /Title (Sheet 1) /Parent %d 0 R /Dest [%d 0 R /Fit] >>", outlines, firstPage))
		cat += fmt.Sprintf(" /Outlines %d 0 R /OpenAction [%d 0 R /Fit]", outlines, firstPage)
	}
	b.set(catalog, cat+" >>")
	return b.bytes(catalog)
}

// WriteFile renders the document into dir and returns its path.
func (d Doc) WriteFile(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, d.Bytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// TextPage returns a US letter page with body text near the top-left and a
// sheet label in the bottom-right title block.
func TextPage(body, sheet string) Page {
	p := Page{Width: 612, Height: 792}
	if body != "" {
		p.Texts = append(p.Texts, Text{X: 72, Y: 700, Size: 14, S: body})
	}
	if sheet != "" {
		p.Texts = append(p.Texts, Text{X: 500, Y: 40, Size: 12, S: sheet})
	}
	return p
}
