// Package pdfdoc assembles the working document of a compression job on top
// of pdfcpu: page subsetting, annotation and attachment cleanup, in-place
// image replacement and the final structural save.
package pdfdoc

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// maxTreeDepth bounds page-tree and form-XObject recursion on malformed files.
const maxTreeDepth = 64

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Document is a parsed PDF held in memory. Image replacement is safe for
// concurrent use; every other method must be called from one goroutine.
type Document struct {
	ctx *model.Context
	mu  sync.Mutex
}

// Parse reads and validates a PDF.
func Parse(data []byte) (*Document, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), newConfig())
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate pdf: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	return &Document{ctx: ctx}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return d.ctx.PageCount }

// pageDicts returns the page dictionaries in document order, each paired
// with its effective (possibly inherited) resource dictionary.
func (d *Document) pageDicts() ([]pageNode, error) {
	root, err := d.ctx.Catalog()
	if err != nil {
		return nil, err
	}
	obj, ok := root.Find("Pages")
	if !ok {
		return nil, fmt.Errorf("catalog has no page tree")
	}
	var out []pageNode
	err = d.walkPages(obj, nil, 0, &out)
	return out, err
}

type pageNode struct {
	dict      types.Dict
	resources types.Dict
}

func (d *Document) walkPages(obj types.Object, inherited types.Dict, depth int, out *[]pageNode) error {
	if depth > maxTreeDepth {
		return fmt.Errorf("page tree deeper than %d", maxTreeDepth)
	}
	node, err := d.ctx.DereferenceDict(obj)
	if err != nil {
		return err
	}
	if node == nil {
		return nil
	}
	res := inherited
	if r, ok := node.Find("Resources"); ok {
		if rd, err := d.ctx.DereferenceDict(r); err == nil && rd != nil {
			res = rd
		}
	}
	if t := node.Type(); t != nil && *t == "Page" {
		*out = append(*out, pageNode{dict: node, resources: res})
		return nil
	}
	kidsObj, ok := node.Find("Kids")
	if !ok {
		return nil
	}
	kids, err := d.ctx.DereferenceArray(kidsObj)
	if err != nil {
		return err
	}
	for _, k := range kids {
		if err := d.walkPages(k, res, depth+1, out); err != nil {
			return err
		}
	}
	return nil
}

// streamDict returns a copy of the stream dictionary stored under objNr.
func (d *Document) streamDict(objNr int) (types.StreamDict, bool) {
	entry, ok := d.ctx.Table[objNr]
	if !ok || entry == nil || entry.Free {
		return types.StreamDict{}, false
	}
	sd, ok := entry.Object.(types.StreamDict)
	return sd, ok
}

func (d *Document) storeStreamDict(objNr int, sd types.StreamDict) error {
	entry, ok := d.ctx.Table[objNr]
	if !ok || entry == nil {
		return fmt.Errorf("object %d not found", objNr)
	}
	entry.Object = sd
	return nil
}

// ImageObjects returns the object numbers of every image XObject reachable
// from page resources, including images nested in form XObjects. Each image
// appears once, in ascending object-number order.
func (d *Document) ImageObjects() ([]int, error) {
	pages, err := d.pageDicts()
	if err != nil {
		return nil, err
	}
	images := map[int]struct{}{}
	forms := map[int]struct{}{}
	for _, p := range pages {
		d.collectImages(p.resources, images, forms, 0)
	}
	out := make([]int, 0, len(images))
	for nr := range images {
		out = append(out, nr)
	}
	sort.Ints(out)
	return out, nil
}

func (d *Document) collectImages(res types.Dict, images, forms map[int]struct{}, depth int) {
	if res == nil || depth > maxTreeDepth {
		return
	}
	xo, ok := res.Find("XObject")
	if !ok {
		return
	}
	xobjects, err := d.ctx.DereferenceDict(xo)
	if err != nil || xobjects == nil {
		return
	}
	for _, v := range xobjects {
		ir, ok := v.(types.IndirectRef)
		if !ok {
			continue
		}
		nr := ir.ObjectNumber.Value()
		sd, ok := d.streamDict(nr)
		if !ok {
			continue
		}
		st := sd.Subtype()
		if st == nil {
			continue
		}
		switch *st {
		case "Image":
			images[nr] = struct{}{}
		case "Form":
			if _, seen := forms[nr]; seen {
				continue
			}
			forms[nr] = struct{}{}
			if r, ok := sd.Find("Resources"); ok {
				if rd, err := d.ctx.DereferenceDict(r); err == nil {
					d.collectImages(rd, images, forms, depth+1)
				}
			}
		}
	}
}

// Write performs the final structural save: unreferenced objects are
// dropped, duplicate resources merged, unfiltered streams Flate-encoded, and
// the result written with object and xref streams.
func (d *Document) Write(w io.Writer) error {
	if err := api.OptimizeContext(d.ctx); err != nil {
		return fmt.Errorf("optimize: %w", err)
	}
	d.compressStreams()
	if err := api.WriteContext(d.ctx, w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// Bytes is Write into a buffer.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const minCompressLen = 64

func (d *Document) compressStreams() {
	for nr, entry := range d.ctx.Table {
		if entry == nil || entry.Free {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok || len(sd.FilterPipeline) > 0 || len(sd.Raw) < minCompressLen {
			continue
		}
		if _, filtered := sd.Find("Filter"); filtered {
			continue
		}
		if t := sd.Type(); t != nil && (*t == "XRef" || *t == "ObjStm") {
			continue
		}
		sd.Content = sd.Raw
		sd.FilterPipeline = []types.PDFFilter{{Name: "FlateDecode"}}
		sd.Dict["Filter"] = types.Name("FlateDecode")
		if err := sd.Encode(); err != nil {
			continue
		}
		l := int64(len(sd.Raw))
		sd.StreamLength = &l
		sd.StreamLengthObjNr = nil
		sd.Dict["Length"] = types.Integer(l)
		_ = d.storeStreamDict(nr, sd)
	}
}
