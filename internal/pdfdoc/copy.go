package pdfdoc

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog"

	"github.com/local/drawcompress/internal/jobs"
)

// collect copies the 0-based pages of src, in order and with repeats, into
// a new document.
var collect = func(src []byte, pages []int) ([]byte, error) {
	sel := make([]string, len(pages))
	for i, p := range pages {
		sel[i] = strconv.Itoa(p + 1)
	}
	var out bytes.Buffer
	if err := api.Collect(bytes.NewReader(src), &out, sel, newConfig()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// CopyPages builds a document holding pages of src. Link annotations,
// outlines and named destinations are carried over when possible; if the
// copy fails with them the source is stripped of navigation metadata and
// copied again. A second failure is a *jobs.PageCopyError.
func CopyPages(src []byte, pages []int, logger zerolog.Logger) ([]byte, error) {
	out, err := collect(src, pages)
	if err == nil {
		return out, nil
	}
	logger.Warn().Err(err).Int("pages", len(pages)).Msg("page copy failed; copying without links")

	stripped, serr := stripNavigation(src)
	if serr != nil {
		return nil, &jobs.PageCopyError{Pages: pages, Err: fmt.Errorf("%v; strip navigation: %w", err, serr)}
	}
	out, err = collect(stripped, pages)
	if err != nil {
		return nil, &jobs.PageCopyError{Pages: pages, Err: err}
	}
	return out, nil
}

func stripNavigation(src []byte) ([]byte, error) {
	ctx, err := api.ReadContext(bytes.NewReader(src), newConfig())
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	d := &Document{ctx: ctx}
	if err := d.StripNavigation(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StripNavigation removes link annotations, the outline tree, named
// destinations and the open action.
func (d *Document) StripNavigation() error {
	root, err := d.ctx.Catalog()
	if err != nil {
		return err
	}
	for _, k := range []string{"Outlines", "Dests", "OpenAction"} {
		delete(root, k)
	}
	if n, ok := root.Find("Names"); ok {
		if names, err := d.ctx.DereferenceDict(n); err == nil && names != nil {
			delete(names, "Dests")
		}
	}

	pages, err := d.pageDicts()
	if err != nil {
		return err
	}
	for _, p := range pages {
		obj, ok := p.dict.Find("Annots")
		if !ok {
			continue
		}
		annots, err := d.ctx.DereferenceArray(obj)
		if err != nil {
			delete(p.dict, "Annots")
			continue
		}
		kept := types.Array{}
		for _, a := range annots {
			ad, err := d.ctx.DereferenceDict(a)
			if err != nil || ad == nil {
				continue
			}
			if st := ad.Subtype(); st != nil && *st == "Link" {
				continue
			}
			kept = append(kept, a)
		}
		if len(kept) == 0 {
			delete(p.dict, "Annots")
		} else {
			p.dict["Annots"] = kept
		}
	}
	return nil
}
