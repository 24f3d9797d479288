package pdfdoc

import (
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// StripAnnotations removes every annotation from every page and returns the
// number of annotations dropped.
func (d *Document) StripAnnotations() (int, error) {
	pages, err := d.pageDicts()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range pages {
		obj, ok := p.dict.Find("Annots")
		if !ok {
			continue
		}
		if arr, err := d.ctx.DereferenceArray(obj); err == nil {
			n += len(arr)
		}
		delete(p.dict, "Annots")
	}
	return n, nil
}

// RemoveScriptAttachments drops every embedded file whose name ends in ".js"
// and returns the removed names.
func (d *Document) RemoveScriptAttachments() ([]string, error) {
	root, err := d.ctx.Catalog()
	if err != nil {
		return nil, err
	}
	obj, ok := root.Find("Names")
	if !ok {
		return nil, nil
	}
	names, err := d.ctx.DereferenceDict(obj)
	if err != nil || names == nil {
		return nil, err
	}
	ef, ok := names.Find("EmbeddedFiles")
	if !ok {
		return nil, nil
	}
	var removed []string
	err = d.pruneNameTree(ef, 0, &removed)
	return removed, err
}

func (d *Document) pruneNameTree(obj types.Object, depth int, removed *[]string) error {
	if depth > maxTreeDepth {
		return nil
	}
	node, err := d.ctx.DereferenceDict(obj)
	if err != nil || node == nil {
		return err
	}
	if kidsObj, ok := node.Find("Kids"); ok {
		if kids, err := d.ctx.DereferenceArray(kidsObj); err == nil {
			for _, k := range kids {
				if err := d.pruneNameTree(k, depth+1, removed); err != nil {
					return err
				}
			}
		}
	}
	pairsObj, ok := node.Find("Names")
	if !ok {
		return nil
	}
	pairs, err := d.ctx.DereferenceArray(pairsObj)
	if err != nil {
		return err
	}
	kept := types.Array{}
	for i := 0; i+1 < len(pairs); i += 2 {
		name := d.attachmentName(pairs[i], pairs[i+1])
		if strings.HasSuffix(strings.ToLower(name), ".js") {
			*removed = append(*removed, name)
			continue
		}
		kept = append(kept, pairs[i], pairs[i+1])
	}
	node["Names"] = kept
	return nil
}

// attachmentName prefers the file specification's UF or F entry and falls
// back to the name-tree key.
func (d *Document) attachmentName(key, spec types.Object) string {
	if fs, err := d.ctx.DereferenceDict(spec); err == nil && fs != nil {
		for _, k := range []string{"UF", "F"} {
			if v, ok := fs.Find(k); ok {
				if o, err := d.ctx.Dereference(v); err == nil {
					if s := decodeText(o); s != "" {
						return s
					}
				}
			}
		}
	}
	return decodeText(key)
}

// decodeText turns a PDF string object into Go text. Anything that is not a
// string, or fails to decode, yields "".
func decodeText(o types.Object) string {
	s, err := types.StringOrHexLiteral(o)
	if err != nil || s == nil {
		return ""
	}
	return *s
}
