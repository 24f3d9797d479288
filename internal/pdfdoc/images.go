package pdfdoc

import (
	"fmt"
	"image"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/filter"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/drawcompress/internal/imagecodec"
)

// ImageError describes an image XObject that was left untouched.
type ImageError struct {
	ObjNr  int
	Reason string
	Err    error
}

func (e *ImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("image %d: %s: %v", e.ObjNr, e.Reason, e.Err)
	}
	return fmt.Sprintf("image %d: %s", e.ObjNr, e.Reason)
}

func (e *ImageError) Unwrap() error { return e.Err }

// DecodeImage returns the pixels of the image XObject objNr. Plain JPEGs are
// decoded directly; every other raster is rendered by pdfcpu to PNG or TIFF
// first, which covers Indexed, ICCBased, CalRGB, DeviceN and Separation
// colour spaces, 1 to 16 bits per component and CCITT or RunLength sources.
func (d *Document) DecodeImage(objNr int) (image.Image, error) {
	data, err := d.extractImage(objNr)
	if err != nil {
		return nil, err
	}
	img, err := imagecodec.Decode(data)
	if err != nil {
		return nil, &ImageError{ObjNr: objNr, Reason: "decode raster", Err: err}
	}
	return img, nil
}

// extractImage returns objNr as an encoded raster. The pdfcpu context is not
// safe for concurrent use, so rendering happens under the document lock.
func (d *Document) extractImage(objNr int) (data []byte, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			data, err = nil, &ImageError{ObjNr: objNr, Reason: "render", Err: fmt.Errorf("%v", rec)}
		}
	}()

	sd, ok := d.streamDict(objNr)
	if !ok {
		return nil, &ImageError{ObjNr: objNr, Reason: "not a stream"}
	}
	if b := sd.BooleanEntry("ImageMask"); b != nil && *b {
		return nil, &ImageError{ObjNr: objNr, Reason: "stencil mask"}
	}
	if len(sd.FilterPipeline) == 1 && sd.FilterPipeline[0].Name == filter.DCT {
		return sd.Raw, nil
	}

	// pdfcpu decodes into Content and may add a ColorSpace entry; keep the
	// stored object untouched until ReplaceImage.
	work := sd
	work.Dict = sd.Dict.Clone().(types.Dict)
	work.Content = nil
	img, err := pdfcpu.ExtractImage(d.ctx, &work, false, "", objNr, false)
	if err != nil {
		return nil, &ImageError{ObjNr: objNr, Reason: "render", Err: err}
	}
	if img == nil || img.Reader == nil {
		return nil, &ImageError{ObjNr: objNr, Reason: "unsupported " + describe(sd)}
	}
	if img.FileType == "jpx" {
		return nil, &ImageError{ObjNr: objNr, Reason: "unsupported filter JPXDecode"}
	}
	data, err = io.ReadAll(img.Reader)
	if err != nil {
		return nil, &ImageError{ObjNr: objNr, Reason: "render", Err: err}
	}
	return data, nil
}

// describe names the filters and colour space of sd for log messages.
func describe(sd types.StreamDict) string {
	names := make([]string, len(sd.FilterPipeline))
	for i, f := range sd.FilterPipeline {
		names[i] = f.Name
	}
	cs := "none"
	if o, ok := sd.Find("ColorSpace"); ok {
		cs = o.String()
	}
	return fmt.Sprintf("image (filters %v, colour space %s)", names, cs)
}

// ReplaceImage swaps the stream of image objNr for enc in place, so every
// page referencing the object picks up the new encoding.
func (d *Document) ReplaceImage(objNr int, enc *imagecodec.Encoded) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sd, ok := d.streamDict(objNr)
	if !ok {
		return &ImageError{ObjNr: objNr, Reason: "not a stream"}
	}

	l := int64(len(enc.Data))
	sd.Raw = enc.Data
	sd.Content = nil
	sd.StreamLength = &l
	sd.StreamLengthObjNr = nil
	sd.Dict["Length"] = types.Integer(l)
	sd.Dict["Width"] = types.Integer(enc.Width)
	sd.Dict["Height"] = types.Integer(enc.Height)
	sd.Dict["BitsPerComponent"] = types.Integer(enc.BitsPerComponent())
	delete(sd.Dict, "Decode")
	delete(sd.Dict, "DecodeParms")
	if m, ok := sd.Find("Mask"); ok {
		if _, isArray := m.(types.Array); isArray {
			delete(sd.Dict, "Mask")
		}
	}

	switch enc.Format {
	case imagecodec.FormatCCITTG4:
		parms := types.Dict{
			"K":        types.Integer(-1),
			"Columns":  types.Integer(enc.Width),
			"Rows":     types.Integer(enc.Height),
			"BlackIs1": types.Boolean(false),
		}
		sd.Dict["Filter"] = types.Name("CCITTFaxDecode")
		sd.Dict["DecodeParms"] = parms
		sd.Dict["ColorSpace"] = types.Name("DeviceGray")
		sd.FilterPipeline = []types.PDFFilter{{Name: "CCITTFaxDecode", DecodeParms: parms}}
	default:
		cs := "DeviceGray"
		if enc.Components == 3 {
			cs = "DeviceRGB"
		}
		sd.Dict["Filter"] = types.Name("DCTDecode")
		sd.Dict["ColorSpace"] = types.Name(cs)
		sd.FilterPipeline = []types.PDFFilter{{Name: "DCTDecode"}}
	}
	return d.storeStreamDict(objNr, sd)
}
