package imagecodec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
)

// Decode reads an encoded raster (JPEG, PNG, ...) and applies any EXIF
// orientation it carries. Orientation problems are not fatal: imaging falls
// back to the stored orientation when the tag is missing or unreadable.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// RecompressBytes decodes data and re-encodes it with opts.
func RecompressBytes(data []byte, opts Options) (*Encoded, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Recompress(img, opts)
}

// Recompress downsamples img so that its larger side does not exceed
// opts.MaxDimension and re-encodes it: 1-bit CCITT Group 4 for line art or
// extreme mode, grayscale JPEG for general drawings, RGB JPEG for mixed.
// JPEGs are baseline with standard Huffman tables: image/jpeg has no
// progressive or optimised-table mode.
func Recompress(img image.Image, opts Options) (*Encoded, error) {
	if img == nil {
		return nil, fmt.Errorf("recompress: nil image")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("recompress: empty image %dx%d", b.Dx(), b.Dy())
	}

	img = fit(img, opts.MaxDimension)
	b = img.Bounds()

	if opts.Bilevel() {
		bw := dither(img)
		data := EncodeG4(b.Dx(), b.Dy(), func(x, y int) bool {
			return bw.Pix[y*bw.Stride+x] == 0
		})
		log.Debug().Int("width", b.Dx()).Int("height", b.Dy()).Int("bytes", len(data)).Msg("encoded bilevel image as CCITT G4")
		return &Encoded{Data: data, Format: FormatCCITTG4, Width: b.Dx(), Height: b.Dy(), Components: 1}, nil
	}

	q := ClampQuality(opts.Quality)
	var (
		out        image.Image
		components int
	)
	if opts.Mode == ModeMixed {
		out, components = flatten(img), 3
	} else {
		gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(gray, gray.Bounds(), flatten(img), image.Point{}, draw.Src)
		out, components = gray, 1
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	log.Debug().Int("width", b.Dx()).Int("height", b.Dy()).Int("components", components).Int("quality", q).Int("bytes", buf.Len()).Msg("encoded image as JPEG")
	return &Encoded{Data: buf.Bytes(), Format: FormatJPEG, Width: b.Dx(), Height: b.Dy(), Components: components}, nil
}

// fit scales img down with Lanczos resampling so that the larger side equals
// max. Images already within bounds are returned untouched.
func fit(img image.Image, max int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if max <= 0 || (w <= max && h <= max) {
		return img
	}
	if w >= h {
		return imaging.Resize(img, max, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, max, imaging.Lanczos)
}

// flatten composites img over an opaque white canvas anchored at the origin.
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

var bilevelPalette = color.Palette{color.Black, color.White}

// dither reduces img to black and white with Floyd-Steinberg error diffusion.
// Index 0 in the result is black.
func dither(img image.Image) *image.Paletted {
	src := flatten(img)
	dst := image.NewPaletted(src.Bounds(), bilevelPalette)
	draw.FloydSteinberg.Draw(dst, dst.Bounds(), src, image.Point{})
	return dst
}
