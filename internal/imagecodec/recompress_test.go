package imagecodec

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func photo(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), uint8(x + y), 0xFF})
		}
	}
	return img
}

func TestRecompressGeneralDownscalesToGrayJPEG(t *testing.T) {
	enc, err := Recompress(photo(2000, 1500), Options{MaxDimension: 1000, Mode: ModeGeneral, Quality: 60})
	require.NoError(t, err)

	assert.Equal(t, FormatJPEG, enc.Format)
	assert.Equal(t, 1000, enc.Width)
	assert.Equal(t, 750, enc.Height)
	assert.Equal(t, 1, enc.Components)
	assert.Equal(t, 8, enc.BitsPerComponent())

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(enc.Data))
	require.NoError(t, err)
	assert.Equal(t, color.GrayModel, cfg.ColorModel)
	assert.Equal(t, 1000, cfg.Width)
	assert.True(t, bytes.Contains(enc.Data, []byte{0xFF, 0xC0}), "baseline SOF0 frame")
	assert.False(t, bytes.Contains(enc.Data, []byte{0xFF, 0xC2}), "no progressive frame")
}

func TestRecompressPortraitUsesHeightAsLargerSide(t *testing.T) {
	enc, err := Recompress(photo(300, 1200), Options{MaxDimension: 600, Mode: ModeGeneral, Quality: 60})
	require.NoError(t, err)
	assert.Equal(t, 600, enc.Height)
	assert.Equal(t, 150, enc.Width)
}

func TestRecompressNeverUpscales(t *testing.T) {
	enc, err := Recompress(photo(120, 80), Options{MaxDimension: 1000, Mode: ModeGeneral, Quality: 60})
	require.NoError(t, err)
	assert.Equal(t, 120, enc.Width)
	assert.Equal(t, 80, enc.Height)
}

func TestRecompressMixedKeepsColour(t *testing.T) {
	enc, err := Recompress(photo(64, 64), Options{MaxDimension: 1000, Mode: ModeMixed, Quality: 80})
	require.NoError(t, err)
	assert.Equal(t, 3, enc.Components)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(enc.Data))
	require.NoError(t, err)
	assert.Equal(t, color.YCbCrModel, cfg.ColorModel)
}

func TestRecompressBilevel(t *testing.T) {
	for _, opts := range []Options{
		{MaxDimension: 1000, Mode: ModeLineArt, Quality: 60},
		{MaxDimension: 1000, Mode: ModeGeneral, Quality: 60, Extreme: true},
	} {
		enc, err := Recompress(photo(40, 30), opts)
		require.NoError(t, err)
		assert.Equal(t, FormatCCITTG4, enc.Format)
		assert.Equal(t, 1, enc.Components)
		assert.Equal(t, 1, enc.BitsPerComponent())
		decodeG4(t, enc.Data, enc.Width, enc.Height)
	}
}

func TestRecompressBilevelKeepsSolidBlack(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 20, 10))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	for x := 0; x < 20; x++ {
		img.SetGray(x, 5, color.Gray{})
	}
	enc, err := Recompress(img, Options{Mode: ModeLineArt})
	require.NoError(t, err)

	got := decodeG4(t, enc.Data, 20, 10)
	for x := 0; x < 20; x++ {
		assert.Equal(t, uint8(0), got.GrayAt(x, 5).Y)
		assert.Equal(t, uint8(0xFF), got.GrayAt(x, 0).Y)
	}
}

func TestRecompressBytesDecodesPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, photo(200, 100)))

	enc, err := RecompressBytes(buf.Bytes(), Options{MaxDimension: 100, Mode: ModeGeneral, Quality: 50})
	require.NoError(t, err)
	assert.Equal(t, 100, enc.Width)
	assert.Equal(t, 50, enc.Height)

	_, err = RecompressBytes([]byte("not an image"), Options{})
	assert.Error(t, err)
}

func TestClampQuality(t *testing.T) {
	assert.Equal(t, 20, ClampQuality(5))
	assert.Equal(t, 95, ClampQuality(100))
	assert.Equal(t, 60, ClampQuality(60))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeGeneral, m)

	m, err = ParseMode("LINE_ART")
	require.NoError(t, err)
	assert.Equal(t, ModeLineArt, m)

	_, err = ParseMode("sepia")
	assert.Error(t, err)
}
