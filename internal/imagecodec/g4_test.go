package imagecodec

import (
	"bytes"
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/ccitt"
)

func decodeG4(t *testing.T, data []byte, w, h int) *image.Gray {
	t.Helper()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	require.NoError(t, ccitt.DecodeIntoGray(dst, bytes.NewReader(data), ccitt.MSB, ccitt.Group4, nil))
	return dst
}

func TestEncodeG4RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cases := []struct {
		name  string
		w, h  int
		black func(x, y int) bool
	}{
		{"all white", 64, 8, func(x, y int) bool { return false }},
		{"all black", 64, 8, func(x, y int) bool { return true }},
		{"single pixel", 1, 1, func(x, y int) bool { return true }},
		{"stripes", 97, 13, func(x, y int) bool { return (x/7+y)%3 == 0 }},
		{"diagonal", 50, 50, func(x, y int) bool { return x == y || x == 49-y }},
		{"long runs", 3000, 4, func(x, y int) bool { return x > 2700-y*400 }},
		{"noise", 123, 31, func() func(x, y int) bool {
			bits := make([]bool, 123*31)
			for i := range bits {
				bits[i] = rng.Intn(2) == 0
			}
			return func(x, y int) bool { return bits[y*123+x] }
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := EncodeG4(tc.w, tc.h, tc.black)
			got := decodeG4(t, data, tc.w, tc.h)
			for y := 0; y < tc.h; y++ {
				for x := 0; x < tc.w; x++ {
					want := uint8(0xFF)
					if tc.black(x, y) {
						want = 0x00
					}
					require.Equalf(t, want, got.Pix[y*got.Stride+x], "pixel (%d,%d)", x, y)
				}
			}
		})
	}
}

func TestEncodeG4EndsWithEOFB(t *testing.T) {
	data := EncodeG4(16, 1, func(x, y int) bool { return false })
	// one V0 for the blank row, then 24 bits of EOFB, padded
	require.Equal(t, []byte{0x80, 0x08, 0x00, 0x80}, data)
}
