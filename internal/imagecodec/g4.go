package imagecodec

// CCITT T.6 (Group 4) encoder for 1-bit rasters. Output is MSB-first,
// K=-1, terminated by EOFB, with white as the zero colour (BlackIs1 false).

type code struct {
	bits uint32
	n    uint8
}

type bitWriter struct {
	buf  []byte
	acc  uint32
	nacc uint8
}

func (w *bitWriter) put(c code) {
	for i := int(c.n) - 1; i >= 0; i-- {
		w.acc = w.acc<<1 | (c.bits>>uint(i))&1
		w.nacc++
		if w.nacc == 8 {
			w.buf = append(w.buf, byte(w.acc))
			w.acc, w.nacc = 0, 0
		}
	}
}

func (w *bitWriter) flush() []byte {
	if w.nacc > 0 {
		w.buf = append(w.buf, byte(w.acc<<(8-w.nacc)))
		w.acc, w.nacc = 0, 0
	}
	return w.buf
}

var (
	codePass = code{0x1, 4}
	codeH    = code{0x1, 3}
	codeEOL  = code{0x1, 12}

	// indexed by a1-b1+3
	codeV = [7]code{
		{0x2, 7}, // VL3
		{0x2, 6}, // VL2
		{0x2, 3}, // VL1
		{0x1, 1}, // V0
		{0x3, 3}, // VR1
		{0x3, 6}, // VR2
		{0x3, 7}, // VR3
	}
)

// EncodeG4 encodes a w x h bilevel raster. black reports whether the pixel at
// (x, y) is black.
func EncodeG4(w, h int, black func(x, y int) bool) []byte {
	bw := &bitWriter{buf: make([]byte, 0, w*h/32+16)}
	ref := make([]bool, w)
	cur := make([]bool, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cur[x] = black(x, y)
		}
		encodeRow(bw, ref, cur)
		ref, cur = cur, ref
	}
	bw.put(codeEOL)
	bw.put(codeEOL)
	return bw.flush()
}

func encodeRow(bw *bitWriter, ref, cur []bool) {
	width := len(cur)
	a0 := -1
	isBlack := false
	for a0 < width {
		a1 := nextChange(cur, a0)
		b1 := nextChange(ref, a0)
		if b1 < width && ref[b1] == isBlack {
			b1 = nextChange(ref, b1)
		}
		b2 := width
		if b1 < width {
			b2 = nextChange(ref, b1)
		}

		switch d := a1 - b1; {
		case b2 < a1:
			bw.put(codePass)
			a0 = b2
		case d >= -3 && d <= 3:
			bw.put(codeV[d+3])
			a0 = a1
			isBlack = !isBlack
		default:
			a2 := width
			if a1 < width {
				a2 = nextChange(cur, a1)
			}
			start := a0
			if start < 0 {
				start = 0
			}
			bw.put(codeH)
			putRun(bw, a1-start, isBlack)
			putRun(bw, a2-a1, !isBlack)
			a0 = a2
		}
	}
}

// nextChange returns the first position after x whose colour differs from
// its left neighbour, or len(line). The pixel left of the line is white.
func nextChange(line []bool, x int) int {
	prev := false
	if x >= 0 && x < len(line) {
		prev = line[x]
	}
	for p := x + 1; p < len(line); p++ {
		if line[p] != prev {
			return p
		}
	}
	return len(line)
}

func putRun(bw *bitWriter, n int, isBlack bool) {
	term, makeup := whiteTerm[:], whiteMakeup[:]
	if isBlack {
		term, makeup = blackTerm[:], blackMakeup[:]
	}
	for n >= 2560+64 {
		bw.put(makeup[len(makeup)-1])
		n -= 2560
	}
	if n >= 64 {
		bw.put(makeup[n/64-1])
		n %= 64
	}
	bw.put(term[n])
}

// Terminating codes for runs 0..63.
var whiteTerm = [64]code{
	{0x35, 8}, {0x7, 6}, {0x7, 4}, {0x8, 4}, {0xB, 4}, {0xC, 4}, {0xE, 4}, {0xF, 4},
	{0x13, 5}, {0x14, 5}, {0x7, 5}, {0x8, 5}, {0x8, 6}, {0x3, 6}, {0x34, 6}, {0x35, 6},
	{0x2A, 6}, {0x2B, 6}, {0x27, 7}, {0xC, 7}, {0x8, 7}, {0x17, 7}, {0x3, 7}, {0x4, 7},
	{0x28, 7}, {0x2B, 7}, {0x13, 7}, {0x24, 7}, {0x18, 7}, {0x2, 8}, {0x3, 8}, {0x1A, 8},
	{0x1B, 8}, {0x12, 8}, {0x13, 8}, {0x14, 8}, {0x15, 8}, {0x16, 8}, {0x17, 8}, {0x28, 8},
	{0x29, 8}, {0x2A, 8}, {0x2B, 8}, {0x2C, 8}, {0x2D, 8}, {0x4, 8}, {0x5, 8}, {0xA, 8},
	{0xB, 8}, {0x52, 8}, {0x53, 8}, {0x54, 8}, {0x55, 8}, {0x24, 8}, {0x25, 8}, {0x58, 8},
	{0x59, 8}, {0x5A, 8}, {0x5B, 8}, {0x4A, 8}, {0x4B, 8}, {0x32, 8}, {0x33, 8}, {0x34, 8},
}

var blackTerm = [64]code{
	{0x37, 10}, {0x2, 3}, {0x3, 2}, {0x2, 2}, {0x3, 3}, {0x3, 4}, {0x2, 4}, {0x3, 5},
	{0x5, 6}, {0x4, 6}, {0x4, 7}, {0x5, 7}, {0x7, 7}, {0x4, 8}, {0x7, 8}, {0x18, 9},
	{0x17, 10}, {0x18, 10}, {0x8, 10}, {0x67, 11}, {0x68, 11}, {0x6C, 11}, {0x37, 11}, {0x28, 11},
	{0x17, 11}, {0x18, 11}, {0xCA, 12}, {0xCB, 12}, {0xCC, 12}, {0xCD, 12}, {0x68, 12}, {0x69, 12},
	{0x6A, 12}, {0x6B, 12}, {0xD2, 12}, {0xD3, 12}, {0xD4, 12}, {0xD5, 12}, {0xD6, 12}, {0xD7, 12},
	{0x6C, 12}, {0x6D, 12}, {0xDA, 12}, {0xDB, 12}, {0x54, 12}, {0x55, 12}, {0x56, 12}, {0x57, 12},
	{0x64, 12}, {0x65, 12}, {0x52, 12}, {0x53, 12}, {0x24, 12}, {0x37, 12}, {0x38, 12}, {0x27, 12},
	{0x28, 12}, {0x58, 12}, {0x59, 12}, {0x2B, 12}, {0x2C, 12}, {0x5A, 12}, {0x66, 12}, {0x67, 12},
}

// Makeup codes for runs 64, 128, ..., 2560. Entries from 1792 up are shared.
var whiteMakeup = [40]code{
	{0x1B, 5}, {0x12, 5}, {0x17, 6}, {0x37, 7}, {0x36, 8}, {0x37, 8}, {0x64, 8}, {0x65, 8},
	{0x68, 8}, {0x67, 8}, {0xCC, 9}, {0xCD, 9}, {0xD2, 9}, {0xD3, 9}, {0xD4, 9}, {0xD5, 9},
	{0xD6, 9}, {0xD7, 9}, {0xD8, 9}, {0xD9, 9}, {0xDA, 9}, {0xDB, 9}, {0x98, 9}, {0x99, 9},
	{0x9A, 9}, {0x18, 6}, {0x9B, 9}, {0x8, 11}, {0xC, 11}, {0xD, 11}, {0x12, 12}, {0x13, 12},
	{0x14, 12}, {0x15, 12}, {0x16, 12}, {0x17, 12}, {0x1C, 12}, {0x1D, 12}, {0x1E, 12}, {0x1F, 12},
}

var blackMakeup = [40]code{
	{0xF, 10}, {0xC8, 12}, {0xC9, 12}, {0x5B, 12}, {0x33, 12}, {0x34, 12}, {0x35, 12}, {0x6C, 13},
	{0x6D, 13}, {0x4A, 13}, {0x4B, 13}, {0x4C, 13}, {0x4D, 13}, {0x72, 13}, {0x73, 13}, {0x74, 13},
	{0x75, 13}, {0x76, 13}, {0x77, 13}, {0x52, 13}, {0x53, 13}, {0x54, 13}, {0x55, 13}, {0x5A, 13},
	{0x5B, 13}, {0x64, 13}, {0x65, 13}, {0x8, 11}, {0xC, 11}, {0xD, 11}, {0x12, 12}, {0x13, 12},
	{0x14, 12}, {0x15, 12}, {0x16, 12}, {0x17, 12}, {0x1C, 12}, {0x1D, 12}, {0x1E, 12}, {0x1F, 12},
}
