package filetype

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	d := New()
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"pdf", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n"), true},
		{"png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), false},
		{"text", []byte("hello world"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := d.Detect(bytes.NewReader(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.Supported, info.MIMEType)
		})
	}
}

func TestDetectFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4\n"), 0o644))
	info, err := New().DetectFile(p)
	require.NoError(t, err)
	assert.True(t, info.Supported)
	assert.Equal(t, ".pdf", info.Extension)

	_, err = New().DetectFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestHasPDFName(t *testing.T) {
	assert.True(t, HasPDFName("Sheet A-101.PDF"))
	assert.True(t, HasPDFName("x.pdf"))
	assert.False(t, HasPDFName("x.pdf.txt"))
	assert.False(t, HasPDFName(""))
}
