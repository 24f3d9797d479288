package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: level, Out: &buf}))
	return &buf
}

func TestForJobTagsEvents(t *testing.T) {
	buf := capture(t, "info")
	l := ForJob("job-1")
	l.Info().Str("stage", "Saving document...").Msg("progress")
	l.Debug().Msg("dropped")

	var ev map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ev), buf.String())
	assert.Equal(t, "job-1", ev["job_id"])
	assert.Equal(t, service, ev["service"])
	assert.Equal(t, "Saving document...", ev["stage"])
	assert.NotContains(t, buf.String(), "dropped")
}

func TestCtx(t *testing.T) {
	buf := capture(t, "debug")
	global := Ctx(context.Background())
	global.Info().Msg("global")
	assert.Contains(t, buf.String(), `"message":"global"`)

	buf.Reset()
	tagged := ForJob("job-2")
	scoped := Ctx(tagged.WithContext(context.Background()))
	scoped.Info().Msg("scoped")
	assert.Contains(t, buf.String(), `"job_id":"job-2"`)
}

func TestInitWritesFile(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	require.NoError(t, Init(Options{Level: "bogus", File: path, Out: &bytes.Buffer{}}))
	assert.Equal(t, zerolog.InfoLevel, log.Logger.GetLevel(), "unknown levels fall back to info")
	assert.DirExists(t, filepath.Dir(path))
}
