package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "MAX_UPLOAD_MB", "JOB_RETENTION", "SWEEP_INTERVAL", "QUEUE_BACKEND", "STATUS_MIRROR", "GHOSTSCRIPT_BINARIES", "WORKER_CONCURRENCY"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	assert.Equal(t, "5001", cfg.HTTP.Port)
	assert.Equal(t, int64(600<<20), cfg.HTTP.MaxUploadBytes)
	assert.Equal(t, time.Hour, cfg.Jobs.Retention)
	assert.Equal(t, 10*time.Minute, cfg.Jobs.SweepInterval)
	assert.Equal(t, []string{"gs", "gswin64c", "gswin32c"}, cfg.Tools.GhostscriptBinaries)
	assert.Equal(t, "memory", cfg.Queue.Backend)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.False(t, cfg.UsesRedis())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("MAX_UPLOAD_MB", "10")
	t.Setenv("JOB_RETENTION", "3600")
	t.Setenv("SWEEP_INTERVAL", "90s")
	t.Setenv("QUEUE_BACKEND", "Redis")
	t.Setenv("GHOSTSCRIPT_BINARIES", " gs9 , ,gs ")
	t.Setenv("WORKER_CONCURRENCY", "0")
	t.Setenv("STATUS_MIRROR", "on")

	cfg := FromEnv()
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, int64(10<<20), cfg.HTTP.MaxUploadBytes)
	assert.Equal(t, time.Hour, cfg.Jobs.Retention)
	assert.Equal(t, 90*time.Second, cfg.Jobs.SweepInterval)
	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.Equal(t, []string{"gs9", "gs"}, cfg.Tools.GhostscriptBinaries)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.True(t, cfg.Queue.StatusMirror)
	assert.True(t, cfg.UsesRedis())
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, 7, parseInt("x", 7))
	assert.Equal(t, 5*time.Second, parseDuration("nope", 5*time.Second))
	for _, v := range []string{"1", "true", "YES", " on "} {
		assert.True(t, parseBool(v), v)
	}
	assert.False(t, parseBool("0"))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, LoadDotEnv(), "missing files are fine")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DRAWCOMPRESS_TEST_A=env\nDRAWCOMPRESS_TEST_B=env\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("DRAWCOMPRESS_TEST_A=local\n"), 0o644))
	t.Setenv("DRAWCOMPRESS_TEST_A", "")
	t.Setenv("DRAWCOMPRESS_TEST_B", "")
	os.Unsetenv("DRAWCOMPRESS_TEST_A")
	os.Unsetenv("DRAWCOMPRESS_TEST_B")

	require.NoError(t, LoadDotEnv())
	assert.Equal(t, "local", os.Getenv("DRAWCOMPRESS_TEST_A"))
	assert.Equal(t, "env", os.Getenv("DRAWCOMPRESS_TEST_B"))
}
