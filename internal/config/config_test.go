package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PLANCTL_SERVER_URL", "PLANCTL_CLIENT_TIMEOUT", "PLANCTL_SKIP_REASON_POLICY",
		"PLANCTL_STATE_DIR", "PLANCTL_LOG_FILE", "PLANCTL_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	// Point the overlay at a non-existent file so a developer's real config
	// does not leak into the test.
	t.Setenv("PLANCTL_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg := Load()
	assert.Equal(t, "http://localhost:5000", cfg.ServerURL)
	assert.Equal(t, 2*time.Minute, cfg.ClientTimeout)
	assert.Equal(t, "require", cfg.SkipReasonPolicy)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.NotEmpty(t, cfg.StateDir)
	assert.NotEmpty(t, cfg.LogFile)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PLANCTL_SERVER_URL", "http://planning.example:8080")
	t.Setenv("PLANCTL_CLIENT_TIMEOUT", "30s")
	t.Setenv("PLANCTL_SKIP_REASON_POLICY", "placeholder")
	t.Setenv("PLANCTL_LOG_LEVEL", "debug")
	t.Setenv("PLANCTL_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg := Load()
	assert.Equal(t, "http://planning.example:8080", cfg.ServerURL)
	assert.Equal(t, 30*time.Second, cfg.ClientTimeout)
	assert.Equal(t, "placeholder", cfg.SkipReasonPolicy)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadFileOverlayWinsOverEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"server_url: http://from-file:7000\nclient_timeout: 45s\nlog_level: error\n"), 0o644))

	t.Setenv("PLANCTL_SERVER_URL", "http://from-env:6000")
	t.Setenv("PLANCTL_SKIP_REASON_POLICY", "placeholder")
	t.Setenv("PLANCTL_CONFIG", path)

	cfg := Load()
	assert.Equal(t, "http://from-file:7000", cfg.ServerURL)
	assert.Equal(t, 45*time.Second, cfg.ClientTimeout)
	assert.Equal(t, slog.LevelError, cfg.LogLevel)
	// Fields the file leaves out keep their environment values.
	assert.Equal(t, "placeholder", cfg.SkipReasonPolicy)
}

func TestLoadUnparsableFileIsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: [broken"), 0o644))

	t.Setenv("PLANCTL_SERVER_URL", "http://from-env:6000")
	t.Setenv("PLANCTL_CONFIG", path)

	cfg := Load()
	assert.Equal(t, "http://from-env:6000", cfg.ServerURL)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("not-a-duration", time.Minute))
}

func TestSetupLoggerWithWritersFansOut(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("roster uploaded", "tasks", 3)

	assert.Contains(t, stderr.String(), "roster uploaded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	assert.Equal(t, "roster uploaded", entry["msg"])
	assert.EqualValues(t, 3, entry["tasks"])
}
