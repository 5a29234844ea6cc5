package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSystemd() *bool {
	b := false
	return &b
}

func TestNew_FansOutToStderrAndFile(t *testing.T) {
	var stderr bytes.Buffer
	file := filepath.Join(t.TempDir(), "buildhub.log")

	l, err := New(Options{Writer: &stderr, File: file, Systemd: noSystemd()})
	require.NoError(t, err)

	l.Info("build restarted", "targets", 2)
	require.NoError(t, l.Close())

	assert.Contains(t, stderr.String(), "msg=\"build restarted\" targets=2")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "build restarted", record["msg"])
	assert.Equal(t, float64(2), record["targets"])
}

func TestNew_RespectsLevel(t *testing.T) {
	var stderr bytes.Buffer
	l, err := New(Options{Writer: &stderr, Level: slog.LevelWarn, Systemd: noSystemd()})
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "shown")
	assert.NoError(t, l.Close())
}

func TestNew_BadFile(t *testing.T) {
	_, err := New(Options{File: filepath.Join(t.TempDir(), "missing", "x.log"), Systemd: noSystemd()})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestJournalKey(t *testing.T) {
	assert.Equal(t, "EXEC_WHEN_DONE", JournalKey("exec_when_done"))
	assert.Equal(t, "BUILD_UID", JournalKey("build.uid"))
	assert.Equal(t, "TARGET_2", JournalKey("target-2"))
}
