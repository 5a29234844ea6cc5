package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/buildhub/internal/journal"
)

func TestExportAndReadBack(t *testing.T) {
	path := seedJournal(t)
	archive := filepath.Join(t.TempDir(), "last.bhz")

	out, err := execute(t, "export", "latest", "--journal", path, "-o", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Exported session session-2 to "+archive)

	f, err := os.Open(archive)
	require.NoError(t, err)
	defer f.Close()
	a, err := journal.ReadArchive(f)
	require.NoError(t, err)
	assert.Equal(t, "session-2", a.Session.ID)
	assert.Len(t, a.Log, 2)
	assert.Len(t, a.Artifacts, 1)
	assert.Len(t, a.Results, 2)

	out, err = execute(t, "history", "--archive", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "session session-2\n")
	assert.Contains(t, out, "unused variable `x`")
}

func TestExportJSON(t *testing.T) {
	path := seedJournal(t)
	archive := filepath.Join(t.TempDir(), "first.bhz")

	out, err := execute(t, "--format", "json", "export", "session-1", "--journal", path, "-o", archive)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ExportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "session-1", resp.Data.Session)

	info, err := os.Stat(archive)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), resp.Data.Bytes)
}

func TestExportUnknownSession(t *testing.T) {
	path := seedJournal(t)
	archive := filepath.Join(t.TempDir(), "none.bhz")

	out, err := execute(t, "export", "session-9", "--journal", path, "-o", archive)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "session not found: session-9")

	_, statErr := os.Stat(archive)
	assert.True(t, os.IsNotExist(statErr), "no partial archive")
}

func TestExportRequiresOutput(t *testing.T) {
	path := seedJournal(t)

	_, err := execute(t, "export", "latest", "--journal", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output")
}

func TestHistoryRejectsCorruptArchive(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "bad.bhz")
	require.NoError(t, os.WriteFile(archive, []byte("not an archive"), 0o644))

	out, err := execute(t, "history", "--archive", archive)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "failed to read archive")
}
