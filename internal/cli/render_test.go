package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/buildhub/internal/build"
	"github.com/roach88/buildhub/internal/journal"
	"github.com/roach88/buildhub/internal/protocol"
)

var (
	appTarget  = protocol.BuildTarget{Builder: "local", Workspace: "ws", Package: "app", Config: "debug"}
	libTarget  = protocol.BuildTarget{Builder: "local", Workspace: "ws", Package: "lib"}
	toolTarget = protocol.BuildTarget{Builder: "remote", Workspace: "ws", Package: "tool"}

	unusedWarning = protocol.LogEntry{
		Kind: protocol.KindLocWarning,
		Body: "unused variable `x`",
		Loc:  &protocol.Location{Path: "src/main.rs", Line: 3, Column: 9},
	}
	mismatchError = protocol.LogEntry{
		Kind: protocol.KindLocError,
		Body: "mismatched types",
		Loc: &protocol.Location{
			Path: "src/lib.rs", Line: 12, Column: 5,
			Range: &protocol.ByteRange{Start: 140, End: 148},
		},
	}
	exitWarning = protocol.LogEntry{Kind: protocol.KindWarning, Body: "program exited with status 4"}
)

func goldenFiles(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func finishedBuilds() []build.ActiveBuild {
	exe := protocol.Executable("/work/bin/app")
	noOutput := protocol.NoOutput()
	return []build.ActiveBuild{
		{Target: appTarget, Result: &exe},
		{Target: libTarget, Result: &noOutput},
		{Target: toolTarget, Failed: true},
	}
}

func renderSample(t *testing.T, r *Renderer) {
	t.Helper()
	require.NoError(t, r.Entry(protocol.Message("Compiling app v0.1.0")))
	require.NoError(t, r.Entry(unusedWarning))
	require.NoError(t, r.Artifact("pkg@blake3:0123456789abcdef"))
	require.NoError(t, r.Entry(mismatchError))
	require.NoError(t, r.Entry(exitWarning))
	require.NoError(t, r.Entry(protocol.Message(build.TruncatedMarker)))
	require.NoError(t, r.Summary(finishedBuilds()))
}

func TestRenderer_Text(t *testing.T) {
	var buf bytes.Buffer
	renderSample(t, newPlainRenderer(&buf, "text"))

	goldenFiles(t).Assert(t, "render_text", buf.Bytes())
}

func TestRenderer_JSON(t *testing.T) {
	var buf bytes.Buffer
	renderSample(t, newPlainRenderer(&buf, "json"))

	goldenFiles(t).Assert(t, "render_json", buf.Bytes())
}

func TestWriteSession(t *testing.T) {
	sess := journal.Session{
		ID:        "s-1",
		StartedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Targets:   []protocol.BuildTarget{appTarget, toolTarget},
		LogItems:  3,
		Built:     1,
		Failed:    1,
	}
	results := []journal.Result{
		{Seq: 2, Target: appTarget.String(), Status: journal.StatusBuilt, Executable: "/work/bin/app"},
		{Seq: 3, Target: toolTarget.String(), Status: journal.StatusFailed},
	}
	artifacts := []journal.Artifact{
		{Seq: 1, Target: appTarget.String(), PackageID: "pkg@blake3:0123456789abcdef"},
	}

	var buf bytes.Buffer
	writeSession(&buf, newSessionView(sess, results, artifacts, []protocol.LogEntry{mismatchError, exitWarning}))

	goldenFiles(t).Assert(t, "session_text", buf.Bytes())
}
