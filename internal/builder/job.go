package builder

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/roach88/buildhub/internal/bus"
	"github.com/roach88/buildhub/internal/protocol"
	"github.com/roach88/buildhub/internal/uid"
)

// maxLineBytes bounds one line of child output. Longer lines are split.
const maxLineBytes = 64 * 1024

// waitDelay is how long a killed child may keep its pipes open.
const waitDelay = 2 * time.Second

type buildSpec struct {
	argv    []string
	dir     string
	output  string
	pkg     string
	builder string
}

type programSpec struct {
	path string
	args []string
	dir  string
}

// job is one build or program run.
type job struct {
	uid    uid.UID
	out    bus.Sender
	cancel context.CancelFunc
	hashes *hashCache
}

func (j *job) publish(payload any) {
	j.out.Send(bus.Event{Topic: protocol.TopicBuildStatus, Payload: payload})
}

func (j *job) log(e protocol.LogEntry) {
	j.publish(protocol.LogItem{UID: j.uid, Item: e})
}

func (j *job) build(ctx context.Context, spec buildSpec) {
	j.publish(protocol.CargoBegin{UID: j.uid})

	if len(spec.argv) == 0 {
		j.log(protocol.LogEntry{Kind: protocol.KindError, Body: "builder has no command"})
		j.publish(protocol.BuildFailure{UID: j.uid})
		return
	}

	parser := NewParser(spec.dir)
	cmd := exec.CommandContext(ctx, spec.argv[0], spec.argv[1:]...)
	cmd.Dir = spec.dir

	err := j.stream(cmd, parser.Parse)
	if err != nil {
		if ctx.Err() != nil {
			j.log(protocol.Message("build killed"))
		} else {
			j.log(protocol.LogEntry{Kind: protocol.KindError, Body: "build failed: " + err.Error()})
		}
		j.publish(protocol.BuildFailure{UID: j.uid})
		return
	}

	if spec.output == "" {
		j.publish(protocol.CargoEnd{UID: j.uid, Result: protocol.NoOutput()})
		return
	}

	sum, err := hashFile(spec.output)
	if err != nil {
		j.log(protocol.LogEntry{Kind: protocol.KindError, Body: "build output missing: " + err.Error()})
		j.publish(protocol.BuildFailure{UID: j.uid})
		return
	}
	key := spec.builder + "/" + spec.pkg
	j.publish(protocol.CargoArtifact{
		UID:       j.uid,
		PackageID: fmt.Sprintf("%s@blake3:%s", spec.pkg, sum[:16]),
		Fresh:     j.hashes.swap(key, sum),
	})
	j.publish(protocol.CargoEnd{UID: j.uid, Result: protocol.Executable(spec.output)})
}

func (j *job) program(ctx context.Context, spec programSpec) {
	cmd := exec.CommandContext(ctx, spec.path, spec.args...)
	cmd.Dir = spec.dir

	parser := NewParser(spec.dir)
	err := j.stream(cmd, parser.Parse)

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		j.log(protocol.Message("program killed"))
	case errors.As(err, &exitErr):
		j.log(protocol.LogEntry{Kind: protocol.KindWarning, Body: fmt.Sprintf("program exited with status %d", exitErr.ExitCode())})
	case err != nil:
		j.log(protocol.LogEntry{Kind: protocol.KindError, Body: "program failed: " + err.Error()})
	}
	j.publish(protocol.ProgramEnd{UID: j.uid})
}

// stream runs cmd with stdout and stderr merged, publishing one LogItem
// per line, and returns the command's exit error.
func (j *job) stream(cmd *exec.Cmd, parse func(string) protocol.LogEntry) error {
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		pw.Close()
		return err
	}
	slog.Debug("job started", "uid", j.uid, "path", cmd.Path, "pid", cmd.Process.Pid)

	waited := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.Close()
		waited <- err
	}()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	scanner.Split(scanLinesSplitting)
	for scanner.Scan() {
		j.log(parse(scanner.Text()))
	}
	// Keep the child unblocked if scanning stopped early.
	_, _ = io.Copy(io.Discard, pr)

	return <-waited
}

// scanLinesSplitting is bufio.ScanLines, except that a line longer than
// the buffer is emitted in pieces instead of failing the scan.
func scanLinesSplitting(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanLines(data, atEOF)
	if err == nil && token == nil && !atEOF && len(data) >= maxLineBytes {
		return len(data), data, nil
	}
	return advance, token, err
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashCache remembers the last artifact hash per package so CargoArtifact
// can report whether a build produced something new.
type hashCache struct {
	mu   sync.Mutex
	last map[string]string
}

func newHashCache() *hashCache {
	return &hashCache{last: make(map[string]string)}
}

// swap stores sum for key and reports whether it differs from the
// previous one.
func (c *hashCache) swap(key, sum string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := c.last[key] != sum
	c.last[key] = sum
	return fresh
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
