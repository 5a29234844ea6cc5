// Package builder is a local builder service: it runs the configured build
// command for every Build request, streams the output back as LogItems,
// and runs the resulting executables on request.
//
// Requests arrive on protocol.BuilderTopic(name); every response goes to
// protocol.TopicBuildStatus tagged with the request's UID. Kills are
// honoured by cancelling the job's context; a killed build still ends with
// BuildFailure and a killed program with ProgramEnd, which the build
// manager ignores once it stopped tracking the UID.
package builder

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/roach88/buildhub/internal/bus"
	"github.com/roach88/buildhub/internal/config"
	"github.com/roach88/buildhub/internal/protocol"
	"github.com/roach88/buildhub/internal/uid"
)

// Builder is a bus.Service executing one config.Builder.
//
// The job table is owned by Run. Each job runs on its own goroutine,
// publishes its responses directly, and reports completion back through
// the builder's own inbox.
type Builder struct {
	cfg     config.Builder
	baseDir string
	hashes  *hashCache

	jobs map[uid.UID]*job
	wg   sync.WaitGroup
}

// Option configures a Builder.
type Option func(*Builder)

// WithBaseDir resolves relative directories and outputs against dir
// instead of the process working directory.
func WithBaseDir(dir string) Option {
	return func(b *Builder) { b.baseDir = dir }
}

// New creates a builder for cfg.
func New(cfg config.Builder, opts ...Option) *Builder {
	b := &Builder{
		cfg:    cfg,
		hashes: newHashCache(),
		jobs:   make(map[uid.UID]*job),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements bus.Service.
func (b *Builder) Name() string { return "builder/" + b.cfg.Name }

// jobDone is sent by a job to the builder's inbox when it finishes.
type jobDone struct {
	uid uid.UID
}

// Run implements bus.Service.
func (b *Builder) Run(ctx context.Context, ep bus.Endpoint) error {
	ep.Subscribe(protocol.BuilderTopic(b.cfg.Name))
	slog.Info("builder started", "name", b.cfg.Name, "sid", ep.SID)

	defer func() {
		for _, j := range b.jobs {
			j.cancel()
		}
		b.wg.Wait()
		slog.Info("builder stopped", "name", b.cfg.Name)
	}()

	for {
		msg, err := ep.Inbox.Recv(ctx)
		if err != nil {
			if errors.Is(err, bus.ErrClosed) {
				return nil
			}
			return err
		}
		ev, ok := msg.(bus.Event)
		if !ok {
			continue
		}
		b.handle(ctx, ep, ev.Payload)
	}
}

func (b *Builder) handle(ctx context.Context, ep bus.Endpoint, payload any) {
	switch p := payload.(type) {
	case protocol.Build:
		b.start(ctx, ep, p.UID, func(jctx context.Context, j *job) {
			j.build(jctx, b.buildSpec(p))
		})
	case protocol.ProgramRun:
		b.start(ctx, ep, p.UID, func(jctx context.Context, j *job) {
			j.program(jctx, b.programSpec(p))
		})
	case protocol.BuildKill:
		b.kill(p.UID)
	case protocol.ProgramKill:
		b.kill(p.UID)
	case jobDone:
		delete(b.jobs, p.uid)
	default:
		slog.Debug("builder: ignoring payload", "name", b.cfg.Name, "type", typeName(payload))
	}
}

func (b *Builder) start(ctx context.Context, ep bus.Endpoint, u uid.UID, fn func(context.Context, *job)) {
	if _, dup := b.jobs[u]; dup {
		slog.Warn("builder: duplicate uid ignored", "name", b.cfg.Name, "uid", u)
		return
	}

	jctx, cancel := context.WithCancel(ctx)
	j := &job{uid: u, out: ep.Broker, cancel: cancel, hashes: b.hashes}
	b.jobs[u] = j

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer cancel()
		fn(jctx, j)
		ep.Inbox.Send(bus.Event{Payload: jobDone{uid: u}})
	}()
}

func (b *Builder) kill(u uid.UID) {
	j, ok := b.jobs[u]
	if !ok {
		slog.Debug("builder: kill for unknown uid", "name", b.cfg.Name, "uid", u)
		return
	}
	slog.Info("builder: killing job", "name", b.cfg.Name, "uid", u)
	j.cancel()
}

// Jobs returns the number of running jobs. Only meaningful on the Run
// goroutine; used by tests after the builder stopped.
func (b *Builder) Jobs() int { return len(b.jobs) }

// vars returns the placeholder replacer for one build.
func vars(workspace, pkg, cfg, output string) *strings.Replacer {
	return strings.NewReplacer(
		"{workspace}", workspace,
		"{package}", pkg,
		"{config}", cfg,
		"{output}", output,
	)
}

// resolve makes p absolute against the builder's base directory.
func (b *Builder) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if b.baseDir == "" {
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return filepath.Join(b.baseDir, p)
}

func (b *Builder) dir(r *strings.Replacer, workspace string) string {
	switch {
	case b.cfg.Dir != "":
		return b.resolve(r.Replace(b.cfg.Dir))
	case workspace != "":
		return b.resolve(workspace)
	default:
		return b.resolve(".")
	}
}

func (b *Builder) buildSpec(p protocol.Build) buildSpec {
	output := ""
	if b.cfg.Output != "" {
		output = vars(p.Workspace, p.Package, p.Config, "").Replace(b.cfg.Output)
	}
	r := vars(p.Workspace, p.Package, p.Config, output)
	dir := b.dir(r, p.Workspace)
	if output != "" && !filepath.IsAbs(output) {
		output = filepath.Join(dir, output)
	}
	r = vars(p.Workspace, p.Package, p.Config, output)

	argv := make([]string, len(b.cfg.Command))
	for i, arg := range b.cfg.Command {
		argv[i] = r.Replace(arg)
	}
	return buildSpec{
		argv:    argv,
		dir:     dir,
		output:  output,
		pkg:     p.Package,
		builder: b.cfg.Name,
	}
}

func (b *Builder) programSpec(p protocol.ProgramRun) programSpec {
	args := append([]string(nil), p.Args...)
	args = append(args, b.cfg.RunArgs...)
	return programSpec{
		path: p.Path,
		args: args,
		dir:  filepath.Dir(p.Path),
	}
}
