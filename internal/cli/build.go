package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/buildhub/internal/build"
	"github.com/roach88/buildhub/internal/builder"
	"github.com/roach88/buildhub/internal/bus"
	"github.com/roach88/buildhub/internal/config"
	"github.com/roach88/buildhub/internal/journal"
	"github.com/roach88/buildhub/internal/protocol"
	"github.com/roach88/buildhub/internal/uid"
)

// clientName is the bus name of the CLI endpoint.
const clientName = "cli"

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Run     bool
	Timeout time.Duration

	// UIDs overrides the correlation UID allocator (for testing).
	// If nil, defaults to UUIDv7.
	UIDs uid.Allocator
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build every configured target",
		Long: `Start a broker, the build manager and one service per declared builder,
then build every target and stream the log until all builds finish.

With --run (or exec_when_done in the config) every executable is started
once the last build ends, and the command waits for the programs too.

Example:
  buildhub build
  buildhub build --run --timeout 10m
  buildhub build -c ci.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Run, "run", false, "run every executable when the builds finish")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "give up after this long (0 waits forever)")

	return cmd
}

func runBuild(opts *BuildOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, path, err := loadConfig(f, opts.RootOptions, ExitCommandError)
	if err != nil {
		return err
	}
	for _, t := range cfg.Builds {
		if _, ok := cfg.Builder(t.Builder); !ok {
			return f.Fail(ExitCommandError, ErrCodeConfig,
				fmt.Sprintf("build %s: builder %q is not declared in %s", t.String(), t.Builder, path), nil)
		}
	}

	restore, err := setupLogging(opts.RootOptions, cfg, cmd.ErrOrStderr())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to set up logging", err)
	}
	defer restore()

	uids := opts.UIDs
	if uids == nil {
		uids = uid.UUIDv7Allocator{}
	}

	managerOpts := []build.Option{}
	if cfg.Journal != "" {
		st, err := journal.Open(cfg.Journal)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
		managerOpts = append(managerOpts, build.WithRecorder(journal.NewRecorder(st, uid.UUIDv7Allocator{}, time.Now)))
		f.VerboseLog("Recording to journal %s", cfg.Journal)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	summary, err := runSession(ctx, cfg, filepath.Dir(path), uids, managerOpts, opts.Run, newOutput(f))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return f.Fail(ExitFailure, ErrCodeBuild, fmt.Sprintf("build timed out after %s", opts.Timeout), err)
		}
		if errors.Is(err, context.Canceled) {
			return f.Fail(ExitFailure, ErrCodeBuild, "build interrupted", err)
		}
		return f.Fail(ExitCommandError, ErrCodeGeneric, "build session failed", err)
	}

	failed := 0
	for _, ab := range summary {
		if ab.State() == build.StateFailed {
			failed++
		}
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d build(s) failed", failed, len(summary)))
	}
	return nil
}

// newOutput picks a colour-detecting renderer for real terminals.
var newOutput = func(f *OutputFormatter) *Renderer {
	return NewRenderer(f.Writer, f.Format)
}

// runSession boots the bus, builds everything once and returns the final
// build list. It returns when no build or program is outstanding or ctx
// ends.
func runSession(ctx context.Context, cfg *config.Config, baseDir string, uids uid.Allocator,
	managerOpts []build.Option, run bool, out *Renderer) ([]build.ActiveBuild, error) {

	manager := build.NewManager(cfg.Settings(), uids, managerOpts...)
	services := []bus.Service{manager}
	builders := make([]*builder.Builder, 0, len(cfg.Builders))
	for _, b := range cfg.Builders {
		svc := builder.New(b, builder.WithBaseDir(baseDir))
		builders = append(builders, svc)
		services = append(services, svc)
	}

	sys := bus.Bootstrap(ctx, bus.NewBroker(), services...)
	defer func() {
		if err := sys.Shutdown(); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}()

	client := sys.Attach(clientName)
	defer client.Inbox.Close()
	client.Subscribe(protocol.TopicBuildNotify)

	if err := sys.AwaitSubscriber(ctx, clientName, protocol.TopicBuildNotify); err != nil {
		return nil, err
	}
	if err := sys.AwaitSubscriber(ctx, manager.Name(), protocol.TopicBuildControl); err != nil {
		return nil, err
	}
	for i, b := range builders {
		if err := sys.AwaitSubscriber(ctx, b.Name(), protocol.BuilderTopic(cfg.Builders[i].Name)); err != nil {
			return nil, err
		}
	}

	if infos, err := sys.Services(ctx); err == nil {
		for _, info := range infos {
			slog.Debug("service registered", "sid", info.SID.String(), "name", info.Name, "topics", info.Topics)
		}
	}

	client.Publish(protocol.TopicBuildControl, build.RestartCmd{})
	if run {
		client.Publish(protocol.TopicBuildControl, build.RunCmd{})
	}

	for {
		msg, err := client.Inbox.Recv(ctx)
		if err != nil {
			return nil, err
		}
		ev, ok := msg.(bus.Event)
		if !ok {
			continue
		}
		n, ok := ev.Payload.(build.Notification)
		if !ok {
			continue
		}

		if n.Item != nil {
			if err := out.Entry(*n.Item); err != nil {
				return nil, err
			}
		}
		if n.Signal == build.SignalArtifact {
			if err := out.Artifact(n.Artifact); err != nil {
				return nil, err
			}
		}
		if n.Builds != nil && settled(n.Builds) {
			return n.Builds, out.Summary(n.Builds)
		}
	}
}

// settled reports whether nothing is building or running.
func settled(builds []build.ActiveBuild) bool {
	for _, ab := range builds {
		if ab.BuildUID != "" || ab.RunUID != "" {
			return false
		}
	}
	return true
}
