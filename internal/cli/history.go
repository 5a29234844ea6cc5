package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/buildhub/internal/journal"
)

// latestSession selects the newest session wherever an ID is accepted.
const latestSession = "latest"

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Journal string
	Archive string
	Limit   int
	Log     int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [session-id|latest]",
		Short: "List recorded build sessions or show one",
		Long: `Read the session journal written by "buildhub build".

Without an argument, lists the most recent sessions. With a session ID
(or "latest"), shows that session's targets, results, artifacts and log.
With --archive, shows a session exported by "buildhub export" instead.

Example:
  buildhub history
  buildhub history latest --log 50
  buildhub history --archive session.bhz`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "journal path (default from config)")
	cmd.Flags().StringVar(&opts.Archive, "archive", "", "show an exported session archive")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "sessions to list (0 lists all)")
	cmd.Flags().IntVar(&opts.Log, "log", 0, "show only the newest N log entries (0 shows all)")

	return cmd
}

func runHistory(opts *HistoryOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.Archive != "" {
		if len(args) > 0 {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "--archive does not take a session ID", nil)
		}
		return showArchive(f, opts.Archive, opts.Log)
	}

	st, err := openJournal(f, opts.RootOptions, opts.Journal)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) == 0 {
		return listSessions(ctx, f, st, opts.Limit)
	}

	view, err := loadSession(ctx, st, args[0], opts.Log)
	if err != nil {
		if errors.Is(err, journal.ErrSessionNotFound) {
			return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("session not found: %s", args[0]), err)
		}
		return f.Fail(ExitCommandError, ErrCodeJournal, "failed to read session", err)
	}
	return showSession(f, view)
}

func listSessions(ctx context.Context, f *OutputFormatter, st *journal.Store, limit int) error {
	sessions, err := st.ListSessions(ctx, limit)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeJournal, "failed to list sessions", err)
	}
	if f.IsJSON() {
		return f.Success(sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(f.Writer, "No sessions recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tTARGETS\tBUILT\tFAILED\tLOG")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n",
			s.ID, s.StartedAt.UTC().Format("2006-01-02 15:04:05Z"),
			len(s.Targets), s.Built, s.Failed, s.LogItems)
	}
	return tw.Flush()
}

// resolveSession maps "latest" to the newest session ID.
func resolveSession(ctx context.Context, st *journal.Store, id string) (string, error) {
	if id != latestSession {
		return id, nil
	}
	sess, err := st.LatestSession(ctx)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

func loadSession(ctx context.Context, st *journal.Store, id string, logLimit int) (sessionView, error) {
	id, err := resolveSession(ctx, st, id)
	if err != nil {
		return sessionView{}, err
	}
	sess, err := st.GetSession(ctx, id)
	if err != nil {
		return sessionView{}, err
	}
	results, err := st.ReadResults(ctx, id)
	if err != nil {
		return sessionView{}, err
	}
	artifacts, err := st.ReadArtifacts(ctx, id)
	if err != nil {
		return sessionView{}, err
	}
	entries, err := st.ReadLog(ctx, id, logLimit)
	if err != nil {
		return sessionView{}, err
	}
	return newSessionView(sess, results, artifacts, entries), nil
}

func showArchive(f *OutputFormatter, path string, logLimit int) error {
	file, err := os.Open(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("archive not found: %s", path), err)
	}
	defer file.Close()

	a, err := journal.ReadArchive(file)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeJournal, "failed to read archive", err)
	}

	entries := a.Log
	if logLimit > 0 && len(entries) > logLimit {
		entries = entries[len(entries)-logLimit:]
	}
	return showSession(f, newSessionView(a.Session, a.Results, a.Artifacts, entries))
}

func showSession(f *OutputFormatter, view sessionView) error {
	if f.IsJSON() {
		return f.Success(view)
	}
	writeSession(f.Writer, view)
	return nil
}
