package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/buildhub/internal/journal"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Journal string
	Output  string
}

// ExportResult is the JSON payload of a successful export.
type ExportResult struct {
	Session string `json:"session"`
	Output  string `json:"output"`
	Bytes   int64  `json:"bytes"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <session-id|latest>",
		Short: "Export a recorded session as a compressed archive",
		Long: `Write one session from the journal as a zstd-compressed CBOR archive.

The archive holds the session header, its full log, artifacts and results,
and can be read back with "buildhub history --archive".

Example:
  buildhub export latest -o last.bhz`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "journal path (default from config)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "archive path (required)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runExport(opts *ExportOptions, id string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openJournal(f, opts.RootOptions, opts.Journal)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sid, err := resolveSession(ctx, st, id)
	if err != nil {
		return exportFailed(f, id, err)
	}

	n, err := writeArchive(ctx, st, sid, opts.Output)
	if err != nil {
		return exportFailed(f, sid, err)
	}

	result := ExportResult{Session: sid, Output: opts.Output, Bytes: n}
	if f.IsJSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ Exported session %s to %s (%d bytes)\n", sid, opts.Output, n)
	return nil
}

func exportFailed(f *OutputFormatter, id string, err error) error {
	if errors.Is(err, journal.ErrSessionNotFound) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("session not found: %s", id), err)
	}
	return f.Fail(ExitCommandError, ErrCodeJournal, "export failed", err)
}

// writeArchive exports into a temporary file beside path and renames it
// into place, so a failed export never leaves a truncated archive.
func writeArchive(ctx context.Context, st *journal.Store, id, path string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	counter := &countingWriter{w: tmp}
	if err := st.Export(ctx, id, counter); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return counter.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
