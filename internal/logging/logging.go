// Package logging builds the process logger: a fanout of a stderr text
// handler, an optional JSON log file and the systemd journal when the
// process runs as a systemd service.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Options configures New.
type Options struct {
	// Level is shared by every handler. Defaults to info.
	Level slog.Leveler

	// Writer receives text logs. Defaults to os.Stderr.
	Writer io.Writer

	// File, when set, receives JSON logs (appended).
	File string

	// Systemd forces journal output on or off. Nil detects it from the
	// process cgroup.
	Systemd *bool
}

// Logger is a configured logger plus whatever it must release.
type Logger struct {
	*slog.Logger
	closers []io.Closer
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// New builds the logger described by opts.
func New(opts Options) (*Logger, error) {
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	systemd := isSystemdService()
	if opts.Systemd != nil {
		systemd = *opts.Systemd
	}

	l := &Logger{}
	var handlers []slog.Handler

	// Under systemd stderr already lands in the journal.
	var terminal slog.Handler
	if !systemd {
		terminal = slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})
		handlers = append(handlers, terminal)
	}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.closers = append(l.closers, f)
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	if systemd {
		journal, err := slogjournal.NewHandler(&slogjournal.Options{
			ReplaceGroup: func(key string) string {
				return JournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = JournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			// Fall back to stderr so nothing is lost.
			terminal = slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})
			handlers = append(handlers, terminal)
			record := slog.NewRecord(time.Now(), slog.LevelWarn, "systemd journal unavailable", 0)
			record.Add("error", err)
			_ = terminal.Handle(context.Background(), record)
		} else {
			handlers = append(handlers, journal)
		}
	}

	l.Logger = slog.New(slogmulti.Fanout(handlers...))
	return l, nil
}

// ParseLevel maps "debug", "info", "warn" and "error" to a level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// JournalKey converts an attribute key to a journal field name:
// upper case, with everything but letters and digits replaced by '_'.
func JournalKey(key string) string {
	key = strings.ToUpper(key)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, key)
}

func isSystemdService() bool {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	parts := strings.Split(strings.TrimSpace(string(content)), ":")
	if len(parts) < 3 {
		return false
	}
	return strings.HasSuffix(path.Dir(parts[2]), ".service")
}
