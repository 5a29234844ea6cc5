package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/buildhub/internal/config"
	"github.com/roach88/buildhub/internal/journal"
	"github.com/roach88/buildhub/internal/logging"
)

// configCandidates are tried in order when --config is not given.
var configCandidates = []string{config.DefaultFile, "buildhub.yml", "buildhub.cue"}

// errNoConfig is returned when no config file can be found.
var errNoConfig = errors.New("no config file found")

// configPath returns --config or the first candidate present in the
// working directory.
func configPath(opts *RootOptions) (string, error) {
	if opts.Config != "" {
		return opts.Config, nil
	}
	for _, name := range configCandidates {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w (looked for %v)", errNoConfig, configCandidates)
}

// loadConfig resolves and loads the config. Problems are reported through
// f and returned as an ExitError with code exitCode.
func loadConfig(f *OutputFormatter, opts *RootOptions, exitCode int) (*config.Config, string, error) {
	path, err := configPath(opts)
	if err != nil {
		return nil, "", f.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	f.VerboseLog("Loading config %s", path)

	cfg, err := config.Load(path)
	if err != nil {
		if errs, ok := config.AsValidationErrors(err); ok {
			if outErr := outputValidationErrors(f, path, errs); outErr != nil {
				return nil, path, outErr
			}
			return nil, path, NewExitError(exitCode, fmt.Sprintf("invalid config %s: %d error(s)", path, len(errs)))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, path, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("config file not found: %s", path), err)
		}
		return nil, path, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	return cfg, path, nil
}

// logLevel picks the level from --log-level, then --verbose. A CLI run
// logs warnings only by default so stdout stays the build log.
func logLevel(opts *RootOptions) (slog.Level, error) {
	if opts.LogLevel != "" {
		return logging.ParseLevel(opts.LogLevel)
	}
	if opts.Verbose {
		return slog.LevelDebug, nil
	}
	return slog.LevelWarn, nil
}

// setupLogging installs the process logger as the slog default. The
// returned func restores the previous default and closes the log file.
func setupLogging(opts *RootOptions, cfg *config.Config, errOut io.Writer) (func(), error) {
	level, err := logLevel(opts)
	if err != nil {
		return nil, err
	}

	logOpts := logging.Options{Level: level, Writer: errOut}
	if cfg != nil {
		logOpts.File = cfg.LogFile
	}
	logger, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}

	prev := slog.Default()
	slog.SetDefault(logger.Logger)
	return func() {
		slog.SetDefault(prev)
		if err := logger.Close(); err != nil {
			fmt.Fprintf(errOut, "warning: close log file: %v\n", err)
		}
	}, nil
}

// openJournal opens the session journal named by --journal or the config.
func openJournal(f *OutputFormatter, opts *RootOptions, override string) (*journal.Store, error) {
	path := override
	if path == "" {
		cfg, _, err := loadConfig(f, opts, ExitCommandError)
		if err != nil {
			return nil, err
		}
		path = cfg.Journal
	}
	if path == "" {
		return nil, f.Fail(ExitCommandError, ErrCodeJournal, "no journal configured (set journal in the config or pass --journal)", nil)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("journal not found: %s", path), err)
	}

	f.VerboseLog("Opening journal %s", path)
	st, err := journal.Open(path)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal", err)
	}
	return st, nil
}
