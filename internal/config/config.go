// Package config loads buildhub.yaml or buildhub.cue.
//
// Both formats decode into Config. YAML is decoded strictly (unknown
// fields are errors). CUE is unified with an embedded closed schema, the
// way tools in this space validate their configuration, which also
// supplies defaults. Either way the result is then checked for cross-field
// consistency by Validate.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/buildhub/internal/build"
	"github.com/roach88/buildhub/internal/protocol"
)

//go:embed schema.cue
var schemaSrc string

// DefaultFile is the config file name looked up when none is given.
const DefaultFile = "buildhub.yaml"

// Config is the whole configuration of a buildhub run.
type Config struct {
	// ExecWhenDone runs every executable once all builds finish.
	ExecWhenDone bool `yaml:"exec_when_done" json:"exec_when_done"`

	// TailLog keeps the newest log entries when the log is full. When
	// false the log stops growing instead.
	TailLog bool `yaml:"tail_log" json:"tail_log"`

	Limits Limits `yaml:"limits" json:"limits"`

	// Builds lists the targets built on every restart, in order.
	Builds []protocol.BuildTarget `yaml:"builds" json:"builds"`

	// Builders declares the local builders builds may reference.
	Builders []Builder `yaml:"builders" json:"builders"`

	// Journal is the SQLite session journal path. Empty disables it.
	Journal string `yaml:"journal" json:"journal"`

	// LogFile receives JSON logs in addition to stderr. Empty disables it.
	LogFile string `yaml:"log_file" json:"log_file"`
}

// Limits mirrors build.Limits.
type Limits struct {
	MaxLogItems int `yaml:"max_log_items" json:"max_log_items"`
	LogWindow   int `yaml:"log_window" json:"log_window"`
	MaxMarkers  int `yaml:"max_markers" json:"max_markers"`
}

// Builder is a local builder: a command template run for every build.
//
// Command, Output and Dir may contain {workspace}, {package}, {config}
// and {output}; Output is the path of the produced executable, empty when
// the build produces nothing runnable.
type Builder struct {
	Name    string   `yaml:"name" json:"name"`
	Command []string `yaml:"command" json:"command"`
	Output  string   `yaml:"output" json:"output"`
	RunArgs []string `yaml:"run_args" json:"run_args"`
	Dir     string   `yaml:"dir" json:"dir"`
}

// Default returns the configuration used for fields a file leaves out.
func Default() Config {
	d := build.DefaultLimits()
	return Config{
		TailLog: true,
		Limits: Limits{
			MaxLogItems: d.MaxLogItems,
			LogWindow:   d.LogWindow,
			MaxMarkers:  d.MaxMarkers,
		},
	}
}

// Load reads path and decodes it by extension (.yaml, .yml or .cue).
// Content problems are returned as ValidationErrors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg *Config
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	case ".cue":
		cfg, err = ParseCUE(data, filepath.Base(path))
	default:
		return nil, ValidationErrors{{
			Field:   "file",
			Message: fmt.Sprintf("unsupported config type %q (want .yaml, .yml or .cue)", filepath.Ext(path)),
			Code:    ErrUnsupportedType,
		}}
	}
	if err != nil {
		return nil, err
	}

	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// ParseYAML decodes strict YAML over Default and validates the result.
func ParseYAML(data []byte) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fromYAML(err)
	}

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// ParseCUE unifies data with the closed schema, decodes it and validates
// the result. filename is used in error positions.
func ParseCUE(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString("close({"+schemaSrc+"})", cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fromCUE(err, filename, ErrSyntax)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fromCUE(err, filename, ErrSchema)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, fromCUE(err, filename, ErrSchema)
	}

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// Validate checks cross-field rules. Returns all errors found (does not
// fail-fast).
func Validate(cfg *Config) ValidationErrors {
	var errs ValidationErrors

	if len(cfg.Builds) == 0 {
		errs = append(errs, ValidationError{
			Field:   "builds",
			Message: "at least one build is required",
			Code:    ErrNoBuilds,
		})
	}

	names := make(map[string]bool, len(cfg.Builders))
	for i, b := range cfg.Builders {
		field := fmt.Sprintf("builders[%d]", i)
		if b.Name == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "name is required", Code: ErrSchema})
			continue
		}
		if names[b.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate builder %q", b.Name),
				Code:    ErrDuplicateName,
			})
		}
		names[b.Name] = true
		if len(b.Command) == 0 {
			errs = append(errs, ValidationError{Field: field + ".command", Message: "command is required", Code: ErrSchema})
		}
	}

	for i, t := range cfg.Builds {
		field := fmt.Sprintf("builds[%d]", i)
		if t.Package == "" {
			errs = append(errs, ValidationError{Field: field + ".package", Message: "package is required", Code: ErrSchema})
		}
		if t.Builder == "" {
			errs = append(errs, ValidationError{Field: field + ".builder", Message: "builder is required", Code: ErrSchema})
			continue
		}
		// Builds may target remote builders that are not declared here,
		// but only when no local builders are declared at all.
		if len(cfg.Builders) > 0 && !names[t.Builder] {
			errs = append(errs, ValidationError{
				Field:   field + ".builder",
				Message: fmt.Sprintf("unknown builder %q", t.Builder),
				Code:    ErrUnknownBuilder,
			})
		}
	}

	l := cfg.Limits
	if l.MaxLogItems <= 0 || l.LogWindow <= 0 || l.MaxMarkers <= 0 {
		errs = append(errs, ValidationError{Field: "limits", Message: "limits must be positive", Code: ErrInvalidLimits})
	} else if l.LogWindow >= l.MaxLogItems {
		errs = append(errs, ValidationError{
			Field:   "limits.log_window",
			Message: fmt.Sprintf("log_window (%d) must be below max_log_items (%d)", l.LogWindow, l.MaxLogItems),
			Code:    ErrInvalidLimits,
		})
	}

	return errs
}

// resolvePaths makes relative file paths relative to the config's
// directory.
func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.Journal, &c.LogFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// Settings converts the config into build manager settings.
func (c *Config) Settings() build.Settings {
	return build.Settings{
		Targets:      append([]protocol.BuildTarget(nil), c.Builds...),
		ExecWhenDone: c.ExecWhenDone,
		TailLog:      c.TailLog,
		Limits: build.Limits{
			MaxLogItems: c.Limits.MaxLogItems,
			LogWindow:   c.Limits.LogWindow,
			MaxMarkers:  c.Limits.MaxMarkers,
		},
	}
}

// Builder returns the declared builder called name.
func (c *Config) Builder(name string) (Builder, bool) {
	for _, b := range c.Builders {
		if b.Name == name {
			return b, true
		}
	}
	return Builder{}, false
}
