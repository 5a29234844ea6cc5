package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/buildhub/internal/build"
	"github.com/roach88/buildhub/internal/protocol"
	"github.com/roach88/buildhub/internal/uid"
)

// Scenario scripts one build manager session.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// ExecWhenDone and TailLog seed the manager settings. TailLog
	// defaults to true.
	ExecWhenDone bool  `yaml:"exec_when_done,omitempty"`
	TailLog      *bool `yaml:"tail_log,omitempty"`

	// Limits overrides the log and marker caps; zero fields keep the
	// defaults.
	Limits LimitOverrides `yaml:"limits,omitempty"`

	// Targets are the configured builds, in order.
	Targets []protocol.BuildTarget `yaml:"targets"`

	// UIDs are handed out in order by the manager's allocator.
	UIDs []string `yaml:"uids,omitempty"`

	// Steps are applied in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// LimitOverrides mirrors build.Limits.
type LimitOverrides struct {
	MaxLogItems int `yaml:"max_log_items,omitempty"`
	LogWindow   int `yaml:"log_window,omitempty"`
	MaxMarkers  int `yaml:"max_markers,omitempty"`
}

// Step is either a control command or a builder response.
type Step struct {
	// Command is restart, run, tail_on, tail_off or log.
	Command string `yaml:"command,omitempty"`

	// Text is the message for the log command.
	Text string `yaml:"text,omitempty"`

	// Respond is a builder response delivered to the manager.
	Respond *Response `yaml:"respond,omitempty"`
}

// Response describes one builder response.
type Response struct {
	Type string `yaml:"type"`
	UID  string `yaml:"uid"`

	// log_item fields. Kind defaults to message; Path makes the entry
	// located; Range is [start, end].
	Kind   string `yaml:"kind,omitempty"`
	Body   string `yaml:"body,omitempty"`
	Path   string `yaml:"path,omitempty"`
	Line   int    `yaml:"line,omitempty"`
	Column int    `yaml:"column,omitempty"`
	Range  []int  `yaml:"range,omitempty"`

	// cargo_artifact field.
	PackageID string `yaml:"package_id,omitempty"`

	// cargo_end field. Empty means the build produced nothing runnable.
	Executable string `yaml:"executable,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Payload is a trace payload type (sent_count).
	Payload string `yaml:"payload,omitempty"`

	// Payloads is the expected relative order (sent_order).
	Payloads []string `yaml:"payloads,omitempty"`

	// Count is the expected number (sent_count, log_len, markers).
	Count int `yaml:"count,omitempty"`

	// Package and State select a target and its expected state
	// (final_state).
	Package string `yaml:"package,omitempty"`
	State   string `yaml:"state,omitempty"`

	// Text is a rendered log entry (log_contains).
	Text string `yaml:"text,omitempty"`

	// Path is a buffer path (markers).
	Path string `yaml:"path,omitempty"`
}

// Assertion type constants.
const (
	AssertSentCount   = "sent_count"
	AssertSentOrder   = "sent_order"
	AssertFinalState  = "final_state"
	AssertLogContains = "log_contains"
	AssertLogLen      = "log_len"
	AssertMarkers     = "markers"
)

// Step commands.
const (
	CommandRestart = "restart"
	CommandRun     = "run"
	CommandTailOn  = "tail_on"
	CommandTailOff = "tail_off"
	CommandLog     = "log"
)

// Response types.
const (
	RespondCargoBegin    = "cargo_begin"
	RespondLogItem       = "log_item"
	RespondCargoArtifact = "cargo_artifact"
	RespondBuildFailure  = "build_failure"
	RespondCargoEnd      = "cargo_end"
	RespondProgramEnd    = "program_end"
)

var (
	commands  = []string{CommandRestart, CommandRun, CommandTailOn, CommandTailOff, CommandLog}
	responses = []string{RespondCargoBegin, RespondLogItem, RespondCargoArtifact, RespondBuildFailure, RespondCargoEnd, RespondProgramEnd}
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Settings returns the manager settings the scenario describes.
func (s *Scenario) Settings() build.Settings {
	tail := true
	if s.TailLog != nil {
		tail = *s.TailLog
	}
	return build.Settings{
		Targets:      s.Targets,
		ExecWhenDone: s.ExecWhenDone,
		TailLog:      tail,
		Limits: build.Limits{
			MaxLogItems: s.Limits.MaxLogItems,
			LogWindow:   s.Limits.LogWindow,
			MaxMarkers:  s.Limits.MaxMarkers,
		},
	}
}

// allocator returns the scenario's UID source.
func (s *Scenario) allocator() uid.Allocator {
	if len(s.UIDs) == 0 {
		return uid.NewSequenceAllocator("uid")
	}
	uids := make([]uid.UID, len(s.UIDs))
	for i, u := range s.UIDs {
		uids[i] = uid.UID(u)
	}
	return uid.NewFixedAllocator(uids...)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Targets) == 0 {
		return fmt.Errorf("targets list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, t := range s.Targets {
		if t.Builder == "" || t.Package == "" {
			return fmt.Errorf("targets[%d]: builder and package are required", i)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	switch {
	case step.Command != "" && step.Respond != nil:
		return fmt.Errorf("steps[%d]: command and respond are exclusive", i)
	case step.Command != "":
		if !slices.Contains(commands, step.Command) {
			return fmt.Errorf("steps[%d]: unknown command %q", i, step.Command)
		}
		if step.Command == CommandLog && step.Text == "" {
			return fmt.Errorf("steps[%d]: log requires text", i)
		}
	case step.Respond != nil:
		r := step.Respond
		if !slices.Contains(responses, r.Type) {
			return fmt.Errorf("steps[%d].respond: unknown type %q", i, r.Type)
		}
		if r.UID == "" {
			return fmt.Errorf("steps[%d].respond: uid is required", i)
		}
		if r.Kind != "" {
			if _, err := protocol.ParseLogKind(r.Kind); err != nil {
				return fmt.Errorf("steps[%d].respond: %w", i, err)
			}
		}
		if r.Range != nil && len(r.Range) != 2 {
			return fmt.Errorf("steps[%d].respond: range must be [start, end]", i)
		}
	default:
		return fmt.Errorf("steps[%d]: command or respond is required", i)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSentCount:
		if a.Payload == "" {
			return fmt.Errorf("assertions[%d]: sent_count requires 'payload' field", index)
		}
	case AssertSentOrder:
		if len(a.Payloads) < 2 {
			return fmt.Errorf("assertions[%d]: sent_order requires at least 2 payloads", index)
		}
	case AssertFinalState:
		if a.Package == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: final_state requires 'package' and 'state' fields", index)
		}
	case AssertLogContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: log_contains requires 'text' field", index)
		}
	case AssertLogLen:
	case AssertMarkers:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: markers requires 'path' field", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
