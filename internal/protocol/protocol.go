// Package protocol defines the build/run vocabulary carried in bus.Event
// payloads between the build manager and builder services.
//
// Requests flow to a builder on BuilderTopic(name). Every builder answers
// on TopicBuildStatus, tagging each response with the UID of the request;
// clients keep whatever UIDs they track and ignore the rest.
package protocol

import "github.com/roach88/buildhub/internal/uid"

// Topics.
const (
	// TopicBuildStatus carries builder responses (CargoBegin, LogItem, ...).
	TopicBuildStatus = "/build/status"

	// TopicBuildControl carries commands for the build manager.
	TopicBuildControl = "/build/control"

	// TopicBuildNotify carries build manager notifications for UIs.
	TopicBuildNotify = "/build/notify"

	builderTopicPrefix = "/builder/"
)

// BuilderTopic is the request topic a builder named name subscribes to.
func BuilderTopic(name string) string {
	return builderTopicPrefix + name
}

// BuildTarget is one configured build. Immutable once loaded.
type BuildTarget struct {
	Builder   string `json:"builder" yaml:"builder"`
	Workspace string `json:"workspace" yaml:"workspace"`
	Package   string `json:"package" yaml:"package"`
	Config    string `json:"config" yaml:"config"`
}

// String renders the target as builder:workspace/package[config].
func (t BuildTarget) String() string {
	s := t.Builder + ":" + t.Workspace + "/" + t.Package
	if t.Config != "" {
		s += "[" + t.Config + "]"
	}
	return s
}

// ResultKind distinguishes build results.
type ResultKind int

const (
	// ResultNoOutput is a successful build without a runnable artifact.
	ResultNoOutput ResultKind = iota
	// ResultExecutable is a successful build that produced a program.
	ResultExecutable
)

// BuildResult is the outcome carried by CargoEnd. Only executables are run.
type BuildResult struct {
	Kind ResultKind `json:"kind"`
	Path string     `json:"path,omitempty"`
}

// Executable returns an executable result for path.
func Executable(path string) BuildResult {
	return BuildResult{Kind: ResultExecutable, Path: path}
}

// NoOutput returns a non-executable result.
func NoOutput() BuildResult {
	return BuildResult{Kind: ResultNoOutput}
}

// ExecutablePath returns the program path when the result is runnable.
func (r BuildResult) ExecutablePath() (string, bool) {
	if r.Kind != ResultExecutable || r.Path == "" {
		return "", false
	}
	return r.Path, true
}

// Requests to a builder.

// Build asks a builder to compile a package.
type Build struct {
	UID       uid.UID
	Workspace string
	Package   string
	Config    string
}

// BuildKill cancels an outstanding build. Fire-and-forget.
type BuildKill struct {
	UID uid.UID
}

// ProgramRun asks a builder to start an executable.
type ProgramRun struct {
	UID  uid.UID
	Path string
	Args []string
}

// ProgramKill stops a running executable. Fire-and-forget.
type ProgramKill struct {
	UID uid.UID
}

// Responses from a builder.

// CargoBegin announces that a build has started.
type CargoBegin struct {
	UID uid.UID
}

// LogItem carries one line of build or program output.
type LogItem struct {
	UID  uid.UID
	Item LogEntry
}

// CargoArtifact reports an artifact produced by a build.
type CargoArtifact struct {
	UID       uid.UID
	PackageID string
	Fresh     bool
}

// BuildFailure ends a build without a result.
type BuildFailure struct {
	UID uid.UID
}

// CargoEnd ends a build successfully.
type CargoEnd struct {
	UID    uid.UID
	Result BuildResult
}

// ProgramEnd reports that a program started by ProgramRun has exited.
type ProgramEnd struct {
	UID uid.UID
}

// Correlated is implemented by every response that carries a UID.
type Correlated interface {
	CorrelationID() uid.UID
}

func (m CargoBegin) CorrelationID() uid.UID    { return m.UID }
func (m LogItem) CorrelationID() uid.UID       { return m.UID }
func (m CargoArtifact) CorrelationID() uid.UID { return m.UID }
func (m BuildFailure) CorrelationID() uid.UID  { return m.UID }
func (m CargoEnd) CorrelationID() uid.UID      { return m.UID }
func (m ProgramEnd) CorrelationID() uid.UID    { return m.UID }
