package build

import (
	"fmt"

	"github.com/roach88/buildhub/internal/protocol"
	"github.com/roach88/buildhub/internal/uid"
)

// State is the lifecycle position of an ActiveBuild.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateBuilt
	StateFailed
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateBuilt:
		return "built"
	case StateFailed:
		return "failed"
	case StateRunning:
		return "running"
	default:
		return "idle"
	}
}

// ActiveBuild is one configured target in the current generation.
// An empty BuildUID or RunUID means none is outstanding.
type ActiveBuild struct {
	Target   protocol.BuildTarget
	BuildUID uid.UID
	RunUID   uid.UID
	Result   *protocol.BuildResult
	Failed   bool
}

// State derives the lifecycle state from the row's fields.
func (a ActiveBuild) State() State {
	switch {
	case a.BuildUID != "":
		return StateBuilding
	case a.RunUID != "":
		return StateRunning
	case a.Failed:
		return StateFailed
	case a.Result != nil:
		return StateBuilt
	default:
		return StateIdle
	}
}

func (a ActiveBuild) clone() ActiveBuild {
	if a.Result != nil {
		r := *a.Result
		a.Result = &r
	}
	return a
}

// Signal names what changed in a Notification.
type Signal int

const (
	SignalNewLogItem Signal = iota
	SignalArtifact
	SignalCargoEnd
	SignalProgramEnd
	SignalBuildFailure
)

func (s Signal) String() string {
	switch s {
	case SignalNewLogItem:
		return "new_log_item"
	case SignalArtifact:
		return "artifact"
	case SignalCargoEnd:
		return "cargo_end"
	case SignalProgramEnd:
		return "program_end"
	case SignalBuildFailure:
		return "build_failure"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Notification is published on protocol.TopicBuildNotify whenever UI
// visible state changes. Builds is a snapshot of the rows, omitted for
// SignalNewLogItem. Item is nil when the log did not grow (CargoBegin).
type Notification struct {
	Signal   Signal
	Item     *protocol.LogEntry
	Artifact string
	Builds   []ActiveBuild
}

// Commands accepted on protocol.TopicBuildControl.
type (
	RestartCmd    struct{}
	RunCmd        struct{}
	TailCmd       struct{ Enabled bool }
	LogMessageCmd struct{ Text string }
)

// Snapshot is a copy of the Manager state for display.
type Snapshot struct {
	Builds       []ActiveBuild
	Artifacts    []string
	LogLen       int
	Tail         bool
	ExecWhenDone bool
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
