package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/buildhub/internal/build"
	"github.com/roach88/buildhub/internal/bus"
	"github.com/roach88/buildhub/internal/protocol"
	"github.com/roach88/buildhub/internal/testutil"
	"github.com/roach88/buildhub/internal/textbuf"
	"github.com/roach88/buildhub/internal/uid"
)

// TraceEvent is one message the manager sent.
type TraceEvent struct {
	Seq     int    // 1-based position in the trace
	Step    int    // 1-based step that caused it
	Topic   string // bus topic
	Payload any
}

// Type is the payload's trace name: build, build_kill, program_run,
// program_kill, or the signal name of a notification.
func (e TraceEvent) Type() string {
	switch p := e.Payload.(type) {
	case protocol.Build:
		return "build"
	case protocol.BuildKill:
		return "build_kill"
	case protocol.ProgramRun:
		return "program_run"
	case protocol.ProgramKill:
		return "program_kill"
	case build.Notification:
		return p.Signal.String()
	default:
		return fmt.Sprintf("%T", e.Payload)
	}
}

// String renders the event as one golden-file line.
func (e TraceEvent) String() string {
	return fmt.Sprintf("%02d step=%d %s %s", e.Seq, e.Step, e.Topic, describe(e.Payload))
}

func describe(payload any) string {
	switch p := payload.(type) {
	case protocol.Build:
		target := p.Workspace + "/" + p.Package
		if p.Config != "" {
			target += "[" + p.Config + "]"
		}
		return fmt.Sprintf("build uid=%s target=%s", p.UID, target)
	case protocol.BuildKill:
		return fmt.Sprintf("build_kill uid=%s", p.UID)
	case protocol.ProgramRun:
		return fmt.Sprintf("program_run uid=%s path=%s", p.UID, p.Path)
	case protocol.ProgramKill:
		return fmt.Sprintf("program_kill uid=%s", p.UID)
	case build.Notification:
		s := "notify " + p.Signal.String()
		if p.Item != nil {
			s += fmt.Sprintf(" item=%q", p.Item.String())
		}
		if p.Artifact != "" {
			s += " artifact=" + p.Artifact
		}
		if p.Builds != nil {
			states := make([]string, len(p.Builds))
			for i, ab := range p.Builds {
				states[i] = ab.State().String()
			}
			s += " builds=[" + strings.Join(states, ",") + "]"
		}
		return s
	default:
		return fmt.Sprintf("%T", payload)
	}
}

// Result is the outcome of a scenario run.
type Result struct {
	Trace        []TraceEvent
	Builds       []build.ActiveBuild
	Log          []protocol.LogEntry
	Artifacts    []string
	ExecWhenDone bool
	Buffers      *textbuf.Store
}

// Run executes a scenario against a fresh Manager.
func Run(s *Scenario) (result *Result, err error) {
	sender := testutil.NewRecordingSender()
	buffers := textbuf.NewStore()
	m := build.NewManager(s.Settings(), s.allocator(),
		build.WithSender(sender),
		build.WithBufferStore(buffers),
	)

	ctx := context.Background()
	result = &Result{Buffers: buffers}
	step := 0

	// A FixedAllocator panics when a scenario declares too few uids.
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("step %d: %v", step, r)
		}
	}()

	for i, st := range s.Steps {
		step = i + 1
		payload, err := stepPayload(st)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
		m.Handle(ctx, payload)

		for _, msg := range sender.Messages() {
			ev, ok := msg.(bus.Event)
			if !ok {
				continue
			}
			result.Trace = append(result.Trace, TraceEvent{
				Seq:     len(result.Trace) + 1,
				Step:    step,
				Topic:   ev.Topic,
				Payload: ev.Payload,
			})
		}
		sender.Reset()
	}

	result.Builds = m.Builds()
	result.Log = m.Log().Last(m.Log().Len())
	result.Artifacts = m.Artifacts()
	result.ExecWhenDone = m.ExecWhenDone()
	return result, nil
}

// stepPayload converts a step into what the manager receives on the bus.
func stepPayload(st Step) (any, error) {
	switch st.Command {
	case CommandRestart:
		return build.RestartCmd{}, nil
	case CommandRun:
		return build.RunCmd{}, nil
	case CommandTailOn:
		return build.TailCmd{Enabled: true}, nil
	case CommandTailOff:
		return build.TailCmd{Enabled: false}, nil
	case CommandLog:
		return build.LogMessageCmd{Text: st.Text}, nil
	case "":
	default:
		return nil, fmt.Errorf("unknown command %q", st.Command)
	}

	r := st.Respond
	if r == nil {
		return nil, fmt.Errorf("empty step")
	}
	u := uid.UID(r.UID)

	switch r.Type {
	case RespondCargoBegin:
		return protocol.CargoBegin{UID: u}, nil
	case RespondLogItem:
		entry, err := r.entry()
		if err != nil {
			return nil, err
		}
		return protocol.LogItem{UID: u, Item: entry}, nil
	case RespondCargoArtifact:
		return protocol.CargoArtifact{UID: u, PackageID: r.PackageID}, nil
	case RespondBuildFailure:
		return protocol.BuildFailure{UID: u}, nil
	case RespondCargoEnd:
		result := protocol.NoOutput()
		if r.Executable != "" {
			result = protocol.Executable(r.Executable)
		}
		return protocol.CargoEnd{UID: u, Result: result}, nil
	case RespondProgramEnd:
		return protocol.ProgramEnd{UID: u}, nil
	default:
		return nil, fmt.Errorf("unknown response %q", r.Type)
	}
}

func (r *Response) entry() (protocol.LogEntry, error) {
	e := protocol.LogEntry{Kind: protocol.KindMessage, Body: r.Body}
	if r.Kind != "" {
		kind, err := protocol.ParseLogKind(r.Kind)
		if err != nil {
			return protocol.LogEntry{}, err
		}
		e.Kind = kind
	}
	if r.Path != "" {
		e.Loc = &protocol.Location{Path: r.Path, Line: r.Line, Column: r.Column}
		if len(r.Range) == 2 {
			e.Loc.Range = &protocol.ByteRange{Start: r.Range[0], End: r.Range[1]}
		}
	}
	return e, nil
}
