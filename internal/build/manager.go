package build

import (
	"context"
	"log/slog"

	"github.com/roach88/buildhub/internal/bus"
	"github.com/roach88/buildhub/internal/protocol"
	"github.com/roach88/buildhub/internal/textbuf"
	"github.com/roach88/buildhub/internal/uid"
)

// BufferStore is the text-buffer collaborator diagnostics are written to.
// Implemented by *textbuf.Store.
type BufferStore interface {
	LookupOrCreate(path string) *textbuf.Buffer
	ClearAll()
}

// Recorder receives a durable copy of what the Manager observes.
// Implemented by journal.Recorder. Recorder errors are logged, never
// fatal.
type Recorder interface {
	BeginSession(ctx context.Context, targets []protocol.BuildTarget) error
	RecordLog(ctx context.Context, e protocol.LogEntry) error
	RecordArtifact(ctx context.Context, target protocol.BuildTarget, packageID string) error
	// RecordResult stores the end of a build; a nil result means failure.
	RecordResult(ctx context.Context, target protocol.BuildTarget, result *protocol.BuildResult) error
}

// Settings is the read-only configuration of a Manager.
type Settings struct {
	Targets      []protocol.BuildTarget
	ExecWhenDone bool
	TailLog      bool
	Limits       Limits
}

// Manager is the client-side build/run state machine.
//
// It owns the active build list, the log history and the artifact list.
// Every mutation happens in response to a message: builder responses
// arrive on protocol.TopicBuildStatus and commands on
// protocol.TopicBuildControl. Run drives it as a bus service; tests call
// Handle directly.
//
// Thread-safety: none. Exactly one goroutine (Run) may use a Manager.
type Manager struct {
	settings     Settings
	execWhenDone bool
	active       []ActiveBuild
	log          *LogHistory
	artifacts    []string
	// recorded counts log entries sent to the recorder this generation.
	recorded int

	uids     uid.Allocator
	out      bus.Sender
	buffers  BufferStore
	recorder Recorder
}

// Option configures a Manager.
type Option func(*Manager)

// WithSender sets where requests and notifications are sent. Run replaces
// it with the Broker of its endpoint.
func WithSender(out bus.Sender) Option {
	return func(m *Manager) { m.out = out }
}

// WithBufferStore sets the text-buffer store for diagnostics.
func WithBufferStore(s BufferStore) Option {
	return func(m *Manager) { m.buffers = s }
}

// WithRecorder attaches a durable recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// NewManager creates an idle Manager. Nothing is built until Restart.
//
// The targets slice is copied so later mutation by the caller cannot
// change the configured build set.
func NewManager(settings Settings, uids uid.Allocator, opts ...Option) *Manager {
	settings.Targets = append([]protocol.BuildTarget(nil), settings.Targets...)
	settings.Limits = settings.Limits.withDefaults()

	m := &Manager{
		settings:     settings,
		execWhenDone: settings.ExecWhenDone,
		log:          NewLogHistory(settings.Limits, settings.TailLog),
		uids:         uids,
		out:          bus.Discard,
		buffers:      textbuf.NewStore(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restart kills everything outstanding and starts a fresh build of every
// configured target.
//
// Stop-the-world: when Restart returns, no state of the previous
// generation is visible. Kills are fire-and-forget; responses that
// arrive later for old UIDs are ignored as untracked.
func (m *Manager) Restart(ctx context.Context) {
	m.artifacts = nil
	m.recorded = 0
	m.log.Clear()
	m.buffers.ClearAll()
	m.execWhenDone = m.settings.ExecWhenDone

	for _, ab := range m.active {
		if ab.BuildUID != "" {
			m.send(ab.Target, protocol.BuildKill{UID: ab.BuildUID})
		}
		if ab.RunUID != "" {
			m.send(ab.Target, protocol.ProgramKill{UID: ab.RunUID})
		}
	}
	m.active = m.active[:0]

	m.record(ctx, "begin session", func(r Recorder) error {
		return r.BeginSession(ctx, m.settings.Targets)
	})

	for _, target := range m.settings.Targets {
		u := m.uids.Allocate()
		m.send(target, protocol.Build{
			UID:       u,
			Workspace: target.Workspace,
			Package:   target.Package,
			Config:    target.Config,
		})
		m.active = append(m.active, ActiveBuild{Target: target, BuildUID: u})
	}

	slog.Info("build restarted", "targets", len(m.active), "exec_when_done", m.execWhenDone)
}

// Handle applies one bus payload: a builder response or a command.
// Responses bearing an untracked UID are ignored.
func (m *Manager) Handle(ctx context.Context, payload any) {
	switch p := payload.(type) {
	case protocol.CargoBegin:
		if m.admit(p) {
			m.notify(Notification{Signal: SignalNewLogItem})
		}

	case protocol.LogItem:
		if m.admit(p) {
			m.appendLog(ctx, p.Item)
			m.addMarker(p.Item)
		}

	case protocol.CargoArtifact:
		if m.admit(p) {
			m.artifacts = append(m.artifacts, p.PackageID)
			if i := m.indexOf(p.UID); i >= 0 {
				target := m.active[i].Target
				m.record(ctx, "record artifact", func(r Recorder) error {
					return r.RecordArtifact(ctx, target, p.PackageID)
				})
			}
			m.notify(Notification{Signal: SignalArtifact, Artifact: p.PackageID})
		}

	case protocol.BuildFailure:
		if m.admit(p) {
			for i := range m.active {
				if m.active[i].BuildUID == p.UID {
					m.active[i].BuildUID = ""
					m.active[i].Failed = true
					target := m.active[i].Target
					m.record(ctx, "record failure", func(r Recorder) error {
						return r.RecordResult(ctx, target, nil)
					})
				}
			}
			m.notify(Notification{Signal: SignalBuildFailure})
		}

	case protocol.CargoEnd:
		if m.admit(p) {
			for i := range m.active {
				if m.active[i].BuildUID == p.UID {
					result := p.Result
					m.active[i].BuildUID = ""
					m.active[i].Result = &result
					target := m.active[i].Target
					m.record(ctx, "record result", func(r Recorder) error {
						return r.RecordResult(ctx, target, &result)
					})
				}
			}
			if !m.AnyBuilding() && m.execWhenDone {
				m.execWhenDone = false
				m.RunAllArtifacts(ctx)
			}
			m.notify(Notification{Signal: SignalCargoEnd})
		}

	case protocol.ProgramEnd:
		if m.admit(p) {
			for i := range m.active {
				if m.active[i].RunUID == p.UID {
					m.active[i].RunUID = ""
				}
			}
			m.notify(Notification{Signal: SignalProgramEnd})
		}

	case RestartCmd:
		m.Restart(ctx)
	case RunCmd:
		m.ArtifactRun(ctx)
	case TailCmd:
		m.SetTail(p.Enabled)
	case LogMessageCmd:
		m.AddLogMessage(ctx, p.Text)

	default:
		slog.Debug("build manager: ignoring payload", "type", typeName(payload))
	}
}

// ArtifactRun runs every executable now, or defers until the last
// outstanding build ends.
func (m *Manager) ArtifactRun(ctx context.Context) {
	if m.AnyBuilding() {
		m.execWhenDone = true
		slog.Debug("run deferred until builds finish")
		return
	}
	m.RunAllArtifacts(ctx)
}

// RunAllArtifacts starts every executable result. A previous run of the
// same target is killed first so two runs never coexist.
func (m *Manager) RunAllArtifacts(ctx context.Context) {
	for i := range m.active {
		ab := &m.active[i]
		if ab.Result == nil {
			continue
		}
		path, ok := ab.Result.ExecutablePath()
		if !ok {
			continue
		}
		if ab.RunUID != "" {
			m.send(ab.Target, protocol.ProgramKill{UID: ab.RunUID})
		}
		ab.RunUID = m.uids.Allocate()
		m.send(ab.Target, protocol.ProgramRun{UID: ab.RunUID, Path: path, Args: []string{}})
		slog.Info("program started", "target", ab.Target.String(), "path", path, "uid", ab.RunUID)
	}
}

// AddLogMessage appends a local console message.
func (m *Manager) AddLogMessage(ctx context.Context, text string) {
	m.appendLog(ctx, protocol.Message(text))
}

// SetTail switches log tail mode.
func (m *Manager) SetTail(on bool) {
	m.log.SetTail(on)
}

// IsTracked reports whether u is the build or run UID of an active build.
// This linear scan is the sole admission filter for responses.
func (m *Manager) IsTracked(u uid.UID) bool {
	if u == "" {
		return false
	}
	for _, ab := range m.active {
		if ab.BuildUID == u || ab.RunUID == u {
			return true
		}
	}
	return false
}

// AnyBuilding reports whether any build is outstanding.
func (m *Manager) AnyBuilding() bool {
	for _, ab := range m.active {
		if ab.BuildUID != "" {
			return true
		}
	}
	return false
}

// AnyRunning reports whether any program is outstanding.
func (m *Manager) AnyRunning() bool {
	for _, ab := range m.active {
		if ab.RunUID != "" {
			return true
		}
	}
	return false
}

// Builds returns a copy of the active build list.
func (m *Manager) Builds() []ActiveBuild {
	out := make([]ActiveBuild, len(m.active))
	for i, ab := range m.active {
		out[i] = ab.clone()
	}
	return out
}

// Artifacts returns a copy of the reported artifact identifiers.
func (m *Manager) Artifacts() []string {
	return append([]string(nil), m.artifacts...)
}

// Log returns the log history. Callers must be on the Manager goroutine.
func (m *Manager) Log() *LogHistory { return m.log }

// ExecWhenDone reports whether a deferred run is pending.
func (m *Manager) ExecWhenDone() bool { return m.execWhenDone }

func (m *Manager) admit(c protocol.Correlated) bool {
	if m.IsTracked(c.CorrelationID()) {
		return true
	}
	slog.Debug("build manager: ignoring untracked uid", "uid", c.CorrelationID(), "type", typeName(c))
	return false
}

func (m *Manager) indexOf(u uid.UID) int {
	for i, ab := range m.active {
		if ab.BuildUID == u || ab.RunUID == u {
			return i
		}
	}
	return -1
}

func (m *Manager) appendLog(ctx context.Context, e protocol.LogEntry) {
	stored, changed := m.log.Append(e)
	if stored {
		m.recordLog(ctx, e)
	}
	if changed {
		item := m.log.At(m.log.Len() - 1)
		m.notify(Notification{Signal: SignalNewLogItem, Item: &item})
	}
}

// recordLog forwards e to the recorder. A generation records at most
// MaxLogItems entries followed by one TruncatedMarker; the in-memory
// history keeps rotating in tail mode but the journal does not.
func (m *Manager) recordLog(ctx context.Context, e protocol.LogEntry) {
	if m.recorder == nil {
		return
	}
	limit := m.settings.Limits.MaxLogItems
	switch {
	case m.recorded < limit:
	case m.recorded == limit:
		e = protocol.Message(TruncatedMarker)
		slog.Warn("journal log cap reached, later log entries are not recorded", "max_log_items", limit)
	default:
		return
	}
	m.recorded++
	m.record(ctx, "record log", func(r Recorder) error {
		return r.RecordLog(ctx, e)
	})
}

// addMarker upserts a diagnostic marker for located entries with a byte
// range. Past MaxMarkers the buffer gets no more markers.
func (m *Manager) addMarker(e protocol.LogEntry) {
	loc, ok := e.Location()
	if !ok || loc.Range == nil {
		return
	}
	buf := m.buffers.LookupOrCreate(loc.Path)
	if buf.Len() >= m.settings.Limits.MaxMarkers {
		return
	}
	buf.AppendMarker(textbuf.Marker{
		Range:    *loc.Range,
		Severity: e.Kind.Severity(),
		Body:     e.Body,
	})
}

func (m *Manager) send(target protocol.BuildTarget, payload any) {
	m.out.Send(bus.Event{Topic: protocol.BuilderTopic(target.Builder), Payload: payload})
}

func (m *Manager) notify(n Notification) {
	if n.Signal != SignalNewLogItem {
		n.Builds = m.Builds()
	}
	m.out.Send(bus.Event{Topic: protocol.TopicBuildNotify, Payload: n})
}

func (m *Manager) record(ctx context.Context, what string, fn func(Recorder) error) {
	if m.recorder == nil {
		return
	}
	if err := fn(m.recorder); err != nil {
		slog.Warn("journal write failed", "op", what, "error", err)
	}
}
