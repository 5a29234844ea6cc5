package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/roach88/buildhub/internal/build"
	"github.com/roach88/buildhub/internal/journal"
	"github.com/roach88/buildhub/internal/protocol"
)

// logView is a LogEntry with its kind spelled out for JSON output.
type logView struct {
	Kind string             `json:"kind"`
	Body string             `json:"body"`
	Loc  *protocol.Location `json:"loc,omitempty"`
}

func viewEntry(e protocol.LogEntry) logView {
	return logView{Kind: e.Kind.String(), Body: e.Body, Loc: e.Loc}
}

// buildView is one row of a build summary.
type buildView struct {
	Target     string `json:"target"`
	State      string `json:"state"`
	Executable string `json:"executable,omitempty"`
}

func viewBuilds(builds []build.ActiveBuild) []buildView {
	out := make([]buildView, len(builds))
	for i, ab := range builds {
		out[i] = buildView{Target: ab.Target.String(), State: ab.State().String()}
		if ab.Result != nil {
			out[i].Executable, _ = ab.Result.ExecutablePath()
		}
	}
	return out
}

// renderEvent is one line of JSON build output.
type renderEvent struct {
	Event    string      `json:"event"`
	Entry    *logView    `json:"entry,omitempty"`
	Artifact string      `json:"artifact,omitempty"`
	Builds   []buildView `json:"builds,omitempty"`
}

// Renderer prints a live build. Text output colours diagnostics by
// severity when the writer is a terminal; JSON output is one event per
// line.
type Renderer struct {
	w    io.Writer
	enc  *json.Encoder
	warn lipgloss.Style
	err  lipgloss.Style
	dim  lipgloss.Style
}

// NewRenderer creates a renderer for format ("text" or "json"). The
// colour profile is detected from w.
func NewRenderer(w io.Writer, format string) *Renderer {
	return newRenderer(w, format, lipgloss.NewRenderer(w))
}

// newPlainRenderer never emits escape sequences.
func newPlainRenderer(w io.Writer, format string) *Renderer {
	lr := lipgloss.NewRenderer(w, termenv.WithProfile(termenv.Ascii))
	lr.SetColorProfile(termenv.Ascii)
	return newRenderer(w, format, lr)
}

func newRenderer(w io.Writer, format string, lr *lipgloss.Renderer) *Renderer {
	r := &Renderer{
		w:    w,
		warn: lr.NewStyle().Foreground(lipgloss.Color("3")),
		err:  lr.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		dim:  lr.NewStyle().Faint(true),
	}
	if format == "json" {
		r.enc = json.NewEncoder(w)
	}
	return r
}

// Entry prints one log entry.
func (r *Renderer) Entry(e protocol.LogEntry) error {
	if r.enc != nil {
		v := viewEntry(e)
		return r.enc.Encode(renderEvent{Event: "log", Entry: &v})
	}
	_, err := fmt.Fprintln(r.w, r.styled(e))
	return err
}

// Artifact reports a new artifact. Text output leaves artifacts to the
// summary.
func (r *Renderer) Artifact(packageID string) error {
	if r.enc != nil {
		return r.enc.Encode(renderEvent{Event: "artifact", Artifact: packageID})
	}
	return nil
}

// Summary prints the final state of every build.
func (r *Renderer) Summary(builds []build.ActiveBuild) error {
	views := viewBuilds(builds)
	if r.enc != nil {
		return r.enc.Encode(renderEvent{Event: "summary", Builds: views})
	}

	fmt.Fprintln(r.w, r.dim.Render("---"))
	for _, v := range views {
		state := v.State
		if state == build.StateFailed.String() {
			state = r.err.Render(state)
		}
		line := state + strings.Repeat(" ", max(1, 9-len(v.State))) + v.Target
		if v.Executable != "" {
			line += "  " + v.Executable
		}
		if _, err := fmt.Fprintln(r.w, line); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) styled(e protocol.LogEntry) string {
	s := e.String()
	switch e.Kind.Severity() {
	case protocol.SeverityError:
		return r.err.Render(s)
	case protocol.SeverityWarning:
		return r.warn.Render(s)
	}
	if e.Kind == protocol.KindMessage && (e.Body == build.TruncatedMarker || e.Body == build.SkippingMarker) {
		return r.dim.Render(s)
	}
	return s
}

// sessionView is a recorded session with everything attached to it.
type sessionView struct {
	Session   journal.Session    `json:"session"`
	Results   []journal.Result   `json:"results"`
	Artifacts []journal.Artifact `json:"artifacts"`
	Log       []logView          `json:"log"`

	entries []protocol.LogEntry
}

func newSessionView(sess journal.Session, results []journal.Result, artifacts []journal.Artifact, log []protocol.LogEntry) sessionView {
	v := sessionView{
		Session:   sess,
		Results:   results,
		Artifacts: artifacts,
		Log:       make([]logView, len(log)),
		entries:   log,
	}
	for i, e := range log {
		v.Log[i] = viewEntry(e)
	}
	return v
}

// writeSession prints a session as text.
func writeSession(w io.Writer, v sessionView) {
	fmt.Fprintf(w, "session %s\n", v.Session.ID)
	fmt.Fprintf(w, "started %s\n", v.Session.StartedAt.UTC().Format("2006-01-02 15:04:05Z"))

	fmt.Fprintf(w, "\ntargets (%d)\n", len(v.Session.Targets))
	for _, t := range v.Session.Targets {
		fmt.Fprintf(w, "  %s\n", t.String())
	}

	if len(v.Results) > 0 {
		fmt.Fprintf(w, "\nresults (%d built, %d failed)\n", v.Session.Built, v.Session.Failed)
		for _, res := range v.Results {
			line := fmt.Sprintf("  %-8s %s", res.Status, res.Target)
			if res.Executable != "" {
				line += "  " + res.Executable
			}
			fmt.Fprintln(w, line)
		}
	}

	if len(v.Artifacts) > 0 {
		fmt.Fprintf(w, "\nartifacts (%d)\n", len(v.Artifacts))
		for _, a := range v.Artifacts {
			fmt.Fprintf(w, "  %s  %s\n", a.Target, a.PackageID)
		}
	}

	fmt.Fprintf(w, "\nlog (%d of %d)\n", len(v.entries), v.Session.LogItems)
	for _, e := range v.entries {
		fmt.Fprintf(w, "  %s\n", e.String())
	}
}
