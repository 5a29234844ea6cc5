package protocol

import "fmt"

// LogKind classifies a log entry. The Loc* kinds carry a Location.
type LogKind int

const (
	KindMessage LogKind = iota
	KindWarning
	KindError
	KindLocMessage
	KindLocWarning
	KindLocError
	KindLocPanic
)

var kindNames = [...]string{
	KindMessage:    "message",
	KindWarning:    "warning",
	KindError:      "error",
	KindLocMessage: "loc_message",
	KindLocWarning: "loc_warning",
	KindLocError:   "loc_error",
	KindLocPanic:   "loc_panic",
}

func (k LogKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseLogKind is the inverse of LogKind.String.
func ParseLogKind(s string) (LogKind, error) {
	for k, name := range kindNames {
		if name == s {
			return LogKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown log kind %q", s)
}

// Severity is the marker level shown in an editor gutter.
type Severity int

const (
	SeverityLog Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "log"
	}
}

// Severity maps a log kind to its marker severity. A panic location is
// shown as a plain log marker.
func (k LogKind) Severity() Severity {
	switch k {
	case KindError, KindLocError:
		return SeverityError
	case KindWarning, KindLocWarning:
		return SeverityWarning
	default:
		return SeverityLog
	}
}

// ByteRange is a half-open [Start, End) byte span in a source file.
type ByteRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Location ties a diagnostic to a source position.
type Location struct {
	Path   string     `json:"path"`
	Line   int        `json:"line"`
	Column int        `json:"column"`
	Range  *ByteRange `json:"range,omitempty"`
}

// LogEntry is one record in the build console.
type LogEntry struct {
	Kind LogKind   `json:"kind"`
	Body string    `json:"body"`
	Loc  *Location `json:"loc,omitempty"`
}

// Message returns a plain console message.
func Message(body string) LogEntry {
	return LogEntry{Kind: KindMessage, Body: body}
}

// Location returns the entry's source location, if it has one.
func (e LogEntry) Location() (*Location, bool) {
	if e.Loc == nil {
		return nil, false
	}
	return e.Loc, true
}

// String renders the entry the way a compiler would print it.
func (e LogEntry) String() string {
	prefix := ""
	switch e.Kind {
	case KindWarning, KindLocWarning:
		prefix = "warning: "
	case KindError, KindLocError:
		prefix = "error: "
	case KindLocPanic:
		prefix = "panic: "
	}
	if e.Loc != nil {
		return fmt.Sprintf("%s:%d:%d: %s%s", e.Loc.Path, e.Loc.Line, e.Loc.Column, prefix, e.Body)
	}
	return prefix + e.Body
}
