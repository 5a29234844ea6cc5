package journal

import (
	"errors"
	"time"

	"github.com/roach88/buildhub/internal/protocol"
)

// ErrSessionNotFound is returned when a session ID matches nothing.
var ErrSessionNotFound = errors.New("session not found")

// timeFormat is fixed-width UTC so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

// Status is the terminal state of a target in a session.
type Status string

const (
	StatusBuilt  Status = "built"
	StatusFailed Status = "failed"
)

// Session summarizes one build generation.
type Session struct {
	ID        string                 `json:"id"`
	StartedAt time.Time              `json:"started_at"`
	Targets   []protocol.BuildTarget `json:"targets"`
	LogItems  int                    `json:"log_items"`
	Built     int                    `json:"built"`
	Failed    int                    `json:"failed"`
}

// Artifact is one reported build artifact.
type Artifact struct {
	Seq       int64  `json:"seq"`
	Target    string `json:"target"`
	PackageID string `json:"package_id"`
}

// Result is the end of one target's build.
type Result struct {
	Seq        int64     `json:"seq"`
	Target     string    `json:"target"`
	Status     Status    `json:"status"`
	Executable string    `json:"executable,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}
