package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roach88/buildhub/internal/protocol"
	"github.com/roach88/buildhub/internal/uid"
)

// ErrNoSession is returned when a record arrives before BeginSession.
var ErrNoSession = errors.New("journal: no session started")

// Recorder writes what the build manager observes into a Store. Every
// BeginSession opens a new session; later records belong to it.
//
// Thread-safety: safe for concurrent use via internal mutex. In practice
// the build manager goroutine writes and the CLI reads Session.
type Recorder struct {
	store *Store
	ids   uid.Allocator
	now   func() time.Time

	mu      sync.Mutex
	session string
	seq     int64
}

// NewRecorder creates a recorder. ids mints session IDs; now stamps
// sessions and results (time.Now when nil).
func NewRecorder(store *Store, ids uid.Allocator, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{store: store, ids: ids, now: now}
}

// Session returns the current session ID, or "" before the first
// BeginSession.
func (r *Recorder) Session() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// BeginSession starts a new session for targets.
func (r *Recorder) BeginSession(ctx context.Context, targets []protocol.BuildTarget) error {
	id := string(r.ids.Allocate())
	if err := r.store.CreateSession(ctx, id, r.now(), targets); err != nil {
		return err
	}

	r.mu.Lock()
	r.session = id
	r.seq = 0
	r.mu.Unlock()
	return nil
}

// next reserves the next seq of the current session.
func (r *Recorder) next() (string, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == "" {
		return "", 0, ErrNoSession
	}
	r.seq++
	return r.session, r.seq, nil
}

// RecordLog appends a console entry.
func (r *Recorder) RecordLog(ctx context.Context, e protocol.LogEntry) error {
	session, seq, err := r.next()
	if err != nil {
		return err
	}
	return r.store.WriteLog(ctx, session, seq, e)
}

// RecordArtifact appends an artifact for target.
func (r *Recorder) RecordArtifact(ctx context.Context, target protocol.BuildTarget, packageID string) error {
	session, seq, err := r.next()
	if err != nil {
		return err
	}
	return r.store.WriteArtifact(ctx, session, seq, target.String(), packageID)
}

// RecordResult appends the end of target's build; nil means failure.
func (r *Recorder) RecordResult(ctx context.Context, target protocol.BuildTarget, result *protocol.BuildResult) error {
	session, seq, err := r.next()
	if err != nil {
		return err
	}
	return r.store.WriteResult(ctx, session, seq, target.String(), result, r.now())
}
