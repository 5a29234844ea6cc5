package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/buildhub/internal/codec"
	"github.com/roach88/buildhub/internal/protocol"
)

// CreateSession inserts a session row. Duplicate IDs are ignored.
func (s *Store) CreateSession(ctx context.Context, id string, startedAt time.Time, targets []protocol.BuildTarget) error {
	if targets == nil {
		targets = []protocol.BuildTarget{}
	}
	blob, err := codec.Marshal(targets)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, targets)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, formatTime(startedAt), blob)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// WriteLog appends a console entry at seq.
//
// Note: the session must exist (foreign key constraint).
func (s *Store) WriteLog(ctx context.Context, sessionID string, seq int64, e protocol.LogEntry) error {
	blob, err := codec.Marshal(e)
	if err != nil {
		return fmt.Errorf("write log: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO log_items (session_id, seq, kind, body, entry)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, seq, e.Kind.String(), e.Body, blob)
	if err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// WriteArtifact records an artifact reported for target.
func (s *Store) WriteArtifact(ctx context.Context, sessionID string, seq int64, target, packageID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (session_id, seq, target, package_id)
		VALUES (?, ?, ?, ?)
	`, sessionID, seq, target, packageID)
	if err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// WriteResult records the end of target's build. A nil result is a
// failure.
func (s *Store) WriteResult(ctx context.Context, sessionID string, seq int64, target string, result *protocol.BuildResult, at time.Time) error {
	status := StatusFailed
	executable := ""
	if result != nil {
		status = StatusBuilt
		executable, _ = result.ExecutablePath()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (session_id, seq, target, status, executable, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sessionID, seq, target, string(status), executable, formatTime(at))
	if err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// DeleteSession removes a session and, by cascade, everything in it.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}
