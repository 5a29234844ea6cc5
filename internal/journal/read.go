package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/buildhub/internal/codec"
	"github.com/roach88/buildhub/internal/protocol"
)

const sessionColumns = `
	s.id, s.started_at, s.targets,
	(SELECT COUNT(*) FROM log_items l WHERE l.session_id = s.id),
	(SELECT COUNT(*) FROM results r WHERE r.session_id = s.id AND r.status = 'built'),
	(SELECT COUNT(*) FROM results r WHERE r.session_id = s.id AND r.status = 'failed')
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		sess    Session
		started string
		targets []byte
	)
	if err := row.Scan(&sess.ID, &started, &targets, &sess.LogItems, &sess.Built, &sess.Failed); err != nil {
		return Session{}, err
	}

	t, err := parseTime(started)
	if err != nil {
		return Session{}, fmt.Errorf("session %s: started_at: %w", sess.ID, err)
	}
	sess.StartedAt = t

	if err := codec.Unmarshal(targets, &sess.Targets); err != nil {
		return Session{}, fmt.Errorf("session %s: targets: %w", sess.ID, err)
	}
	return sess, nil
}

// ListSessions returns up to limit sessions, newest first. limit <= 0
// returns all of them.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s
		ORDER BY s.started_at DESC, s.id COLLATE BINARY DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// GetSession returns one session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	sessions, err := s.ListSessions(ctx, 1)
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return Session{}, ErrSessionNotFound
	}
	return sessions[0], nil
}

// ReadLog returns the console of a session in order. With limit > 0 only
// the newest limit entries are returned, still oldest first.
func (s *Store) ReadLog(ctx context.Context, sessionID string, limit int) ([]protocol.LogEntry, error) {
	query := `SELECT entry FROM log_items WHERE session_id = ? ORDER BY seq ASC`
	args := []any{sessionID}
	if limit > 0 {
		query = `SELECT entry FROM (
			SELECT seq, entry FROM log_items WHERE session_id = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	entries := []protocol.LogEntry{}
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		var e protocol.LogEntry
		if err := codec.Unmarshal(blob, &e); err != nil {
			return nil, fmt.Errorf("decode log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return entries, nil
}

// ReadArtifacts returns the artifacts of a session in order.
func (s *Store) ReadArtifacts(ctx context.Context, sessionID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, target, package_id FROM artifacts
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []Artifact{}
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.Seq, &a.Target, &a.PackageID); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return artifacts, nil
}

// ReadResults returns the results of a session in order.
func (s *Store) ReadResults(ctx context.Context, sessionID string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, target, status, executable, finished_at FROM results
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		var (
			r        Result
			status   string
			finished string
		)
		if err := rows.Scan(&r.Seq, &r.Target, &status, &r.Executable, &finished); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Status = Status(status)
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("result %d: finished_at: %w", r.Seq, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}
