package journal

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/buildhub/internal/codec"
	"github.com/roach88/buildhub/internal/protocol"
)

// ArchiveFormat identifies the export stream. Readers reject anything
// else.
const ArchiveFormat = "buildhub-session/1"

// Record types in an archive stream.
const (
	recordHeader   = "header"
	recordLog      = "log"
	recordArtifact = "artifact"
	recordResult   = "result"
)

// record is one item of the CBOR sequence. The header comes first,
// followed by log entries, artifacts and results.
type record struct {
	Type     string             `json:"type"`
	Format   string             `json:"format,omitempty"`
	Session  *Session           `json:"session,omitempty"`
	Entry    *protocol.LogEntry `json:"entry,omitempty"`
	Artifact *Artifact          `json:"artifact,omitempty"`
	Result   *Result            `json:"result,omitempty"`
}

// Archive is a decoded export.
type Archive struct {
	Session   Session
	Log       []protocol.LogEntry
	Artifacts []Artifact
	Results   []Result
}

// Export writes session id to w as a zstd-compressed CBOR sequence.
func (s *Store) Export(ctx context.Context, id string, w io.Writer) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	entries, err := s.ReadLog(ctx, id, 0)
	if err != nil {
		return err
	}
	artifacts, err := s.ReadArtifacts(ctx, id)
	if err != nil {
		return err
	}
	results, err := s.ReadResults(ctx, id)
	if err != nil {
		return err
	}

	cw, err := codec.NewCompressedWriter(w)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	records := make([]record, 0, 1+len(entries)+len(artifacts)+len(results))
	records = append(records, record{Type: recordHeader, Format: ArchiveFormat, Session: &sess})
	for i := range entries {
		records = append(records, record{Type: recordLog, Entry: &entries[i]})
	}
	for i := range artifacts {
		records = append(records, record{Type: recordArtifact, Artifact: &artifacts[i]})
	}
	for i := range results {
		records = append(records, record{Type: recordResult, Result: &results[i]})
	}

	for _, rec := range records {
		if err := cw.Encode(rec); err != nil {
			cw.Close()
			return fmt.Errorf("export %s: %w", id, err)
		}
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("export %s: %w", id, err)
	}
	return nil
}

// ReadArchive decodes a stream written by Export.
func ReadArchive(r io.Reader) (*Archive, error) {
	cr, err := codec.NewCompressedReader(r)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	defer cr.Close()

	var header record
	if err := cr.Decode(&header); err != nil {
		return nil, fmt.Errorf("read archive header: %w", err)
	}
	if header.Type != recordHeader || header.Format != ArchiveFormat || header.Session == nil {
		return nil, fmt.Errorf("read archive: unsupported format %q", header.Format)
	}

	a := &Archive{
		Session:   *header.Session,
		Log:       []protocol.LogEntry{},
		Artifacts: []Artifact{},
		Results:   []Result{},
	}
	for {
		var rec record
		err := cr.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return a, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}

		switch {
		case rec.Type == recordLog && rec.Entry != nil:
			a.Log = append(a.Log, *rec.Entry)
		case rec.Type == recordArtifact && rec.Artifact != nil:
			a.Artifacts = append(a.Artifacts, *rec.Artifact)
		case rec.Type == recordResult && rec.Result != nil:
			a.Results = append(a.Results, *rec.Result)
		default:
			return nil, fmt.Errorf("read archive: malformed %q record", rec.Type)
		}
	}
}
