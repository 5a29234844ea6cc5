// Package textbuf is the in-process text-buffer store the build manager
// writes diagnostics into. It holds no text, only per-path marker sets
// sorted by range start, ready for an editor to render.
package textbuf

import (
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/buildhub/internal/protocol"
)

// Marker is one diagnostic attached to a byte range of a buffer.
type Marker struct {
	Range    protocol.ByteRange
	Severity protocol.Severity
	Body     string
}

// Buffer is the marker set of one path.
//
// Thread-safety: all methods are safe for concurrent use. The build
// manager is the only writer; editors read.
type Buffer struct {
	mu         sync.Mutex
	path       string
	markers    []Marker
	mutationID int64
}

// Path returns the normalized buffer path.
func (b *Buffer) Path() string { return b.path }

// Len returns the number of markers.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.markers)
}

// MutationID increases on every change. Editors compare it to decide
// whether to re-render.
func (b *Buffer) MutationID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mutationID
}

// AppendMarker inserts m keeping markers sorted by Range.Start.
//
// The scan runs from the end backward to the first marker whose start is
// <= m's start, and inserts right after it. Equal starts therefore keep
// arrival order, and in-order compiler output costs O(1).
func (b *Buffer) AppendMarker(m Marker) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos := 0
	for i := len(b.markers) - 1; i >= 0; i-- {
		if b.markers[i].Range.Start <= m.Range.Start {
			pos = i + 1
			break
		}
	}

	b.markers = append(b.markers, Marker{})
	copy(b.markers[pos+1:], b.markers[pos:])
	b.markers[pos] = m
	b.mutationID++
}

// ClearMarkers removes every marker.
func (b *Buffer) ClearMarkers() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.markers) == 0 {
		return
	}
	b.markers = nil
	b.mutationID++
}

// Markers returns a copy of the marker list in stored order.
func (b *Buffer) Markers() []Marker {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Marker(nil), b.markers...)
}

// Store maps paths to buffers.
type Store struct {
	mu      sync.Mutex
	buffers map[string]*Buffer
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{buffers: make(map[string]*Buffer)}
}

// NormalizePath is the key buffers are stored under: NFC-normalized,
// cleaned, forward slashes. Compilers and editors disagree on all three.
func NormalizePath(path string) string {
	return filepath.ToSlash(filepath.Clean(norm.NFC.String(path)))
}

// LookupOrCreate returns the buffer for path, creating an empty one if
// needed.
func (s *Store) LookupOrCreate(path string) *Buffer {
	key := NormalizePath(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buffers[key]; ok {
		return b
	}
	b := &Buffer{path: key}
	s.buffers[key] = b
	return b
}

// Lookup returns the buffer for path without creating one.
func (s *Store) Lookup(path string) (*Buffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[NormalizePath(path)]
	return b, ok
}

// ClearAll clears the markers of every buffer.
func (s *Store) ClearAll() {
	s.mu.Lock()
	buffers := make([]*Buffer, 0, len(s.buffers))
	for _, b := range s.buffers {
		buffers = append(buffers, b)
	}
	s.mu.Unlock()

	for _, b := range buffers {
		b.ClearMarkers()
	}
}

// Paths returns every known buffer path, sorted.
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.buffers))
	for p := range s.buffers {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
