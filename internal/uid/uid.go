// Package uid allocates the opaque identifiers that correlate a build or
// run request with its asynchronous responses.
//
// A UID is minted by the service that initiates an operation and is valid
// only for that operation. Allocators share no state beyond their random
// source: every orchestrator allocates independently.
package uid

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// UID is an opaque correlation identifier.
type UID string

// String implements fmt.Stringer.
func (u UID) String() string { return string(u) }

// Allocator mints correlation identifiers.
// Implemented by UUIDv7Allocator (production), FixedAllocator and
// SequenceAllocator (tests).
type Allocator interface {
	Allocate() UID
}

// UUIDv7Allocator allocates time-sortable UUIDv7 identifiers. Collisions
// are statistically negligible, so no reuse tracking is kept.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Allocator struct{}

// Allocate returns a new hyphenated UUIDv7.
//
// Panics if the random source fails (should never happen in practice).
func (UUIDv7Allocator) Allocate() UID {
	return UID(uuid.Must(uuid.NewV7()).String())
}

// FixedAllocator returns predetermined identifiers in order.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedAllocator struct {
	mu   sync.Mutex
	uids []UID
	idx  int
}

// NewFixedAllocator creates an allocator that hands out uids in order.
func NewFixedAllocator(uids ...UID) *FixedAllocator {
	return &FixedAllocator{uids: uids}
}

// Allocate returns the next predetermined identifier.
//
// Panics when exhausted: a test that allocates more than it declared is
// misconfigured.
func (a *FixedAllocator) Allocate() UID {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.idx >= len(a.uids) {
		panic("FixedAllocator: all uids exhausted")
	}
	u := a.uids[a.idx]
	a.idx++
	return u
}

// SequenceAllocator returns prefix-1, prefix-2, ... Useful for
// deterministic traces.
type SequenceAllocator struct {
	prefix string
	n      atomic.Int64
}

// NewSequenceAllocator creates a sequence allocator. An empty prefix
// defaults to "uid".
func NewSequenceAllocator(prefix string) *SequenceAllocator {
	if prefix == "" {
		prefix = "uid"
	}
	return &SequenceAllocator{prefix: prefix}
}

// Allocate returns the next identifier in the sequence.
func (a *SequenceAllocator) Allocate() UID {
	return UID(fmt.Sprintf("%s-%d", a.prefix, a.n.Add(1)))
}
