package uid

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Allocator_Format(t *testing.T) {
	u := UUIDv7Allocator{}.Allocate()

	parsed, err := uuid.Parse(u.String())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Len(t, u.String(), 36)
}

func TestUUIDv7Allocator_Distinct(t *testing.T) {
	var a UUIDv7Allocator
	seen := make(map[UID]bool)
	for i := 0; i < 10000; i++ {
		u := a.Allocate()
		require.False(t, seen[u], "duplicate uid %s", u)
		seen[u] = true
	}
}

func TestUUIDv7Allocator_ConcurrentUse(t *testing.T) {
	var a UUIDv7Allocator
	var mu sync.Mutex
	seen := make(map[UID]bool)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				u := a.Allocate()
				mu.Lock()
				seen[u] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1600)
}

func TestFixedAllocator_InOrder(t *testing.T) {
	a := NewFixedAllocator("b-1", "b-2")

	assert.Equal(t, UID("b-1"), a.Allocate())
	assert.Equal(t, UID("b-2"), a.Allocate())
	assert.Panics(t, func() { a.Allocate() })
}

func TestSequenceAllocator(t *testing.T) {
	a := NewSequenceAllocator("")
	assert.Equal(t, UID("uid-1"), a.Allocate())
	assert.Equal(t, UID("uid-2"), a.Allocate())

	b := NewSequenceAllocator("run")
	assert.Equal(t, UID("run-1"), b.Allocate())
}
