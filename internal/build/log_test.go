package build

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/buildhub/internal/protocol"
)

func line(i int) protocol.LogEntry {
	return protocol.Message(fmt.Sprintf("line %d", i))
}

func TestLogHistory_TailTruncatesToWindow(t *testing.T) {
	h := NewLogHistory(DefaultLimits(), true)

	for i := 0; i < DefaultMaxLogItems+1; i++ {
		h.Append(line(i))
	}

	require.Equal(t, DefaultLogWindow+1, h.Len())
	assert.Equal(t, TruncatedMarker, h.At(h.Len()-1).Body)
	// The newest window survives: the last real entry is the last appended.
	assert.Equal(t, line(DefaultMaxLogItems).Body, h.At(h.Len()-2).Body)
	assert.Equal(t, line(DefaultMaxLogItems+1-DefaultLogWindow).Body, h.At(0).Body)
}

func TestLogHistory_SkipsOnceWhenTailOff(t *testing.T) {
	h := NewLogHistory(DefaultLimits(), false)

	for i := 0; i < DefaultMaxLogItems+1; i++ {
		h.Append(line(i))
	}

	require.Equal(t, DefaultMaxLogItems+1, h.Len())
	assert.Equal(t, SkippingMarker, h.At(h.Len()-1).Body)

	for i := 0; i < 1000; i++ {
		stored, changed := h.Append(line(-i))
		require.False(t, stored)
		require.False(t, changed)
	}
	assert.Equal(t, DefaultMaxLogItems+1, h.Len(), "skipping marker is never repeated")
	assert.Equal(t, SkippingMarker, h.At(h.Len()-1).Body)
}

func TestLogHistory_SmallLimits(t *testing.T) {
	limits := Limits{MaxLogItems: 5, LogWindow: 2}

	t.Run("tail", func(t *testing.T) {
		h := NewLogHistory(limits, true)
		for i := 0; i < 6; i++ {
			stored, changed := h.Append(line(i))
			assert.True(t, stored)
			assert.True(t, changed)
		}
		var bodies []string
		for _, e := range h.Last(10) {
			bodies = append(bodies, e.Body)
		}
		assert.Equal(t, []string{"line 4", "line 5", TruncatedMarker}, bodies)
	})

	t.Run("skip", func(t *testing.T) {
		h := NewLogHistory(limits, false)
		for i := 0; i < 5; i++ {
			h.Append(line(i))
		}
		stored, changed := h.Append(line(5))
		assert.False(t, stored)
		assert.True(t, changed)
		assert.Equal(t, 6, h.Len())
		assert.Equal(t, SkippingMarker, h.At(5).Body)
	})
}

func TestLogHistory_ReenablingTailTruncates(t *testing.T) {
	h := NewLogHistory(Limits{MaxLogItems: 4, LogWindow: 2}, false)
	for i := 0; i < 6; i++ {
		h.Append(line(i))
	}
	require.Equal(t, 5, h.Len())

	h.SetTail(true)
	assert.True(t, h.Tail())
	h.Append(line(99))

	var bodies []string
	for _, e := range h.Last(10) {
		bodies = append(bodies, e.Body)
	}
	assert.Equal(t, []string{SkippingMarker, "line 99", TruncatedMarker}, bodies)

	// Truncation leaves skipping mode, so turning tail off again may skip anew.
	h.SetTail(false)
	h.Append(line(1))
	h.Append(line(2))
	assert.Equal(t, SkippingMarker, h.At(h.Len()-1).Body)
}

func TestLogHistory_Clear(t *testing.T) {
	h := NewLogHistory(Limits{MaxLogItems: 2, LogWindow: 1}, false)
	h.Append(line(0))
	h.Append(line(1))
	h.Append(line(2))
	require.Equal(t, 3, h.Len())

	h.Clear()

	assert.Equal(t, 0, h.Len())
	stored, _ := h.Append(line(3))
	assert.True(t, stored, "clear leaves skipping mode")
}

func TestLimits_WithDefaults(t *testing.T) {
	assert.Equal(t, DefaultLimits(), Limits{}.withDefaults())

	l := Limits{MaxLogItems: 70, LogWindow: 70}.withDefaults()
	assert.Equal(t, 50, l.LogWindow, "an invalid window is derived from the cap")
}

func TestLogHistory_LastClampsToLen(t *testing.T) {
	h := NewLogHistory(DefaultLimits(), true)
	h.Append(line(0))
	assert.Len(t, h.Last(5), 1)
	assert.Empty(t, NewLogHistory(DefaultLimits(), true).Last(3))
}
