package build

import "github.com/roach88/buildhub/internal/protocol"

// Default limits. They bound memory against a runaway compiler or program
// regardless of how much it prints.
const (
	DefaultMaxLogItems = 700000
	DefaultLogWindow   = 500000
	DefaultMaxMarkers  = 100000
)

// Synthetic console entries.
const (
	TruncatedMarker = "------------ Log truncated here -----------"
	SkippingMarker  = "------------ Log skipping, press tail to resume -----------"
)

// Limits caps the log history and per-buffer diagnostics.
type Limits struct {
	// MaxLogItems is the hard cap on the log history.
	MaxLogItems int
	// LogWindow is how many of the most recent entries survive a
	// truncation in tail mode. Must be below MaxLogItems.
	LogWindow int
	// MaxMarkers is the per-buffer diagnostic cap.
	MaxMarkers int
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		MaxLogItems: DefaultMaxLogItems,
		LogWindow:   DefaultLogWindow,
		MaxMarkers:  DefaultMaxMarkers,
	}
}

// withDefaults fills zero fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxLogItems <= 0 {
		l.MaxLogItems = d.MaxLogItems
	}
	if l.LogWindow <= 0 || l.LogWindow >= l.MaxLogItems {
		l.LogWindow = l.MaxLogItems * 5 / 7
	}
	if l.MaxMarkers <= 0 {
		l.MaxMarkers = d.MaxMarkers
	}
	return l
}

// LogHistory is the bounded, append-only build console.
//
// INVARIANTS:
//   - Len() never exceeds MaxLogItems+1
//   - tail on:  exceeding the cap keeps the newest LogWindow entries and
//     appends one TruncatedMarker
//   - tail off: reaching the cap appends one SkippingMarker, then drops
//     everything until tail is re-enabled or the history is cleared
//
// Not safe for concurrent use. Owned by the Manager.
type LogHistory struct {
	limits   Limits
	tail     bool
	skipping bool
	items    []protocol.LogEntry
}

// NewLogHistory creates an empty history.
func NewLogHistory(limits Limits, tail bool) *LogHistory {
	return &LogHistory{limits: limits.withDefaults(), tail: tail}
}

// Append adds e to the history under the truncation policy. stored
// reports whether e itself was kept; changed reports whether the history
// grew at all (a marker may be appended in place of e).
func (h *LogHistory) Append(e protocol.LogEntry) (stored, changed bool) {
	if !h.tail && len(h.items) >= h.limits.MaxLogItems {
		if h.skipping {
			return false, false
		}
		h.skipping = true
		h.items = append(h.items, protocol.Message(SkippingMarker))
		return false, true
	}

	h.items = append(h.items, e)
	if len(h.items) > h.limits.MaxLogItems {
		h.truncate()
	}
	return true, true
}

// truncate keeps the newest LogWindow entries and appends the marker.
func (h *LogHistory) truncate() {
	drop := len(h.items) - h.limits.LogWindow
	n := copy(h.items, h.items[drop:])
	clear(h.items[n:])
	h.items = h.items[:n]
	h.items = append(h.items, protocol.Message(TruncatedMarker))
	h.skipping = false
}

// SetTail switches tail mode.
func (h *LogHistory) SetTail(on bool) { h.tail = on }

// Tail reports whether tail mode is on.
func (h *LogHistory) Tail() bool { return h.tail }

// Len returns the number of entries.
func (h *LogHistory) Len() int { return len(h.items) }

// At returns entry i.
func (h *LogHistory) At(i int) protocol.LogEntry { return h.items[i] }

// Last returns up to n of the newest entries, oldest first.
func (h *LogHistory) Last(n int) []protocol.LogEntry {
	if n > len(h.items) {
		n = len(h.items)
	}
	return append([]protocol.LogEntry(nil), h.items[len(h.items)-n:]...)
}

// Clear empties the history and leaves skipping mode.
func (h *LogHistory) Clear() {
	clear(h.items)
	h.items = h.items[:0]
	h.skipping = false
}
