package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Recv once a closed Mailbox has been drained.
var ErrClosed = errors.New("bus: mailbox closed")

// Mailbox is an unbounded multi-producer, single-consumer FIFO.
//
// It is unbounded so that Broker fan-out never blocks on a slow
// subscriber. The consumer waits on a 1-buffered signal channel, which
// keeps Recv context-aware and coalesces bursts of Sends.
//
// Thread-safety model:
//   - Send, Len, Close: safe from any goroutine
//   - Recv, TryRecv: one consumer goroutine
type Mailbox struct {
	mu     sync.Mutex
	items  []Message
	closed bool
	signal chan struct{}
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		items:  make([]Message, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Send appends msg to the back of the mailbox.
// Returns false if the mailbox is closed.
func (m *Mailbox) Send(msg Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	m.items = append(m.items, msg)

	select {
	case m.signal <- struct{}{}:
	default:
	}

	return true
}

// TryRecv removes the front message without blocking.
func (m *Mailbox) TryRecv() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return nil, false
	}

	msg := m.items[0]
	// Release the slot so large payloads can be collected.
	m.items[0] = nil

	if len(m.items) == 1 {
		m.items = m.items[:0]
	} else {
		m.items = m.items[1:]
	}

	return msg, true
}

// Recv blocks until a message is available, the mailbox is closed and
// drained (ErrClosed), or ctx is done (ctx.Err()).
func (m *Mailbox) Recv(ctx context.Context) (Message, error) {
	for {
		if msg, ok := m.TryRecv(); ok {
			return msg, nil
		}

		m.mu.Lock()
		drained := m.closed && len(m.items) == 0
		m.mu.Unlock()
		if drained {
			return nil, ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.signal:
		}
	}
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close stops accepting messages and wakes the consumer. Already queued
// messages can still be received.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.closed = true
	close(m.signal)
}
