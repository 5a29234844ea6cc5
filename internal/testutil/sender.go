// Package testutil holds deterministic fakes shared by package tests.
package testutil

import (
	"sync"

	"github.com/roach88/buildhub/internal/bus"
)

// RecordingSender is a bus.Sender that keeps every message it receives.
// It stands in for the Broker when a test drives a service directly.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type RecordingSender struct {
	mu       sync.Mutex
	messages []bus.Message
	closed   bool
}

// NewRecordingSender creates an empty recorder.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

// Send implements bus.Sender. It returns false after Close.
func (r *RecordingSender) Send(msg bus.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.messages = append(r.messages, msg)
	return true
}

// Close makes every later Send fail, like a dead mailbox.
func (r *RecordingSender) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Messages returns a copy of everything received, in order.
func (r *RecordingSender) Messages() []bus.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bus.Message(nil), r.messages...)
}

// Payloads returns the payloads of events published on topic, in order.
func (r *RecordingSender) Payloads(topic string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []any
	for _, msg := range r.messages {
		if ev, ok := msg.(bus.Event); ok && ev.Topic == topic {
			out = append(out, ev.Payload)
		}
	}
	return out
}

// Reset forgets everything received so far.
func (r *RecordingSender) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}

// PayloadsOf filters payloads down to those of type T.
func PayloadsOf[T any](payloads []any) []T {
	var out []T
	for _, p := range payloads {
		if v, ok := p.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
