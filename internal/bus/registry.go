package bus

import "sort"

// placeholderName marks entries created by a Subscribe that arrived before
// the service's Channel.
const placeholderName = "no name yet"

// Entry is one registered service.
type Entry struct {
	SID           SID
	Name          string
	Sender        Sender
	subscriptions map[string]struct{}
}

// Subscribed reports whether the entry is subscribed to topic.
func (e *Entry) Subscribed(topic string) bool {
	_, ok := e.subscriptions[topic]
	return ok
}

// ServiceInfo is a read-only copy of an Entry.
type ServiceInfo struct {
	SID    SID
	Name   string
	Topics []string
}

// Registry maps service identities to their outbound channel and
// subscription set.
//
// Iteration order is registration order: the first Channel (or
// placeholder) for a SID fixes its position, and re-registration keeps it.
//
// Not safe for concurrent use. The Broker owns it.
type Registry struct {
	order   []SID
	entries map[SID]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[SID]*Entry),
	}
}

// RegisterChannel inserts a fresh entry for an unknown sid, or replaces
// the channel and name of a known one while carrying its subscriptions
// forward. Returns true when an existing entry was replaced.
func (r *Registry) RegisterChannel(sid SID, name string, sender Sender) bool {
	if e, ok := r.entries[sid]; ok {
		e.Name = name
		e.Sender = sender
		return true
	}
	r.insert(&Entry{
		SID:           sid,
		Name:          name,
		Sender:        sender,
		subscriptions: make(map[string]struct{}),
	})
	return false
}

// Subscribe adds topic to the sid's subscription set. An unknown sid gets
// a placeholder entry (discarding sender) first, so a subscription racing
// ahead of its Channel is not lost. Returns true when a placeholder was
// created.
func (r *Registry) Subscribe(sid SID, topic string) bool {
	e, ok := r.entries[sid]
	if !ok {
		e = &Entry{
			SID:           sid,
			Name:          placeholderName,
			Sender:        Discard,
			subscriptions: make(map[string]struct{}),
		}
		r.insert(e)
	}
	e.subscriptions[topic] = struct{}{}
	return !ok
}

// Unsubscribe removes topic from the sid's subscription set. Returns false
// if the sid is unknown.
func (r *Registry) Unsubscribe(sid SID, topic string) bool {
	e, ok := r.entries[sid]
	if !ok {
		return false
	}
	delete(e.subscriptions, topic)
	return true
}

// Lookup returns the entry for sid.
func (r *Registry) Lookup(sid SID) (*Entry, bool) {
	e, ok := r.entries[sid]
	return e, ok
}

// Subscribers returns every entry subscribed to topic, in iteration order.
func (r *Registry) Subscribers(topic string) []*Entry {
	var out []*Entry
	for _, sid := range r.order {
		if e := r.entries[sid]; e.Subscribed(topic) {
			out = append(out, e)
		}
	}
	return out
}

// First returns the first entry subscribed to topic, in iteration order.
func (r *Registry) First(topic string) (*Entry, bool) {
	for _, sid := range r.order {
		if e := r.entries[sid]; e.Subscribed(topic) {
			return e, true
		}
	}
	return nil, false
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.order)
}

// Services returns a snapshot of the registry in iteration order.
func (r *Registry) Services() []ServiceInfo {
	out := make([]ServiceInfo, 0, len(r.order))
	for _, sid := range r.order {
		e := r.entries[sid]
		topics := make([]string, 0, len(e.subscriptions))
		for t := range e.subscriptions {
			topics = append(topics, t)
		}
		sort.Strings(topics)
		out = append(out, ServiceInfo{SID: e.SID, Name: e.Name, Topics: topics})
	}
	return out
}

func (r *Registry) insert(e *Entry) {
	r.entries[e.SID] = e
	r.order = append(r.order, e.SID)
}
