package bus

import (
	"fmt"
	"sync"
)

// SID identifies one running service instance for the lifetime of its
// process. Randomly generated, never reused. The Broker is always SID 0.
type SID uint64

// BrokerSID is the fixed identity of the Broker.
const BrokerSID SID = 0

// String renders the SID as fixed-width hex for logs.
func (s SID) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// TopicDisplay is the reserved topic consumed by Share. Only the first
// subscriber in registry order receives a shared frame.
const TopicDisplay = "/display"

// Message is anything that can travel through a Mailbox.
//
// The set is closed: only types in this package implement it. Domain
// payloads (build requests, log items, ...) ride inside Event.Payload.
type Message interface {
	isMessage()
}

// Sender is the outbound half of a service channel.
//
// Send must not block. It returns false when the receiving side is gone;
// the Broker treats that as a transport failure for that subscriber only.
type Sender interface {
	Send(msg Message) bool
}

// Channel registers (or replaces) the inbound channel for a service.
type Channel struct {
	SID    SID
	Name   string
	Sender Sender
}

// Subscribe adds Topic to the service's subscription set.
type Subscribe struct {
	SID   SID
	Topic string
}

// Unsubscribe removes Topic from the service's subscription set.
type Unsubscribe struct {
	SID   SID
	Topic string
}

// Event is a generic topic fan-out. Payload is delivered by reference to
// every subscriber, so payloads must be treated as immutable.
type Event struct {
	Topic   string
	Payload any
}

// Share hands a large buffer to a single consumer (see TopicDisplay).
type Share struct {
	Frame *Frame
}

// ListServices asks the Broker for a snapshot of its registry. The answer
// is a ServiceList sent to Reply. Because the Broker handles messages in
// order, the reply also acts as a barrier: everything sent to the Broker
// before the ListServices has been dispatched.
type ListServices struct {
	Reply Sender
}

// ServiceList is the Broker's answer to ListServices.
type ServiceList struct {
	Services []ServiceInfo
}

func (Channel) isMessage()      {}
func (Subscribe) isMessage()    {}
func (Unsubscribe) isMessage()  {}
func (Event) isMessage()        {}
func (Share) isMessage()        {}
func (ListServices) isMessage() {}
func (ServiceList) isMessage()  {}

// Frame is a shared pixel buffer passed by handle through Share.
// Producers and the consumer coordinate through the embedded mutex.
type Frame struct {
	sync.Mutex
	Width  int
	Height int
	Pixels []uint32
}

// NewFrame allocates a zeroed width*height frame.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pixels: make([]uint32, width*height),
	}
}

// discard is the sink used for placeholder registry entries. Messages
// sent to it are dropped.
type discard struct{}

func (discard) Send(Message) bool { return true }

// Discard is a Sender that accepts and drops every message.
var Discard Sender = discard{}
