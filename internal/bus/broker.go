package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Broker is the router service. It owns the Registry and is the only
// goroutine that ever touches it.
//
// CRITICAL: All registry mutations happen in Run. Other services talk to
// the Broker only by sending Messages to its Mailbox.
type Broker struct {
	registry *Registry
}

// NewBroker creates a Broker with an empty registry.
func NewBroker() *Broker {
	return &Broker{registry: NewRegistry()}
}

// Name implements Service.
func (b *Broker) Name() string { return "broker" }

// Run processes inbound messages until ctx is cancelled or the inbox is
// closed. A malformed or unroutable message never stops the loop.
func (b *Broker) Run(ctx context.Context, ep Endpoint) error {
	slog.Info("broker starting", "sid", ep.SID)

	for {
		msg, err := ep.Inbox.Recv(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				slog.Info("broker stopping: inbox closed")
				return nil
			}
			slog.Info("broker stopping: context cancelled")
			return err
		}
		b.dispatch(msg)
	}
}

// dispatch routes one message.
// CRITICAL: Called only from Run (or from tests that own the Broker).
func (b *Broker) dispatch(msg Message) {
	switch m := msg.(type) {
	case Channel:
		if m.Sender == nil {
			slog.Warn("broker: channel without sender ignored", "sid", m.SID, "name", m.Name)
			return
		}
		if b.registry.RegisterChannel(m.SID, m.Name, m.Sender) {
			slog.Info("broker: revised existing channel", "sid", m.SID, "name", m.Name)
		} else {
			slog.Info("broker: added channel", "sid", m.SID, "name", m.Name)
		}

	case Subscribe:
		if b.registry.Subscribe(m.SID, m.Topic) {
			// Subscribe raced ahead of Channel. The placeholder keeps the
			// interest until the real channel arrives.
			slog.Warn("broker: forcing entry for unregistered service",
				"sid", m.SID,
				"topic", m.Topic,
			)
		}
		e, _ := b.registry.Lookup(m.SID)
		slog.Debug("broker: subscribed", "sid", m.SID, "name", e.Name, "topic", m.Topic)

	case Unsubscribe:
		if !b.registry.Unsubscribe(m.SID, m.Topic) {
			slog.Warn("broker: unsubscribe for unknown service", "sid", m.SID, "topic", m.Topic)
			return
		}
		slog.Debug("broker: unsubscribed", "sid", m.SID, "topic", m.Topic)

	case Event:
		b.publish(m)

	case Share:
		b.publishExclusive(m)

	case ListServices:
		if m.Reply != nil {
			m.Reply.Send(ServiceList{Services: b.registry.Services()})
		}

	default:
		slog.Warn("broker: dropping unroutable message", "type", fmt.Sprintf("%T", msg))
	}
}

// publish fans ev out to every subscriber of ev.Topic in registry order.
// Returns the number of successful deliveries.
func (b *Broker) publish(ev Event) int {
	delivered := 0
	for _, e := range b.registry.Subscribers(ev.Topic) {
		if !e.Sender.Send(ev) {
			slog.Debug("broker: delivery failed, skipping subscriber",
				"sid", e.SID,
				"name", e.Name,
				"topic", ev.Topic,
			)
			continue
		}
		delivered++
	}
	return delivered
}

// publishExclusive hands sh to the first TopicDisplay subscriber and
// stops. This is a deliberate single-consumer short-circuit for large
// buffers, not load balancing.
func (b *Broker) publishExclusive(sh Share) bool {
	e, ok := b.registry.First(TopicDisplay)
	if !ok {
		return false
	}
	return e.Sender.Send(sh)
}
