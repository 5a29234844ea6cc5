package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"
)

// Service is a long-lived participant on the bus.
//
// The bus never needs to know concrete service kinds. Run receives the
// service's Endpoint and blocks until ctx is cancelled or the inbox is
// closed.
type Service interface {
	Name() string
	Run(ctx context.Context, ep Endpoint) error
}

// Endpoint is a service's view of the bus: its identity, its inbound
// Mailbox and the Broker's inbound Sender.
type Endpoint struct {
	SID    SID
	Name   string
	Inbox  *Mailbox
	Broker Sender
}

// Subscribe asks the Broker to route topic to this endpoint.
func (ep Endpoint) Subscribe(topic string) bool {
	return ep.Broker.Send(Subscribe{SID: ep.SID, Topic: topic})
}

// Unsubscribe asks the Broker to stop routing topic to this endpoint.
func (ep Endpoint) Unsubscribe(topic string) bool {
	return ep.Broker.Send(Unsubscribe{SID: ep.SID, Topic: topic})
}

// Publish sends payload to every subscriber of topic.
func (ep Endpoint) Publish(topic string, payload any) bool {
	return ep.Broker.Send(Event{Topic: topic, Payload: payload})
}

// Handle tracks a running service.
type Handle struct {
	name string
	done chan struct{}
	err  error
}

// Start runs svc on its own goroutine and returns a handle to it.
func Start(ctx context.Context, svc Service, ep Endpoint) *Handle {
	h := &Handle{name: svc.Name(), done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.err = svc.Run(ctx, ep)
	}()
	return h
}

// Name returns the service name.
func (h *Handle) Name() string { return h.name }

// Done is closed when the service's Run returns.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until Run returns and reports its error. Cancellation is not
// an error.
func (h *Handle) Wait() error {
	<-h.done
	if errors.Is(h.err, context.Canceled) {
		return nil
	}
	return h.err
}

// NewSID returns a random non-zero service identity.
func NewSID() SID {
	for {
		if sid := SID(rand.Uint64()); sid != BrokerSID {
			return sid
		}
	}
}

// System is a running Broker plus the services bootstrapped onto it.
type System struct {
	ctx     context.Context
	cancel  context.CancelFunc
	inbox   *Mailbox
	mu      sync.Mutex
	handles []*Handle
}

// Bootstrap starts the Broker first, then every service with a fresh SID
// and Mailbox, announcing each to the Broker before it starts.
func Bootstrap(ctx context.Context, broker Service, services ...Service) *System {
	ctx, cancel := context.WithCancel(ctx)
	s := &System{
		ctx:    ctx,
		cancel: cancel,
		inbox:  NewMailbox(),
	}

	s.handles = append(s.handles, Start(ctx, broker, Endpoint{
		SID:    BrokerSID,
		Name:   broker.Name(),
		Inbox:  s.inbox,
		Broker: s.inbox,
	}))

	for _, svc := range services {
		s.Spawn(svc)
	}
	return s
}

// Broker returns the Broker's inbound Sender.
func (s *System) Broker() Sender { return s.inbox }

// Attach registers an endpoint that is driven by the caller rather than a
// service goroutine (a CLI or UI loop, for example).
func (s *System) Attach(name string) Endpoint {
	ep := Endpoint{
		SID:    NewSID(),
		Name:   name,
		Inbox:  NewMailbox(),
		Broker: s.inbox,
	}
	s.inbox.Send(Channel{SID: ep.SID, Name: name, Sender: ep.Inbox})
	return ep
}

// Spawn attaches svc and starts it.
func (s *System) Spawn(svc Service) *Handle {
	ep := s.Attach(svc.Name())
	h := Start(s.ctx, svc, ep)

	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()

	slog.Debug("service started", "name", svc.Name(), "sid", ep.SID)
	return h
}

// Shutdown cancels every service and waits for them to return.
func (s *System) Shutdown() error {
	s.cancel()

	s.mu.Lock()
	handles := append([]*Handle(nil), s.handles...)
	s.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Services returns a snapshot of the Broker's registry. Because the Broker
// answers in order, everything sent to it before the call has been
// dispatched when Services returns.
func (s *System) Services(ctx context.Context) ([]ServiceInfo, error) {
	reply := NewMailbox()
	defer reply.Close()

	if !s.inbox.Send(ListServices{Reply: reply}) {
		return nil, ErrClosed
	}
	for {
		msg, err := reply.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if list, ok := msg.(ServiceList); ok {
			return list.Services, nil
		}
	}
}

// AwaitSubscriber blocks until the service called name has subscribed to
// topic. Subscriptions are asynchronous, so a caller that publishes right
// after Spawn would otherwise race the subscriber.
func (s *System) AwaitSubscriber(ctx context.Context, name, topic string) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		services, err := s.Services(ctx)
		if err != nil {
			return fmt.Errorf("await %s on %s: %w", name, topic, err)
		}
		for _, svc := range services {
			if svc.Name == name && slices.Contains(svc.Topics, topic) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("await %s on %s: %w", name, topic, ctx.Err())
		case <-ticker.C:
		}
	}
}
