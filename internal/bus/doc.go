// Package bus implements the buildhub message bus: a single router
// service (the Broker) that lets long-lived services exchange
// topic-addressed messages.
//
// ARCHITECTURE:
//
// One Goroutine Per Service:
// Every service, including the Broker, runs its own loop and blocks only
// on its inbound Mailbox. Services never share mutable state; everything
// crosses a service boundary as a Message.
//
// Broker-Owned Registry:
// The Registry (SID -> outbound Sender + subscriptions) is created and
// mutated exclusively inside Broker.Run. There is no lock around it.
//
// Message Flow:
//  1. Bootstrap starts the Broker, then each service with a fresh SID and
//     an unbounded Mailbox, announcing it to the Broker with a Channel
//     message.
//  2. Services send Subscribe/Unsubscribe/Event/Share to the Broker's
//     Mailbox.
//  3. The Broker fans Events out to every subscriber of the topic, or hands
//     a Share to the first "/display" subscriber only.
//
// DELIVERY GUARANTEES:
//
//   - FIFO per sender/receiver pair (Mailbox is a FIFO).
//   - No ordering across different senders interleaved at one receiver.
//   - At-most-once: a failed send to one subscriber is skipped, never
//     retried, and never aborts delivery to the others.
//   - Publishing to a topic nobody subscribes to is a normal no-op.
//
// SCALING LIMIT:
//
// Fan-out is synchronous with respect to the Broker's receive loop. A
// subscriber whose Sender blocks would stall the whole bus, so every
// Sender handed to the Broker must be non-blocking. Mailbox is unbounded
// for exactly this reason.
package bus
