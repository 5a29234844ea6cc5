package build

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/buildhub/internal/bus"
	"github.com/roach88/buildhub/internal/protocol"
)

// Name implements bus.Service.
func (m *Manager) Name() string { return "build-manager" }

// Run implements bus.Service. It subscribes to builder responses and
// control commands and applies each event in arrival order.
func (m *Manager) Run(ctx context.Context, ep bus.Endpoint) error {
	m.out = ep.Broker
	ep.Subscribe(protocol.TopicBuildStatus)
	ep.Subscribe(protocol.TopicBuildControl)

	slog.Info("build manager started", "sid", ep.SID, "targets", len(m.settings.Targets))
	defer slog.Info("build manager stopped", "sid", ep.SID)

	for {
		msg, err := ep.Inbox.Recv(ctx)
		if err != nil {
			if errors.Is(err, bus.ErrClosed) {
				return nil
			}
			return err
		}
		ev, ok := msg.(bus.Event)
		if !ok {
			continue
		}
		m.Handle(ctx, ev.Payload)
	}
}

// Snapshot returns a copy of the display state.
func (m *Manager) Snapshot() Snapshot {
	return Snapshot{
		Builds:       m.Builds(),
		Artifacts:    m.Artifacts(),
		LogLen:       m.log.Len(),
		Tail:         m.log.Tail(),
		ExecWhenDone: m.execWhenDone,
	}
}
