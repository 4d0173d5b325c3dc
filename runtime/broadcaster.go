package runtime

import (
	"fmt"
	"log/slog"

	"groupchat/contract"
	"groupchat/domain/event"
)

var _ contract.IBroadcaster = (*Broadcaster)(nil)

// Broadcaster serializes outbound events and hands them to connections.
//
// Delivery is best effort and isolated per connection: a failing peer is
// logged and skipped, never removed from the registry. Connections queue
// without waiting on the network, so the caller decides the relative order
// of envelopes by the order of its calls.
type Broadcaster struct {
	log      *slog.Logger
	registry contract.IRegistry
}

func NewBroadcaster(log *slog.Logger, registry contract.IRegistry) *Broadcaster {
	return &Broadcaster{log: log, registry: registry}
}

// Whisper delivers events to exactly one connection. Several events are
// handed over as a single batch, so a long history replay takes one slot
// of the connection queue and keeps its order.
func (b *Broadcaster) Whisper(conn contract.Connection, events ...event.Event) {
	payloads := make([][]byte, 0, len(events))
	for _, e := range events {
		payload, err := event.Encode(e)
		if err != nil {
			b.log.Error("Failed to encode event", "action", e.Action(), "error", err)
			continue
		}
		payloads = append(payloads, payload)
	}

	switch len(payloads) {
	case 0:
		return
	case 1:
		b.deliver(conn, events[0].Action(), func() error { return conn.Send(payloads[0]) })
	default:
		b.deliver(conn, events[0].Action(), func() error { return conn.SendBatch(payloads) })
	}
}

// Broadcast delivers the same payload to every registered connection.
func (b *Broadcaster) Broadcast(e event.Event) {
	payload, err := event.Encode(e)
	if err != nil {
		b.log.Error("Failed to encode event", "action", e.Action(), "error", err)
		return
	}
	for _, conn := range b.registry.Connections() {
		b.deliver(conn, e.Action(), func() error { return conn.Send(payload) })
	}
}

func (b *Broadcaster) deliver(conn contract.Connection, action string, send func() error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Connection panicked on send",
				"conn_id", conn.ID(), "action", action, "panic", fmt.Sprint(r))
		}
	}()

	if err := send(); err != nil {
		b.log.Warn("Delivery failed",
			"conn_id", conn.ID(), "action", action, "error", err)
	}
}
