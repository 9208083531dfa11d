package port

import "lootroom/internal/protocol"

type Broadcaster interface {
	// Broadcast queues an envelope for every connected peer; it must never
	// block on a slow receiver
	Broadcast(env protocol.Envelope)

	// Send queues an envelope for one peer only; unknown ids are a no-op
	Send(connectionID string, env protocol.Envelope)
}
