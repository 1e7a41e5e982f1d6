// Package broadcast defines the port for pushing live advisory events to
// connected clients.
package broadcast

import "context"

// Broadcaster sends real-time events to all connected clients. Delivery is
// best-effort; slow clients are dropped by the implementation, never waited
// on.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
