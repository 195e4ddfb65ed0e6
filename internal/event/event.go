package event

import (
	"context"
	"encoding/json"
)

// Event is a message pushed to every connection subscribed to Room.
type Event struct {
	Room     string          `json:"room"`     // e.g. "audience:students", "user:42"
	Type     string          `json:"type"`     // connect, notification
	ID       string          `json:"id"`       // dedup key, empty for lifecycle events
	Audience string          `json:"audience"` // target audience used by the visibility filter
	Payload  json.RawMessage `json:"payload"`
}

const (
	TypeConnect      = "connect"      // sent once after the handshake, lists the joined rooms
	TypeNotification = "notification" // carries a serialized notification
)

// EventSender is the server side of the push channel.
type EventSender interface {
	Register(sub *Subscriber, rooms ...string)
	Unregister(sub *Subscriber)
	Broadcast(event Event)
	Run(ctx context.Context)
}
