package event

import (
	"encoding/json"

	"github.com/coder/websocket"
)

// StatusAccessTokenExpired closes a stream whose access token ran out.
// Clients refresh and reconnect when they see it.
const StatusAccessTokenExpired websocket.StatusCode = 4401

// Frame is the JSON envelope written on the websocket stream.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ConnectData is the payload of the first frame on every stream.
type ConnectData struct {
	ConnectionID string   `json:"connection_id"`
	UserID       string   `json:"user_id"`
	Rooms        []string `json:"rooms"`
}

// NewFrame wraps an event for the wire.
func NewFrame(ev Event) Frame {
	return Frame{Event: ev.Type, Data: ev.Payload}
}
