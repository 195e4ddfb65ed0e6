package event

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultSendTimeout = 5 * time.Second
	eventQueueSize     = 256
)

// Filter decides whether a subscriber in the event's room may receive it.
type Filter func(sub *Subscriber, ev Event) bool

// Hub routes events to the subscribers of a room. Each subscriber receives
// a given event ID at most once for the lifetime of its connection.
type Hub struct {
	clients map[string]map[*Subscriber]bool
	events  chan Event
	stopped chan struct{}
	mu      sync.Mutex

	filter      Filter
	sendTimeout time.Duration
}

type HubOption func(*Hub)

// WithFilter drops events a subscriber is not allowed to see.
func WithFilter(f Filter) HubOption {
	return func(h *Hub) {
		h.filter = f
	}
}

// WithSendTimeout bounds how long a slow subscriber may hold up delivery.
func WithSendTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		h.sendTimeout = d
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:     make(map[string]map[*Subscriber]bool),
		events:      make(chan Event, eventQueueSize),
		stopped:     make(chan struct{}),
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register subscribes the client to every room given.
func (h *Hub) Register(sub *Subscriber, rooms ...string) {
	h.mu.Lock()
	for _, room := range rooms {
		if _, ok := h.clients[room]; !ok {
			h.clients[room] = make(map[*Subscriber]bool)
		}
		h.clients[room][sub] = true
	}
	h.mu.Unlock()

	sub.mu.Lock()
	sub.rooms = append(sub.rooms, rooms...)
	sub.mu.Unlock()

	log.Info().Str("connection_id", sub.ID).Str("user_id", sub.UserID).
		Strs("rooms", rooms).Msg("client registered")
}

// Unregister removes the client from all its rooms and closes its Done channel.
func (h *Hub) Unregister(sub *Subscriber) {
	rooms := sub.Rooms()

	h.mu.Lock()
	for _, room := range rooms {
		if clients, ok := h.clients[room]; ok {
			delete(clients, sub)
			if len(clients) == 0 {
				delete(h.clients, room)
			}
		}
	}
	h.mu.Unlock()

	sub.close()
	log.Info().Str("connection_id", sub.ID).Str("user_id", sub.UserID).Msg("client unregistered")
}

// Broadcast queues the event for delivery. It never blocks once the hub has stopped.
func (h *Hub) Broadcast(event Event) {
	select {
	case h.events <- event:
	case <-h.stopped:
	}
}

// Run delivers queued events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-h.events:
			h.dispatch(event)
		}
	}
}

// RoomSize returns the number of subscribers currently in the room.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[room])
}

func (h *Hub) dispatch(event Event) {
	h.mu.Lock()
	clients := make([]*Subscriber, 0, len(h.clients[event.Room]))
	for client := range h.clients[event.Room] {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	now := time.Now()
	for _, client := range clients {
		if h.filter != nil && !h.filter(client, event) {
			continue
		}
		if event.ID != "" && !client.claim(event.ID, now) {
			continue
		}

		select {
		case client.Events <- event:
			continue
		default:
		}
		// A full buffer waits on its own so it cannot hold up other clients.
		go h.sendSlow(client, event)
	}
}

func (h *Hub) sendSlow(c *Subscriber, event Event) {
	timer := time.NewTimer(h.sendTimeout)
	defer timer.Stop()

	select {
	case c.Events <- event:
	case <-c.done:
	case <-timer.C:
		// The client will pick the event up on its next pull.
		if event.ID != "" {
			c.release(event.ID)
		}
		log.Warn().Str("connection_id", c.ID).Str("event_id", event.ID).
			Msg("dropped event for slow client")
	}
}
