package event

import (
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

const defaultSubscriberBuffer = 32

// Subscriber is one live push connection.
type Subscriber struct {
	ID     string
	UserID string
	Role   string
	Events chan Event

	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	rooms     []string
	delivered map[string]time.Time // event ID -> delivery time, for this connection only
}

func NewSubscriber(userID, role string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Subscriber{
		ID:        shortuuid.New(),
		UserID:    userID,
		Role:      role,
		Events:    make(chan Event, buffer),
		done:      make(chan struct{}),
		delivered: make(map[string]time.Time),
	}
}

// Done is closed once the subscriber is unregistered.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Rooms returns the rooms the subscriber was registered to.
func (s *Subscriber) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]string, len(s.rooms))
	copy(rooms, s.rooms)
	return rooms
}

// Delivered reports whether the event ID was already pushed on this connection.
func (s *Subscriber) Delivered(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.delivered[id]
	return ok
}

// claim records the event as delivered and reports whether it was new.
func (s *Subscriber) claim(id string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.delivered[id]; ok {
		return false
	}
	s.delivered[id] = at
	return true
}

func (s *Subscriber) release(id string) {
	s.mu.Lock()
	delete(s.delivered, id)
	s.mu.Unlock()
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
