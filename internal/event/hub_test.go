package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, opts ...HubOption) *Hub {
	t.Helper()
	hub := NewHub(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func receive(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case ev := <-sub.Events:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("subscriber %s received nothing", sub.UserID)
		return Event{}
	}
}

func assertNothing(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case ev := <-sub.Events:
		t.Fatalf("subscriber %s unexpectedly received %+v", sub.UserID, ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDeliversToRoomMembers(t *testing.T) {
	hub := startHub(t)

	student := NewSubscriber("s-1", "student", 4)
	parent := NewSubscriber("p-1", "parent", 4)
	hub.Register(student, "audience:all", "audience:students")
	hub.Register(parent, "audience:all", "audience:parents")

	hub.Broadcast(Event{Room: "audience:students", Type: TypeNotification, ID: "n-1"})

	assert.Equal(t, "n-1", receive(t, student).ID)
	assertNothing(t, parent)
}

func TestHubDeliversEachIDOncePerConnection(t *testing.T) {
	hub := startHub(t)

	sub := NewSubscriber("s-1", "student", 4)
	hub.Register(sub, "audience:all", "user:s-1")

	hub.Broadcast(Event{Room: "audience:all", Type: TypeNotification, ID: "n-1"})
	hub.Broadcast(Event{Room: "user:s-1", Type: TypeNotification, ID: "n-1"})
	hub.Broadcast(Event{Room: "audience:all", Type: TypeNotification, ID: "n-2"})

	assert.Equal(t, "n-1", receive(t, sub).ID)
	assert.Equal(t, "n-2", receive(t, sub).ID)
	assertNothing(t, sub)
	assert.True(t, sub.Delivered("n-1"))
}

func TestHubAppliesFilter(t *testing.T) {
	hub := startHub(t, WithFilter(func(sub *Subscriber, ev Event) bool {
		return ev.Audience != "teachers" || sub.Role == "teacher"
	}))

	student := NewSubscriber("s-1", "student", 4)
	hub.Register(student, "audience:teachers")

	hub.Broadcast(Event{Room: "audience:teachers", Type: TypeNotification, ID: "n-1", Audience: "teachers"})
	assertNothing(t, student)
	assert.False(t, student.Delivered("n-1"))
}

func TestHubUnregister(t *testing.T) {
	hub := startHub(t)

	sub := NewSubscriber("s-1", "student", 4)
	hub.Register(sub, "audience:all")
	require.Equal(t, 1, hub.RoomSize("audience:all"))

	hub.Unregister(sub)
	assert.Zero(t, hub.RoomSize("audience:all"))

	select {
	case <-sub.Done():
	default:
		t.Fatal("done channel not closed")
	}

	hub.Broadcast(Event{Room: "audience:all", Type: TypeNotification, ID: "n-1"})
	assertNothing(t, sub)
}

func TestHubSlowSubscriberCanReceiveLater(t *testing.T) {
	hub := startHub(t, WithSendTimeout(20*time.Millisecond))

	sub := NewSubscriber("s-1", "student", 1)
	hub.Register(sub, "audience:all")

	hub.Broadcast(Event{Room: "audience:all", Type: TypeNotification, ID: "n-1"})
	hub.Broadcast(Event{Room: "audience:all", Type: TypeNotification, ID: "n-2"})

	// n-2 times out against the full buffer and is released for a later attempt.
	time.Sleep(150 * time.Millisecond)
	require.True(t, sub.Delivered("n-1"))
	require.False(t, sub.Delivered("n-2"))
	assert.Equal(t, "n-1", receive(t, sub).ID)

	hub.Broadcast(Event{Room: "audience:all", Type: TypeNotification, ID: "n-2"})
	assert.Equal(t, "n-2", receive(t, sub).ID)
}

func TestHubBroadcastAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	for i := 0; i < eventQueueSize+10; i++ {
		hub.Broadcast(Event{Room: "audience:all"})
	}
}

func TestHubSlowSubscriberDoesNotDelayOthers(t *testing.T) {
	hub := startHub(t, WithSendTimeout(5*time.Second))

	slow := NewSubscriber("s-1", "student", 1)
	fast := NewSubscriber("s-2", "student", 4)
	hub.Register(slow, "audience:all")
	hub.Register(fast, "audience:all")

	start := time.Now()
	for _, id := range []string{"n-1", "n-2", "n-3"} {
		hub.Broadcast(Event{Room: "audience:all", Type: TypeNotification, ID: id})
	}

	for _, id := range []string{"n-1", "n-2", "n-3"} {
		assert.Equal(t, id, receive(t, fast).ID)
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "n-1", receive(t, slow).ID)
}
