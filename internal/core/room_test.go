package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveOne(t *testing.T, s *Subscription) string {
	t.Helper()
	select {
	case msg := <-s.C():
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
		return ""
	}
}

func TestRoom_FanOutIncludesSender(t *testing.T) {
	room := NewRoom("test", 10)
	sender := room.Subscribe()
	peer := room.Subscribe()

	room.Publish("hi")

	assert.Equal(t, "hi", receiveOne(t, sender))
	assert.Equal(t, "hi", receiveOne(t, peer))
}

func TestRoom_PublishOrder(t *testing.T) {
	room := NewRoom("test", 10)
	sub := room.Subscribe()

	room.Publish("one")
	room.Publish("two")
	room.Publish("three")

	assert.Equal(t, "one", receiveOne(t, sub))
	assert.Equal(t, "two", receiveOne(t, sub))
	assert.Equal(t, "three", receiveOne(t, sub))
}

func TestRoom_PublishWithoutSubscribersIsNoop(t *testing.T) {
	room := NewRoom("idle", 10)

	assert.NotPanics(t, func() { room.Publish("nobody home") })
}

func TestRoom_LaggingSubscriberSkipsOldest(t *testing.T) {
	room := NewRoom("test", 3)
	sub := room.Subscribe()

	for _, msg := range []string{"1", "2", "3", "4", "5"} {
		room.Publish(msg)
	}

	// The two oldest messages were evicted; the stream resumes on the
	// survivors in order.
	assert.Equal(t, "3", receiveOne(t, sub))
	assert.Equal(t, "4", receiveOne(t, sub))
	assert.Equal(t, "5", receiveOne(t, sub))
	assert.Equal(t, int64(2), sub.Dropped())
}

func TestRoom_UnsubscribeStopsDelivery(t *testing.T) {
	room := NewRoom("test", 10)
	sub := room.Subscribe()
	sub.Unsubscribe()

	room.Publish("after detach")

	select {
	case msg := <-sub.C():
		t.Fatalf("received %q after unsubscribe", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRoom_JoinLeaveLifecycle(t *testing.T) {
	room := NewRoom("test", 10)

	require.True(t, room.Join())
	require.True(t, room.Join())
	assert.Equal(t, 2, room.Subscribers())

	assert.False(t, room.Leave(), "first leave must not close the room")
	assert.Equal(t, 1, room.Subscribers())

	assert.True(t, room.Leave(), "last leave closes the room")
	assert.Equal(t, 0, room.Subscribers())

	// A closed room can never be rejoined, even if a stale handle remains.
	assert.False(t, room.Join())
	assert.Equal(t, 0, room.Subscribers())
}

func TestRoom_LeaveOnEmptyRoom(t *testing.T) {
	room := NewRoom("test", 10)
	assert.False(t, room.Leave())
}
