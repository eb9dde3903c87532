package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAndBroadcast(t *testing.T) {
	bus := New()
	sub := bus.Subscribe("sess-1")
	defer bus.Unsubscribe("sess-1", sub)

	bus.BroadcastToSession("sess-1", "connected", map[string]string{"sessionId": "sess-1"})

	msg, ok := sub.Pop()
	require.True(t, ok)
	assert.Equal(t, "connected", msg.Event)
}

func TestBroadcastToMissingSessionIsNoop(t *testing.T) {
	bus := New()
	assert.NotPanics(t, func() {
		bus.BroadcastToSession("nobody-subscribed", "state_updated", nil)
	})
}

func TestUnsubscribeClosesPendingPop(t *testing.T) {
	bus := New()
	sub := bus.Subscribe("sess-2")

	done := make(chan bool, 1)
	go func() {
		_, ok := sub.Pop()
		done <- ok
	}()

	bus.Unsubscribe("sess-2", sub)

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Unsubscribe")
	}
}

func TestSubscriberCount(t *testing.T) {
	bus := New()
	assert.Equal(t, 0, bus.SubscriberCount("sess-3"))

	s1 := bus.Subscribe("sess-3")
	s2 := bus.Subscribe("sess-3")
	assert.Equal(t, 2, bus.SubscriberCount("sess-3"))

	bus.Unsubscribe("sess-3", s1)
	assert.Equal(t, 1, bus.SubscriberCount("sess-3"))

	bus.Unsubscribe("sess-3", s2)
	assert.Equal(t, 0, bus.SubscriberCount("sess-3"))
}

func TestSlowSubscriberOverflowIsDroppedNotBlocked(t *testing.T) {
	bus := New()
	sub := bus.Subscribe("sess-4")
	defer bus.Unsubscribe("sess-4", sub)

	for i := 0; i < queueSize+10; i++ {
		bus.BroadcastToSession("sess-4", "heartbeat", nil)
	}
	// None of the above should block; queue simply drops overflow.
}

func TestBroadcastToSessions(t *testing.T) {
	bus := New()
	subA := bus.Subscribe("a")
	subB := bus.Subscribe("b")
	defer bus.Unsubscribe("a", subA)
	defer bus.Unsubscribe("b", subB)

	bus.BroadcastToSessions([]string{"a", "b"}, "match_found", map[string]any{"groupId": "g1"})

	msgA, ok := subA.Pop()
	require.True(t, ok)
	assert.Equal(t, "match_found", msgA.Event)

	msgB, ok := subB.Pop()
	require.True(t, ok)
	assert.Equal(t, "match_found", msgB.Event)
}
