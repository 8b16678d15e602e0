package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case b := <-c.Send:
			var env Envelope
			require.NoError(t, json.Unmarshal(b, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestEmitToUserReachesOnlyThatUser(t *testing.T) {
	h := NewHub()
	alice := NewClient(nil, "alice", "alice")
	bob := NewClient(nil, "bob", "bob")
	h.Register(alice)
	h.Register(bob)

	h.EmitToUser("bob", "new_message", map[string]any{"content": "hello"})

	bobFrames := drain(t, bob)
	require.Len(t, bobFrames, 1)
	assert.Equal(t, "new_message", bobFrames[0].Type)
	assert.Empty(t, drain(t, alice))
}

func TestEmitToUserFansOutToAllConnections(t *testing.T) {
	h := NewHub()
	phone := NewClient(nil, "alice", "alice")
	laptop := NewClient(nil, "alice", "alice")
	h.Register(phone)
	h.Register(laptop)

	h.EmitToUser("alice", "message_sent", map[string]any{"id": "m1"})

	assert.Len(t, drain(t, phone), 1)
	assert.Len(t, drain(t, laptop), 1)
}

func TestConversationRoomSubscription(t *testing.T) {
	h := NewHub()
	alice := NewClient(nil, "alice", "alice")
	bob := NewClient(nil, "bob", "bob")
	carol := NewClient(nil, "carol", "carol")
	h.Register(alice)
	h.Register(bob)
	h.Register(carol)

	room := ConversationRoom("conv1")
	h.Join(room, alice)
	h.Join(room, bob)
	// joining twice is a no-op
	h.Join(room, bob)

	h.EmitToConversation("conv1", "user_typing", map[string]any{"user_id": "alice"})
	assert.Len(t, drain(t, alice), 1)
	assert.Len(t, drain(t, bob), 1)
	assert.Empty(t, drain(t, carol))

	h.Leave(room, bob)
	// leaving twice is a no-op
	h.Leave(room, bob)
	h.EmitToConversation("conv1", "user_typing", map[string]any{"user_id": "alice"})
	assert.Len(t, drain(t, alice), 1)
	assert.Empty(t, drain(t, bob))
}

func TestBroadcastExceptSkipsOriginator(t *testing.T) {
	h := NewHub()
	alice := NewClient(nil, "alice", "alice")
	bob := NewClient(nil, "bob", "bob")
	h.Register(alice)
	h.Register(bob)

	h.BroadcastExcept("alice", "user_online", map[string]any{"user_id": "alice"})
	assert.Empty(t, drain(t, alice))
	frames := drain(t, bob)
	require.Len(t, frames, 1)
	assert.Equal(t, "user_online", frames[0].Type)
}

func TestUnregisterRemovesFromRoomsAndRegistry(t *testing.T) {
	h := NewHub()
	alice := NewClient(nil, "alice", "alice")
	h.Register(alice)
	h.Join(ConversationRoom("conv1"), alice)
	assert.True(t, h.IsOnline("alice"))

	h.Unregister(alice)
	assert.False(t, h.IsOnline("alice"))

	h.EmitToConversation("conv1", "user_typing", nil)
	h.EmitToUser("alice", "new_message", nil)
	assert.Empty(t, drain(t, alice))
}

func TestIsOnlineTracksRemainingConnections(t *testing.T) {
	h := NewHub()
	phone := NewClient(nil, "alice", "alice")
	laptop := NewClient(nil, "alice", "alice")
	h.Register(phone)
	h.Register(laptop)

	h.Unregister(phone)
	assert.True(t, h.IsOnline("alice"))
	h.Unregister(laptop)
	assert.False(t, h.IsOnline("alice"))
}

func TestEnqueueDropsWhenBufferFull(t *testing.T) {
	c := NewClient(nil, "alice", "alice")
	for i := 0; i < cap(c.Send)+10; i++ {
		c.Enqueue([]byte("x"))
	}
	assert.Len(t, c.Send, cap(c.Send))
}
