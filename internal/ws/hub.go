package ws

import "sync"

// Room keys. Every authenticated connection joins its personal channel;
// conversation rooms are joined and left explicitly.
func UserRoom(userID string) string { return "user_" + userID }

func ConversationRoom(convID string) string { return "conversation_" + convID }

// Hub is the connection registry: a bidirectional map between authenticated
// users and their live delivery channels, plus room subscriptions. All state
// is process-scoped; a restart means everyone went offline.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // userID -> connections
	rooms   map[string]map[*Client]struct{} // room key -> connections
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Register binds the client to its user and joins the personal channel.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.UserID]; !ok {
		h.clients[c.UserID] = make(map[*Client]struct{})
	}
	h.clients[c.UserID][c] = struct{}{}
	h.joinLocked(UserRoom(c.UserID), c)
}

// Unregister removes the client from its user binding and every room.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	for key, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, key)
		}
	}
}

// Join subscribes the client to a room; re-joining is a no-op.
func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(room, c)
}

func (h *Hub) joinLocked(room string, c *Client) {
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
}

// Leave unsubscribes the client from a room; leaving twice is a no-op.
func (h *Hub) Leave(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// EmitToUser delivers an event to every connection of one user, only if
// currently connected. Fire and forget: there is no offline queue.
func (h *Hub) EmitToUser(userID, event string, payload any) {
	h.emitRoom(UserRoom(userID), Encode(event, payload))
}

// EmitToConversation delivers an event to every connection subscribed to the
// conversation's room.
func (h *Hub) EmitToConversation(convID, event string, payload any) {
	h.emitRoom(ConversationRoom(convID), Encode(event, payload))
}

// BroadcastExcept delivers an event to every connection except the named
// user's own.
func (h *Hub) BroadcastExcept(userID, event string, payload any) {
	b := Encode(event, payload)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for uid, set := range h.clients {
		if uid == userID {
			continue
		}
		for c := range set {
			c.Enqueue(b)
		}
	}
}

func (h *Hub) emitRoom(room string, b []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		c.Enqueue(b)
	}
}
