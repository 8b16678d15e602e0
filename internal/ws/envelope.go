package ws

import "encoding/json"

// Inbound protocol events.
const (
	EventSendMessage       = "send_message"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMarkRead          = "mark_read"
	EventStatusUpdate      = "status_update"
)

// Outbound connection-level events.
const (
	EventUserOnline  = "user_online"
	EventUserOffline = "user_offline"
	EventAuthError   = "auth_error"
	EventError       = "error"
)

// Envelope is the wire format for both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode frames an outbound event. Marshal failures cannot happen for the
// payload shapes we emit, so the error is dropped.
func Encode(event string, payload any) []byte {
	raw, _ := json.Marshal(payload)
	b, _ := json.Marshal(Envelope{Type: event, Payload: raw})
	return b
}
