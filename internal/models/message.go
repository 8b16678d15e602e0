package models

import "time"

// Message types accepted by the pipeline.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeAudio    = "audio"
	TypeVideo    = "video"
	TypeDocument = "document"
	TypeLocation = "location"
)

// Reaction records one user's reaction under a symbol bucket.
type Reaction struct {
	UserID  string    `bson:"user_id" json:"user_id"`
	AddedAt time.Time `bson:"added_at" json:"added_at"`
}

// MessageMetadata is the mutable lifecycle state of a message. It is a set of
// well-defined sub-structures rather than an open map so invariants such as
// one-reaction-per-user survive concurrent mutation.
type MessageMetadata struct {
	Reactions         map[string][]Reaction `bson:"reactions,omitempty" json:"reactions,omitempty"`
	IsPinned          bool                  `bson:"is_pinned" json:"is_pinned"`
	PinnedBy          string                `bson:"pinned_by,omitempty" json:"pinned_by,omitempty"`
	PinnedAt          *time.Time            `bson:"pinned_at,omitempty" json:"pinned_at,omitempty"`
	IsEdited          bool                  `bson:"is_edited" json:"is_edited"`
	EditedAt          *time.Time            `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	HiddenForUsers    []string              `bson:"hidden_for_users,omitempty" json:"hidden_for_users,omitempty"`
	IsEphemeral       bool                  `bson:"is_ephemeral,omitempty" json:"is_ephemeral,omitempty"`
	EphemeralDuration int                   `bson:"ephemeral_duration,omitempty" json:"ephemeral_duration,omitempty"`
	ForwardedFrom     string                `bson:"forwarded_from,omitempty" json:"forwarded_from,omitempty"`
}

// HiddenFor reports whether the message is soft-hidden for the given user.
func (m *MessageMetadata) HiddenFor(userID string) bool {
	for _, id := range m.HiddenForUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// ReactionOf returns the symbol the user currently reacted with, if any.
func (m *MessageMetadata) ReactionOf(userID string) (string, bool) {
	for symbol, entries := range m.Reactions {
		for _, r := range entries {
			if r.UserID == userID {
				return symbol, true
			}
		}
	}
	return "", false
}

type Message struct {
	ID             string          `bson:"_id" json:"id"`
	ConversationID string          `bson:"conversation_id" json:"conversation_id"`
	SenderID       string          `bson:"sender_id" json:"sender_id"`
	ReceiverID     string          `bson:"receiver_id,omitempty" json:"receiver_id,omitempty"`
	Content        string          `bson:"content" json:"content"`
	MessageType    string          `bson:"message_type" json:"message_type"`
	Metadata       MessageMetadata `bson:"metadata" json:"metadata"`
	IsRead         bool            `bson:"is_read" json:"is_read"`
	ReadAt         *time.Time      `bson:"read_at,omitempty" json:"read_at,omitempty"`
	IsDeleted      bool            `bson:"is_deleted" json:"is_deleted"`
	DeletedAt      *time.Time      `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	// Version guards optimistic metadata read-modify-write.
	Version   int64     `bson:"version" json:"-"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func ValidMessageType(t string) bool {
	switch t {
	case TypeText, TypeImage, TypeAudio, TypeVideo, TypeDocument, TypeLocation:
		return true
	}
	return false
}
