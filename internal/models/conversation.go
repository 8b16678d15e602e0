package models

import (
	"sort"
	"strings"
	"time"
)

const (
	ConversationPrivate = "private"
	ConversationGroup   = "group"
)

type Conversation struct {
	ID           string   `bson:"_id" json:"id"`
	Type         string   `bson:"type" json:"type"`
	Participants []string `bson:"participants" json:"participants"`
	// ParticipantsKey is the normalized (sorted, joined) participant pair for
	// private conversations; a unique partial index on it enforces global
	// uniqueness of a private pair.
	ParticipantsKey string    `bson:"participants_key,omitempty" json:"-"`
	Title           string    `bson:"title,omitempty" json:"title,omitempty"`
	Description     string    `bson:"description,omitempty" json:"description,omitempty"`
	IsPrivateGroup  bool      `bson:"is_private_group,omitempty" json:"is_private_group,omitempty"`
	CreatedBy       string    `bson:"created_by" json:"created_by"`
	LastMessageID   string    `bson:"last_message_id,omitempty" json:"last_message_id,omitempty"`
	LastActivityAt  time.Time `bson:"last_activity_at" json:"last_activity_at"`
	IsActive        bool      `bson:"is_active" json:"is_active"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}

// PrivateKey normalizes an unordered user pair into the unique index key.
func PrivateKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}
