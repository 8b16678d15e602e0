package repository

import (
	"context"
	"errors"
	"time"

	"github.com/linguaverse/messaging-service/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
	ErrConflict  = errors.New("write conflict")
)

// SearchFilter scopes a full-text message search to what the caller can reach.
type SearchFilter struct {
	UserID          string
	ConversationIDs []string
	Query           string
	MessageType     string
	Limit           int64
}

type MessageStats struct {
	Sent     int64 `json:"sent"`
	Received int64 `json:"received"`
}

// MessageRepository is the durable store port for messages. Mutate applies a
// read-modify-write under optimistic concurrency so lifecycle invariants
// survive concurrent callers.
type MessageRepository interface {
	Create(ctx context.Context, m *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	Mutate(ctx context.Context, id string, fn func(*models.Message) error) (*models.Message, error)
	Delete(ctx context.Context, id string) error
	FindByConversation(ctx context.Context, convID string, limit int64, before time.Time) ([]*models.Message, error)
	CountUnread(ctx context.Context, convID, userID string) (int64, error)
	Search(ctx context.Context, f SearchFilter) ([]*models.Message, error)
	UserStats(ctx context.Context, userID string) (*MessageStats, error)
}

type ConversationRepository interface {
	Create(ctx context.Context, c *models.Conversation) error
	FindByID(ctx context.Context, id string) (*models.Conversation, error)
	FindByParticipantsKey(ctx context.Context, key string) (*models.Conversation, error)
	FindByUser(ctx context.Context, userID string, limit int64) ([]*models.Conversation, error)
	GetParticipants(ctx context.Context, id string) ([]string, error)
	AddParticipants(ctx context.Context, id string, userIDs []string) error
	RemoveParticipants(ctx context.Context, id string, userIDs []string) error
	UpdateLastActivity(ctx context.Context, id, lastMessageID string, at time.Time) error
	IsParticipant(ctx context.Context, id, userID string) (bool, error)
	SetTitle(ctx context.Context, id, title string) error
}

// UserRepository supplies identity lookups; user accounts are managed by an
// external collaborator.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindExisting(ctx context.Context, ids []string) ([]string, error)
}
