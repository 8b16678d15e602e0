package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linguaverse/messaging-service/internal/apperr"
	"github.com/linguaverse/messaging-service/internal/models"
	"github.com/linguaverse/messaging-service/internal/repository"
)

// ConversationResolver finds or creates conversations with deduplication
// guarantees for private pairs.
type ConversationResolver struct {
	convs repository.ConversationRepository
	users repository.UserRepository
	log   *zap.SugaredLogger
}

func NewConversationResolver(convs repository.ConversationRepository, users repository.UserRepository, log *zap.SugaredLogger) *ConversationResolver {
	return &ConversationResolver{convs: convs, users: users, log: log}
}

// ResolvePrivate returns the unique active private conversation for the
// unordered pair, creating it on first contact. Concurrent first contact from
// both sides is safe: the store's unique index on the normalized pair rejects
// the losing insert and the loser re-reads the winner's record.
func (r *ConversationResolver) ResolvePrivate(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	if userA == "" || userB == "" {
		return nil, apperr.Validation("both participants are required")
	}
	if userA == userB {
		return nil, apperr.Validation("cannot open a private conversation with yourself")
	}

	key := models.PrivateKey(userA, userB)
	if c, err := r.convs.FindByParticipantsKey(ctx, key); err == nil {
		return c, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	c := &models.Conversation{
		ID:              uuid.NewString(),
		Type:            models.ConversationPrivate,
		Participants:    []string{userA, userB},
		ParticipantsKey: key,
		CreatedBy:       userA,
		LastActivityAt:  time.Now().UTC(),
	}
	err := r.convs.Create(ctx, c)
	if errors.Is(err, repository.ErrDuplicate) {
		// lost the race, the winner's record is authoritative
		return r.convs.FindByParticipantsKey(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateGroup validates every participant identity before creating the group;
// the creator is always part of the participant set.
func (r *ConversationResolver) CreateGroup(ctx context.Context, creatorID, name string, participantIDs []string, description string, isPrivate bool) (*models.Conversation, error) {
	if creatorID == "" {
		return nil, apperr.Validation("creator is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperr.Validation("group name is required")
	}

	members := dedupe(append([]string{creatorID}, participantIDs...))
	if len(members) < 2 {
		return nil, apperr.Validation("a group needs at least one participant besides the creator")
	}

	found, err := r.users.FindExisting(ctx, members)
	if err != nil {
		return nil, err
	}
	if missing := difference(members, found); len(missing) > 0 {
		return nil, apperr.NotFoundIDs(missing, "unknown participants: %s", strings.Join(missing, ", "))
	}

	c := &models.Conversation{
		ID:             uuid.NewString(),
		Type:           models.ConversationGroup,
		Participants:   members,
		Title:          name,
		Description:    description,
		IsPrivateGroup: isPrivate,
		CreatedBy:      creatorID,
		LastActivityAt: time.Now().UTC(),
	}
	if err := r.convs.Create(ctx, c); err != nil {
		return nil, err
	}
	r.log.Infow("group created", "conversation_id", c.ID, "creator", creatorID, "members", len(members))
	return c, nil
}

// AddParticipants lets the group creator add validated members.
func (r *ConversationResolver) AddParticipants(ctx context.Context, convID, callerID string, userIDs []string) error {
	c, err := r.requireGroupCreator(ctx, convID, callerID)
	if err != nil {
		return err
	}
	ids := dedupe(userIDs)
	found, err := r.users.FindExisting(ctx, ids)
	if err != nil {
		return err
	}
	if missing := difference(ids, found); len(missing) > 0 {
		return apperr.NotFoundIDs(missing, "unknown participants: %s", strings.Join(missing, ", "))
	}
	return r.convs.AddParticipants(ctx, c.ID, ids)
}

// RemoveParticipants lets the group creator remove members; the creator
// cannot remove themselves.
func (r *ConversationResolver) RemoveParticipants(ctx context.Context, convID, callerID string, userIDs []string) error {
	c, err := r.requireGroupCreator(ctx, convID, callerID)
	if err != nil {
		return err
	}
	for _, id := range userIDs {
		if id == callerID {
			return apperr.Validation("creator cannot leave their own group this way")
		}
	}
	return r.convs.RemoveParticipants(ctx, c.ID, userIDs)
}

// RenameGroup lets the group creator retitle the conversation.
func (r *ConversationResolver) RenameGroup(ctx context.Context, convID, callerID, title string) error {
	c, err := r.requireGroupCreator(ctx, convID, callerID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(title) == "" {
		return apperr.Validation("group name is required")
	}
	return r.convs.SetTitle(ctx, c.ID, title)
}

func (r *ConversationResolver) requireGroupCreator(ctx context.Context, convID, callerID string) (*models.Conversation, error) {
	c, err := r.convs.FindByID(ctx, convID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("conversation %s not found", convID)
	}
	if err != nil {
		return nil, err
	}
	if c.Type != models.ConversationGroup {
		return nil, apperr.Validation("conversation %s is not a group", convID)
	}
	if c.CreatedBy != callerID {
		return nil, apperr.Forbidden("only the group creator may manage members")
	}
	return c, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func difference(want, have []string) []string {
	got := make(map[string]struct{}, len(have))
	for _, id := range have {
		got[id] = struct{}{}
	}
	var missing []string
	for _, id := range want {
		if _, ok := got[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
