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

// MaxContentLength bounds message content on send and edit.
const MaxContentLength = 2000

// Outbound events emitted by the pipeline through the Notifier.
const (
	EventNewMessage      = "new_message"
	EventMessageSent     = "message_sent"
	EventMessageEdited   = "message_edited"
	EventMessageDeleted  = "message_deleted"
	EventMessagePinned   = "message_pinned"
	EventMessageUnpinned = "message_unpinned"
	EventMessageReaction = "message_reaction"
	EventMessageRead     = "message_read"
)

var allowedReactions = map[string]struct{}{
	"👍": {}, "❤️": {}, "😂": {}, "😮": {}, "😢": {}, "😡": {},
}

// Notifier pushes events to currently-connected peers. Delivery is
// fire-and-forget: a disconnected recipient only sees the persisted record.
type Notifier interface {
	EmitToUser(userID, event string, payload any)
	EmitToConversation(convID, event string, payload any)
}

// EventPublisher emits lifecycle events to the message broker; failures are
// logged, never surfaced to the caller.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type SendInput struct {
	SenderID          string `json:"sender_id"`
	RecipientID       string `json:"recipient_id"`
	GroupID           string `json:"group_id"`
	Content           string `json:"content"`
	MessageType       string `json:"message_type"`
	IsEphemeral       bool   `json:"is_ephemeral"`
	EphemeralDuration int    `json:"ephemeral_duration"`

	forwardedFrom string
}

type ForwardOutcome struct {
	Destination string `json:"destination"`
	Kind        string `json:"kind"` // "user" or "group"
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

type ForwardResult struct {
	Results        []ForwardOutcome `json:"results"`
	TotalForwarded int              `json:"total_forwarded"`
}

// MessagePipeline validates, persists, mutates and routes messages.
type MessagePipeline struct {
	msgs     repository.MessageRepository
	convs    repository.ConversationRepository
	users    repository.UserRepository
	resolver *ConversationResolver
	notify   Notifier
	events   EventPublisher
	log      *zap.SugaredLogger
}

func NewMessagePipeline(
	msgs repository.MessageRepository,
	convs repository.ConversationRepository,
	users repository.UserRepository,
	resolver *ConversationResolver,
	notify Notifier,
	events EventPublisher,
	log *zap.SugaredLogger,
) *MessagePipeline {
	return &MessagePipeline{
		msgs: msgs, convs: convs, users: users,
		resolver: resolver, notify: notify, events: events, log: log,
	}
}

// Send persists a message to exactly one destination and routes it. For a
// direct message the private conversation is resolved first; the sender is
// acknowledged synchronously with the persisted record.
func (p *MessagePipeline) Send(ctx context.Context, in SendInput) (*models.Message, error) {
	if (in.RecipientID == "") == (in.GroupID == "") {
		return nil, apperr.Validation("exactly one of recipient_id or group_id must be set")
	}
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}
	msgType := in.MessageType
	if msgType == "" {
		msgType = models.TypeText
	}
	if !models.ValidMessageType(msgType) {
		return nil, apperr.Validation("unknown message type %q", msgType)
	}

	m := &models.Message{
		ID:          uuid.NewString(),
		SenderID:    in.SenderID,
		Content:     in.Content,
		MessageType: msgType,
		Metadata: models.MessageMetadata{
			IsEphemeral:       in.IsEphemeral,
			EphemeralDuration: in.EphemeralDuration,
			ForwardedFrom:     in.forwardedFrom,
		},
	}

	if in.RecipientID != "" {
		if _, err := p.users.FindByID(ctx, in.RecipientID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.NotFound("recipient %s not found", in.RecipientID)
			}
			return nil, err
		}
		conv, err := p.resolver.ResolvePrivate(ctx, in.SenderID, in.RecipientID)
		if err != nil {
			return nil, err
		}
		m.ConversationID = conv.ID
		m.ReceiverID = in.RecipientID
	} else {
		conv, err := p.requireMembership(ctx, in.GroupID, in.SenderID)
		if err != nil {
			return nil, err
		}
		m.ConversationID = conv.ID
	}

	if err := p.msgs.Create(ctx, m); err != nil {
		return nil, err
	}
	if err := p.convs.UpdateLastActivity(ctx, m.ConversationID, m.ID, m.CreatedAt); err != nil {
		p.log.Warnw("last activity update failed", "conversation_id", m.ConversationID, "err", err)
	}

	if m.ReceiverID != "" {
		p.notify.EmitToUser(m.ReceiverID, EventNewMessage, m)
	} else {
		p.notify.EmitToConversation(m.ConversationID, EventNewMessage, m)
	}
	p.notify.EmitToUser(m.SenderID, EventMessageSent, m)
	p.publish(ctx, m.ID, "message.new", m)
	return m, nil
}

// Edit rewrites content; only the original sender may edit, and the bound is
// the same as on send. CreatedAt is never touched.
func (p *MessagePipeline) Edit(ctx context.Context, msgID, callerID, content string) (*models.Message, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}
	m, err := p.loadForCaller(ctx, msgID, callerID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != callerID {
		return nil, apperr.Forbidden("only the sender may edit a message")
	}
	updated, err := p.msgs.Mutate(ctx, msgID, func(m *models.Message) error {
		now := time.Now().UTC()
		m.Content = content
		m.Metadata.IsEdited = true
		m.Metadata.EditedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.notify.EmitToConversation(updated.ConversationID, EventMessageEdited, updated)
	p.publish(ctx, msgID, "message.edited", updated)
	return updated, nil
}

// DeleteForMe soft-hides the message for the caller only. Re-hiding is a
// no-op; the record stays intact for everyone else.
func (p *MessagePipeline) DeleteForMe(ctx context.Context, msgID, callerID string) error {
	if _, err := p.loadForCaller(ctx, msgID, callerID); err != nil {
		return err
	}
	_, err := p.msgs.Mutate(ctx, msgID, func(m *models.Message) error {
		if !m.Metadata.HiddenFor(callerID) {
			m.Metadata.HiddenForUsers = append(m.Metadata.HiddenForUsers, callerID)
		}
		return nil
	})
	return err
}

// DeleteForEveryone hard-deletes the record. Sender only, irreversible.
func (p *MessagePipeline) DeleteForEveryone(ctx context.Context, msgID, callerID string) error {
	m, err := p.loadForCaller(ctx, msgID, callerID)
	if err != nil {
		return err
	}
	if m.SenderID != callerID {
		return apperr.Forbidden("only the sender may delete a message for everyone")
	}
	if err := p.msgs.Delete(ctx, msgID); err != nil {
		return err
	}
	p.notify.EmitToConversation(m.ConversationID, EventMessageDeleted, map[string]any{
		"message_id":      msgID,
		"conversation_id": m.ConversationID,
		"deleted_by":      callerID,
	})
	p.publish(ctx, msgID, "message.deleted", map[string]any{"message_id": msgID, "deleted_by": callerID})
	return nil
}

// Pin marks a message pinned. In groups only the conversation creator may
// pin; in private conversations either participant may.
func (p *MessagePipeline) Pin(ctx context.Context, msgID, callerID string) (*models.Message, error) {
	return p.setPin(ctx, msgID, callerID, true)
}

func (p *MessagePipeline) Unpin(ctx context.Context, msgID, callerID string) (*models.Message, error) {
	return p.setPin(ctx, msgID, callerID, false)
}

func (p *MessagePipeline) setPin(ctx context.Context, msgID, callerID string, pinned bool) (*models.Message, error) {
	m, err := p.loadForCaller(ctx, msgID, callerID)
	if err != nil {
		return nil, err
	}
	conv, err := p.convs.FindByID(ctx, m.ConversationID)
	if err != nil {
		return nil, wrapRepoErr(err, "conversation %s", m.ConversationID)
	}
	if conv.Type == models.ConversationGroup && conv.CreatedBy != callerID {
		return nil, apperr.Forbidden("only the group creator may pin messages")
	}
	updated, err := p.msgs.Mutate(ctx, msgID, func(m *models.Message) error {
		if pinned {
			now := time.Now().UTC()
			m.Metadata.IsPinned = true
			m.Metadata.PinnedBy = callerID
			m.Metadata.PinnedAt = &now
		} else {
			m.Metadata.IsPinned = false
			m.Metadata.PinnedBy = ""
			m.Metadata.PinnedAt = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	event := EventMessagePinned
	topic := "message.pinned"
	if !pinned {
		event = EventMessageUnpinned
		topic = "message.unpinned"
	}
	p.notify.EmitToConversation(updated.ConversationID, event, updated)
	p.publish(ctx, msgID, topic, updated)
	return updated, nil
}

// React adds the caller's reaction under symbol, first removing any prior
// reaction by the same user from every other bucket so at most one reaction
// per user is ever active.
func (p *MessagePipeline) React(ctx context.Context, msgID, callerID, symbol string) (*models.Message, error) {
	if _, ok := allowedReactions[symbol]; !ok {
		return nil, apperr.Validation("reaction %q is not allowed", symbol)
	}
	if _, err := p.loadForCaller(ctx, msgID, callerID); err != nil {
		return nil, err
	}
	updated, err := p.msgs.Mutate(ctx, msgID, func(m *models.Message) error {
		removeReaction(&m.Metadata, callerID)
		if m.Metadata.Reactions == nil {
			m.Metadata.Reactions = make(map[string][]models.Reaction)
		}
		m.Metadata.Reactions[symbol] = append(m.Metadata.Reactions[symbol], models.Reaction{
			UserID:  callerID,
			AddedAt: time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.notify.EmitToConversation(updated.ConversationID, EventMessageReaction, updated)
	p.publish(ctx, msgID, "message.reaction", updated)
	return updated, nil
}

// RemoveReaction clears every entry by the caller across all symbol buckets,
// which also repairs any duplication left by earlier writers.
func (p *MessagePipeline) RemoveReaction(ctx context.Context, msgID, callerID string) (*models.Message, error) {
	if _, err := p.loadForCaller(ctx, msgID, callerID); err != nil {
		return nil, err
	}
	updated, err := p.msgs.Mutate(ctx, msgID, func(m *models.Message) error {
		removeReaction(&m.Metadata, callerID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.notify.EmitToConversation(updated.ConversationID, EventMessageReaction, updated)
	return updated, nil
}

// MarkRead flags the message read by its recipient and tells the sender.
func (p *MessagePipeline) MarkRead(ctx context.Context, msgID, callerID string) (*models.Message, error) {
	m, err := p.loadForCaller(ctx, msgID, callerID)
	if err != nil {
		return nil, err
	}
	if m.SenderID == callerID {
		return nil, apperr.Validation("sender cannot mark their own message read")
	}
	updated, err := p.msgs.Mutate(ctx, msgID, func(m *models.Message) error {
		if !m.IsRead {
			now := time.Now().UTC()
			m.IsRead = true
			m.ReadAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.notify.EmitToUser(updated.SenderID, EventMessageRead, map[string]any{
		"message_id": msgID,
		"read_by":    callerID,
		"read_at":    updated.ReadAt,
	})
	return updated, nil
}

// Forward re-sends a message to each destination independently. A destination
// the caller cannot reach is skipped with a warning; the result carries the
// per-destination outcome and the successful total.
func (p *MessagePipeline) Forward(ctx context.Context, msgID, callerID string, recipientIDs, groupIDs []string) (*ForwardResult, error) {
	if len(recipientIDs)+len(groupIDs) == 0 {
		return nil, apperr.Validation("at least one forward destination is required")
	}
	orig, err := p.loadForCaller(ctx, msgID, callerID)
	if err != nil {
		return nil, err
	}

	res := &ForwardResult{}
	attempt := func(kind string, in SendInput) {
		dest := in.RecipientID
		if kind == "group" {
			dest = in.GroupID
		}
		if _, err := p.Send(ctx, in); err != nil {
			p.log.Warnw("forward destination skipped", "message_id", msgID, "destination", dest, "err", err)
			res.Results = append(res.Results, ForwardOutcome{Destination: dest, Kind: kind, Success: false, Error: err.Error()})
			return
		}
		res.Results = append(res.Results, ForwardOutcome{Destination: dest, Kind: kind, Success: true})
		res.TotalForwarded++
	}

	for _, rid := range recipientIDs {
		attempt("user", SendInput{
			SenderID:      callerID,
			RecipientID:   rid,
			Content:       orig.Content,
			MessageType:   orig.MessageType,
			forwardedFrom: orig.SenderID,
		})
	}
	for _, gid := range groupIDs {
		attempt("group", SendInput{
			SenderID:      callerID,
			GroupID:       gid,
			Content:       orig.Content,
			MessageType:   orig.MessageType,
			forwardedFrom: orig.SenderID,
		})
	}
	return res, nil
}

// Search runs a case-insensitive full-text match over the caller's reachable
// messages, optionally scoped to one conversation and/or one message type.
// Messages the caller has hidden for themselves never match.
func (p *MessagePipeline) Search(ctx context.Context, callerID, query, convID, msgType string, limit int64) ([]*models.Message, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("search query is required")
	}
	if msgType != "" && !models.ValidMessageType(msgType) {
		return nil, apperr.Validation("unknown message type %q", msgType)
	}

	var convIDs []string
	if convID != "" {
		if _, err := p.requireMembership(ctx, convID, callerID); err != nil {
			return nil, err
		}
		convIDs = []string{convID}
	} else {
		convs, err := p.convs.FindByUser(ctx, callerID, 200)
		if err != nil {
			return nil, err
		}
		for _, c := range convs {
			convIDs = append(convIDs, c.ID)
		}
		if len(convIDs) == 0 {
			return nil, nil
		}
	}
	return p.msgs.Search(ctx, repository.SearchFilter{
		UserID:          callerID,
		ConversationIDs: convIDs,
		Query:           query,
		MessageType:     msgType,
		Limit:           limit,
	})
}

// History returns a conversation page for a participant, with the caller's
// hidden messages filtered out.
func (p *MessagePipeline) History(ctx context.Context, convID, callerID string, limit int64, before time.Time) ([]*models.Message, error) {
	if _, err := p.requireMembership(ctx, convID, callerID); err != nil {
		return nil, err
	}
	msgs, err := p.msgs.FindByConversation(ctx, convID, limit, before)
	if err != nil {
		return nil, err
	}
	out := msgs[:0]
	for _, m := range msgs {
		if !m.Metadata.HiddenFor(callerID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (p *MessagePipeline) UnreadCount(ctx context.Context, convID, callerID string) (int64, error) {
	if _, err := p.requireMembership(ctx, convID, callerID); err != nil {
		return 0, err
	}
	return p.msgs.CountUnread(ctx, convID, callerID)
}

func (p *MessagePipeline) UserStats(ctx context.Context, userID string) (*repository.MessageStats, error) {
	return p.msgs.UserStats(ctx, userID)
}

// loadForCaller fetches a message and re-verifies the caller's membership in
// its conversation, guarding against stale conversation references.
func (p *MessagePipeline) loadForCaller(ctx context.Context, msgID, callerID string) (*models.Message, error) {
	m, err := p.msgs.FindByID(ctx, msgID)
	if err != nil {
		return nil, wrapRepoErr(err, "message %s", msgID)
	}
	ok, err := p.convs.IsParticipant(ctx, m.ConversationID, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("not a participant of this conversation")
	}
	return m, nil
}

func (p *MessagePipeline) requireMembership(ctx context.Context, convID, userID string) (*models.Conversation, error) {
	conv, err := p.convs.FindByID(ctx, convID)
	if err != nil {
		return nil, wrapRepoErr(err, "conversation %s", convID)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.Forbidden("not a participant of this conversation")
	}
	return conv, nil
}

func (p *MessagePipeline) publish(ctx context.Context, key, topic string, payload any) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(ctx, key, map[string]any{"event": topic, "data": payload}); err != nil {
		p.log.Warnw("event publish failed", "event", topic, "key", key, "err", err)
	}
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return apperr.Validation("content is required")
	}
	if len(content) > MaxContentLength {
		return apperr.Validation("content exceeds %d characters", MaxContentLength)
	}
	return nil
}

func removeReaction(md *models.MessageMetadata, userID string) {
	for symbol, entries := range md.Reactions {
		kept := entries[:0]
		for _, r := range entries {
			if r.UserID != userID {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(md.Reactions, symbol)
		} else {
			md.Reactions[symbol] = kept
		}
	}
}

func wrapRepoErr(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(format+" not found", args...)
	}
	return err
}
