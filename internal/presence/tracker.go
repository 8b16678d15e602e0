package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/linguaverse/messaging-service/internal/apperr"
)

// Typing broadcast events.
const (
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
)

// Notifier is the slice of the gateway the tracker needs to broadcast typing
// transitions into a conversation room.
type Notifier interface {
	EmitToConversation(convID, event string, payload any)
}

// Membership answers whether a user belongs to a conversation.
type Membership interface {
	IsParticipant(ctx context.Context, convID, userID string) (bool, error)
}

type typingEntry struct {
	username string
	timer    *time.Timer
}

// Tracker owns ephemeral presence records and per-conversation typing sets.
// Typing entries expire automatically unless refreshed; every state
// transition that should pre-empt the timer cancels it.
type Tracker struct {
	store   Store
	notify  Notifier
	members Membership

	typingTTL time.Duration

	mu     sync.Mutex
	typing map[string]map[string]*typingEntry // convID -> userID -> entry

	log *zap.SugaredLogger
}

func NewTracker(store Store, notify Notifier, members Membership, typingTTL time.Duration, log *zap.SugaredLogger) *Tracker {
	return &Tracker{
		store:     store,
		notify:    notify,
		members:   members,
		typingTTL: typingTTL,
		typing:    make(map[string]map[string]*typingEntry),
		log:       log,
	}
}

// SetStatus overwrites the user's presence record. Going offline also purges
// the user from every typing set and cancels pending expiry timers.
func (t *Tracker) SetStatus(ctx context.Context, userID, username string, status Status, customMessage string) error {
	if !ValidStatus(status) {
		return apperr.Validation("unknown status %q", status)
	}
	if status == StatusOffline {
		t.purgeTyping(userID)
		return t.store.Remove(ctx, userID)
	}
	return t.store.Upsert(ctx, Record{
		UserID:        userID,
		Username:      username,
		Status:        status,
		LastSeen:      time.Now().UTC(),
		CustomMessage: customMessage,
	})
}

// Online lists every non-offline presence record still within the staleness
// window.
func (t *Tracker) Online(ctx context.Context) ([]Record, error) {
	return t.store.Online(ctx)
}

// StartTyping adds the user to the conversation's typing set and (re)arms the
// auto-expiry timer, cancelling any prior timer for the same user.
func (t *Tracker) StartTyping(ctx context.Context, convID, userID, username string) error {
	ok, err := t.members.IsParticipant(ctx, convID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("not a participant of this conversation")
	}

	t.mu.Lock()
	set, exists := t.typing[convID]
	if !exists {
		set = make(map[string]*typingEntry)
		t.typing[convID] = set
	}
	if prev, ok := set[userID]; ok {
		prev.timer.Stop()
	}
	entry := &typingEntry{username: username}
	entry.timer = time.AfterFunc(t.typingTTL, func() {
		t.expireTyping(convID, userID, entry)
	})
	set[userID] = entry
	t.mu.Unlock()

	t.notify.EmitToConversation(convID, EventUserTyping, typingPayload(convID, userID, username))
	return nil
}

// StopTyping removes the user from the typing set and cancels the timer.
func (t *Tracker) StopTyping(convID, userID string) {
	t.mu.Lock()
	username, removed := t.removeTypingLocked(convID, userID, nil)
	t.mu.Unlock()
	if removed {
		t.notify.EmitToConversation(convID, EventUserStoppedTyping, typingPayload(convID, userID, username))
	}
}

// TypingUsers returns the users currently typing in a conversation.
func (t *Tracker) TypingUsers(convID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.typing[convID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Disconnect treats connection teardown as an implicit offline transition.
func (t *Tracker) Disconnect(ctx context.Context, userID string) {
	t.purgeTyping(userID)
	if err := t.store.Remove(ctx, userID); err != nil {
		t.log.Warnw("presence remove failed", "user_id", userID, "err", err)
	}
}

// expireTyping is the timer callback. It only fires a stop event if the entry
// is still the current one, so a refresh racing the timer never emits a stale
// stop.
func (t *Tracker) expireTyping(convID, userID string, entry *typingEntry) {
	t.mu.Lock()
	username, removed := t.removeTypingLocked(convID, userID, entry)
	t.mu.Unlock()
	if removed {
		t.notify.EmitToConversation(convID, EventUserStoppedTyping, typingPayload(convID, userID, username))
	}
}

func (t *Tracker) purgeTyping(userID string) {
	t.mu.Lock()
	type stopped struct{ convID, username string }
	var fired []stopped
	for convID := range t.typing {
		if username, removed := t.removeTypingLocked(convID, userID, nil); removed {
			fired = append(fired, stopped{convID, username})
		}
	}
	t.mu.Unlock()
	for _, s := range fired {
		t.notify.EmitToConversation(s.convID, EventUserStoppedTyping, typingPayload(s.convID, userID, s.username))
	}
}

// removeTypingLocked deletes the user's entry; when expected is non-nil the
// delete only happens if that exact entry is still registered. Empty sets are
// removed entirely.
func (t *Tracker) removeTypingLocked(convID, userID string, expected *typingEntry) (string, bool) {
	set, ok := t.typing[convID]
	if !ok {
		return "", false
	}
	entry, ok := set[userID]
	if !ok {
		return "", false
	}
	if expected != nil && entry != expected {
		return "", false
	}
	entry.timer.Stop()
	delete(set, userID)
	if len(set) == 0 {
		delete(t.typing, convID)
	}
	return entry.username, true
}

func typingPayload(convID, userID, username string) map[string]any {
	return map[string]any{
		"user_id":         userID,
		"username":        username,
		"conversation_id": convID,
	}
}
