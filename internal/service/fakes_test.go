package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/linguaverse/messaging-service/internal/models"
	"github.com/linguaverse/messaging-service/internal/repository"
)

type fakeMessageRepo struct {
	mu   sync.Mutex
	msgs map[string]*models.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{msgs: make(map[string]*models.Message)}
}

func cloneMessage(m *models.Message) *models.Message {
	c := *m
	c.Metadata.HiddenForUsers = append([]string(nil), m.Metadata.HiddenForUsers...)
	if m.Metadata.Reactions != nil {
		c.Metadata.Reactions = make(map[string][]models.Reaction, len(m.Metadata.Reactions))
		for k, v := range m.Metadata.Reactions {
			c.Metadata.Reactions[k] = append([]models.Reaction(nil), v...)
		}
	}
	return &c
}

func (r *fakeMessageRepo) Create(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.Version = 1
	r.msgs[m.ID] = cloneMessage(m)
	return nil
}

func (r *fakeMessageRepo) FindByID(_ context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneMessage(m), nil
}

func (r *fakeMessageRepo) Mutate(_ context.Context, id string, fn func(*models.Message) error) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := cloneMessage(m)
	if err := fn(c); err != nil {
		return nil, err
	}
	c.Version = m.Version + 1
	c.UpdatedAt = time.Now().UTC()
	r.msgs[id] = cloneMessage(c)
	return c, nil
}

func (r *fakeMessageRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.msgs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.msgs, id)
	return nil
}

func (r *fakeMessageRepo) FindByConversation(_ context.Context, convID string, limit int64, _ time.Time) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, m := range r.msgs {
		if m.ConversationID == convID && !m.IsDeleted {
			out = append(out, cloneMessage(m))
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) CountUnread(_ context.Context, convID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.msgs {
		if m.ConversationID == convID && !m.IsRead && m.SenderID != userID {
			n++
		}
	}
	return n, nil
}

func (r *fakeMessageRepo) Search(_ context.Context, f repository.SearchFilter) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inScope := make(map[string]struct{}, len(f.ConversationIDs))
	for _, id := range f.ConversationIDs {
		inScope[id] = struct{}{}
	}
	var out []*models.Message
	for _, m := range r.msgs {
		if _, ok := inScope[m.ConversationID]; !ok {
			continue
		}
		if m.Metadata.HiddenFor(f.UserID) {
			continue
		}
		if f.MessageType != "" && m.MessageType != f.MessageType {
			continue
		}
		if !strings.Contains(strings.ToLower(m.Content), strings.ToLower(f.Query)) {
			continue
		}
		out = append(out, cloneMessage(m))
	}
	return out, nil
}

func (r *fakeMessageRepo) UserStats(_ context.Context, userID string) (*repository.MessageStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &repository.MessageStats{}
	for _, m := range r.msgs {
		if m.SenderID == userID {
			stats.Sent++
		}
		if m.ReceiverID == userID {
			stats.Received++
		}
	}
	return stats, nil
}

type fakeConvRepo struct {
	mu    sync.Mutex
	convs map[string]*models.Conversation
	byKey map[string]string
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		convs: make(map[string]*models.Conversation),
		byKey: make(map[string]string),
	}
}

func (r *fakeConvRepo) Create(_ context.Context, c *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Type == models.ConversationPrivate {
		if _, ok := r.byKey[c.ParticipantsKey]; ok {
			return repository.ErrDuplicate
		}
		r.byKey[c.ParticipantsKey] = c.ID
	}
	c.IsActive = true
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	r.convs[c.ID] = &cp
	return nil
}

func (r *fakeConvRepo) FindByID(_ context.Context, id string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeConvRepo) FindByParticipantsKey(_ context.Context, key string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r.convs[id]
	return &cp, nil
}

func (r *fakeConvRepo) FindByUser(_ context.Context, userID string, _ int64) ([]*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Conversation
	for _, c := range r.convs {
		if c.HasParticipant(userID) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeConvRepo) GetParticipants(ctx context.Context, id string) ([]string, error) {
	c, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Participants, nil
}

func (r *fakeConvRepo) AddParticipants(_ context.Context, id string, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, uid := range userIDs {
		if !c.HasParticipant(uid) {
			c.Participants = append(c.Participants, uid)
		}
	}
	return nil
}

func (r *fakeConvRepo) RemoveParticipants(_ context.Context, id string, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, uid := range userIDs {
		kept := c.Participants[:0]
		for _, p := range c.Participants {
			if p != uid {
				kept = append(kept, p)
			}
		}
		c.Participants = kept
	}
	return nil
}

func (r *fakeConvRepo) UpdateLastActivity(_ context.Context, id, lastMessageID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.LastMessageID = lastMessageID
	c.LastActivityAt = at
	return nil
}

func (r *fakeConvRepo) IsParticipant(_ context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return false, nil
	}
	return c.HasParticipant(userID), nil
}

func (r *fakeConvRepo) SetTitle(_ context.Context, id, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Title = title
	return nil
}

func (r *fakeConvRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.convs)
}

type fakeUserRepo struct {
	users map[string]*models.User
}

func newFakeUserRepo(ids ...string) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*models.User)}
	for _, id := range ids {
		r.users[id] = &models.User{ID: id, Username: id, IsActive: true}
	}
	return r
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) FindExisting(_ context.Context, ids []string) ([]string, error) {
	var found []string
	for _, id := range ids {
		if _, ok := r.users[id]; ok {
			found = append(found, id)
		}
	}
	return found, nil
}

type emitted struct {
	Target  string // user or conversation ID
	ToUser  bool
	Event   string
	Payload any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []emitted
}

func (n *fakeNotifier) EmitToUser(userID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, emitted{Target: userID, ToUser: true, Event: event, Payload: payload})
}

func (n *fakeNotifier) EmitToConversation(convID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, emitted{Target: convID, Event: event, Payload: payload})
}

func (n *fakeNotifier) byEvent(event string) []emitted {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []emitted
	for _, e := range n.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type pipelineFixture struct {
	pipeline *MessagePipeline
	resolver *ConversationResolver
	msgs     *fakeMessageRepo
	convs    *fakeConvRepo
	users    *fakeUserRepo
	notify   *fakeNotifier
}

func newFixture(userIDs ...string) *pipelineFixture {
	lg := zap.NewNop().Sugar()
	msgs := newFakeMessageRepo()
	convs := newFakeConvRepo()
	users := newFakeUserRepo(userIDs...)
	notify := &fakeNotifier{}
	resolver := NewConversationResolver(convs, users, lg)
	pipeline := NewMessagePipeline(msgs, convs, users, resolver, notify, nil, lg)
	return &pipelineFixture{
		pipeline: pipeline, resolver: resolver,
		msgs: msgs, convs: convs, users: users, notify: notify,
	}
}
