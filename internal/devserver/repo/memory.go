package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatline/internal/domain"
	"chatline/internal/mockapi"
)

// Memory keeps everything in process. Zero-setup default for the dev server.
type Memory struct {
	mu            sync.RWMutex
	users         []domain.User
	conversations []domain.Conversation
	messages      []domain.Message
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{}
}

// NewMemorySeeded returns an in-memory backend loaded with the shared dev
// fixtures, so the dev server and the mock API present the same world.
func NewMemorySeeded() *Memory {
	m := &Memory{}
	m.users, m.conversations, m.messages = mockapi.Fixtures()
	return m
}

// AsStore exposes the shared state as the three repo interfaces.
func (m *Memory) AsStore() Store {
	return Store{
		Users:         &memUserRepo{m},
		Conversations: &memConversationRepo{m},
		Messages:      &memMessageRepo{m},
	}
}

// AddUser registers a user; used by tests and dev seeding.
func (m *Memory) AddUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, u)
}

type memUserRepo struct{ m *Memory }

var _ UserRepo = (*memUserRepo)(nil)

func (r *memUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, u := range r.m.users {
		if u.ID == id {
			user := u
			return &user, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) List(ctx context.Context) ([]domain.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return append([]domain.User(nil), r.m.users...), nil
}

type memConversationRepo struct{ m *Memory }

var _ ConversationRepo = (*memConversationRepo)(nil)

func (r *memConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, c := range r.m.conversations {
		if c.ID == id {
			conv := c
			return &conv, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memConversationRepo) ListForUser(ctx context.Context, userID int64) ([]domain.Conversation, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var res []domain.Conversation
	for _, c := range r.m.conversations {
		for _, u := range c.Users {
			if u.ID == userID {
				res = append(res, c)
				break
			}
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].LastMessageAt.After(res[j].LastMessageAt)
	})
	return res, nil
}

func (r *memConversationRepo) FindDirect(ctx context.Context, userA, userB int64) (*domain.Conversation, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, c := range r.m.conversations {
		var hasA, hasB bool
		for _, u := range c.Users {
			hasA = hasA || u.ID == userA
			hasB = hasB || u.ID == userB
		}
		if hasA && hasB {
			conv := c
			return &conv, nil
		}
	}
	return nil, nil
}

func (r *memConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.conversations = append(r.m.conversations, *c)
	return nil
}

func (r *memConversationRepo) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i := range r.m.conversations {
		if r.m.conversations[i].ID == id {
			r.m.conversations[i].LastMessageAt = at
			return nil
		}
	}
	return domain.ErrNotFound
}

type memMessageRepo struct{ m *Memory }

var _ MessageRepo = (*memMessageRepo)(nil)

func (r *memMessageRepo) ListForConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var res []domain.Message
	for _, msg := range r.m.messages {
		if msg.ConversationID == conversationID {
			res = append(res, msg)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (r *memMessageRepo) LastForConversation(ctx context.Context, conversationID string) (*domain.Message, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var last *domain.Message
	for i := range r.m.messages {
		msg := &r.m.messages[i]
		if msg.ConversationID != conversationID {
			continue
		}
		if last == nil || msg.CreatedAt.After(last.CreatedAt) {
			last = msg
		}
	}
	if last == nil {
		return nil, nil
	}
	res := *last
	return &res, nil
}

func (r *memMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.messages = append(r.m.messages, *msg)
	return nil
}

func (r *memMessageRepo) MarkSeen(ctx context.Context, messageIDs []string, viewer domain.User) ([]domain.Message, error) {
	listed := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		listed[id] = struct{}{}
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var updated []domain.Message
	for i := range r.m.messages {
		msg := &r.m.messages[i]
		if _, ok := listed[msg.ID]; !ok {
			continue
		}
		// A message author never appears in their own seen list.
		if msg.SenderID == viewer.ID || msg.SeenBy(viewer.ID) {
			continue
		}
		msg.Seen = append(msg.Seen, viewer)
		updated = append(updated, *msg)
	}
	return updated, nil
}
