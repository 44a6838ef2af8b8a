// Package mockapi is an in-process ChatService backed by seeded fixtures,
// standing in for a real backend. A small simulated latency keeps the
// optimistic-send path realistic; set Latency to zero in tests.
package mockapi

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatline/internal/domain"
)

type Service struct {
	// Latency is applied to every call before touching state.
	Latency time.Duration

	// CurrentUserID selects which seeded user owns the session.
	CurrentUserID int64

	mu            sync.Mutex
	users         []domain.User
	conversations []domain.Conversation
	messages      []domain.Message
}

var _ domain.ChatService = (*Service)(nil)

// New returns a service seeded with the development fixtures.
func New() *Service {
	s := &Service{
		Latency:       150 * time.Millisecond,
		CurrentUserID: 1,
	}
	s.users, s.conversations, s.messages = seed()
	return s
}

// NewEmpty returns a service with the given users and nothing else; tests
// use it to script exact scenarios.
func NewEmpty(users []domain.User) *Service {
	return &Service{
		CurrentUserID: 1,
		users:         append([]domain.User(nil), users...),
	}
}

func (s *Service) sleep(ctx context.Context) error {
	if s.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(s.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) GetCurrentUser(ctx context.Context) (*domain.User, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.userByID(s.CurrentUserID)
	if !ok {
		return nil, domain.ErrNoSession
	}
	return &u, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		if u.ID != s.CurrentUserID {
			res = append(res, u)
		}
	}
	return res, nil
}

func (s *Service) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]domain.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		c.LastMessage = s.lastMessageOf(c.ID)
		res = append(res, c)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].LastMessageAt.After(res[j].LastMessageAt)
	})
	return res, nil
}

func (s *Service) CreateOrGetConversation(ctx context.Context, userA, userB int64) (*domain.Conversation, error) {
	if userA == userB {
		return nil, domain.ErrSelfConversation
	}
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.conversations {
		if pairs(c, userA, userB) {
			conv := c
			conv.LastMessage = s.lastMessageOf(c.ID)
			return &conv, nil
		}
	}

	a, okA := s.userByID(userA)
	b, okB := s.userByID(userB)
	if !okA || !okB {
		return nil, domain.ErrNotFound
	}

	now := time.Now()
	conv := domain.Conversation{
		ID:            "conv-" + uuid.NewString(),
		CreatedAt:     now,
		LastMessageAt: now,
		Users:         []domain.User{a, b},
	}
	s.conversations = append(s.conversations, conv)
	return &conv, nil
}

func (s *Service) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []domain.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			res = append(res, m)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (s *Service) SendMessage(ctx context.Context, in domain.SendMessageInput) (*domain.Message, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.userByID(in.SenderID)
	if !ok {
		return nil, domain.ErrNotFound
	}

	now := time.Now()
	msg := domain.Message{
		ID:             "msg-" + uuid.NewString(),
		Body:           in.Body,
		Image:          in.Image,
		Doc:            in.Doc,
		CreatedAt:      now,
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Sender:         sender,
		Seen:           []domain.User{},
		Status:         domain.StatusSent,
	}
	s.messages = append(s.messages, msg)

	for i := range s.conversations {
		if s.conversations[i].ID == in.ConversationID {
			s.conversations[i].LastMessageAt = now
			break
		}
	}
	return &msg, nil
}

func (s *Service) MarkMessagesAsSeen(ctx context.Context, messageIDs []string, userID int64) error {
	if err := s.sleep(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	viewer, ok := s.userByID(userID)
	if !ok {
		return domain.ErrNotFound
	}

	listed := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		listed[id] = struct{}{}
	}
	for i := range s.messages {
		if _, ok := listed[s.messages[i].ID]; !ok {
			continue
		}
		if s.messages[i].SenderID == userID {
			continue
		}
		if !s.messages[i].SeenBy(userID) {
			s.messages[i].Seen = append(s.messages[i].Seen, viewer)
		}
	}
	return nil
}

// SeedConversation injects a conversation and its messages; tests use it to
// arrange state without going through the public contract.
func (s *Service) SeedConversation(conv domain.Conversation, msgs ...domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = append(s.conversations, conv)
	s.messages = append(s.messages, msgs...)
}

// ConversationCount reports how many conversations exist server-side.
func (s *Service) ConversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

func (s *Service) userByID(id int64) (domain.User, bool) {
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return domain.User{}, false
}

func (s *Service) lastMessageOf(conversationID string) *domain.Message {
	var last *domain.Message
	for i := range s.messages {
		m := &s.messages[i]
		if m.ConversationID != conversationID {
			continue
		}
		if last == nil || m.CreatedAt.After(last.CreatedAt) {
			last = m
		}
	}
	if last == nil {
		return nil
	}
	msg := *last
	return &msg
}

func pairs(c domain.Conversation, a, b int64) bool {
	var hasA, hasB bool
	for _, u := range c.Users {
		if u.ID == a {
			hasA = true
		}
		if u.ID == b {
			hasB = true
		}
	}
	return hasA && hasB
}
