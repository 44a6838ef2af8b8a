// Package repo defines the dev server's storage contracts with an in-memory
// implementation (seeded fixtures) and a SQLite implementation.
package repo

import (
	"context"
	"time"

	"chatline/internal/domain"
)

// UserRepo reads users. The dev server never mutates identity data.
type UserRepo interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
}

// ConversationRepo manages direct conversations.
type ConversationRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	// ListForUser returns the user's conversations sorted by LastMessageAt
	// descending, without derived last messages.
	ListForUser(ctx context.Context, userID int64) ([]domain.Conversation, error)
	// FindDirect returns the conversation pairing exactly the two users, or
	// nil when none exists.
	FindDirect(ctx context.Context, userA, userB int64) (*domain.Conversation, error)
	Create(ctx context.Context, c *domain.Conversation) error
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
}

// MessageRepo manages messages and their seen receipts.
type MessageRepo interface {
	// ListForConversation returns messages ascending by CreatedAt.
	ListForConversation(ctx context.Context, conversationID string) ([]domain.Message, error)
	LastForConversation(ctx context.Context, conversationID string) (*domain.Message, error)
	Create(ctx context.Context, m *domain.Message) error
	// MarkSeen appends a receipt for the viewer to each listed message that
	// lacks one and returns the messages actually updated.
	MarkSeen(ctx context.Context, messageIDs []string, viewer domain.User) ([]domain.Message, error)
}

// Store bundles the three repositories behind one constructor-friendly type.
type Store struct {
	Users         UserRepo
	Conversations ConversationRepo
	Messages      MessageRepo
}
