package domain

import "context"

// SendMessageInput carries the payload of a send request. At least one of
// Body, Image or Doc should be set; the service rejects fully empty sends.
type SendMessageInput struct {
	ConversationID string
	SenderID       int64
	Body           string
	Image          string
	Doc            string
}

// ChatService is the backend contract the sync layer depends on. Transport is
// an implementation detail: the repo ships an in-process mock (mockapi) and an
// HTTP/JSON client (transport) against the dev server.
type ChatService interface {
	// GetCurrentUser resolves the session's user.
	GetCurrentUser(ctx context.Context) (*User, error)
	// ListUsers returns all known users except the current one.
	ListUsers(ctx context.Context) ([]User, error)
	// ListConversations returns the session user's conversations, each
	// annotated with its derived last message, sorted by LastMessageAt
	// descending.
	ListConversations(ctx context.Context) ([]Conversation, error)
	// CreateOrGetConversation finds or creates the direct conversation
	// pairing the two users. Idempotent: the same pair always yields the
	// same conversation. Equal IDs are rejected with ErrSelfConversation.
	CreateOrGetConversation(ctx context.Context, userA, userB int64) (*Conversation, error)
	// ListMessages returns a conversation's messages ascending by CreatedAt.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	// SendMessage persists a message and returns the server-assigned record.
	SendMessage(ctx context.Context, in SendMessageInput) (*Message, error)
	// MarkMessagesAsSeen records a seen receipt for the user on each
	// message. Idempotent per (message, user) pair.
	MarkMessagesAsSeen(ctx context.Context, messageIDs []string, userID int64) error
}
