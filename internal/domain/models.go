package domain

import "time"

// MessageStatus tracks the delivery state of a locally visible message.
// Server-fetched messages are always "sent"; optimistic entries start as
// "sending" and end up "sent" or "failed".
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// TempIDPrefix marks optimistic message IDs not yet confirmed by the server.
const TempIDPrefix = "temp-"

// User represents an application user. Identity fields are immutable once
// fetched; presence is tracked separately in the store's online set.
type User struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Avatar   string     `json:"avatar,omitempty"`
	IsOnline bool       `json:"is_online,omitempty"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Message is a single chat message. ID lives in one of two namespaces:
// "temp-" for optimistic entries and "msg-" for server-assigned ones.
// Seen never contains the sender; the sender implicitly saw their own message.
type Message struct {
	ID             string        `json:"id"`
	Body           string        `json:"body,omitempty"`
	Image          string        `json:"image,omitempty"`
	Doc            string        `json:"doc,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	ConversationID string        `json:"conversation_id"`
	SenderID       int64         `json:"sender_id"`
	Sender         User          `json:"sender"`
	Seen           []User        `json:"seen"`
	Status         MessageStatus `json:"status,omitempty"`
}

// SeenBy reports whether the given user is in the message's seen list.
func (m *Message) SeenBy(userID int64) bool {
	for _, u := range m.Seen {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// IsTemp reports whether the message still carries an optimistic ID.
func (m *Message) IsTemp() bool {
	return len(m.ID) >= len(TempIDPrefix) && m.ID[:len(TempIDPrefix)] == TempIDPrefix
}

// Conversation is a direct conversation between exactly two users.
type Conversation struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
	Name          string    `json:"name,omitempty"`
	Users         []User    `json:"users"`
	LastMessage   *Message  `json:"last_message,omitempty"`
}

// Other returns the participant that is not the given user. Falls back to a
// zero User when the conversation does not include anyone else.
func (c *Conversation) Other(userID int64) User {
	for _, u := range c.Users {
		if u.ID != userID {
			return u
		}
	}
	return User{}
}

// MessagePatch is a partial update merged into a cached message. Nil fields
// are left untouched. Swapping an optimistic entry for its confirmed form
// patches ID, CreatedAt, Seen and Status together.
type MessagePatch struct {
	ID        *string
	Body      *string
	Image     *string
	Doc       *string
	CreatedAt *time.Time
	Seen      []User
	Status    *MessageStatus
}

// ConversationPatch is a partial update merged into a conversation.
type ConversationPatch struct {
	LastMessageAt *time.Time
	Name          *string
	LastMessage   *Message
}
