package domain

// EventType names a live update pushed over the event feed.
type EventType string

const (
	EventUserOnline   EventType = "user.online"
	EventUserOffline  EventType = "user.offline"
	EventTyping       EventType = "typing"
	EventMessageNew   EventType = "message.new"
	EventMessagesSeen EventType = "messages.seen"
)

// Event is one frame on the WebSocket feed. Fields are populated per type:
// presence events carry UserID; typing carries UserID, ConversationID and
// IsTyping; message.new carries Message; messages.seen carries UserID,
// ConversationID and MessageIDs.
type Event struct {
	Type           EventType `json:"type"`
	UserID         int64     `json:"user_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	IsTyping       bool      `json:"is_typing,omitempty"`
	Message        *Message  `json:"message,omitempty"`
	MessageIDs     []string  `json:"message_ids,omitempty"`
}
