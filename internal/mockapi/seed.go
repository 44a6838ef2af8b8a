package mockapi

import (
	"time"

	"chatline/internal/domain"
)

// seed aliases Fixtures for the package-local constructor.
func seed() ([]domain.User, []domain.Conversation, []domain.Message) {
	return Fixtures()
}

// Fixtures builds the development dataset: ten users, two conversations for
// the session user and a handful of messages. The dev server's in-memory
// repositories seed from the same data so both backends look alike.
func Fixtures() ([]domain.User, []domain.Conversation, []domain.Message) {
	users := []domain.User{
		{ID: 1, Name: "Current User", Email: "current@example.com", IsOnline: true},
		{ID: 2, Name: "Jacquenetta Slowgrave", Email: "jacq@example.com", IsOnline: true},
		{ID: 3, Name: "Nickola Peever", Email: "nick@example.com", IsOnline: true},
		{ID: 4, Name: "Farand Hume", Email: "farand@example.com"},
		{ID: 5, Name: "Ossie Peasey", Email: "ossie@example.com", IsOnline: true},
		{ID: 6, Name: "Hall Negri", Email: "hall@example.com"},
		{ID: 7, Name: "Elyssa Segot", Email: "elyssa@example.com", IsOnline: true},
		{ID: 8, Name: "Gil Wilfing", Email: "gil@example.com"},
		{ID: 9, Name: "Bab Cleaton", Email: "bab@example.com", IsOnline: true},
		{ID: 10, Name: "Janith Satch", Email: "janith@example.com"},
	}

	now := time.Now()
	conversations := []domain.Conversation{
		{
			ID:            "conv-1",
			CreatedAt:     now.Add(-24 * time.Hour),
			LastMessageAt: now.Add(-30 * time.Minute),
			Users:         []domain.User{users[0], users[1]},
		},
		{
			ID:            "conv-2",
			CreatedAt:     now.Add(-48 * time.Hour),
			LastMessageAt: now.Add(-2 * time.Hour),
			Users:         []domain.User{users[0], users[2]},
		},
	}

	messages := []domain.Message{
		{
			ID:             "msg-1",
			Body:           "I know how important this file is to you. You can trust me :)",
			CreatedAt:      now.Add(-time.Hour),
			ConversationID: "conv-1",
			SenderID:       2,
			Sender:         users[1],
			Seen:           []domain.User{users[0]},
			Status:         domain.StatusSent,
		},
		{
			ID:             "msg-2",
			Body:           "Great! Looking forward to it. Sounds perfect!",
			CreatedAt:      now.Add(-50 * time.Minute),
			ConversationID: "conv-1",
			SenderID:       1,
			Sender:         users[0],
			Seen:           []domain.User{users[1]},
			Status:         domain.StatusSent,
		},
		{
			ID:             "msg-3",
			Body:           "Could you take a look before our call tomorrow?",
			CreatedAt:      now.Add(-40 * time.Minute),
			ConversationID: "conv-1",
			SenderID:       2,
			Sender:         users[1],
			Seen:           []domain.User{},
			Status:         domain.StatusSent,
		},
		{
			ID:             "msg-4",
			Body:           "See you in 5 minutes!",
			CreatedAt:      now.Add(-30 * time.Minute),
			ConversationID: "conv-1",
			SenderID:       1,
			Sender:         users[0],
			Seen:           []domain.User{users[1]},
			Status:         domain.StatusSent,
		},
		{
			ID:             "msg-5",
			Body:           "Sounds perfect! I've been wanting to discuss this project with you.",
			CreatedAt:      now.Add(-2 * time.Hour),
			ConversationID: "conv-2",
			SenderID:       3,
			Sender:         users[2],
			Seen:           []domain.User{users[0]},
			Status:         domain.StatusSent,
		},
	}

	return users, conversations, messages
}
