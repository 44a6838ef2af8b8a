package repo_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/internal/devserver/repo"
	"chatline/internal/domain"
)

func memoryStore(t *testing.T) repo.Store {
	t.Helper()
	return repo.NewMemorySeeded().AsStore()
}

func sqliteStore(t *testing.T) repo.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "chatline-test.db")
	db, err := repo.OpenSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repo.MigrateSQLite(db))
	require.NoError(t, repo.SeedSQLite(context.Background(), db))
	return repo.NewSQLiteStore(db)
}

// Both backends seed from the same fixtures and must answer identically.
func forEachBackend(t *testing.T, test func(t *testing.T, store repo.Store)) {
	t.Run("Memory", func(t *testing.T) { test(t, memoryStore(t)) })
	t.Run("SQLite", func(t *testing.T) { test(t, sqliteStore(t)) })
}

func TestUserRepo(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repo.Store) {
		ctx := context.Background()

		u, err := store.Users.GetByID(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "Jacquenetta Slowgrave", u.Name)

		_, err = store.Users.GetByID(ctx, 999)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		users, err := store.Users.List(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 10)
	})
}

func TestConversationRepo(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repo.Store) {
		ctx := context.Background()

		conv, err := store.Conversations.GetByID(ctx, "conv-1")
		require.NoError(t, err)
		assert.Len(t, conv.Users, 2)

		_, err = store.Conversations.GetByID(ctx, "conv-999")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		// User 1 is in both seeded conversations, most recent first.
		convs, err := store.Conversations.ListForUser(ctx, 1)
		require.NoError(t, err)
		require.Len(t, convs, 2)
		assert.Equal(t, "conv-1", convs[0].ID)
		assert.Equal(t, "conv-2", convs[1].ID)

		// User 4 has none.
		convs, err = store.Conversations.ListForUser(ctx, 4)
		require.NoError(t, err)
		assert.Empty(t, convs)

		found, err := store.Conversations.FindDirect(ctx, 2, 1)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "conv-1", found.ID)

		missing, err := store.Conversations.FindDirect(ctx, 1, 4)
		require.NoError(t, err)
		assert.Nil(t, missing)

		now := time.Now().Truncate(time.Second)
		users, err := store.Users.List(ctx)
		require.NoError(t, err)
		created := &domain.Conversation{
			ID:            "conv-new",
			CreatedAt:     now,
			LastMessageAt: now,
			Users:         []domain.User{users[0], users[3]},
		}
		require.NoError(t, store.Conversations.Create(ctx, created))

		found, err = store.Conversations.FindDirect(ctx, 1, 4)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "conv-new", found.ID)

		// Touching bumps it to the top of the user's list.
		require.NoError(t, store.Conversations.TouchLastMessage(ctx, "conv-new", now.Add(time.Hour)))
		convs, err = store.Conversations.ListForUser(ctx, 1)
		require.NoError(t, err)
		require.Len(t, convs, 3)
		assert.Equal(t, "conv-new", convs[0].ID)
	})
}

func TestMessageRepo(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repo.Store) {
		ctx := context.Background()

		msgs, err := store.Messages.ListForConversation(ctx, "conv-1")
		require.NoError(t, err)
		require.Len(t, msgs, 4)
		for i := 1; i < len(msgs); i++ {
			assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt), "ascending by CreatedAt")
		}
		assert.Equal(t, int64(2), msgs[0].Sender.ID, "sender joined in")

		last, err := store.Messages.LastForConversation(ctx, "conv-1")
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, "msg-4", last.ID)

		none, err := store.Messages.LastForConversation(ctx, "conv-empty")
		require.NoError(t, err)
		assert.Nil(t, none)

		now := time.Now().Truncate(time.Second)
		msg := &domain.Message{
			ID:             "msg-new",
			Body:           "fresh",
			CreatedAt:      now,
			ConversationID: "conv-1",
			SenderID:       1,
		}
		require.NoError(t, store.Messages.Create(ctx, msg))

		last, err = store.Messages.LastForConversation(ctx, "conv-1")
		require.NoError(t, err)
		assert.Equal(t, "msg-new", last.ID)
	})
}

func TestMessageRepoMarkSeen(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repo.Store) {
		ctx := context.Background()

		viewer, err := store.Users.GetByID(ctx, 1)
		require.NoError(t, err)

		// msg-3 is seeded without a receipt from user 1; msg-1 has one, and
		// msg-2 is user 1's own message, which never takes their receipt.
		updated, err := store.Messages.MarkSeen(ctx, []string{"msg-1", "msg-2", "msg-3", "msg-missing"}, *viewer)
		require.NoError(t, err)
		require.Len(t, updated, 1)
		assert.Equal(t, "msg-3", updated[0].ID)
		assert.True(t, updated[0].SeenBy(1))

		msgs, err := store.Messages.ListForConversation(ctx, "conv-1")
		require.NoError(t, err)
		for _, m := range msgs {
			if m.ID == "msg-2" {
				assert.False(t, m.SeenBy(1), "author must not appear in their own seen list")
			}
		}

		// Second pass finds nothing left to mark.
		updated, err = store.Messages.MarkSeen(ctx, []string{"msg-1", "msg-3"}, *viewer)
		require.NoError(t, err)
		assert.Empty(t, updated)

		updated, err = store.Messages.MarkSeen(ctx, nil, *viewer)
		require.NoError(t, err)
		assert.Empty(t, updated)
	})
}
