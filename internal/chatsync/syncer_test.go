package chatsync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatline/internal/chatsync"
	"chatline/internal/domain"
	"chatline/internal/mockapi"
	"chatline/internal/store"
)

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) GetCurrentUser(ctx context.Context) (*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockChatService) ListUsers(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.User), args.Error(1)
}

func (m *MockChatService) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Conversation), args.Error(1)
}

func (m *MockChatService) CreateOrGetConversation(ctx context.Context, userA, userB int64) (*domain.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockChatService) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MockChatService) SendMessage(ctx context.Context, in domain.SendMessageInput) (*domain.Message, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockChatService) MarkMessagesAsSeen(ctx context.Context, messageIDs []string, userID int64) error {
	args := m.Called(ctx, messageIDs, userID)
	return args.Error(0)
}

var (
	me    = domain.User{ID: 1, Name: "Current User", Email: "current@example.com", IsOnline: true}
	jacq  = domain.User{ID: 2, Name: "Jacquenetta Slowgrave", Email: "jacq@example.com", IsOnline: true}
	nick  = domain.User{ID: 3, Name: "Nickola Peever", Email: "nick@example.com"}
	users = []domain.User{jacq, nick}
)

func newSyncer(svc domain.ChatService) (*chatsync.Syncer, *store.Store) {
	st := store.New()
	return chatsync.New(st, svc, nil), st
}

func TestBootstrap(t *testing.T) {
	svc := new(MockChatService)
	syncer, st := newSyncer(svc)

	conv := domain.Conversation{ID: "conv-1", Users: []domain.User{me, jacq}}
	svc.On("GetCurrentUser", mock.Anything).Return(&me, nil)
	svc.On("ListUsers", mock.Anything).Return(users, nil)
	svc.On("ListConversations", mock.Anything).Return([]domain.Conversation{conv}, nil)

	err := syncer.Bootstrap(context.Background())
	assert.NoError(t, err)

	cu := st.CurrentUser()
	assert.NotNil(t, cu)
	assert.Equal(t, int64(1), cu.ID)
	assert.Len(t, st.Users(), 2)
	assert.True(t, st.IsOnline(1))
	assert.True(t, st.IsOnline(2))
	assert.False(t, st.IsOnline(3))
	assert.Len(t, st.Conversations(), 1)
}

func TestStartConversation(t *testing.T) {
	t.Run("RequiresSession", func(t *testing.T) {
		svc := new(MockChatService)
		syncer, _ := newSyncer(svc)

		_, err := syncer.StartConversation(context.Background(), 2)
		assert.ErrorIs(t, err, domain.ErrNoSession)
		svc.AssertNotCalled(t, "CreateOrGetConversation")
	})

	t.Run("Idempotent", func(t *testing.T) {
		svc := new(MockChatService)
		syncer, st := newSyncer(svc)
		st.SetCurrentUser(me)

		conv := domain.Conversation{ID: "conv-1", Users: []domain.User{me, jacq}}
		svc.On("CreateOrGetConversation", mock.Anything, int64(1), int64(2)).Return(&conv, nil)
		svc.On("ListConversations", mock.Anything).Return([]domain.Conversation{conv}, nil)

		first, err := syncer.StartConversation(context.Background(), 2)
		assert.NoError(t, err)
		second, err := syncer.StartConversation(context.Background(), 2)
		assert.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, st.Conversations(), 1, "second call must not grow the list")
		assert.Equal(t, "conv-1", st.ActiveConversationID())
	})

	t.Run("FailureLeavesStoreUntouched", func(t *testing.T) {
		svc := new(MockChatService)
		syncer, st := newSyncer(svc)
		st.SetCurrentUser(me)

		svc.On("CreateOrGetConversation", mock.Anything, int64(1), int64(3)).
			Return(nil, errors.New("network down"))

		_, err := syncer.StartConversation(context.Background(), 3)
		assert.Error(t, err)
		assert.Empty(t, st.Conversations())
		assert.Equal(t, "", st.ActiveConversationID())
	})
}

func TestSendOptimisticToConfirmed(t *testing.T) {
	svc := new(MockChatService)
	syncer, st := newSyncer(svc)
	st.SetCurrentUser(me)
	st.SetConversations([]domain.Conversation{{ID: "conv-1", Users: []domain.User{me, jacq}}})

	serverMsg := domain.Message{
		ID:             "msg-server-1",
		Body:           "hello",
		CreatedAt:      time.Now().Add(time.Second),
		ConversationID: "conv-1",
		SenderID:       1,
		Sender:         me,
		Seen:           []domain.User{},
		Status:         domain.StatusSent,
	}
	svc.On("SendMessage", mock.Anything, mock.MatchedBy(func(in domain.SendMessageInput) bool {
		return in.ConversationID == "conv-1" && in.SenderID == 1 && in.Body == "hello"
	})).Return(&serverMsg, nil)
	svc.On("ListConversations", mock.Anything).Return([]domain.Conversation{}, nil)

	handle, err := syncer.Send(context.Background(), "conv-1", "hello", "", "")
	assert.NoError(t, err)

	// Pending-local: visible immediately, before the round trip completes.
	pending := st.Messages("conv-1")
	assert.Len(t, pending, 1)
	assert.Equal(t, handle.TempID, pending[0].ID)
	assert.Contains(t, pending[0].ID, domain.TempIDPrefix)
	assert.Equal(t, "hello", pending[0].Body)
	assert.Equal(t, domain.StatusSending, pending[0].Status)

	got, err := handle.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "msg-server-1", got.ID)

	// Confirmed: no temp entry remains, exactly one entry with the server
	// ID, content unchanged.
	confirmed := st.Messages("conv-1")
	assert.Len(t, confirmed, 1)
	assert.Equal(t, "msg-server-1", confirmed[0].ID)
	assert.Equal(t, "hello", confirmed[0].Body)
	assert.Equal(t, domain.StatusSent, confirmed[0].Status)
	assert.Equal(t, serverMsg.CreatedAt, confirmed[0].CreatedAt, "authoritative timestamp adopted")
}

func TestSendPreconditions(t *testing.T) {
	svc := new(MockChatService)
	syncer, st := newSyncer(svc)

	_, err := syncer.Send(context.Background(), "conv-1", "hello", "", "")
	assert.ErrorIs(t, err, domain.ErrNoSession)

	st.SetCurrentUser(me)
	_, err = syncer.Send(context.Background(), "conv-1", "", "", "")
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)

	svc.AssertNotCalled(t, "SendMessage")
}

func TestSendFailureFlagsAndRetries(t *testing.T) {
	svc := new(MockChatService)
	syncer, st := newSyncer(svc)
	st.SetCurrentUser(me)

	svc.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

	handle, err := syncer.Send(context.Background(), "conv-1", "hello", "", "")
	assert.NoError(t, err)

	_, err = handle.Wait(context.Background())
	assert.Error(t, err)

	// The entry is retained and flagged, not silently dropped.
	msgs := st.Messages("conv-1")
	assert.Len(t, msgs, 1)
	assert.Equal(t, handle.TempID, msgs[0].ID)
	assert.Equal(t, domain.StatusFailed, msgs[0].Status)

	// Retry keeps the temp ID until the server confirms.
	serverMsg := domain.Message{
		ID:             "msg-server-2",
		Body:           "hello",
		CreatedAt:      time.Now(),
		ConversationID: "conv-1",
		SenderID:       1,
		Status:         domain.StatusSent,
	}
	svc.On("SendMessage", mock.Anything, mock.Anything).Return(&serverMsg, nil).Once()
	svc.On("ListConversations", mock.Anything).Return([]domain.Conversation{}, nil)

	retryHandle, err := syncer.RetrySend(context.Background(), "conv-1", handle.TempID)
	assert.NoError(t, err)
	_, err = retryHandle.Wait(context.Background())
	assert.NoError(t, err)

	msgs = st.Messages("conv-1")
	assert.Len(t, msgs, 1)
	assert.Equal(t, "msg-server-2", msgs[0].ID)
	assert.Equal(t, domain.StatusSent, msgs[0].Status)
}

func TestRetrySendRejectsNonFailed(t *testing.T) {
	svc := new(MockChatService)
	syncer, st := newSyncer(svc)
	st.SetCurrentUser(me)
	st.SetMessages("conv-1", []domain.Message{
		{ID: "msg-1", Body: "hello", SenderID: 1, Status: domain.StatusSent, CreatedAt: time.Now()},
	})

	_, err := syncer.RetrySend(context.Background(), "conv-1", "msg-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSendSupersedesInFlightFetch(t *testing.T) {
	svc := new(MockChatService)
	syncer, st := newSyncer(svc)
	st.SetCurrentUser(me)

	release := make(chan struct{})
	started := make(chan struct{})
	// Stale pre-send snapshot that must not overwrite the optimistic entry.
	svc.On("ListMessages", mock.Anything, "conv-1").
		Run(func(args mock.Arguments) {
			close(started)
			<-release
		}).
		Return([]domain.Message{}, nil)

	fetchDone := make(chan error, 1)
	go func() {
		fetchDone <- syncer.FetchMessages(context.Background(), "conv-1")
	}()
	<-started

	sendBlock := make(chan struct{})
	svc.On("SendMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-sendBlock }).
		Return(nil, errors.New("held"))

	handle, err := syncer.Send(context.Background(), "conv-1", "hello", "", "")
	assert.NoError(t, err)

	// Let the stale fetch land now: it was superseded by the send, so its
	// empty result must be ignored.
	close(release)
	assert.NoError(t, <-fetchDone)

	msgs := st.Messages("conv-1")
	assert.Len(t, msgs, 1)
	assert.Equal(t, handle.TempID, msgs[0].ID)

	close(sendBlock)
	handle.Wait(context.Background())
}

func TestFetchRacingSendKeepsOptimisticEntry(t *testing.T) {
	// No controlled interleaving here: the fetch and the send race freely,
	// and whatever order they land in, the optimistic entry must survive.
	for i := 0; i < 25; i++ {
		svc := new(MockChatService)
		syncer, st := newSyncer(svc)
		st.SetCurrentUser(me)

		svc.On("ListMessages", mock.Anything, "conv-1").Return([]domain.Message{}, nil)
		svc.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("down"))

		fetchDone := make(chan struct{})
		go func() {
			_ = syncer.FetchMessages(context.Background(), "conv-1")
			close(fetchDone)
		}()

		handle, err := syncer.Send(context.Background(), "conv-1", "hello", "", "")
		require.NoError(t, err)
		handle.Wait(context.Background())
		<-fetchDone

		msgs := st.Messages("conv-1")
		require.Len(t, msgs, 1)
		require.Equal(t, handle.TempID, msgs[0].ID)
		require.Equal(t, domain.StatusFailed, msgs[0].Status)
	}
}

func TestMarkConversationSeen(t *testing.T) {
	t.Run("RequiresSession", func(t *testing.T) {
		svc := new(MockChatService)
		syncer, _ := newSyncer(svc)
		assert.ErrorIs(t, syncer.MarkConversationSeen(context.Background(), "conv-1"), domain.ErrNoSession)
	})

	t.Run("BatchesUnseenFromOthers", func(t *testing.T) {
		svc := new(MockChatService)
		syncer, st := newSyncer(svc)
		st.SetCurrentUser(me)
		st.SetUsers(users)
		base := time.Now()
		st.SetMessages("conv-1", []domain.Message{
			{ID: "msg-1", SenderID: 2, Sender: jacq, CreatedAt: base, Seen: []domain.User{}},
			{ID: "msg-2", SenderID: 1, Sender: me, CreatedAt: base.Add(time.Second), Seen: []domain.User{}},
			{ID: "msg-3", SenderID: 2, Sender: jacq, CreatedAt: base.Add(2 * time.Second), Seen: []domain.User{me}},
			{ID: "msg-4", SenderID: 2, Sender: jacq, CreatedAt: base.Add(3 * time.Second), Seen: []domain.User{}},
		})

		called := make(chan []string, 1)
		svc.On("MarkMessagesAsSeen", mock.Anything, mock.Anything, int64(1)).
			Run(func(args mock.Arguments) {
				called <- args.Get(1).([]string)
			}).
			Return(nil)

		err := syncer.MarkConversationSeen(context.Background(), "conv-1")
		assert.NoError(t, err)

		// Optimistic local mark is synchronous.
		msgs := st.Messages("conv-1")
		assert.True(t, msgs[0].SeenBy(1))
		assert.False(t, msgs[1].SeenBy(1), "own messages are never marked")
		assert.True(t, msgs[3].SeenBy(1))

		select {
		case ids := <-called:
			assert.ElementsMatch(t, []string{"msg-1", "msg-4"}, ids, "one batched request, only unseen from others")
		case <-time.After(time.Second):
			t.Fatal("expected a background seen request")
		}
	})

	t.Run("NothingToMark", func(t *testing.T) {
		svc := new(MockChatService)
		syncer, st := newSyncer(svc)
		st.SetCurrentUser(me)

		assert.NoError(t, syncer.MarkConversationSeen(context.Background(), "conv-1"))
		svc.AssertNotCalled(t, "MarkMessagesAsSeen")
	})
}

func TestOpenAndCloseConversation(t *testing.T) {
	svc := new(MockChatService)
	syncer, st := newSyncer(svc)
	st.SetCurrentUser(me)

	msgs := []domain.Message{
		{ID: "msg-1", SenderID: 2, Sender: jacq, CreatedAt: time.Now(), Seen: []domain.User{me}},
	}
	svc.On("ListMessages", mock.Anything, "conv-1").Return(msgs, nil)

	err := syncer.OpenConversation(context.Background(), "conv-1")
	assert.NoError(t, err)
	assert.Equal(t, "conv-1", st.ActiveConversationID())
	assert.Len(t, st.Messages("conv-1"), 1)

	syncer.CloseConversation()
	assert.Equal(t, "", st.ActiveConversationID())
}

// End-to-end against the in-process mock backend: user 1 sends "hello", the
// cache shows a temp entry immediately and exactly one confirmed entry after.
func TestEndToEndSendScenario(t *testing.T) {
	svc := mockapi.New()
	svc.Latency = 0
	syncer, st := newSyncer(svc)

	ctx := context.Background()
	assert.NoError(t, syncer.Bootstrap(ctx))
	assert.NoError(t, syncer.OpenConversation(ctx, "conv-1"))

	before := len(st.Messages("conv-1"))

	handle, err := syncer.Send(ctx, "conv-1", "hello", "", "")
	assert.NoError(t, err)

	var optimistic *domain.Message
	for _, m := range st.Messages("conv-1") {
		if m.ID == handle.TempID {
			msg := m
			optimistic = &msg
		}
	}
	assert.NotNil(t, optimistic, "optimistic entry visible before confirmation")
	assert.Equal(t, "hello", optimistic.Body)

	confirmed, err := handle.Wait(ctx)
	assert.NoError(t, err)
	assert.Contains(t, confirmed.ID, "msg-")
	assert.Equal(t, "conv-1", confirmed.ConversationID)

	final := st.Messages("conv-1")
	assert.Len(t, final, before+1)
	var withServerID, withTempID int
	for _, m := range final {
		if m.ID == confirmed.ID {
			withServerID++
			assert.Equal(t, "hello", m.Body)
		}
		if m.IsTemp() {
			withTempID++
		}
	}
	assert.Equal(t, 1, withServerID)
	assert.Zero(t, withTempID)

	// The conversation list was refetched; conv-1 is first again.
	assert.Equal(t, "conv-1", st.Conversations()[0].ID)
}

func TestOrderingInvariantUnderMixedWrites(t *testing.T) {
	svc := mockapi.New()
	svc.Latency = 0
	syncer, st := newSyncer(svc)

	ctx := context.Background()
	assert.NoError(t, syncer.Bootstrap(ctx))
	assert.NoError(t, syncer.OpenConversation(ctx, "conv-1"))

	for _, body := range []string{"one", "two", "three"} {
		handle, err := syncer.Send(ctx, "conv-1", body, "", "")
		assert.NoError(t, err)
		_, err = handle.Wait(ctx)
		assert.NoError(t, err)
	}

	msgs := st.Messages("conv-1")
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}
