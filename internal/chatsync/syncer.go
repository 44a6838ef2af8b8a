// Package chatsync bridges the state store and the backend service: it owns
// the optimistic-send protocol, seen-receipt reconciliation and fetch
// supersession, and never keeps entity copies of its own: every write goes
// through the store's mutation contract.
package chatsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"chatline/internal/domain"
	"chatline/internal/store"
)

type Syncer struct {
	store *store.Store
	svc   domain.ChatService
	log   *slog.Logger

	mu       sync.Mutex
	fetchGen map[string]uint64
	cancels  map[string]context.CancelFunc
}

func New(st *store.Store, svc domain.ChatService, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{
		store:    st,
		svc:      svc,
		log:      log,
		fetchGen: make(map[string]uint64),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Bootstrap loads the session user, the user list (seeding the presence set
// from the fetched online flags) and the conversation list into the store.
func (s *Syncer) Bootstrap(ctx context.Context) error {
	cu, err := s.svc.GetCurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("get current user: %w", err)
	}
	s.store.SetCurrentUser(*cu)

	users, err := s.svc.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	s.store.SetUsers(users)

	var online []int64
	if cu.IsOnline {
		online = append(online, cu.ID)
	}
	for _, u := range users {
		if u.IsOnline {
			online = append(online, u.ID)
		}
	}
	s.store.SetOnlineUsers(online)

	return s.RefreshConversations(ctx)
}

// RefreshConversations replaces the store's conversation list with the
// service's current view.
func (s *Syncer) RefreshConversations(ctx context.Context) error {
	convs, err := s.svc.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	s.store.SetConversations(convs)
	return nil
}

// StartConversation finds or creates the direct conversation with the other
// user and makes it active. Repeated calls for the same pair re-activate the
// existing conversation instead of growing the list; on failure the store is
// left untouched.
func (s *Syncer) StartConversation(ctx context.Context, otherUserID int64) (*domain.Conversation, error) {
	cu := s.store.CurrentUser()
	if cu == nil {
		return nil, domain.ErrNoSession
	}

	conv, err := s.svc.CreateOrGetConversation(ctx, cu.ID, otherUserID)
	if err != nil {
		return nil, fmt.Errorf("create or get conversation: %w", err)
	}

	if _, known := s.store.ConversationByID(conv.ID); !known {
		s.store.AddConversation(*conv)
	}
	s.store.SetActiveConversation(conv.ID)

	if err := s.RefreshConversations(ctx); err != nil {
		s.log.Warn("refresh conversations after create", "error", err)
	}
	return conv, nil
}

// OpenConversation activates the thread, fetches its messages and fires the
// seen reconciliation.
func (s *Syncer) OpenConversation(ctx context.Context, conversationID string) error {
	s.store.SetActiveConversation(conversationID)
	if err := s.FetchMessages(ctx, conversationID); err != nil {
		return err
	}
	return s.MarkConversationSeen(ctx, conversationID)
}

// CloseConversation deselects the active thread (mobile back-navigation).
func (s *Syncer) CloseConversation() {
	s.store.SetActiveConversation("")
}

// FetchMessages loads the conversation's messages into the store. A newer
// fetch or an optimistic send supersedes an outstanding one: the stale
// response is dropped on arrival so it can never overwrite fresher state.
func (s *Syncer) FetchMessages(ctx context.Context, conversationID string) error {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if prev, ok := s.cancels[conversationID]; ok {
		prev()
	}
	s.fetchGen[conversationID]++
	gen := s.fetchGen[conversationID]
	s.cancels[conversationID] = cancel
	s.mu.Unlock()

	msgs, err := s.svc.ListMessages(ctx, conversationID)
	cancel()

	// The currency check and the store write share the lock, so a concurrent
	// send superseding this fetch can never interleave between them.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchGen[conversationID] != gen {
		// Superseded while in flight; the result is stale by definition.
		return nil
	}
	delete(s.cancels, conversationID)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	s.store.SetMessages(conversationID, msgs)
	return nil
}

// supersedeFetch invalidates any in-flight message fetch for the
// conversation so it cannot clobber an optimistic write with pre-send data.
func (s *Syncer) supersedeFetch(conversationID string) {
	s.mu.Lock()
	s.fetchGen[conversationID]++
	if cancel, ok := s.cancels[conversationID]; ok {
		cancel()
		delete(s.cancels, conversationID)
	}
	s.mu.Unlock()
}

// SendHandle tracks one send operation. The temporary ID is fixed at creation
// time; Done closes once the server confirmed or rejected the message.
type SendHandle struct {
	ConversationID string
	TempID         string

	done chan struct{}
	mu   sync.Mutex
	msg  *domain.Message
	err  error
}

func (h *SendHandle) Done() <-chan struct{} { return h.done }

// Err returns the send failure, if any. Valid once Done is closed.
func (h *SendHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Message returns the confirmed server message. Valid once Done is closed.
func (h *SendHandle) Message() *domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.msg
}

// Wait blocks until confirmation, rejection or context expiry.
func (h *SendHandle) Wait(ctx context.Context) (*domain.Message, error) {
	select {
	case <-h.done:
		return h.Message(), h.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *SendHandle) finish(msg *domain.Message, err error) {
	h.mu.Lock()
	h.msg = msg
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Send runs the optimistic-send protocol: the message is visible in the
// store before the network round trip starts, and the returned handle can be
// awaited for confirmation. On failure the entry is flagged failed and kept
// for retry, never silently dropped.
func (s *Syncer) Send(ctx context.Context, conversationID, body, image, doc string) (*SendHandle, error) {
	cu := s.store.CurrentUser()
	if cu == nil {
		return nil, domain.ErrNoSession
	}
	if body == "" && image == "" && doc == "" {
		return nil, domain.ErrEmptyMessage
	}

	// Supersede before the optimistic write: a fetch landing afterwards sees
	// a stale generation and cannot clobber the new entry.
	s.supersedeFetch(conversationID)

	tempID := s.store.AddOptimisticMessage(conversationID, domain.Message{
		ID:       domain.TempIDPrefix + uuid.NewString(),
		Body:     body,
		Image:    image,
		Doc:      doc,
		SenderID: cu.ID,
		Sender:   *cu,
	})

	return s.dispatch(ctx, conversationID, tempID, domain.SendMessageInput{
		ConversationID: conversationID,
		SenderID:       cu.ID,
		Body:           body,
		Image:          image,
		Doc:            doc,
	}), nil
}

// RetrySend re-issues a failed optimistic message, keeping its temporary ID
// until the server confirms.
func (s *Syncer) RetrySend(ctx context.Context, conversationID, messageID string) (*SendHandle, error) {
	cu := s.store.CurrentUser()
	if cu == nil {
		return nil, domain.ErrNoSession
	}

	var failed *domain.Message
	for _, m := range s.store.Messages(conversationID) {
		if m.ID == messageID {
			msg := m
			failed = &msg
			break
		}
	}
	if failed == nil || failed.Status != domain.StatusFailed {
		return nil, domain.ErrNotFound
	}

	s.supersedeFetch(conversationID)

	sending := domain.StatusSending
	s.store.UpdateMessage(conversationID, messageID, domain.MessagePatch{Status: &sending})

	return s.dispatch(ctx, conversationID, messageID, domain.SendMessageInput{
		ConversationID: conversationID,
		SenderID:       cu.ID,
		Body:           failed.Body,
		Image:          failed.Image,
		Doc:            failed.Doc,
	}), nil
}

func (s *Syncer) dispatch(ctx context.Context, conversationID, tempID string, in domain.SendMessageInput) *SendHandle {
	handle := &SendHandle{
		ConversationID: conversationID,
		TempID:         tempID,
		done:           make(chan struct{}),
	}

	go func() {
		msg, err := s.svc.SendMessage(ctx, in)
		if err != nil {
			failed := domain.StatusFailed
			s.store.UpdateMessage(conversationID, tempID, domain.MessagePatch{Status: &failed})
			s.log.Error("send message", "conversation", conversationID, "temp_id", tempID, "error", err)
			handle.finish(nil, err)
			return
		}

		s.confirm(conversationID, tempID, msg)

		// Refetch to pick up authoritative ordering and LastMessageAt.
		if err := s.RefreshConversations(ctx); err != nil {
			s.log.Warn("refresh conversations after send", "error", err)
		}
		handle.finish(msg, nil)
	}()

	return handle
}

// confirm swaps the optimistic entry for the server record, matched by the
// temporary ID recorded at dispatch. The store re-sorts on the timestamp
// change, so the client-clock entry moves to its authoritative position.
func (s *Syncer) confirm(conversationID, tempID string, msg *domain.Message) {
	sent := domain.StatusSent
	s.store.UpdateMessage(conversationID, tempID, domain.MessagePatch{
		ID:        &msg.ID,
		Body:      &msg.Body,
		Image:     &msg.Image,
		Doc:       &msg.Doc,
		CreatedAt: &msg.CreatedAt,
		Seen:      msg.Seen,
		Status:    &sent,
	})
	s.store.UpdateConversation(conversationID, domain.ConversationPatch{
		LastMessageAt: &msg.CreatedAt,
		LastMessage:   msg,
	})
}

// MarkConversationSeen computes the messages authored by others that the
// current user has not acknowledged, applies the local mark immediately and
// issues one batched request in the background. Transport failures are
// logged, not surfaced: the receipt is a best-effort signal.
func (s *Syncer) MarkConversationSeen(ctx context.Context, conversationID string) error {
	cu := s.store.CurrentUser()
	if cu == nil {
		return domain.ErrNoSession
	}

	var unseen []string
	for _, m := range s.store.Messages(conversationID) {
		if m.SenderID != cu.ID && !m.SeenBy(cu.ID) {
			unseen = append(unseen, m.ID)
		}
	}
	if len(unseen) == 0 {
		return nil
	}

	s.store.MarkMessagesAsSeen(conversationID, unseen, cu.ID)

	go func() {
		if err := s.svc.MarkMessagesAsSeen(ctx, unseen, cu.ID); err != nil {
			s.log.Warn("mark messages seen", "conversation", conversationID, "count", len(unseen), "error", err)
		}
	}()
	return nil
}
