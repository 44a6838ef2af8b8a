package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatline/internal/domain"
)

// Store is the single source of truth for session state: the current user,
// known users, the online set, conversations and the per-conversation message
// cache. It is explicitly constructed (no package-level instance) so tests can
// run isolated copies. All operations are total: unknown IDs are no-ops.
//
// Every completed state transition notifies subscribers synchronously.
type Store struct {
	mu sync.RWMutex

	currentUser   *domain.User
	users         []domain.User
	online        map[int64]struct{}
	conversations []domain.Conversation
	activeConvID  string
	messages      map[string][]domain.Message

	sidebarCollapsed bool
	typing           map[string]map[int64]struct{}

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

func New() *Store {
	return &Store{
		online:   make(map[int64]struct{}),
		messages: make(map[string][]domain.Message),
		typing:   make(map[string]map[int64]struct{}),
		subs:     make(map[int]func()),
	}
}

// Subscribe registers fn to run synchronously after every state transition.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// notify runs outside the state lock so subscribers can read back safely.
func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// --- current user and users ---

func (s *Store) SetCurrentUser(u domain.User) {
	s.mu.Lock()
	s.currentUser = &u
	s.mu.Unlock()
	s.notify()
}

func (s *Store) CurrentUser() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentUser == nil {
		return nil
	}
	u := *s.currentUser
	return &u
}

func (s *Store) SetUsers(users []domain.User) {
	s.mu.Lock()
	s.users = append([]domain.User(nil), users...)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) Users() []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.User(nil), s.users...)
}

// UserByID looks the user up in the user table, including the current user.
func (s *Store) UserByID(id int64) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userByIDLocked(id)
}

func (s *Store) userByIDLocked(id int64) (domain.User, bool) {
	if s.currentUser != nil && s.currentUser.ID == id {
		return *s.currentUser, true
	}
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return domain.User{}, false
}

// --- presence set ---

func (s *Store) SetOnlineUsers(userIDs []int64) {
	s.mu.Lock()
	s.online = make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		s.online[id] = struct{}{}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) AddOnlineUser(userID int64) {
	s.mu.Lock()
	s.online[userID] = struct{}{}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) RemoveOnlineUser(userID int64) {
	s.mu.Lock()
	delete(s.online, userID)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) IsOnline(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.online[userID]
	return ok
}

func (s *Store) OnlineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.online)
}

// --- conversations ---

func (s *Store) SetConversations(convs []domain.Conversation) {
	s.mu.Lock()
	s.conversations = append([]domain.Conversation(nil), convs...)
	s.mu.Unlock()
	s.notify()
}

// AddConversation prepends without checking for a duplicate ID; callers
// guarantee idempotence via find-or-create semantics.
func (s *Store) AddConversation(conv domain.Conversation) {
	s.mu.Lock()
	s.conversations = append([]domain.Conversation{conv}, s.conversations...)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) UpdateConversation(id string, patch domain.ConversationPatch) {
	s.mu.Lock()
	for i := range s.conversations {
		if s.conversations[i].ID != id {
			continue
		}
		if patch.LastMessageAt != nil {
			s.conversations[i].LastMessageAt = *patch.LastMessageAt
		}
		if patch.Name != nil {
			s.conversations[i].Name = *patch.Name
		}
		if patch.LastMessage != nil {
			msg := *patch.LastMessage
			s.conversations[i].LastMessage = &msg
		}
		break
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) Conversations() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Conversation(nil), s.conversations...)
}

func (s *Store) ConversationByID(id string) (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Conversation{}, false
}

// SetActiveConversation selects the displayed thread; "" deselects.
func (s *Store) SetActiveConversation(id string) {
	s.mu.Lock()
	s.activeConvID = id
	s.mu.Unlock()
	s.notify()
}

func (s *Store) ActiveConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeConvID
}

// --- message cache ---

// SetMessages replaces the conversation's cached sequence wholesale. The
// cache is kept ascending by CreatedAt regardless of input order.
func (s *Store) SetMessages(conversationID string, msgs []domain.Message) {
	cp := append([]domain.Message(nil), msgs...)
	sortMessages(cp)
	s.mu.Lock()
	s.messages[conversationID] = cp
	s.mu.Unlock()
	s.notify()
}

// AddMessage appends iff no cached message shares the ID. The dedup guards
// against re-delivery (e.g. a ws event racing a fetch for the same message).
func (s *Store) AddMessage(conversationID string, msg domain.Message) {
	s.mu.Lock()
	existing := s.messages[conversationID]
	for _, m := range existing {
		if m.ID == msg.ID {
			s.mu.Unlock()
			return
		}
	}
	s.messages[conversationID] = insertOrdered(existing, msg)
	s.mu.Unlock()
	s.notify()
}

// AddOptimisticMessage synthesizes a temporary ID if the message lacks one,
// stamps CreatedAt to now, clears Seen and appends. Returns the ID the caller
// uses to reconcile on confirmation.
func (s *Store) AddOptimisticMessage(conversationID string, msg domain.Message) string {
	if msg.ID == "" {
		msg.ID = domain.TempIDPrefix + uuid.NewString()
	}
	msg.CreatedAt = time.Now()
	msg.ConversationID = conversationID
	msg.Seen = []domain.User{}
	if msg.Status == "" {
		msg.Status = domain.StatusSending
	}

	s.mu.Lock()
	s.messages[conversationID] = insertOrdered(s.messages[conversationID], msg)
	s.mu.Unlock()
	s.notify()
	return msg.ID
}

// UpdateMessage merges the patch into the message matching messageID. When
// the patch changes ID or CreatedAt the cache is re-sorted, so a confirmed
// server timestamp lands the entry in authoritative order.
func (s *Store) UpdateMessage(conversationID, messageID string, patch domain.MessagePatch) {
	s.mu.Lock()
	msgs := s.messages[conversationID]
	resort := false
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		if patch.ID != nil {
			msgs[i].ID = *patch.ID
		}
		if patch.Body != nil {
			msgs[i].Body = *patch.Body
		}
		if patch.Image != nil {
			msgs[i].Image = *patch.Image
		}
		if patch.Doc != nil {
			msgs[i].Doc = *patch.Doc
		}
		if patch.CreatedAt != nil {
			msgs[i].CreatedAt = *patch.CreatedAt
			resort = true
		}
		if patch.Seen != nil {
			msgs[i].Seen = append([]domain.User(nil), patch.Seen...)
		}
		if patch.Status != nil {
			msgs[i].Status = *patch.Status
		}
		break
	}
	if resort {
		sortMessages(msgs)
	}
	s.mu.Unlock()
	s.notify()
}

// MarkMessagesAsSeen appends a seen receipt for userID to every listed
// message that lacks one. Messages authored by userID are skipped, so a
// sender never turns up in their own seen list. The receipt carries the full
// User record when the user table knows it, an ID-only stub otherwise.
// Idempotent per pair.
func (s *Store) MarkMessagesAsSeen(conversationID string, messageIDs []string, userID int64) {
	ids := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = struct{}{}
	}

	s.mu.Lock()
	viewer, ok := s.userByIDLocked(userID)
	if !ok {
		viewer = domain.User{ID: userID}
	}
	msgs := s.messages[conversationID]
	for i := range msgs {
		if _, listed := ids[msgs[i].ID]; !listed {
			continue
		}
		if msgs[i].SenderID == userID {
			continue
		}
		if !msgs[i].SeenBy(userID) {
			msgs[i].Seen = append(msgs[i].Seen, viewer)
		}
	}
	s.mu.Unlock()
	s.notify()
}

// Messages returns a copy of the conversation's cached sequence.
func (s *Store) Messages(conversationID string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.messages[conversationID]...)
}

// --- UI state ---

func (s *Store) ToggleSidebar() {
	s.mu.Lock()
	s.sidebarCollapsed = !s.sidebarCollapsed
	s.mu.Unlock()
	s.notify()
}

func (s *Store) SidebarCollapsed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sidebarCollapsed
}

func (s *Store) SetTyping(conversationID string, userID int64, isTyping bool) {
	s.mu.Lock()
	set := s.typing[conversationID]
	if isTyping {
		if set == nil {
			set = make(map[int64]struct{})
			s.typing[conversationID] = set
		}
		set[userID] = struct{}{}
	} else if set != nil {
		delete(set, userID)
	}
	s.mu.Unlock()
	s.notify()
}

// TypingIn returns the IDs of users currently typing in the conversation.
func (s *Store) TypingIn(conversationID string) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.typing[conversationID]
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// insertOrdered places msg so the slice stays non-decreasing by CreatedAt.
// Equal timestamps keep insertion order, so the common append path is cheap.
func insertOrdered(msgs []domain.Message, msg domain.Message) []domain.Message {
	i := len(msgs)
	for i > 0 && msgs[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	msgs = append(msgs, domain.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = msg
	return msgs
}

func sortMessages(msgs []domain.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
