// Package devserver is a development backend implementing the chat service
// contract over HTTP/JSON, with a WebSocket feed for presence, typing and
// message events. It stands in for a production backend during client work.
package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"chatline/internal/devserver/presence"
	"chatline/internal/devserver/repo"
	"chatline/internal/domain"
	"chatline/internal/security"
)

type Server struct {
	store    repo.Store
	presence presence.Tracker
	hub      *Hub
	tokens   *security.TokenService
	log      *slog.Logger

	corsOrigins []string
}

func New(store repo.Store, tracker presence.Tracker, hub *Hub, tokens *security.TokenService, log *slog.Logger, corsOrigins []string) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:       store,
		presence:    tracker,
		hub:         hub,
		tokens:      tokens,
		log:         log,
		corsOrigins: corsOrigins,
	}
}

// Router builds the HTTP router with middleware, API routes and the ws feed.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.handleSession)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/users", s.handleListUsers)
			r.Get("/conversations", s.handleListConversations)
			r.Post("/conversations", s.handleCreateOrGetConversation)
			r.Get("/conversations/{conversationID}/messages", s.handleListMessages)
			r.Post("/conversations/{conversationID}/messages", s.handleSendMessage)
			r.Post("/messages/seen", s.handleMarkSeen)
		})
	})

	r.Get("/ws", s.handleWS)

	return r
}

type contextKey string

const userContextKey contextKey = "currentUser"

// CurrentUser extracts the session user from the request context, if any.
func CurrentUser(r *http.Request) *domain.User {
	if u, ok := r.Context().Value(userContextKey).(*domain.User); ok {
		return u
	}
	return nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeJSON(w, http.StatusUnauthorized, errBody(domain.ErrUnauthorized.Error()))
			return
		}
		tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

		userID, err := s.tokens.ParseUserID(tokenStr)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errBody(domain.ErrUnauthorized.Error()))
			return
		}

		user, err := s.store.Users.GetByID(r.Context(), userID)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errBody(domain.ErrUnauthorized.Error()))
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// handleSession issues a session token. The user defaults to the first
// seeded account; pass ?user_id= to impersonate another one. This is a dev
// convenience, not an authentication scheme.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	userID := int64(1)
	if q := r.URL.Query().Get("user_id"); q != "" {
		id, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(domain.ErrInvalidInput.Error()))
			return
		}
		userID = id
	}

	user, err := s.store.Users.GetByID(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errBody("user not found"))
		return
	}

	token, err := s.tokens.CreateForUser(user.ID)
	if err != nil {
		s.log.Error("create session token", "user", user.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errBody("failed to create token"))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: *user})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	cu := CurrentUser(r)
	users, err := s.store.Users.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errBody(err.Error()))
		return
	}

	online, err := s.presence.Online(r.Context())
	if err != nil {
		s.log.Warn("read presence", "error", err)
	}
	onlineSet := make(map[int64]struct{}, len(online))
	for _, id := range online {
		onlineSet[id] = struct{}{}
	}

	res := make([]domain.User, 0, len(users))
	for _, u := range users {
		if u.ID == cu.ID {
			continue
		}
		_, u.IsOnline = onlineSet[u.ID]
		res = append(res, u)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	cu := CurrentUser(r)
	convs, err := s.store.Conversations.ListForUser(r.Context(), cu.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errBody(err.Error()))
		return
	}
	for i := range convs {
		last, err := s.store.Messages.LastForConversation(r.Context(), convs[i].ID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errBody(err.Error()))
			return
		}
		convs[i].LastMessage = last
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

type createConversationRequest struct {
	UserID int64 `json:"user_id"`
}

func (s *Server) handleCreateOrGetConversation(w http.ResponseWriter, r *http.Request) {
	cu := CurrentUser(r)
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(domain.ErrInvalidInput.Error()))
		return
	}
	if req.UserID == cu.ID {
		writeJSON(w, http.StatusBadRequest, errBody(domain.ErrSelfConversation.Error()))
		return
	}

	existing, err := s.store.Conversations.FindDirect(r.Context(), cu.ID, req.UserID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errBody(err.Error()))
		return
	}
	if existing != nil {
		existing.LastMessage, _ = s.store.Messages.LastForConversation(r.Context(), existing.ID)
		writeJSON(w, http.StatusOK, existing)
		return
	}

	other, err := s.store.Users.GetByID(r.Context(), req.UserID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errBody("user not found"))
		return
	}

	now := time.Now()
	conv := &domain.Conversation{
		ID:            "conv-" + uuid.NewString(),
		CreatedAt:     now,
		LastMessageAt: now,
		Users:         []domain.User{*cu, *other},
	}
	if err := s.store.Conversations.Create(r.Context(), conv); err != nil {
		writeJSON(w, http.StatusInternalServerError, errBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	cu := CurrentUser(r)
	convID := chi.URLParam(r, "conversationID")
	if !s.requireParticipant(w, r, convID, cu.ID) {
		return
	}

	msgs, err := s.store.Messages.ListForConversation(r.Context(), convID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errBody(err.Error()))
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Body  string `json:"body"`
	Image string `json:"image"`
	Doc   string `json:"doc"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	cu := CurrentUser(r)
	convID := chi.URLParam(r, "conversationID")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(domain.ErrInvalidInput.Error()))
		return
	}
	if req.Body == "" && req.Image == "" && req.Doc == "" {
		writeJSON(w, http.StatusBadRequest, errBody(domain.ErrEmptyMessage.Error()))
		return
	}

	conv, err := s.store.Conversations.GetByID(r.Context(), convID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errBody("conversation not found"))
		return
	}
	if !participant(conv, cu.ID) {
		writeJSON(w, http.StatusForbidden, errBody("not a participant in this conversation"))
		return
	}

	now := time.Now()
	msg := &domain.Message{
		ID:             "msg-" + uuid.NewString(),
		Body:           req.Body,
		Image:          req.Image,
		Doc:            req.Doc,
		CreatedAt:      now,
		ConversationID: convID,
		SenderID:       cu.ID,
		Sender:         *cu,
		Seen:           []domain.User{},
		Status:         domain.StatusSent,
	}
	if err := s.store.Messages.Create(r.Context(), msg); err != nil {
		writeJSON(w, http.StatusInternalServerError, errBody(err.Error()))
		return
	}
	if err := s.store.Conversations.TouchLastMessage(r.Context(), convID, now); err != nil {
		s.log.Warn("touch conversation", "conversation", convID, "error", err)
	}

	s.hub.SendToUsers(participantIDs(conv), domain.Event{
		Type:    domain.EventMessageNew,
		Message: msg,
	})
	writeJSON(w, http.StatusCreated, msg)
}

type markSeenRequest struct {
	MessageIDs []string `json:"message_ids"`
}

func (s *Server) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	cu := CurrentUser(r)
	var req markSeenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(domain.ErrInvalidInput.Error()))
		return
	}
	if len(req.MessageIDs) == 0 {
		writeJSON(w, http.StatusOK, map[string]int{"marked": 0})
		return
	}

	updated, err := s.store.Messages.MarkSeen(r.Context(), req.MessageIDs, *cu)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errBody(err.Error()))
		return
	}

	// One event per affected conversation so senders see their receipts live.
	byConv := make(map[string][]string)
	for _, m := range updated {
		byConv[m.ConversationID] = append(byConv[m.ConversationID], m.ID)
	}
	for convID, ids := range byConv {
		conv, err := s.store.Conversations.GetByID(r.Context(), convID)
		if err != nil {
			continue
		}
		s.hub.SendToUsers(participantIDs(conv), domain.Event{
			Type:           domain.EventMessagesSeen,
			UserID:         cu.ID,
			ConversationID: convID,
			MessageIDs:     ids,
		})
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": len(updated)})
}

func (s *Server) requireParticipant(w http.ResponseWriter, r *http.Request, conversationID string, userID int64) bool {
	conv, err := s.store.Conversations.GetByID(r.Context(), conversationID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errBody("conversation not found"))
		return false
	}
	if !participant(conv, userID) {
		writeJSON(w, http.StatusForbidden, errBody("not a participant in this conversation"))
		return false
	}
	return true
}

func participant(conv *domain.Conversation, userID int64) bool {
	for _, u := range conv.Users {
		if u.ID == userID {
			return true
		}
	}
	return false
}

func participantIDs(conv *domain.Conversation) []int64 {
	ids := make([]int64, len(conv.Users))
	for i, u := range conv.Users {
		ids[i] = u.ID
	}
	return ids
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
