package devserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"chatline/internal/domain"
)

var upgrader = websocket.Upgrader{
	// The dev server trusts local clients; CORS guards the API routes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS authenticates via Bearer token (Authorization header or token
// query parameter), registers the connection with the hub and presence
// tracker, broadcasts the presence transition and then reads typing events
// until the peer disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := extractWSToken(r)
	if tokenStr == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	userID, err := s.tokens.ParseUserID(tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	user, err := s.store.Users.GetByID(r.Context(), userID)
	if err != nil {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()
	s.hub.Register(user.ID, conn)
	cameOnline, err := s.presence.Connect(ctx, user.ID)
	if err != nil {
		s.log.Warn("presence connect", "user", user.ID, "error", err)
	}
	if cameOnline {
		s.hub.Broadcast(domain.Event{Type: domain.EventUserOnline, UserID: user.ID})
	}

	defer func() {
		s.hub.Unregister(user.ID, conn)
		wentOffline, err := s.presence.Disconnect(context.Background(), user.ID)
		if err != nil {
			s.log.Warn("presence disconnect", "user", user.ID, "error", err)
		}
		if wentOffline {
			s.hub.Broadcast(domain.Event{Type: domain.EventUserOffline, UserID: user.ID})
		}
	}()

	for {
		var ev domain.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		switch ev.Type {
		case domain.EventTyping:
			if ev.ConversationID == "" {
				continue
			}
			conv, err := s.store.Conversations.GetByID(ctx, ev.ConversationID)
			if err != nil || !participant(conv, user.ID) {
				continue
			}
			var others []int64
			for _, id := range participantIDs(conv) {
				if id != user.ID {
					others = append(others, id)
				}
			}
			s.hub.SendToUsers(others, domain.Event{
				Type:           domain.EventTyping,
				UserID:         user.ID,
				ConversationID: ev.ConversationID,
				IsTyping:       ev.IsTyping,
			})
		default:
			s.log.Debug("ws: ignoring event", "type", ev.Type, "user", user.ID)
		}
	}
}

func extractWSToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):])
	}
	return r.URL.Query().Get("token")
}
