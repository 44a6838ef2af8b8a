package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"chatline/internal/domain"
	"chatline/internal/store"
)

// EventFeed keeps the store in step with the server's live updates. Message
// events go through the store's AddMessage, whose ID dedup makes event
// re-delivery harmless.
type EventFeed struct {
	serverURL string
	token     string
	store     *store.Store
	log       *slog.Logger

	conn      *websocket.Conn
	onMessage func(conversationID string)
}

func NewEventFeed(serverURL, token string, st *store.Store, log *slog.Logger) *EventFeed {
	if log == nil {
		log = slog.Default()
	}
	return &EventFeed{
		serverURL: serverURL,
		token:     token,
		store:     st,
		log:       log,
	}
}

// OnMessage registers fn to run after a message from another user has been
// applied to the store. The client hooks seen acknowledgement for the open
// conversation here. Must be set before Listen.
func (f *EventFeed) OnMessage(fn func(conversationID string)) {
	f.onMessage = fn
}

// Listen dials the feed and applies events until the context is done or the
// connection drops.
func (f *EventFeed) Listen(ctx context.Context) error {
	wsURL := httpToWS(f.serverURL) + "/ws"
	header := http.Header{"Authorization": []string{"Bearer " + f.token}}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("dial event feed: %w", err)
	}
	f.conn = conn
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var ev domain.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		f.apply(ev)
	}
}

// SendTyping reports the session user's typing state for the conversation.
func (f *EventFeed) SendTyping(conversationID string, isTyping bool) error {
	if f.conn == nil {
		return fmt.Errorf("event feed not connected")
	}
	return f.conn.WriteJSON(domain.Event{
		Type:           domain.EventTyping,
		ConversationID: conversationID,
		IsTyping:       isTyping,
	})
}

func (f *EventFeed) apply(ev domain.Event) {
	switch ev.Type {
	case domain.EventUserOnline:
		f.store.AddOnlineUser(ev.UserID)
	case domain.EventUserOffline:
		f.store.RemoveOnlineUser(ev.UserID)
	case domain.EventTyping:
		f.store.SetTyping(ev.ConversationID, ev.UserID, ev.IsTyping)
	case domain.EventMessageNew:
		if ev.Message == nil {
			return
		}
		cu := f.store.CurrentUser()
		if cu != nil && ev.Message.SenderID == cu.ID {
			// Own sends arrive through the optimistic path; the event echo
			// would duplicate the entry under its server ID.
			return
		}
		f.store.AddMessage(ev.Message.ConversationID, *ev.Message)
		f.store.UpdateConversation(ev.Message.ConversationID, domain.ConversationPatch{
			LastMessageAt: &ev.Message.CreatedAt,
			LastMessage:   ev.Message,
		})
		if f.onMessage != nil {
			f.onMessage(ev.Message.ConversationID)
		}
	case domain.EventMessagesSeen:
		f.store.MarkMessagesAsSeen(ev.ConversationID, ev.MessageIDs, ev.UserID)
	default:
		f.log.Debug("event feed: unknown event", "type", ev.Type)
	}
}

func httpToWS(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return u
	}
}
