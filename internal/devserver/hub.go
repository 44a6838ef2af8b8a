package devserver

import (
	"sync"

	"github.com/gorilla/websocket"

	"chatline/internal/domain"
)

// Hub tracks active WebSocket connections keyed by user ID and fans events
// out to one or more users. The mutex also serializes writes: gorilla allows
// at most one concurrent writer per connection.
type Hub struct {
	mu    sync.Mutex
	conns map[int64]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[int64]map[*websocket.Conn]struct{}),
	}
}

// Register adds a connection for the given user.
func (h *Hub) Register(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[userID][conn] = struct{}{}
}

// Unregister removes a connection for the given user.
func (h *Hub) Unregister(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.conns[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, userID)
		}
	}
}

// SendToUsers delivers the event to every active connection of the given
// users. Failed connections are closed; removal happens on their read loop.
func (h *Hub) SendToUsers(userIDs []int64, ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, uid := range userIDs {
		for conn := range h.conns[uid] {
			if err := conn.WriteJSON(ev); err != nil {
				conn.Close()
			}
		}
	}
}

// Broadcast delivers the event to every connected user.
func (h *Hub) Broadcast(ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conns := range h.conns {
		for conn := range conns {
			if err := conn.WriteJSON(ev); err != nil {
				conn.Close()
			}
		}
	}
}
