package chat

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// AdminRoom receives order notifications meant for administrators, in
// addition to the per-order chat rooms keyed by order id.
const AdminRoom = "admin"

// Hub fans out chat messages and notifications to websocket subscribers
// grouped into rooms. Writes are serialized through the hub lock, which
// keeps each connection single-writer as gorilla requires.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[*websocket.Conn]bool
	logger *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*websocket.Conn]bool),
		logger: logger,
	}
}

func (h *Hub) Subscribe(room string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[room]
	if !ok {
		subs = make(map[*websocket.Conn]bool)
		h.rooms[room] = subs
	}
	subs[conn] = true
}

func (h *Hub) Unsubscribe(room string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(room, conn)
}

// Broadcast sends v as JSON to every subscriber of room. Connections
// that fail to take the write are closed and dropped.
func (h *Hub) Broadcast(room string, v interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.rooms[room] {
		if err := conn.WriteJSON(v); err != nil {
			h.logger.Warnf("drop subscriber of %s: %v", room, err)
			h.drop(room, conn)
			_ = conn.Close()
		}
	}
}

// Subscribers reports the current subscriber count of a room.
func (h *Hub) Subscribers(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

func (h *Hub) drop(room string, conn *websocket.Conn) {
	subs := h.rooms[room]
	delete(subs, conn)
	if len(subs) == 0 {
		delete(h.rooms, room)
	}
}
