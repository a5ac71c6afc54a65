package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/riftvanta/tms062025/internal/chat"
	"github.com/riftvanta/tms062025/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	order, _, ok := s.loadOrder(w, r)
	if !ok {
		return
	}

	messages, err := s.chats.GetMessages(r.Context(), order.ID)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	if len(messages) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.writeJSON(w, http.StatusOK, messages)
}

func (s *Server) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	order, user, ok := s.loadOrder(w, r)
	if !ok {
		return
	}

	var req model.PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	body := strings.TrimSpace(req.Body)
	if body == "" {
		http.Error(w, "empty message", http.StatusUnprocessableEntity)
		return
	}

	msg := model.Message{
		OrderID:  order.ID,
		SenderID: user.ID,
		Sender:   user.Username,
		Body:     body,
	}

	saved, err := s.chats.AddMessage(r.Context(), msg)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	s.deps.Hub.Broadcast(order.OrderID, messageEvent(saved))

	s.writeJSON(w, http.StatusCreated, saved)
}

// OrderSocketHandler subscribes the caller to live chat and status
// events of one order.
func (s *Server) OrderSocketHandler(w http.ResponseWriter, r *http.Request) {
	order, _, ok := s.loadOrder(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Errorf("websocket upgrade: %v", err)
		return
	}

	s.deps.Hub.Subscribe(order.OrderID, conn)
	s.readUntilClosed(order.OrderID, conn)
}

// AdminSocketHandler subscribes an administrator to new-order
// notifications.
func (s *Server) AdminSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Errorf("websocket upgrade: %v", err)
		return
	}

	s.deps.Hub.Subscribe(chat.AdminRoom, conn)
	s.readUntilClosed(chat.AdminRoom, conn)
}

// readUntilClosed drains the connection so pings and close frames are
// handled, then drops the subscription.
func (s *Server) readUntilClosed(room string, conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.deps.Hub.Unsubscribe(room, conn)
			_ = conn.Close()
			return
		}
	}
}

type chatEvent struct {
	Event   string        `json:"event"`
	Message model.Message `json:"message"`
}

func messageEvent(msg model.Message) chatEvent {
	return chatEvent{Event: "message", Message: msg}
}
