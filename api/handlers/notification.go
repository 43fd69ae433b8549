package handlers

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/linesmerrill/evchat/chat"
	"github.com/linesmerrill/evchat/models"
	"github.com/linesmerrill/evchat/store"
)

// Event names pushed to local websocket clients
const (
	EventStatus        = "chat_status"
	EventConversations = "conversations"
	EventMessage       = "message"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local UI only, the guard checks the token
	},
}

// EventHub fans chat events out to the connected UI clients
type EventHub struct {
	clients map[string]*websocket.Conn
	mutex   sync.Mutex
}

// NewEventHub returns an empty hub
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[string]*websocket.Conn)}
}

// HandleWebSocket upgrades the request and keeps the client registered until
// it goes away
func (h *EventHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade error", "error", err)
		return
	}

	clientID := uuid.NewString()
	h.mutex.Lock()
	h.clients[clientID] = conn
	h.mutex.Unlock()
	zap.S().Debugw("ui client connected", "client", clientID)

	defer h.remove(clientID)
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// Clients returns the number of connected clients
func (h *EventHub) Clients() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Broadcast sends {"event","data"} to every client, dropping those that fail
func (h *EventHub) Broadcast(event string, data interface{}) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for id, conn := range h.clients {
		err := conn.WriteJSON(map[string]interface{}{
			"event": event,
			"data":  data,
		})
		if err != nil {
			zap.S().Debugw("dropping ui client", "client", id, "error", err)
			delete(h.clients, id)
			conn.Close()
		}
	}
}

// Attach forwards the controller's state, directory and store changes
func (h *EventHub) Attach(c *chat.Controller) {
	c.OnStateChange(func(st chat.Status) {
		h.Broadcast(EventStatus, st)
	})
	c.Directory().Observe(func(convs []models.Conversation) {
		h.Broadcast(EventConversations, convs)
	})
	c.Store().Observe(func(e store.Event) {
		h.Broadcast(EventMessage, e)
	})
}

func (h *EventHub) remove(id string) {
	h.mutex.Lock()
	conn, ok := h.clients[id]
	delete(h.clients, id)
	h.mutex.Unlock()
	if ok {
		conn.Close()
		zap.S().Debugw("ui client disconnected", "client", id)
	}
}
