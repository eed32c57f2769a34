package websocket

import (
	"context"
	"sync"
	"time"

	"haven/models"

	"github.com/sirupsen/logrus"
)

// SessionCommander applies a named session action for a device.
type SessionCommander interface {
	Command(ctx context.Context, scope, command string) (models.SessionSnapshot, error)
}

type Hub struct {
	// Registered clients, grouped by device scope
	scopes map[string]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast messages to a scope
	broadcast chan ScopedMessage

	commander SessionCommander

	// Hub statistics
	stats HubStats

	// Mutex for thread safety
	mutex sync.RWMutex

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type ScopedMessage struct {
	Scope   string
	Message models.WSMessage
}

type HubStats struct {
	TotalConnections  int64     `json:"totalConnections"`
	ActiveConnections int       `json:"activeConnections"`
	ActiveScopes      int       `json:"activeScopes"`
	MessagesSent      int64     `json:"messagesSent"`
	MessagesDropped   int64     `json:"messagesDropped"`
	StartTime         time.Time `json:"startTime"`
}

const broadcastBufferSize = 256

func NewHub(commander SessionCommander) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		scopes:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan ScopedMessage, broadcastBufferSize),
		commander:  commander,
		stats: HubStats{
			StartTime: time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetCommander wires the session manager after both are constructed.
func (h *Hub) SetCommander(commander SessionCommander) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.commander = commander
}

func (h *Hub) Run() {
	logrus.Info("WebSocket Hub starting...")

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToScope(message)

		case <-h.ctx.Done():
			logrus.Info("WebSocket Hub shutting down...")
			h.closeAll()
			return
		}
	}
}

// Publish queues a message for every connection of scope. It never blocks.
func (h *Hub) Publish(scope string, message models.WSMessage) {
	select {
	case h.broadcast <- ScopedMessage{Scope: scope, Message: message}:
	default:
		h.mutex.Lock()
		h.stats.MessagesDropped++
		h.mutex.Unlock()
		logrus.WithField("scope", scope).Warnf("Broadcast queue full, dropped %s", message.Type)
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	clients, ok := h.scopes[client.scope]
	if !ok {
		clients = make(map[*Client]bool)
		h.scopes[client.scope] = clients
	}
	clients[client] = true
	h.stats.ActiveConnections++
	h.stats.TotalConnections++

	logrus.Infof("Client registered: %s (Total: %d)", client.scope, h.stats.ActiveConnections)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	clients, ok := h.scopes[client.scope]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.scopes, client.scope)
	}
	close(client.send)
	h.stats.ActiveConnections--

	logrus.Infof("Client unregistered: %s (Total: %d)", client.scope, h.stats.ActiveConnections)
}

func (h *Hub) broadcastToScope(message ScopedMessage) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.scopes[message.Scope] {
		select {
		case client.send <- message.Message:
			h.stats.MessagesSent++
		default:
			// Slow consumer; it will resync from the next state message.
			h.stats.MessagesDropped++
		}
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for scope, clients := range h.scopes {
		for client := range clients {
			close(client.send)
		}
		delete(h.scopes, scope)
	}
	h.stats.ActiveConnections = 0
}

func (h *Hub) IsConnected(scope string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.scopes[scope]) > 0
}

func (h *Hub) GetStats() HubStats {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	stats := h.stats
	stats.ActiveScopes = len(h.scopes)
	return stats
}

func (h *Hub) Shutdown() {
	logrus.Info("Shutting down WebSocket Hub...")
	h.cancel()
}

func (h *Hub) sessionCommander() SessionCommander {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.commander
}
