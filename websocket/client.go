package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"haven/models"
	"haven/utils"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Buffer size for client send channel
	sendBufferSize = 64

	commandTimeout = 10 * time.Second
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Client struct {
	// WebSocket connection
	conn *websocket.Conn

	// Device scope the connection is bound to
	scope string

	// Connection metadata
	connectionID string
	connectedAt  time.Time
	ipAddress    string
	userAgent    string

	// Buffered channel of outbound messages
	send chan models.WSMessage

	// Hub reference
	hub *Hub

	rateLimiter *utils.RateLimiter
}

func NewClient(conn *websocket.Conn, hub *Hub, scope string, r *http.Request) *Client {
	return &Client{
		conn:         conn,
		hub:          hub,
		scope:        scope,
		send:         make(chan models.WSMessage, sendBufferSize),
		connectionID: utils.GenerateUUID(),
		connectedAt:  time.Now(),
		ipAddress:    getClientIP(r),
		userAgent:    r.UserAgent(),
		rateLimiter:  utils.NewRateLimiter(60, time.Minute),
	}
}

// Serve registers the client and runs both pumps until the connection closes.
func (c *Client) Serve() {
	c.hub.Register(c)
	go c.WritePump()
	c.ReadPump()
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket error for %s: %v", c.scope, err)
			}
			return
		}

		if !c.rateLimiter.Allow() {
			c.sendError(models.WSErrorRateLimit, "Rate limit exceeded", "")
			continue
		}

		c.handleMessage(data)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logrus.Errorf("Write error for %s: %v", c.scope, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var request models.WSRequest
	if err := json.Unmarshal(data, &request); err != nil {
		c.sendError(models.WSErrorInvalidMessage, "Invalid message format", "")
		return
	}

	switch request.Type {
	case models.WSTypePing:
		c.reply(models.WSTypePong, map[string]interface{}{"serverTime": time.Now()}, request.RequestID)

	case models.WSTypeSessionCommand:
		c.handleCommand(request)

	default:
		c.sendError(models.WSErrorInvalidMessage, "Unknown message type: "+request.Type, request.RequestID)
	}
}

func (c *Client) handleCommand(request models.WSRequest) {
	var cmd models.WSSessionCommand
	if err := json.Unmarshal(request.Data, &cmd); err != nil || cmd.Command == "" {
		c.sendError(models.WSErrorInvalidMessage, "Invalid session command", request.RequestID)
		return
	}

	commander := c.hub.sessionCommander()
	if commander == nil {
		c.sendError(models.WSErrorCommandFailed, "Session commands unavailable", request.RequestID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	snapshot, err := commander.Command(ctx, c.scope, cmd.Command)
	if err != nil {
		message := err.Error()
		if serviceErr, ok := utils.GetServiceError(err); ok {
			message = serviceErr.Message
		}
		c.sendError(models.WSErrorCommandFailed, message, request.RequestID)
		return
	}
	c.reply(models.WSTypeSessionState, snapshot, request.RequestID)
}

func (c *Client) reply(msgType string, data interface{}, requestID string) {
	c.enqueue(models.WSMessage{
		Type:      msgType,
		Data:      data,
		Scope:     c.scope,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

func (c *Client) sendError(code, message, requestID string) {
	c.reply(models.WSTypeError, models.WSError{Code: code, Message: message}, requestID)
}

// enqueue goes through the hub so the send channel is only ever written under
// the hub lock, which is also where it gets closed.
func (c *Client) enqueue(message models.WSMessage) {
	c.hub.mutex.Lock()
	defer c.hub.mutex.Unlock()

	if !c.hub.scopes[c.scope][c] {
		return
	}
	select {
	case c.send <- message:
	default:
		logrus.Warnf("Send buffer full for %s, dropping %s", c.scope, message.Type)
	}
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
