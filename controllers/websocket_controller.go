package controllers

import (
	"haven/utils"
	"haven/websocket"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub *websocket.Hub
}

func NewWebSocketController(hub *websocket.Hub) *WebSocketController {
	return &WebSocketController{hub: hub}
}

// HandleWebSocket upgrades an authenticated request to a live session stream.
// @Summary WebSocket endpoint
// @Description Stream session state, feedback cues and delivery directives
// @Tags WebSocket
// @Param token query string true "Authentication token"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.APIResponse
// @Router /ws [get]
func (wsc *WebSocketController) HandleWebSocket(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	conn, err := websocket.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		logrus.Errorf("Failed to upgrade WebSocket connection: %v", err)
		return
	}

	logrus.Infof("WebSocket connection established for %s", scope)
	websocket.NewClient(conn, wsc.hub, scope, c.Request).Serve()
}

// GetStats reports hub counters.
// @Summary Get connection statistics
// @Tags WebSocket
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.APIResponse{data=websocket.HubStats}
// @Router /ws/stats [get]
func (wsc *WebSocketController) GetStats(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	utils.SuccessResponse(c, "Connection statistics retrieved", gin.H{
		"hub":       wsc.hub.GetStats(),
		"connected": wsc.hub.IsConnected(scope),
	})
}
