package routes

import (
	"haven/controllers"
	"haven/middleware"

	"github.com/gin-gonic/gin"
)

// SetupWebSocketRoutes configures the live connection. Browsers pass the token
// as a query parameter since they cannot set headers on the upgrade.
func SetupWebSocketRoutes(router *gin.Engine, wsController *controllers.WebSocketController, authMiddleware *middleware.AuthMiddleware) {
	router.GET("/ws", authMiddleware.RequireAuth(), wsController.HandleWebSocket)

	ws := router.Group("/api/v1/ws")
	ws.Use(authMiddleware.RequireAuth())
	ws.GET("/stats", wsController.GetStats)
}
