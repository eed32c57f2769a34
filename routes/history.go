package routes

import (
	"haven/controllers"

	"github.com/gin-gonic/gin"
)

// SetupHistoryRoutes configures the session log
func SetupHistoryRoutes(router *gin.RouterGroup, historyController *controllers.HistoryController) {
	history := router.Group("/history")

	history.GET("", historyController.GetHistory)
	history.GET("/summary", historyController.GetSummary)
}
