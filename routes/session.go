package routes

import (
	"haven/controllers"

	"github.com/gin-gonic/gin"
)

// SetupSessionRoutes configures the live safety session
func SetupSessionRoutes(router *gin.RouterGroup, sessionController *controllers.SessionController) {
	session := router.Group("/session")

	session.POST("", sessionController.CreateSession)
	session.GET("", sessionController.GetSession)

	// Lifecycle
	session.POST("/start", sessionController.StartSession)
	session.POST("/ok", sessionController.ConfirmOK)
	session.POST("/extend", sessionController.Extend)
	session.POST("/trigger", sessionController.Trigger)
	session.POST("/exit", sessionController.SafeExit)
	session.POST("/acknowledge", sessionController.Acknowledge)

	// Edits, refused once an alert is underway
	session.PUT("/instruction", sessionController.SetInstruction)
	session.PUT("/substance", sessionController.SetSubstance)
	session.PUT("/message", sessionController.SetMessage)
	session.DELETE("/recipients/:id", sessionController.RemoveRecipient)
}
