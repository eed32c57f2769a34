package routes

import (
	"haven/controllers"

	"github.com/gin-gonic/gin"
)

// SetupProfileRoutes configures the stored preferences of a device
func SetupProfileRoutes(router *gin.RouterGroup, profileController *controllers.ProfileController) {
	profile := router.Group("/profile")

	profile.GET("", profileController.GetProfile)

	contacts := profile.Group("/contacts")
	{
		contacts.GET("", profileController.GetContacts)
		contacts.PUT("", profileController.ReplaceContacts)
		contacts.POST("", profileController.AddContact)
		contacts.DELETE("/:id", profileController.DeleteContact)
	}

	profile.GET("/plan", profileController.GetPlan)
	profile.PUT("/plan", profileController.SetPlan)
	profile.GET("/message", profileController.GetMessage)
	profile.PUT("/message", profileController.SetMessage)
	profile.GET("/instruction", profileController.GetInstruction)
	profile.PUT("/instruction", profileController.SetInstruction)
	profile.GET("/duration", profileController.GetDuration)
	profile.PUT("/duration", profileController.SetDuration)
}
