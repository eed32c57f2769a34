package routes

import (
	"haven/controllers"
	"haven/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// SetupAuthRoutes configures device token issuance
func SetupAuthRoutes(router *gin.RouterGroup, authController *controllers.AuthController, redisClient *redis.Client) {
	auth := router.Group("/auth")
	auth.Use(middleware.AuthRateLimit(redisClient))

	auth.POST("/device", authController.IssueDeviceToken)
}
