package controllers

import (
	"haven/models"
	"haven/services"
	"haven/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type AuthController struct {
	jwtService *utils.JWTService
	registry   *services.DeviceRegistry
	validator  *utils.ValidationService
}

func NewAuthController(jwtService *utils.JWTService, registry *services.DeviceRegistry) *AuthController {
	return &AuthController{
		jwtService: jwtService,
		registry:   registry,
		validator:  utils.NewValidationService(),
	}
}

// IssueDeviceToken exchanges a device id for an access token scoped to it.
// @Summary Issue device token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body models.DeviceTokenRequest true "Device identity"
// @Success 201 {object} models.APIResponse{data=models.DeviceTokenResponse}
// @Failure 400 {object} models.APIResponse
// @Router /auth/device [post]
func (ac *AuthController) IssueDeviceToken(c *gin.Context) {
	var req models.DeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if validationErrors := ac.validator.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	token, expiresAt, err := ac.jwtService.GenerateDeviceToken(req.DeviceID, req.PushToken)
	if err != nil {
		logrus.Errorf("Failed to issue device token: %v", err)
		utils.InternalServerErrorResponse(c, "Failed to issue token")
		return
	}

	ac.registry.Register(req.DeviceID, req.PushToken)

	utils.CreatedResponse(c, "Device token issued", models.DeviceTokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	})
}
