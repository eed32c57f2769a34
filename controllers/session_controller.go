package controllers

import (
	"context"

	"haven/models"
	"haven/services"
	"haven/utils"

	"github.com/gin-gonic/gin"
)

type SessionController struct {
	sessionService *services.SessionService
	validator      *utils.ValidationService
}

func NewSessionController(sessionService *services.SessionService) *SessionController {
	return &SessionController{
		sessionService: sessionService,
		validator:      utils.NewValidationService(),
	}
}

// CreateSession seeds an idle session from the stored profile.
// @Summary Create session
// @Description Create an idle safety session. The duration defaults to the stored preference.
// @Tags Session
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body models.CreateSessionRequest false "Session duration"
// @Success 201 {object} models.APIResponse{data=models.SessionSnapshot}
// @Failure 400 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse
// @Router /session [post]
func (sc *SessionController) CreateSession(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	var req models.CreateSessionRequest
	if !sc.bindOptional(c, &req) {
		return
	}

	snapshot, err := sc.sessionService.Create(c.Request.Context(), scope, req.DurationSeconds)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, "Session created", snapshot)
}

// StartSession starts the countdown, creating the session when none is idle.
// @Summary Start session
// @Tags Session
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body models.StartSessionRequest false "Session duration"
// @Success 200 {object} models.APIResponse{data=models.SessionSnapshot}
// @Failure 400 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse
// @Router /session/start [post]
func (sc *SessionController) StartSession(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	var req models.StartSessionRequest
	if !sc.bindOptional(c, &req) {
		return
	}

	snapshot, err := sc.sessionService.Start(c.Request.Context(), scope, req.DurationSeconds)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Session started", snapshot)
}

func (sc *SessionController) GetSession(c *gin.Context) {
	sc.run(c, "Session retrieved", sc.sessionService.Current)
}

// ConfirmOK resets the countdown to the full duration.
// @Summary Confirm OK
// @Tags Session
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.SessionSnapshot}
// @Failure 404 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse
// @Router /session/ok [post]
func (sc *SessionController) ConfirmOK(c *gin.Context) {
	sc.run(c, "Check-in confirmed", sc.sessionService.ConfirmOK)
}

func (sc *SessionController) Extend(c *gin.Context) {
	sc.run(c, "Session extended", sc.sessionService.Extend)
}

// Trigger raises an alert immediately.
// @Summary Trigger alert
// @Tags Session
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.SessionSnapshot}
// @Failure 404 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse
// @Router /session/trigger [post]
func (sc *SessionController) Trigger(c *gin.Context) {
	sc.run(c, "Alert triggered", sc.sessionService.Trigger)
}

func (sc *SessionController) SafeExit(c *gin.Context) {
	sc.run(c, "Session ended", sc.sessionService.SafeExit)
}

func (sc *SessionController) Acknowledge(c *gin.Context) {
	sc.run(c, "Emergency acknowledged", sc.sessionService.Acknowledge)
}

func (sc *SessionController) SetInstruction(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	var req models.SetInstructionRequest
	if !sc.bindRequired(c, &req) {
		return
	}
	instruction, valid := models.ParseContactInstruction(req.Instruction)
	if !valid {
		utils.ServiceErrorResponse(c, services.ErrInvalidInstruction)
		return
	}

	snapshot, err := sc.sessionService.SetInstruction(c.Request.Context(), scope, instruction)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Instruction updated", snapshot)
}

func (sc *SessionController) SetSubstance(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	var req models.SetSubstanceRequest
	if !sc.bindRequired(c, &req) {
		return
	}

	snapshot, err := sc.sessionService.SetSubstance(c.Request.Context(), scope, req.Substance)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Substance updated", snapshot)
}

func (sc *SessionController) SetMessage(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	var req models.SetMessageRequest
	if !sc.bindRequired(c, &req) {
		return
	}

	snapshot, err := sc.sessionService.SetMessage(c.Request.Context(), scope, req.Message)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Message updated", snapshot)
}

func (sc *SessionController) RemoveRecipient(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	snapshot, err := sc.sessionService.RemoveRecipient(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Recipient removed", snapshot)
}

func (sc *SessionController) run(c *gin.Context, message string, action func(context.Context, string) (models.SessionSnapshot, error)) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	snapshot, err := action(c.Request.Context(), scope)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, message, snapshot)
}

// bindOptional accepts an empty body.
func (sc *SessionController) bindOptional(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return sc.bindRequired(c, req)
}

func (sc *SessionController) bindRequired(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return false
	}
	if validationErrors := sc.validator.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}
