package controllers

import (
	"haven/middleware"
	"haven/models"
	"haven/services"
	"haven/utils"

	"github.com/gin-gonic/gin"
)

type ProfileController struct {
	profileService *services.ProfileService
	validator      *utils.ValidationService
}

func NewProfileController(profileService *services.ProfileService) *ProfileController {
	return &ProfileController{
		profileService: profileService,
		validator:      utils.NewValidationService(),
	}
}

// GetProfile returns every stored preference of the device.
// @Summary Get profile
// @Tags Profile
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.Profile}
// @Router /profile [get]
func (pc *ProfileController) GetProfile(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	profile, err := pc.profileService.GetProfile(c.Request.Context(), scope)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Profile retrieved", profile)
}

func (pc *ProfileController) GetContacts(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	contacts, err := pc.profileService.GetContacts(c.Request.Context(), scope)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Contacts retrieved", contacts)
}

// ReplaceContacts overwrites the contact list.
// @Summary Replace contacts
// @Tags Profile
// @Accept json
// @Produce json
// @Param request body models.SetContactsRequest true "Contacts"
// @Success 200 {object} models.APIResponse{data=[]models.EmergencyContact}
// @Failure 400 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse
// @Router /profile/contacts [put]
func (pc *ProfileController) ReplaceContacts(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	var req models.SetContactsRequest
	if !pc.bindAndValidate(c, &req) {
		return
	}

	contacts, err := pc.profileService.ReplaceContacts(c.Request.Context(), scope, req.ToContacts())
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Contacts updated", contacts)
}

func (pc *ProfileController) AddContact(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	var req models.AddContactRequest
	if !pc.bindAndValidate(c, &req) {
		return
	}

	contact, err := pc.profileService.AddContact(c.Request.Context(), scope, req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, "Contact added", contact)
}

func (pc *ProfileController) DeleteContact(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	if err := pc.profileService.DeleteContact(c.Request.Context(), scope, c.Param("id")); err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Contact deleted", nil)
}

func (pc *ProfileController) GetPlan(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	plan, err := pc.profileService.GetPlan(c.Request.Context(), scope)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Escalation plan retrieved", plan)
}

func (pc *ProfileController) SetPlan(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	var req models.EscalationPlan
	if !pc.bindAndValidate(c, &req) {
		return
	}

	plan, err := pc.profileService.SetPlan(c.Request.Context(), scope, req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Escalation plan updated", plan)
}

func (pc *ProfileController) GetMessage(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	message, err := pc.profileService.GetMessage(c.Request.Context(), scope)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Message retrieved", gin.H{"message": message})
}

func (pc *ProfileController) SetMessage(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	var req models.SetMessageRequest
	if !pc.bindAndValidate(c, &req) {
		return
	}

	message, err := pc.profileService.SetMessage(c.Request.Context(), scope, req.Message)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Message updated", gin.H{"message": message})
}

func (pc *ProfileController) GetInstruction(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	instruction, err := pc.profileService.GetInstruction(c.Request.Context(), scope)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Instruction retrieved", gin.H{"instruction": instruction})
}

func (pc *ProfileController) SetInstruction(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	var req models.SetInstructionRequest
	if !pc.bindAndValidate(c, &req) {
		return
	}

	instruction, err := pc.profileService.SetInstruction(c.Request.Context(), scope, req.Instruction)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Instruction updated", gin.H{"instruction": instruction})
}

func (pc *ProfileController) GetDuration(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	minutes, err := pc.profileService.GetDurationMinutes(c.Request.Context(), scope)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Duration retrieved", gin.H{"minutes": minutes})
}

func (pc *ProfileController) SetDuration(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	var req models.SetDurationRequest
	if !pc.bindAndValidate(c, &req) {
		return
	}

	minutes, err := pc.profileService.SetDurationMinutes(c.Request.Context(), scope, req.Minutes)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Duration updated", gin.H{"minutes": minutes})
}

func (pc *ProfileController) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return false
	}
	return true
}

func (pc *ProfileController) bindAndValidate(c *gin.Context, req interface{}) bool {
	if !pc.bind(c, req) {
		return false
	}
	if validationErrors := pc.validator.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

// requireScope reads the device scope set by the auth middleware.
func requireScope(c *gin.Context) (string, bool) {
	scope, ok := middleware.GetScope(c)
	if !ok {
		utils.UnauthorizedResponse(c, "Authentication required")
		return "", false
	}
	return scope, true
}
