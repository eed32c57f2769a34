package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"haven/models"

	"github.com/go-playground/validator/v10"
)

type ValidationService struct {
	validator *validator.Validate
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

var (
	phoneFormatting = regexp.MustCompile(`[\s\-().]`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

func NewValidationService() *ValidationService {
	v := validator.New()

	// Register custom validators
	v.RegisterValidation("phone", validatePhone)
	v.RegisterValidation("escalation_action", validateEscalationAction)
	v.RegisterValidation("contact_instruction", validateContactInstruction)

	return &ValidationService{
		validator: v,
	}
}

func (vs *ValidationService) ValidateStruct(s interface{}) []ValidationError {
	var validationErrors []ValidationError

	err := vs.validator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []ValidationError{{Field: "", Tag: "invalid", Message: err.Error()}}
	}

	for _, fe := range fieldErrors {
		validationErrors = append(validationErrors, ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Value:   fmt.Sprintf("%v", fe.Value()),
			Message: vs.getErrorMessage(fe),
		})
	}

	return validationErrors
}

func (vs *ValidationService) getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "phone":
		return "Invalid phone number format"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "gt", "gte":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", fe.Field(), fe.Param())
	case "escalation_action":
		return "Action must be SMS or CALL"
	case "contact_instruction":
		return "Instruction must be \"Call me first\" or \"Send help immediately\""
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// Custom validation functions
func validatePhone(fl validator.FieldLevel) bool {
	return IsValidPhone(fl.Field().String())
}

func validateEscalationAction(fl validator.FieldLevel) bool {
	return models.EscalationAction(fl.Field().String()).Valid()
}

func validateContactInstruction(fl validator.FieldLevel) bool {
	_, ok := models.ParseContactInstruction(fl.Field().String())
	return ok
}

// IsValidPhone accepts local and international numbers with common formatting.
func IsValidPhone(phone string) bool {
	cleaned := phoneFormatting.ReplaceAllString(strings.TrimSpace(phone), "")
	return phonePattern.MatchString(cleaned)
}

func SanitizeInput(input string) string {
	input = strings.TrimSpace(input)
	input = regexp.MustCompile(`[<>\"';&]`).ReplaceAllString(input, "")
	return input
}
