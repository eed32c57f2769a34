package utils

import (
	"net/http"
	"time"

	"haven/models"

	"github.com/gin-gonic/gin"
)

// Success responses
func SuccessResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, models.APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now(),
	})
}

func CreatedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, models.APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now(),
	})
}

// writeError is the single shape every failure goes out in.
func writeError(c *gin.Context, status int, code, message string, details interface{}) {
	c.JSON(status, models.APIResponse{
		Success: false,
		Message: message,
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now(),
	})
}

func ErrorResponse(c *gin.Context, statusCode int, message string, details interface{}) {
	writeError(c, statusCode, getErrorCode(statusCode), message, details)
}

// ServiceErrorResponse writes a ServiceError with its own status and code;
// anything else becomes a 500.
func ServiceErrorResponse(c *gin.Context, err error) {
	serviceErr, ok := GetServiceError(err)
	if !ok {
		InternalServerErrorResponse(c, "")
		return
	}
	status := serviceErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	var details interface{}
	if serviceErr.Details != "" {
		details = serviceErr.Details
	}
	writeError(c, status, serviceErr.Code, serviceErr.Message, details)
}

func ValidationErrorResponse(c *gin.Context, validationErrors []ValidationError) {
	writeError(c, http.StatusBadRequest, models.ErrCodeValidation, "Validation failed", validationErrors)
}

func UnauthorizedResponse(c *gin.Context, message string) {
	if message == "" {
		message = "Unauthorized access"
	}
	writeError(c, http.StatusUnauthorized, models.ErrCodeAuthentication, message, nil)
}

func RateLimitResponse(c *gin.Context) {
	writeError(c, http.StatusTooManyRequests, models.ErrCodeRateLimit, "Rate limit exceeded", nil)
}

func InternalServerErrorResponse(c *gin.Context, message string) {
	if message == "" {
		message = "Internal server error"
	}
	writeError(c, http.StatusInternalServerError, models.ErrCodeInternal, message, nil)
}

func BadRequestResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, message, nil)
}

func getErrorCode(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return models.ErrCodeValidation
	case http.StatusUnauthorized:
		return models.ErrCodeAuthentication
	case http.StatusNotFound:
		return models.ErrCodeNotFound
	case http.StatusConflict:
		return models.ErrCodeConflict
	case http.StatusTooManyRequests:
		return models.ErrCodeRateLimit
	case http.StatusServiceUnavailable:
		return models.ErrCodeExternal
	default:
		return models.ErrCodeInternal
	}
}

// HealthCheckResponse reports unhealthy if any dependency is.
func HealthCheckResponse(dependencies map[string]string, version, uptime string) models.HealthResponse {
	status := "healthy"
	for _, s := range dependencies {
		if s != "healthy" {
			status = "unhealthy"
			break
		}
	}

	return models.HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  dependencies,
		Version:   version,
		Uptime:    uptime,
	}
}
