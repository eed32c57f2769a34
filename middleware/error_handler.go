package middleware

import (
	"net/http"
	"runtime/debug"

	"haven/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorHandler recovers panics and renders errors attached with c.Error.
type ErrorHandler struct {
	environment string
}

func NewErrorHandler(environment string) *ErrorHandler {
	return &ErrorHandler{environment: environment}
}

func (eh *ErrorHandler) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				eh.handlePanic(c, err)
			}
		}()

		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			last := c.Errors.Last()
			for _, ginErr := range c.Errors {
				logrus.WithFields(logrus.Fields{
					"request_id": c.GetString("request_id"),
					"path":       c.Request.URL.Path,
					"scope":      c.GetString(ScopeKey),
				}).Errorf("Request error: %v", ginErr.Err)
			}
			utils.ServiceErrorResponse(c, last.Err)
		}
	}
}

func (eh *ErrorHandler) handlePanic(c *gin.Context, err interface{}) {
	stack := string(debug.Stack())
	logrus.WithFields(logrus.Fields{
		"panic":      err,
		"stack":      stack,
		"request_id": c.GetString("request_id"),
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
	}).Error("Panic recovered")

	var details interface{}
	if eh.environment == "development" {
		details = map[string]interface{}{"panic": err}
	}
	utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", details)
	c.Abort()
}
