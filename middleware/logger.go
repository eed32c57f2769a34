package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LoggerConfig holds logger configuration. Bodies are never logged: they carry
// contact phone numbers and alert text.
type LoggerConfig struct {
	Logger         *logrus.Logger
	SkipPaths      []string
	SkipUserAgents []string
	SlowThreshold  time.Duration
}

func LoggerMiddleware(config LoggerConfig) gin.HandlerFunc {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	if config.SlowThreshold == 0 {
		config.SlowThreshold = 5 * time.Second
	}

	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		if hasAnyPrefix(c.Request.URL.Path, config.SkipPaths) || containsAny(c.GetHeader("User-Agent"), config.SkipUserAgents) {
			c.Next()
			return
		}

		startTime := time.Now()
		c.Next()
		duration := time.Since(startTime)

		fields := logrus.Fields{
			"request_id":    requestID,
			"method":        c.Request.Method,
			"path":          c.Request.URL.Path,
			"status":        c.Writer.Status(),
			"latency_ms":    float64(duration.Nanoseconds()) / 1000000.0,
			"ip":            c.ClientIP(),
			"response_size": c.Writer.Size(),
		}
		if scope := c.GetString(ScopeKey); scope != "" {
			fields["scope"] = scope
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.Errors()
		}

		message := fmt.Sprintf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), duration)
		entry := config.Logger.WithFields(fields)

		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error(message)
		case status >= 400:
			entry.Warn(message)
		case duration > config.SlowThreshold:
			entry.Warn(message + " (slow request)")
		default:
			entry.Info(message)
		}
	}
}

func DefaultLoggerMiddleware() gin.HandlerFunc {
	return LoggerMiddleware(LoggerConfig{
		Logger:         logrus.StandardLogger(),
		SkipPaths:      []string{"/health", "/favicon.ico"},
		SkipUserAgents: []string{"kube-probe", "GoogleHC"},
	})
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
