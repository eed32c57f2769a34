package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowAllOrigins bool
	AllowOrigins    []string
	AllowMethods    []string
	AllowHeaders    []string
	ExposeHeaders   []string
	MaxAge          time.Duration
}

func DefaultCORSConfig(origins []string) CORSConfig {
	config := CORSConfig{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:        12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			config.AllowAllOrigins = true
		}
	}
	return config
}

func CORS(config CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowed := isOriginAllowed(config, origin)

		if allowed {
			if config.AllowAllOrigins {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		} else if origin != "" {
			logrus.Debugf("CORS: Origin not allowed: %s", origin)
		}

		if c.Request.Method == http.MethodOptions {
			if allowed {
				c.Header("Access-Control-Allow-Methods", strings.Join(config.AllowMethods, ", "))
				c.Header("Access-Control-Allow-Headers", strings.Join(config.AllowHeaders, ", "))
				if config.MaxAge > 0 {
					c.Header("Access-Control-Max-Age", strconv.Itoa(int(config.MaxAge.Seconds())))
				}
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		if allowed && len(config.ExposeHeaders) > 0 {
			c.Header("Access-Control-Expose-Headers", strings.Join(config.ExposeHeaders, ", "))
		}

		c.Next()
	}
}

func isOriginAllowed(config CORSConfig, origin string) bool {
	if config.AllowAllOrigins {
		return true
	}
	if origin == "" {
		return false
	}

	for _, allowedOrigin := range config.AllowOrigins {
		if allowedOrigin == origin {
			return true
		}
		// Support wildcard subdomains (e.g., *.example.com)
		if strings.HasPrefix(allowedOrigin, "*.") {
			domain := allowedOrigin[2:]
			if strings.HasSuffix(origin, "."+domain) {
				return true
			}
		}
	}
	return false
}

// CORSMiddleware allows every origin in development and only the configured
// ones elsewhere.
func CORSMiddleware(environment string, origins []string) gin.HandlerFunc {
	if environment == "development" {
		return CORS(DefaultCORSConfig([]string{"*"}))
	}
	return CORS(DefaultCORSConfig(origins))
}
