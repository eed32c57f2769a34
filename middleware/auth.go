package middleware

import (
	"strings"

	"haven/services"
	"haven/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ScopeKey is the gin context key holding the authenticated device scope.
const ScopeKey = "scope"

type AuthMiddleware struct {
	jwtService *utils.JWTService
	registry   *services.DeviceRegistry
}

func NewAuthMiddleware(jwtService *utils.JWTService, registry *services.DeviceRegistry) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		registry:   registry,
	}
}

// RequireAuth validates the device token and sets the scope on the context.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := am.extractToken(c)
		if token == "" {
			utils.UnauthorizedResponse(c, "Authentication token required")
			c.Abort()
			return
		}

		claims, err := am.jwtService.ValidateToken(token)
		if err != nil {
			logrus.Warnf("Invalid token: %v", err)
			utils.UnauthorizedResponse(c, "Invalid authentication token")
			c.Abort()
			return
		}

		if am.registry != nil && claims.PushToken != "" {
			am.registry.Register(claims.Subject, claims.PushToken)
		}

		c.Set(ScopeKey, claims.Subject)
		c.Next()
	}
}

// extractToken reads a bearer header, falling back to the "token" query
// parameter that browser websocket clients have to use.
func (am *AuthMiddleware) extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

// GetScope returns the authenticated device scope.
func GetScope(c *gin.Context) (string, bool) {
	scope := c.GetString(ScopeKey)
	return scope, scope != ""
}
