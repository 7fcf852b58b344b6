package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/tasksentry/internal/utils"
	"github.com/huangang/tasksentry/pkg/logger"
	"github.com/huangang/tasksentry/pkg/response"
)

const (
	ContextUserID      = logger.UserIDKey
	ContextDisplayName = "display_name"
	ContextRole        = "role"
)

// SessionValidator recovers a session from an access token.
type SessionValidator interface {
	Validate(token string) (*utils.Session, error)
}

// AuthRequired rejects requests without a valid bearer token. The role it
// stores is the one in the token and is only a hint for clients; permission
// checks read the current user record.
func AuthRequired(tokens SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		session, err := tokens.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Unauthorized(c, err.Error())
			c.Abort()
			return
		}

		c.Set(ContextUserID, session.UserID)
		c.Set(ContextDisplayName, session.DisplayName)
		c.Set(ContextRole, session.Role)

		c.Next()
	}
}

// GetUserID returns the authenticated user, or 0.
func GetUserID(c *gin.Context) uint {
	return c.GetUint(ContextUserID)
}

func GetDisplayName(c *gin.Context) string {
	return c.GetString(ContextDisplayName)
}

func GetRole(c *gin.Context) string {
	return c.GetString(ContextRole)
}
