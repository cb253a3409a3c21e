package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/homies-app/backend/internal/models"
	"github.com/homies-app/backend/pkg/response"
)

// Role returns the authenticated user's role, or "" before the JWT middleware.
func Role(c *gin.Context) models.Role {
	role, _ := c.Get(ContextUserRole)
	s, _ := role.(string)
	return models.Role(s)
}

// RequireRole lets through callers holding one of roles. Admin routes such
// as POST /types use it after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ContextUserRole); !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		have := Role(c)
		for _, r := range roles {
			if r == have {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient permissions")
		c.Abort()
	}
}
