package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/eventio/backend/internal/models"
	"github.com/eventio/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			return
		}
		if _, ok := allowed[caller.Role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			return
		}
		c.Next()
	}
}
