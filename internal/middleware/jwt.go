package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/eventio/backend/internal/auth"
	"github.com/eventio/backend/internal/models"
	"github.com/eventio/backend/pkg/response"
)

const (
	// ContextCaller is the key for the authenticated models.Caller in gin context.
	ContextCaller = "caller"
	// TokenCookie is the cookie the web client stores its session token in.
	TokenCookie = "token"
)

// JWT returns a middleware that validates the caller's token and sets the
// caller identity in context. The token is read from the Authorization
// header, falling back to the session cookie.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := tokenFrom(c)
		if !ok {
			response.Unauthorized(c, "missing authorization")
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		c.Set(ContextCaller, claims.Caller())
		c.Next()
	}
}

// OptionalJWT sets the caller identity when a valid token is present and
// lets anonymous requests through.
func OptionalJWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := tokenFrom(c); ok {
			if claims, err := jwtService.Validate(token); err == nil {
				c.Set(ContextCaller, claims.Caller())
			}
		}
		c.Next()
	}
}

// CallerFrom returns the authenticated caller set by JWT.
func CallerFrom(c *gin.Context) (models.Caller, bool) {
	v, ok := c.Get(ContextCaller)
	if !ok {
		return models.Caller{}, false
	}
	caller, ok := v.(models.Caller)
	return caller, ok
}

func tokenFrom(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil && cookie != "" {
		return cookie, true
	}
	return "", false
}
