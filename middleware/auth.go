package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserContextKey is where the authenticated user ID lives in the gin context.
const UserContextKey = "userID"

const maxUserIDLen = 64

var errNoUser = errors.New("user ID not found in context")

// AuthMiddleware trusts the identity the API gateway injects, either as the
// X-User-ID header or the user_id cookie. Checkout never sees credentials.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if userID == "" {
			if v, err := c.Cookie("user_id"); err == nil {
				userID = strings.TrimSpace(v)
			}
		}
		if userID == "" || len(userID) > maxUserIDLen {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(UserContextKey, userID)
		c.Next()
	}
}

// GetUserID returns the user set by AuthMiddleware.
func GetUserID(c *gin.Context) (string, error) {
	id, ok := c.Get(UserContextKey)
	if !ok {
		return "", errNoUser
	}
	s, _ := id.(string)
	if s == "" {
		return "", errNoUser
	}
	return s, nil
}
