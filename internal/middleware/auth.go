package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/auth"
	"github.com/lalith-99/huddle/internal/view"
)

// Keys under which the token claims are stored on gin.Context.
const (
	ContextKeyUserID      = "user_id"
	ContextKeyTenantID    = "tenant_id"
	ContextKeyEmail       = "email"
	ContextKeyDisplayName = "display_name"
)

// TokenQueryParam carries the token on websocket upgrades, where browsers
// cannot set an Authorization header.
const TokenQueryParam = "token"

// AuthMiddleware rejects the request with 401 unless it carries a valid
// token, either as "Authorization: Bearer <token>" or in the token query
// parameter. The header wins when both are present.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, msg := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		claims, err := auth.ParseToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyTenantID, claims.TenantID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Set(ContextKeyDisplayName, claims.DisplayName)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if q := c.Query(TokenQueryParam); q != "" {
			return q, ""
		}
		return "", "missing authorization header"
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", "invalid authorization format, expected: Bearer <token>"
	}
	return parts[1], ""
}

// The getters below return zero values when the middleware did not run,
// which every repository lookup treats as not found.

func GetUserID(c *gin.Context) uuid.UUID {
	return getUUID(c, ContextKeyUserID)
}

func GetTenantID(c *gin.Context) uuid.UUID {
	return getUUID(c, ContextKeyTenantID)
}

func GetEmail(c *gin.Context) string {
	return c.GetString(ContextKeyEmail)
}

func GetDisplayName(c *gin.Context) string {
	return c.GetString(ContextKeyDisplayName)
}

// GetSender is the caller as it appears next to their own messages.
func GetSender(c *gin.Context) view.Sender {
	return view.Sender{ID: GetUserID(c), DisplayName: GetDisplayName(c)}
}

func getUUID(c *gin.Context, key string) uuid.UUID {
	val, exists := c.Get(key)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}
