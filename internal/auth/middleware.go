// Package auth reads the caller identity forwarded by the upstream gateway.
//
// Authentication itself happens outside this service: the gateway verifies
// the user and sets X-User-ID. Admin calls additionally carry X-Admin-Secret.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID      = "X-User-ID"
	HeaderAdminSecret = "X-Admin-Secret"

	// ContextKeyUserID is the key for storing the caller's user ID in gin context
	ContextKeyUserID = "authUserID"
	// ContextKeyAdmin is set to true when the admin secret matched
	ContextKeyAdmin = "authAdmin"
)

// Middleware copies the gateway identity into the gin context. It never
// aborts; use RequireUser / RequireAdmin on the routes that need them.
func Middleware(adminSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := strings.TrimSpace(c.GetHeader(HeaderUserID)); userID != "" {
			c.Set(ContextKeyUserID, userID)
		}

		if adminSecret != "" {
			given := c.GetHeader(HeaderAdminSecret)
			if given != "" && subtle.ConstantTimeCompare([]byte(given), []byte(adminSecret)) == 1 {
				c.Set(ContextKeyAdmin, true)
			}
		}

		c.Next()
	}
}

// RequireUser rejects requests without a caller identity
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Missing " + HeaderUserID + " header.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests that did not present the admin secret
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin access required.",
			})
			return
		}
		c.Next()
	}
}

// UserID returns the caller's user ID, or "" if none was forwarded
func UserID(c *gin.Context) string {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return ""
	}
	s, _ := v.(string)
	return s
}

// IsAdmin reports whether the request carried a valid admin secret
func IsAdmin(c *gin.Context) bool {
	return c.GetBool(ContextKeyAdmin)
}
