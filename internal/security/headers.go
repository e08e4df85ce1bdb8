// Package security provides response hardening middleware for the JSON API.
package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/p2pescrow/internal/auth"
)

// HeaderOptions toggles headers that only make sense behind TLS.
type HeaderOptions struct {
	HSTS bool
}

// HeadersMiddleware adds security headers to all responses
func HeadersMiddleware(opts HeaderOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		// JSON only; nothing to load or frame
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		// Balances and trades must not be cached by intermediaries
		h.Set("Cache-Control", "no-store")
		if opts.HSTS {
			h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		c.Next()
	}
}

var (
	corsMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	// The admin secret header is left out on purpose: browsers never
	// carry it, so a preflight asking for it is refused.
	corsHeaders = strings.Join([]string{"Content-Type", "X-Request-ID", auth.HeaderUserID}, ", ")
	corsExpose  = strings.Join([]string{"X-Request-ID", "Retry-After"}, ", ")
)

// CORSMiddleware answers cross-origin requests from allowedOrigins. "*"
// allows any origin without credentials. Preflights from other origins get
// 403; simple requests from them pass through without CORS headers, so the
// browser blocks the response.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			wildcard = true
		}
		if o != "" {
			allowed[o] = true
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		c.Writer.Header().Add("Vary", "Origin")

		ok := wildcard || allowed[origin]
		preflight := c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != ""

		if !ok {
			if preflight {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		h := c.Writer.Header()
		if wildcard {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		h.Set("Access-Control-Expose-Headers", corsExpose)

		if preflight {
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Max-Age", "86400")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
