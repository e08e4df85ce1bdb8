package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/v1/trades", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.OPTIONS("/v1/trades", func(c *gin.Context) { c.Status(http.StatusTeapot) })
	return r
}

func serve(r *gin.Engine, method, origin string, preflight bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/v1/trades", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHeadersMiddleware(t *testing.T) {
	w := serve(newRouter(HeadersMiddleware(HeaderOptions{})), http.MethodGet, "", false)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", w.Header().Get("Content-Security-Policy"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestHeadersMiddleware_HSTS(t *testing.T) {
	w := serve(newRouter(HeadersMiddleware(HeaderOptions{HSTS: true})), http.MethodGet, "", false)
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=")
}

func TestCORS_ListedOrigin(t *testing.T) {
	r := newRouter(CORSMiddleware([]string{"https://app.example.com/"}))

	w := serve(r, http.MethodGet, "https://app.example.com", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
}

func TestCORS_UnlistedOrigin(t *testing.T) {
	r := newRouter(CORSMiddleware([]string{"https://app.example.com"}))

	w := serve(r, http.MethodGet, "https://evil.example.com", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodOptions, "https://evil.example.com", true)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORS_Wildcard(t *testing.T) {
	r := newRouter(CORSMiddleware([]string{"*"}))

	w := serve(r, http.MethodGet, "https://anything.example", false)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_Preflight(t *testing.T) {
	r := newRouter(CORSMiddleware([]string{"*"}))

	w := serve(r, http.MethodOptions, "https://app.example.com", true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-User-ID")
	assert.NotContains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Admin-Secret")
}

func TestCORS_PlainOptionsReachesHandler(t *testing.T) {
	r := newRouter(CORSMiddleware([]string{"*"}))

	// No Access-Control-Request-Method: not a preflight.
	w := serve(r, http.MethodOptions, "https://app.example.com", false)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestCORS_NoOrigin(t *testing.T) {
	r := newRouter(CORSMiddleware([]string{"https://app.example.com"}))

	w := serve(r, http.MethodGet, "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Vary"))
}
