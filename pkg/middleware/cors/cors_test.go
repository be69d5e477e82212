package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/famcare-id/famcare-api/pkg/config"
)

func newRouter(cfg config.CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(cfg))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	r := newRouter(config.CORSConfig{
		AllowedOrigins: []string{"https://app.famcare.id"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		AllowedMethods: []string{"GET", "POST"},
		MaxAge:         10 * time.Minute,
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.famcare.id")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.famcare.id", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Authorization, Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORSUnknownOriginNotAllowed(t *testing.T) {
	r := newRouter(config.CORSConfig{
		AllowedOrigins: []string{"https://app.famcare.id"},
		AllowedHeaders: []string{"Authorization"},
		AllowedMethods: []string{"GET"},
		MaxAge:         time.Minute,
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(config.CORSConfig{MaxAge: time.Minute})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://anywhere.example", w.Header().Get("Access-Control-Allow-Origin"))
}
