package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(captured *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		*captured = Value(c)
		c.Status(http.StatusOK)
	})
	return r
}

func TestMiddlewareGeneratesID(t *testing.T) {
	var got string
	r := newRouter(&got)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, got)
	assert.Equal(t, got, w.Header().Get(Header))
}

func TestMiddlewareReusesIncomingID(t *testing.T) {
	var got string
	r := newRouter(&got)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(Header, "upstream-id")
	r.ServeHTTP(w, req)

	assert.Equal(t, "upstream-id", got)
	assert.Equal(t, "upstream-id", w.Header().Get(Header))
}
